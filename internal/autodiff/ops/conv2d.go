package ops

import "github.com/born-ml/texturize/internal/tensor"

// Conv2DOp records a 2D convolution for autodiff.
//
// Forward: output = Conv2D(input, kernel, stride, padding)
//
// Only the input gradient is produced ("transposed convolution" of the output
// gradient with the kernel). Kernels belong to a frozen extractor, so the
// kernel entry is nil.
type Conv2DOp struct {
	base
	stride  int
	padding int
}

// NewConv2DOp creates a new Conv2D operation.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, stride, padding int) *Conv2DOp {
	return &Conv2DOp{
		base:    base{[]*tensor.RawTensor{input, kernel}, output},
		stride:  stride,
		padding: padding,
	}
}

// Backward computes ∂L/∂input [N, H, W, C_in] from ∂L/∂output [N, H_out, W_out, C_out].
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	input, kernel := op.inputs[0], op.inputs[1]
	inputGrad := backend.Conv2DInputBackward(input, kernel, outputGrad, op.stride, op.padding)
	return []*tensor.RawTensor{inputGrad, nil}
}

// BiasAddOp records a per-channel bias addition. The bias is frozen.
type BiasAddOp struct{ base }

// NewBiasAddOp creates a new BiasAddOp.
func NewBiasAddOp(x, bias, output *tensor.RawTensor) *BiasAddOp {
	return &BiasAddOp{base{[]*tensor.RawTensor{x, bias}, output}}
}

// Backward passes the gradient to x unchanged.
func (op *BiasAddOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{outputGrad, nil}
}
