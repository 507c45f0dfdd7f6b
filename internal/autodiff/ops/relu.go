package ops

import "github.com/born-ml/texturize/internal/tensor"

// ReLUOp represents a ReLU activation: output = max(0, x).
//
// d(ReLU(x))/dx = 1 if x > 0, else 0. The mask is derived from the input
// and multiplied into the output gradient.
type ReLUOp struct{ base }

// NewReLUOp creates a new ReLUOp.
func NewReLUOp(input, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{base{[]*tensor.RawTensor{input}, output}}
}

// Backward computes input gradient for ReLU.
func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	input := op.inputs[0]
	mask := tensor.MustRaw(input.Shape())
	m := mask.Data()
	for i, v := range input.Data() {
		if v > 0 {
			m[i] = 1
		}
	}
	return []*tensor.RawTensor{backend.Mul(outputGrad, mask)}
}
