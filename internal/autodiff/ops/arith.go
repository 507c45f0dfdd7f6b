package ops

import "github.com/born-ml/texturize/internal/tensor"

// AddOp represents element-wise addition: output = a + b.
//
// d(a+b)/da = 1, d(a+b)/db = 1.
type AddOp struct{ base }

// NewAddOp creates a new AddOp.
func NewAddOp(a, b, output *tensor.RawTensor) *AddOp {
	return &AddOp{base{[]*tensor.RawTensor{a, b}, output}}
}

// Backward passes the gradient through to both inputs.
func (op *AddOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{outputGrad, outputGrad}
}

// SubOp represents element-wise subtraction: output = a - b.
type SubOp struct{ base }

// NewSubOp creates a new SubOp.
func NewSubOp(a, b, output *tensor.RawTensor) *SubOp {
	return &SubOp{base{[]*tensor.RawTensor{a, b}, output}}
}

// Backward returns [grad, -grad].
func (op *SubOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{outputGrad, backend.MulScalar(outputGrad, -1)}
}

// MulOp represents element-wise multiplication: output = a * b.
//
// d(a*b)/da = b, d(a*b)/db = a. When a and b are the same tensor (squaring),
// the tape accumulates both halves into 2·a·grad.
type MulOp struct{ base }

// NewMulOp creates a new MulOp.
func NewMulOp(a, b, output *tensor.RawTensor) *MulOp {
	return &MulOp{base{[]*tensor.RawTensor{a, b}, output}}
}

// Backward returns [grad*b, grad*a].
func (op *MulOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	return []*tensor.RawTensor{backend.Mul(outputGrad, b), backend.Mul(outputGrad, a)}
}

// MulScalarOp represents output = s * x for a constant s.
type MulScalarOp struct {
	base
	scalar float32
}

// NewMulScalarOp creates a new MulScalarOp.
func NewMulScalarOp(x, output *tensor.RawTensor, scalar float32) *MulScalarOp {
	return &MulScalarOp{base{[]*tensor.RawTensor{x}, output}, scalar}
}

// Backward returns [s * grad].
func (op *MulScalarOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MulScalar(outputGrad, op.scalar)}
}
