package ops

import "github.com/born-ml/texturize/internal/tensor"

// BatchMatMulOp represents a batched matrix multiplication: output = a @ b.
//
// Backward pass:
//
//	dL/dA = dL/dC @ Bᵀ
//	dL/dB = Aᵀ @ dL/dC
type BatchMatMulOp struct{ base }

// NewBatchMatMulOp creates a new BatchMatMulOp.
func NewBatchMatMulOp(a, b, output *tensor.RawTensor) *BatchMatMulOp {
	return &BatchMatMulOp{base{[]*tensor.RawTensor{a, b}, output}}
}

// Backward computes gradients for batch matmul.
func (op *BatchMatMulOp) Backward(grad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	gradA := backend.BatchMatMul(grad, backend.Transpose(b))
	gradB := backend.BatchMatMul(backend.Transpose(a), grad)
	return []*tensor.RawTensor{gradA, gradB}
}

// TransposeOp swaps the last two axes of a 3D tensor. Its gradient is the
// transposed output gradient.
type TransposeOp struct{ base }

// NewTransposeOp creates a new TransposeOp.
func NewTransposeOp(x, output *tensor.RawTensor) *TransposeOp {
	return &TransposeOp{base{[]*tensor.RawTensor{x}, output}}
}

// Backward returns [gradᵀ].
func (op *TransposeOp) Backward(grad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Transpose(grad)}
}

// ReshapeOp records a shape change; the gradient is reshaped back.
type ReshapeOp struct{ base }

// NewReshapeOp creates a new ReshapeOp.
func NewReshapeOp(x, output *tensor.RawTensor) *ReshapeOp {
	return &ReshapeOp{base{[]*tensor.RawTensor{x}, output}}
}

// Backward reshapes the gradient to the input shape.
func (op *ReshapeOp) Backward(grad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Reshape(grad, op.inputs[0].Shape())}
}
