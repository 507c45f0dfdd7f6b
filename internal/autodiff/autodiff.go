// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps any Backend implementation and records each
// operation on a GradientTape while the tape is recording.
//
// Architecture:
//   - Decorator pattern: AutodiffBackend[B] wraps any Backend implementation
//   - GradientTape: Records operations during forward pass
//   - Operation interface: Each op implements its backward pass
//   - Reverse-mode AD: Computes gradients efficiently using chain rule
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	y := backend.Mul(x, x) // y = x²
//	loss := backend.MeanBatch(y)
//	grad, err := autodiff.Gradient(loss, x, backend)
package autodiff

import (
	"github.com/born-ml/texturize/internal/autodiff/ops"
	"github.com/born-ml/texturize/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
// It implements the tensor.Backend interface and records operations in a GradientTape.
type AutodiffBackend[B tensor.Backend] struct {
	inner B
	tape  *GradientTape
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() tensor.Backend {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Add(x, y)
	b.tape.Record(ops.NewAddOp(x, y, result))
	return result
}

// Sub performs element-wise subtraction and records the operation.
func (b *AutodiffBackend[B]) Sub(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sub(x, y)
	b.tape.Record(ops.NewSubOp(x, y, result))
	return result
}

// Mul performs element-wise multiplication and records the operation.
func (b *AutodiffBackend[B]) Mul(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Mul(x, y)
	b.tape.Record(ops.NewMulOp(x, y, result))
	return result
}

// MulScalar multiplies by a constant and records the operation.
func (b *AutodiffBackend[B]) MulScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	result := b.inner.MulScalar(x, s)
	b.tape.Record(ops.NewMulScalarOp(x, result, s))
	return result
}

// BatchMatMul performs batched matrix multiplication and records the operation.
func (b *AutodiffBackend[B]) BatchMatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.BatchMatMul(x, y)
	b.tape.Record(ops.NewBatchMatMulOp(x, y, result))
	return result
}

// Transpose swaps the last two axes and records the operation.
func (b *AutodiffBackend[B]) Transpose(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Transpose(x)
	b.tape.Record(ops.NewTransposeOp(x, result))
	return result
}

// Reshape changes the shape and records the operation.
func (b *AutodiffBackend[B]) Reshape(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	result := b.inner.Reshape(x, shape)
	b.tape.Record(ops.NewReshapeOp(x, result))
	return result
}

// Conv2D performs convolution and records the operation.
func (b *AutodiffBackend[B]) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	result := b.inner.Conv2D(input, kernel, stride, padding)
	b.tape.Record(ops.NewConv2DOp(input, kernel, result, stride, padding))
	return result
}

// Conv2DInputBackward is forwarded untracked; it only appears inside backward passes.
func (b *AutodiffBackend[B]) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	return b.inner.Conv2DInputBackward(input, kernel, grad, stride, padding)
}

// BiasAdd adds a per-channel bias and records the operation.
func (b *AutodiffBackend[B]) BiasAdd(x, bias *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.BiasAdd(x, bias)
	b.tape.Record(ops.NewBiasAddOp(x, bias, result))
	return result
}

// ReLU applies max(0, x) and records the operation.
func (b *AutodiffBackend[B]) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.ReLU(x)
	b.tape.Record(ops.NewReLUOp(x, result))
	return result
}

// MaxPool2D pools and records the operation together with the argmax indices.
func (b *AutodiffBackend[B]) MaxPool2D(x *tensor.RawTensor, size, stride int) *tensor.RawTensor {
	result := b.inner.MaxPool2D(x, size, stride)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewMaxPool2DOp(x, result, size, stride))
	}
	return result
}

// MaxPool2DBackward is forwarded untracked.
func (b *AutodiffBackend[B]) MaxPool2DBackward(input, grad *tensor.RawTensor, indices []int) *tensor.RawTensor {
	return b.inner.MaxPool2DBackward(input, grad, indices)
}

// Slice takes a batch range and records the operation.
func (b *AutodiffBackend[B]) Slice(x *tensor.RawTensor, start, end int) *tensor.RawTensor {
	result := b.inner.Slice(x, start, end)
	b.tape.Record(ops.NewSliceOp(x, result, start))
	return result
}

// Cat concatenates along the batch axis and records the operation.
func (b *AutodiffBackend[B]) Cat(tensors []*tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Cat(tensors)
	b.tape.Record(ops.NewCatOp(tensors, result))
	return result
}

// ChannelMix applies an affine channel map and records the operation.
func (b *AutodiffBackend[B]) ChannelMix(x, mix, bias *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.ChannelMix(x, mix, bias)
	b.tape.Record(ops.NewChannelMixOp(x, mix, result))
	return result
}

// MeanBatch reduces non-batch axes by mean and records the operation.
func (b *AutodiffBackend[B]) MeanBatch(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.MeanBatch(x)
	b.tape.Record(ops.NewMeanBatchOp(x, result))
	return result
}

// BroadcastBatch is forwarded untracked.
func (b *AutodiffBackend[B]) BroadcastBatch(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	return b.inner.BroadcastBatch(x, shape)
}
