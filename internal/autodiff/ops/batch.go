package ops

import "github.com/born-ml/texturize/internal/tensor"

// SliceOp records taking batch entries [start, start+len(output)) of x.
// The gradient is the output gradient zero-padded back to x's batch size.
type SliceOp struct {
	base
	start int
}

// NewSliceOp creates a new SliceOp.
func NewSliceOp(x, output *tensor.RawTensor, start int) *SliceOp {
	return &SliceOp{base{[]*tensor.RawTensor{x}, output}, start}
}

// Backward scatters the gradient into a zero tensor shaped like the input.
func (op *SliceOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	x := op.inputs[0]
	grad := tensor.MustRaw(x.Shape())
	per := x.Shape().PerBatch()
	copy(grad.Data()[op.start*per:], outputGrad.Data())
	return []*tensor.RawTensor{grad}
}

// CatOp records a concatenation along the batch axis. Each input receives
// its own batch range of the output gradient.
type CatOp struct{ base }

// NewCatOp creates a new CatOp.
func NewCatOp(inputs []*tensor.RawTensor, output *tensor.RawTensor) *CatOp {
	in := make([]*tensor.RawTensor, len(inputs))
	copy(in, inputs)
	return &CatOp{base{in, output}}
}

// Backward splits the gradient along the batch axis.
func (op *CatOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, len(op.inputs))
	off := 0
	for i, in := range op.inputs {
		n := in.Shape().Batch()
		grads[i] = backend.Slice(outputGrad, off, off+n)
		off += n
	}
	return grads
}

// MeanBatchOp records a per-batch mean over all non-batch axes: [B, ...] -> [B].
//
// d(mean)/dx_i = 1/n for every element of the batch entry.
type MeanBatchOp struct{ base }

// NewMeanBatchOp creates a new MeanBatchOp.
func NewMeanBatchOp(x, output *tensor.RawTensor) *MeanBatchOp {
	return &MeanBatchOp{base{[]*tensor.RawTensor{x}, output}}
}

// Backward broadcasts grad[b]/n over batch entry b.
func (op *MeanBatchOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	shape := op.inputs[0].Shape()
	wide := backend.BroadcastBatch(outputGrad, shape)
	return []*tensor.RawTensor{backend.MulScalar(wide, 1/float32(shape.PerBatch()))}
}
