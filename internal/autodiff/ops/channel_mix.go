package ops

import "github.com/born-ml/texturize/internal/tensor"

// ChannelMixOp records out = mix·x + bias applied along the channel axis.
//
// The gradient w.r.t. x is mixᵀ·grad; mix and bias are constants.
type ChannelMixOp struct {
	base
	mixT *tensor.RawTensor
}

// NewChannelMixOp creates a new ChannelMixOp. The bias does not influence
// the gradient and is not tracked.
func NewChannelMixOp(x, mix, output *tensor.RawTensor) *ChannelMixOp {
	ms := mix.Shape()
	rows, cols := ms[0], ms[1]
	mixT := tensor.MustRaw(tensor.Shape{cols, rows})
	src, dst := mix.Data(), mixT.Data()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			dst[c*rows+r] = src[r*cols+c]
		}
	}
	return &ChannelMixOp{base{[]*tensor.RawTensor{x}, output}, mixT}
}

// Backward returns [mixᵀ·grad].
func (op *ChannelMixOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.ChannelMix(outputGrad, op.mixT, nil)}
}
