package ops

import "github.com/born-ml/texturize/internal/tensor"

// MaxPool2DOp records a max pooling operation over an NHWC tensor.
//
// Gradients flow only to the position that held the maximum of each window;
// every other position in the window receives zero. The argmax offsets are
// captured at construction, while the forward input is still intact.
type MaxPool2DOp struct {
	base
	maxIndices []int
}

// NewMaxPool2DOp creates a new MaxPool2D operation.
func NewMaxPool2DOp(input, output *tensor.RawTensor, size, stride int) *MaxPool2DOp {
	return &MaxPool2DOp{
		base:       base{[]*tensor.RawTensor{input}, output},
		maxIndices: computeMaxIndices(input, output, size, stride),
	}
}

// computeMaxIndices finds, for every output element, the flat input offset
// that held the window maximum. Ties resolve to the first position scanned.
func computeMaxIndices(input, output *tensor.RawTensor, size, stride int) []int {
	n, h, w, c := input.Shape().NHWC()
	_, hOut, wOut, _ := output.Shape().NHWC()
	data := input.Data()
	indices := make([]int, output.NumElements())

	out := 0
	for b := 0; b < n; b++ {
		for oh := 0; oh < hOut; oh++ {
			for ow := 0; ow < wOut; ow++ {
				for ch := 0; ch < c; ch++ {
					bestPos := ((b*h+oh*stride)*w+ow*stride)*c + ch
					best := data[bestPos]
					for kh := 0; kh < size; kh++ {
						for kw := 0; kw < size; kw++ {
							pos := ((b*h+oh*stride+kh)*w+ow*stride+kw)*c + ch
							if data[pos] > best {
								best, bestPos = data[pos], pos
							}
						}
					}
					indices[out] = bestPos
					out++
				}
			}
		}
	}
	return indices
}

// Backward routes the output gradient to the argmax positions.
func (op *MaxPool2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MaxPool2DBackward(op.inputs[0], outputGrad, op.maxIndices)}
}
