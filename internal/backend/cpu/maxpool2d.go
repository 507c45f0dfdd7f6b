package cpu

import (
	"fmt"

	"github.com/born-ml/texturize/internal/tensor"
)

// PoolOutputSize returns the pooled extent of a dimension (floor mode).
// Inputs smaller than the window pool to zero.
func PoolOutputSize(in, size, stride int) int {
	if in < size {
		return 0
	}
	return (in-size)/stride + 1
}

// MaxPool2D performs max pooling over an NHWC tensor.
//
// Output[n, oh, ow, c] = max over the size×size window starting at
// (oh*stride, ow*stride). Trailing rows/columns that do not fill a window are
// dropped.
func (cpu *CPUBackend) MaxPool2D(x *tensor.RawTensor, size, stride int) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("maxpool2d: input must be 4D [N,H,W,C], got %dD", len(shape)))
	}
	n, h, w, c := shape.NHWC()
	hOut, wOut := PoolOutputSize(h, size, stride), PoolOutputSize(w, size, stride)
	if hOut <= 0 || wOut <= 0 {
		panic(fmt.Sprintf("maxpool2d: input %dx%d too small for window %d", h, w, size))
	}

	output := alloc("maxpool2d", tensor.Shape{n, hOut, wOut, c})
	cpu.forEach(n, func(b int) {
		src, dst := x.Batch(b), output.Batch(b)
		for oh := 0; oh < hOut; oh++ {
			for ow := 0; ow < wOut; ow++ {
				base := (oh*wOut + ow) * c
				for ch := 0; ch < c; ch++ {
					best := src[((oh*stride)*w+ow*stride)*c+ch]
					for kh := 0; kh < size; kh++ {
						for kw := 0; kw < size; kw++ {
							v := src[((oh*stride+kh)*w+ow*stride+kw)*c+ch]
							if v > best {
								best = v
							}
						}
					}
					dst[base+ch] = best
				}
			}
		}
	})
	return output
}

// MaxPool2DBackward routes each output gradient to the input position that
// produced the maximum. indices holds one flat input offset per output element.
func (cpu *CPUBackend) MaxPool2DBackward(input, grad *tensor.RawTensor, indices []int) *tensor.RawTensor {
	if len(indices) != grad.NumElements() {
		panic(fmt.Sprintf("maxpool2d_backward: %d indices for %d gradient elements", len(indices), grad.NumElements()))
	}
	inputGrad := alloc("maxpool2d_backward", input.Shape())
	dst, g := inputGrad.Data(), grad.Data()
	for i, idx := range indices {
		dst[idx] += g[i]
	}
	return inputGrad
}
