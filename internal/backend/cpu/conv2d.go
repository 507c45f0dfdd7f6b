package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/texturize/internal/tensor"
)

// convGeometry holds the derived sizes of an NHWC convolution.
type convGeometry struct {
	n, h, w, cIn      int
	kh, kw, cOut      int
	hOut, wOut        int
	stride, padding   int
	colRows, colWidth int
}

func newConvGeometry(op string, input, kernel *tensor.RawTensor, stride, padding int) convGeometry {
	inputShape, kernelShape := input.Shape(), kernel.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("%s: input must be 4D [N,H,W,C], got %dD", op, len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("%s: kernel must be 4D [K_h,K_w,C_in,C_out], got %dD", op, len(kernelShape)))
	}
	if stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("%s: invalid stride %d / padding %d", op, stride, padding))
	}

	g := convGeometry{
		n: inputShape[0], h: inputShape[1], w: inputShape[2], cIn: inputShape[3],
		kh: kernelShape[0], kw: kernelShape[1], cOut: kernelShape[3],
		stride: stride, padding: padding,
	}
	if kernelShape[2] != g.cIn {
		panic(fmt.Sprintf("%s: input channels %d != kernel channels %d", op, g.cIn, kernelShape[2]))
	}

	// out = (in + 2*padding - k) / stride + 1
	g.hOut = (g.h+2*padding-g.kh)/stride + 1
	g.wOut = (g.w+2*padding-g.kw)/stride + 1
	if g.hOut <= 0 || g.wOut <= 0 {
		panic(fmt.Sprintf("%s: invalid output dimensions: out_h=%d, out_w=%d", op, g.hOut, g.wOut))
	}
	g.colRows = g.hOut * g.wOut
	g.colWidth = g.kh * g.kw * g.cIn
	return g
}

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape:  [N, H, W, C_in]
// Kernel shape: [K_h, K_w, C_in, C_out]
// Output shape: [N, H_out, W_out, C_out]
//
// With NHWC input and HWIO kernels no reordering is needed around the GEMM:
// each im2col row is one output pixel, the kernel is already a row-major
// [K_h*K_w*C_in, C_out] matrix, and the product is the NHWC output plane.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := newConvGeometry("conv2d", input, kernel, stride, padding)
	output := alloc("conv2d", tensor.Shape{g.n, g.hOut, g.wOut, g.cOut})
	k := general(g.colWidth, g.cOut, kernel.Data())

	cpu.forEach(g.n, func(n int) {
		cols := make([]float32, g.colRows*g.colWidth)
		im2col(cols, input.Batch(n), g)
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
			general(g.colRows, g.colWidth, cols), k,
			0, general(g.colRows, g.cOut, output.Batch(n)))
	})
	return output
}

// im2col unfolds one NHWC image into a [H_out*W_out, K_h*K_w*C_in] matrix.
// Positions that fall into the zero padding stay zero.
func im2col(cols, img []float32, g convGeometry) {
	row := 0
	for oh := 0; oh < g.hOut; oh++ {
		for ow := 0; ow < g.wOut; ow++ {
			dst := cols[row*g.colWidth : (row+1)*g.colWidth]
			for kh := 0; kh < g.kh; kh++ {
				ih := oh*g.stride - g.padding + kh
				for kw := 0; kw < g.kw; kw++ {
					iw := ow*g.stride - g.padding + kw
					off := (kh*g.kw + kw) * g.cIn
					if ih < 0 || ih >= g.h || iw < 0 || iw >= g.w {
						continue
					}
					src := (ih*g.w + iw) * g.cIn
					copy(dst[off:off+g.cIn], img[src:src+g.cIn])
				}
			}
			row++
		}
	}
}

// col2im folds a column matrix back onto an NHWC image, accumulating
// overlapping patches. It is the adjoint of im2col.
func col2im(img, cols []float32, g convGeometry) {
	row := 0
	for oh := 0; oh < g.hOut; oh++ {
		for ow := 0; ow < g.wOut; ow++ {
			src := cols[row*g.colWidth : (row+1)*g.colWidth]
			for kh := 0; kh < g.kh; kh++ {
				ih := oh*g.stride - g.padding + kh
				for kw := 0; kw < g.kw; kw++ {
					iw := ow*g.stride - g.padding + kw
					if ih < 0 || ih >= g.h || iw < 0 || iw >= g.w {
						continue
					}
					off := (kh*g.kw + kw) * g.cIn
					dst := (ih*g.w + iw) * g.cIn
					for c := 0; c < g.cIn; c++ {
						img[dst+c] += src[off+c]
					}
				}
			}
			row++
		}
	}
}
