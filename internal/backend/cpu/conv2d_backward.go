package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/texturize/internal/tensor"
)

// Conv2DInputBackward computes the gradient w.r.t. the input of Conv2D.
//
// For each batch entry:
//
//	dCols = dOut [H_out*W_out, C_out] @ kernelᵀ [C_out, K_h*K_w*C_in]
//	dInput = col2im(dCols)
//
// The kernel gradient is never needed here: extractor weights are frozen.
func (cpu *CPUBackend) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := newConvGeometry("conv2d_backward", input, kernel, stride, padding)
	want := tensor.Shape{g.n, g.hOut, g.wOut, g.cOut}
	if !grad.Shape().Equal(want) {
		panic(fmt.Sprintf("conv2d_backward: gradient shape %v, expected %v", grad.Shape(), want))
	}

	inputGrad := alloc("conv2d_backward", input.Shape())
	k := general(g.colWidth, g.cOut, kernel.Data())

	cpu.forEach(g.n, func(n int) {
		cols := make([]float32, g.colRows*g.colWidth)
		blas32.Gemm(blas.NoTrans, blas.Trans, 1,
			general(g.colRows, g.cOut, grad.Batch(n)), k,
			0, general(g.colRows, g.colWidth, cols))
		col2im(inputGrad.Batch(n), cols, g)
	})
	return inputGrad
}
