package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/texturize/internal/tensor"
)

// general wraps a row-major slice as a BLAS matrix.
func general(rows, cols int, data []float32) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

// BatchMatMul performs batched matrix multiplication.
//
//	[B, M, K] @ [B, K, N] -> [B, M, N]
func (cpu *CPUBackend) BatchMatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 3 || len(bShape) != 3 {
		panic(fmt.Sprintf("batch_matmul: inputs must be 3D, got %v and %v", aShape, bShape))
	}
	if aShape[0] != bShape[0] {
		panic(fmt.Sprintf("batch_matmul: batch mismatch %d vs %d", aShape[0], bShape[0]))
	}
	batch, m, k, n := aShape[0], aShape[1], aShape[2], bShape[2]
	if bShape[1] != k {
		panic(fmt.Sprintf("batch_matmul: inner dimension mismatch: %d vs %d", k, bShape[1]))
	}

	result := alloc("batch_matmul", tensor.Shape{batch, m, n})
	cpu.forEach(batch, func(i int) {
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
			general(m, k, a.Batch(i)),
			general(k, n, b.Batch(i)),
			0, general(m, n, result.Batch(i)))
	})
	return result
}

// Transpose swaps the last two dimensions of a 3D tensor.
func (cpu *CPUBackend) Transpose(x *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) != 3 {
		panic(fmt.Sprintf("transpose: input must be 3D, got %v", shape))
	}
	batch, rows, cols := shape[0], shape[1], shape[2]
	result := alloc("transpose", tensor.Shape{batch, cols, rows})
	cpu.forEach(batch, func(i int) {
		src, dst := x.Batch(i), result.Batch(i)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				dst[c*rows+r] = src[r*cols+c]
			}
		}
	})
	return result
}
