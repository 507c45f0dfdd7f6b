// Package cpu implements the tensor.Backend interface on the CPU.
//
// Kernels work on NHWC float32 tensors. Dense products (convolution via
// im2col, batched matmul) go through gonum's BLAS; batch entries are fanned
// out with internal/parallel.
package cpu

import (
	"fmt"

	"github.com/born-ml/texturize/internal/parallel"
	"github.com/born-ml/texturize/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
type CPUBackend struct {
	par parallel.Config
}

// New creates a new CPU backend using every available core.
func New() *CPUBackend {
	return &CPUBackend{par: parallel.DefaultConfig()}
}

// NewWithConfig creates a CPU backend with explicit parallelism settings.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{par: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// alloc creates a zeroed result tensor, panicking on invalid shapes
// (a programming error at this level).
func alloc(op string, shape tensor.Shape) *tensor.RawTensor {
	t, err := tensor.NewRaw(shape)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", op, err))
	}
	return t
}

func requireSameShape(op string, a, b *tensor.RawTensor) {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("%s: shape mismatch %v vs %v", op, a.Shape(), b.Shape()))
	}
}

// Add performs element-wise addition.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	requireSameShape("add", a, b)
	result := alloc("add", a.Shape())
	out, x, y := result.Data(), a.Data(), b.Data()
	for i := range out {
		out[i] = x[i] + y[i]
	}
	return result
}

// Sub performs element-wise subtraction.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	requireSameShape("sub", a, b)
	result := alloc("sub", a.Shape())
	out, x, y := result.Data(), a.Data(), b.Data()
	for i := range out {
		out[i] = x[i] - y[i]
	}
	return result
}

// Mul performs element-wise multiplication.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	requireSameShape("mul", a, b)
	result := alloc("mul", a.Shape())
	out, x, y := result.Data(), a.Data(), b.Data()
	for i := range out {
		out[i] = x[i] * y[i]
	}
	return result
}

// MulScalar multiplies every element by s.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	result := alloc("mul_scalar", x.Shape())
	out, in := result.Data(), x.Data()
	for i := range out {
		out[i] = in[i] * s
	}
	return result
}

// BiasAdd adds a per-channel bias to the last axis.
func (cpu *CPUBackend) BiasAdd(x, bias *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	c := shape[len(shape)-1]
	if len(bias.Shape()) != 1 || bias.Shape()[0] != c {
		panic(fmt.Sprintf("bias_add: bias shape %v does not match channels %d", bias.Shape(), c))
	}
	result := alloc("bias_add", shape)
	out, in, b := result.Data(), x.Data(), bias.Data()
	for i := 0; i < len(in); i += c {
		for j := 0; j < c; j++ {
			out[i+j] = in[i+j] + b[j]
		}
	}
	return result
}

// ReLU computes max(0, x).
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := alloc("relu", x.Shape())
	out, in := result.Data(), x.Data()
	for i, v := range in {
		if v > 0 {
			out[i] = v
		}
	}
	return result
}

// forEach runs f for every index in [0, n) under the backend's parallel config.
func (cpu *CPUBackend) forEach(n int, f func(i int)) {
	parallel.For(n, cpu.par, f)
}
