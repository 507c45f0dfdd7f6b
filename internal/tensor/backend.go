package tensor

// Backend defines the interface that compute backends implement.
// Backends handle the actual computation for tensor operations; shape misuse
// is a programming error and backends panic on it.
//
// Implementations:
//   - cpu.CPUBackend: pure Go kernels, GEMM through gonum BLAS
//   - autodiff.AutodiffBackend: decorator that records operations on a tape
type Backend interface {
	// Element-wise binary operations (shapes must match exactly).
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor

	// MulScalar multiplies every element by s.
	MulScalar(x *RawTensor, s float32) *RawTensor

	// BatchMatMul performs batched matrix multiplication.
	// [B, M, K] @ [B, K, N] -> [B, M, N]
	BatchMatMul(a, b *RawTensor) *RawTensor

	// Transpose swaps the last two dimensions of a 3D tensor.
	Transpose(x *RawTensor) *RawTensor

	// Reshape returns a tensor with the same elements and a new shape.
	Reshape(x *RawTensor, shape Shape) *RawTensor

	// Conv2D convolves an NHWC input with an HWIO kernel.
	//
	// Input:  [N, H, W, C_in]
	// Kernel: [K_h, K_w, C_in, C_out]
	// Output: [N, H_out, W_out, C_out]
	Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor

	// Conv2DInputBackward returns ∂L/∂input for Conv2D given ∂L/∂output.
	Conv2DInputBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor

	// BiasAdd adds a per-channel bias [C] to the last axis of x.
	BiasAdd(x, bias *RawTensor) *RawTensor

	// ReLU computes max(0, x).
	ReLU(x *RawTensor) *RawTensor

	// MaxPool2D pools an NHWC tensor with a square window.
	MaxPool2D(x *RawTensor, size, stride int) *RawTensor

	// MaxPool2DBackward routes gradients to the argmax positions recorded
	// in indices (flat input offsets, one per output element).
	MaxPool2DBackward(input, grad *RawTensor, indices []int) *RawTensor

	// Slice returns batch entries [start, end) as a new tensor.
	Slice(x *RawTensor, start, end int) *RawTensor

	// Cat concatenates tensors along the batch axis.
	Cat(tensors []*RawTensor) *RawTensor

	// ChannelMix applies an affine map to the last axis:
	// out[..., o] = Σ_i mix[o, i] * x[..., i] + bias[o].
	// mix is [C_out, C_in]; bias is [C_out] or nil.
	ChannelMix(x, mix, bias *RawTensor) *RawTensor

	// MeanBatch reduces every non-batch axis by mean: [B, ...] -> [B].
	MeanBatch(x *RawTensor) *RawTensor

	// BroadcastBatch expands a [B] tensor to shape, copying x[b] into
	// every element of batch entry b.
	BroadcastBatch(x *RawTensor, shape Shape) *RawTensor

	// Name returns the backend name.
	Name() string
}
