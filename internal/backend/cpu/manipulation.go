package cpu

import (
	"fmt"

	"github.com/born-ml/texturize/internal/tensor"
)

// Reshape returns a copy of x with a new shape.
func (cpu *CPUBackend) Reshape(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	if shape.NumElements() != x.NumElements() {
		panic(fmt.Sprintf("reshape: cannot reshape %v into %v", x.Shape(), shape))
	}
	result := alloc("reshape", shape)
	copy(result.Data(), x.Data())
	return result
}

// Slice returns batch entries [start, end) of x.
func (cpu *CPUBackend) Slice(x *tensor.RawTensor, start, end int) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) == 0 || start < 0 || end > shape[0] || start >= end {
		panic(fmt.Sprintf("slice: invalid batch range [%d, %d) for shape %v", start, end, shape))
	}
	per := shape.PerBatch()
	result := alloc("slice", shape.WithBatch(end-start))
	copy(result.Data(), x.Data()[start*per:end*per])
	return result
}

// Cat concatenates tensors along the batch axis.
// All inputs must share the same trailing dimensions.
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: no tensors")
	}
	first := tensors[0].Shape()
	total := 0
	for _, t := range tensors {
		s := t.Shape()
		if len(s) != len(first) || !s[1:].Equal(first[1:]) {
			panic(fmt.Sprintf("cat: incompatible shapes %v and %v", first, s))
		}
		total += s[0]
	}
	result := alloc("cat", first.WithBatch(total))
	out := result.Data()
	off := 0
	for _, t := range tensors {
		off += copy(out[off:], t.Data())
	}
	return result
}

// ChannelMix applies out[..., o] = Σ_i mix[o, i]·x[..., i] + bias[o].
func (cpu *CPUBackend) ChannelMix(x, mix, bias *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	cIn := shape[len(shape)-1]
	ms := mix.Shape()
	if len(ms) != 2 || ms[1] != cIn {
		panic(fmt.Sprintf("channel_mix: mix shape %v does not match input channels %d", ms, cIn))
	}
	cOut := ms[0]
	if bias != nil && (len(bias.Shape()) != 1 || bias.Shape()[0] != cOut) {
		panic(fmt.Sprintf("channel_mix: bias shape %v, expected [%d]", bias.Shape(), cOut))
	}

	outShape := shape.Clone()
	outShape[len(outShape)-1] = cOut
	result := alloc("channel_mix", outShape)
	in, out, m := x.Data(), result.Data(), mix.Data()
	var b []float32
	if bias != nil {
		b = bias.Data()
	}

	pixels := len(in) / cIn
	for p := 0; p < pixels; p++ {
		src := in[p*cIn : (p+1)*cIn]
		dst := out[p*cOut : (p+1)*cOut]
		for o := 0; o < cOut; o++ {
			var sum float32
			if b != nil {
				sum = b[o]
			}
			row := m[o*cIn : (o+1)*cIn]
			for i, v := range src {
				sum += row[i] * v
			}
			dst[o] = sum
		}
	}
	return result
}

// BroadcastBatch expands x [B] to shape, filling batch entry b with x[b].
func (cpu *CPUBackend) BroadcastBatch(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	if len(x.Shape()) != 1 || x.Shape()[0] != shape.Batch() {
		panic(fmt.Sprintf("broadcast_batch: cannot broadcast %v to %v", x.Shape(), shape))
	}
	result := alloc("broadcast_batch", shape)
	src := x.Data()
	for b := 0; b < shape.Batch(); b++ {
		dst := result.Batch(b)
		for i := range dst {
			dst[i] = src[b]
		}
	}
	return result
}
