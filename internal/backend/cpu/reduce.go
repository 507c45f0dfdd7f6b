package cpu

import (
	"fmt"

	"github.com/born-ml/texturize/internal/tensor"
)

// MeanBatch reduces every non-batch axis by mean: [B, ...] -> [B].
// Sums are accumulated in float64.
func (cpu *CPUBackend) MeanBatch(x *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) < 2 {
		panic(fmt.Sprintf("mean_batch: input must have a batch axis and at least one more, got %v", shape))
	}
	batch, per := shape.Batch(), shape.PerBatch()
	result := alloc("mean_batch", tensor.Shape{batch})
	out := result.Data()
	for b := 0; b < batch; b++ {
		var sum float64
		for _, v := range x.Batch(b) {
			sum += float64(v)
		}
		out[b] = float32(sum / float64(per))
	}
	return result
}
