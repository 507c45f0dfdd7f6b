package autodiff_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/texturize/internal/autodiff"
	"github.com/born-ml/texturize/internal/backend/cpu"
	"github.com/born-ml/texturize/internal/tensor"
)

func randomTensor(rng *rand.Rand, shape tensor.Shape, scale float64) *tensor.RawTensor {
	x := tensor.MustRaw(shape)
	for i := range x.Data() {
		x.Data()[i] = float32(rng.NormFloat64() * scale)
	}
	return x
}

// sumOf evaluates f with recording stopped and returns the sum of its output.
func sumOf(backend *autodiff.AutodiffBackend[*cpu.CPUBackend], f func(*tensor.RawTensor) *tensor.RawTensor, x *tensor.RawTensor) float64 {
	var total float64
	_ = backend.Tape().Paused(func() error {
		for _, v := range f(x).Data() {
			total += float64(v)
		}
		return nil
	})
	return total
}

// checkGradientWith compares the tape gradient with central finite
// differences on a handful of coordinates.
func checkGradientWith(t *testing.T, backend *autodiff.AutodiffBackend[*cpu.CPUBackend], f func(*tensor.RawTensor) *tensor.RawTensor, x *tensor.RawTensor) {
	t.Helper()
	backend.Tape().Clear()
	backend.Tape().StartRecording()
	out := f(x)
	grad, err := autodiff.Gradient(out, x, backend)
	require.NoError(t, err)
	backend.Tape().StopRecording()
	backend.Tape().Clear()

	const eps = 5e-3
	rng := rand.New(rand.NewSource(7))
	for k := 0; k < 8; k++ {
		i := rng.Intn(x.NumElements())
		orig := x.Data()[i]
		x.Data()[i] = orig + eps
		plus := sumOf(backend, f, x)
		x.Data()[i] = orig - eps
		minus := sumOf(backend, f, x)
		x.Data()[i] = orig

		numeric := (plus - minus) / (2 * eps)
		analytic := float64(grad.Data()[i])
		assert.InDelta(t, numeric, analytic, 2e-2*(1+math.Abs(numeric)), "coordinate %d", i)
	}
}

func TestSquareMeanGradient(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, _ := tensor.FromSlice([]float32{1, -2, 3, 4}, tensor.Shape{2, 2})
	loss := backend.MeanBatch(backend.Mul(x, x))
	grad, err := autodiff.Gradient(loss, x, backend)
	require.NoError(t, err)

	// d/dx mean(x²) = 2x/n with n = 2 per batch entry.
	assert.InDeltaSlice(t, []float32{1, -2, 3, 4}, grad.Data(), 1e-6)
}

func TestGradientAccumulatesAcrossUses(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{1, 2})
	// y = 3x + x  ->  dy/dx = 4
	y := backend.Add(backend.MulScalar(x, 3), x)
	grad, err := autodiff.Gradient(y, x, backend)
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 4}, grad.Data())
}

func TestPausedDoesNotRecord(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()
	x, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{1, 2})

	require.NoError(t, backend.Tape().Paused(func() error {
		backend.Mul(x, x)
		return nil
	}))
	assert.Equal(t, 0, backend.Tape().NumOps())
	assert.True(t, backend.Tape().IsRecording())
}

func TestGradientOfUnrelatedTensorFails(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()
	x, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{1, 2})
	other, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{1, 2})

	y := backend.MeanBatch(backend.Mul(x, x))
	_, err := autodiff.Gradient(y, other, backend)
	assert.Error(t, err)
}

func TestConvStackGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	backend := autodiff.New(cpu.New())
	kernel := randomTensor(rng, tensor.Shape{3, 3, 3, 4}, 0.5)
	bias := randomTensor(rng, tensor.Shape{4}, 0.1)
	x := randomTensor(rng, tensor.Shape{2, 6, 6, 3}, 1)

	f := func(in *tensor.RawTensor) *tensor.RawTensor {
		h := backend.ReLU(backend.BiasAdd(backend.Conv2D(in, kernel, 1, 1), bias))
		p := backend.MaxPool2D(h, 2, 2)
		return backend.MeanBatch(backend.Mul(p, p))
	}
	checkGradientWith(t, backend, f, x)
}

func TestGramStyleGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	backend := autodiff.New(cpu.New())
	target := randomTensor(rng, tensor.Shape{1, 3, 3}, 1)
	x := randomTensor(rng, tensor.Shape{2, 4, 4, 3}, 1)
	mix, _ := tensor.FromSlice([]float32{0.2, 0.3, 0.5, 0.2, 0.3, 0.5, 0.2, 0.3, 0.5}, tensor.Shape{3, 3})

	f := func(in *tensor.RawTensor) *tensor.RawTensor {
		gray := backend.ChannelMix(in, mix, nil)
		both := backend.Cat([]*tensor.RawTensor{in, gray})
		half := backend.Slice(both, 2, 4)
		flat := backend.Reshape(half, tensor.Shape{2, 16, 3})
		gram := backend.MulScalar(backend.BatchMatMul(backend.Transpose(flat), flat), 1.0/16)
		d := backend.Sub(gram, backend.Cat([]*tensor.RawTensor{target, target}))
		return backend.MeanBatch(backend.Mul(d, d))
	}
	checkGradientWith(t, backend, f, x)
}
