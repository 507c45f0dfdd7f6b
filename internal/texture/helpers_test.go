package texture_test

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/born-ml/texturize/internal/imaging"
	"github.com/born-ml/texturize/internal/tensor"
	"github.com/born-ml/texturize/internal/texture"
	"github.com/born-ml/texturize/internal/vgg"
)

// errExtractorFault is what the "fail" layer reports.
var errExtractorFault = errors.New("extractor fault")

// fakeExtractor exposes a few fixed differentiable maps of the input as
// layers, so loss and driver behaviour can be checked without VGG weights.
type fakeExtractor struct {
	b   tensor.Backend
	mix *tensor.RawTensor
}

func newFakeExtractor(b tensor.Backend) *fakeExtractor {
	mix, _ := tensor.FromSlice([]float32{
		0.5, -0.2, 0.1,
		0.3, 0.3, 0.3,
		-0.4, 0.6, 0.2,
		0.1, 0.0, -0.7,
	}, tensor.Shape{4, 3})
	return &fakeExtractor{b: b, mix: mix}
}

func (f *fakeExtractor) Extract(batch *tensor.RawTensor, layers []string) ([]*tensor.RawTensor, error) {
	out := make([]*tensor.RawTensor, len(layers))
	for i, name := range layers {
		switch name {
		case "id":
			out[i] = f.b.MulScalar(batch, 1)
		case "relu":
			out[i] = f.b.ReLU(f.b.ChannelMix(batch, f.mix, nil))
		case "pool":
			out[i] = f.b.MaxPool2D(batch, 2, 2)
		case "fail":
			return nil, errExtractorFault
		default:
			return nil, fmt.Errorf("%w: %q", vgg.ErrUnknownLayer, name)
		}
	}
	return out, nil
}

// randomDisplay returns a display space batch with values in [0, 255].
func randomDisplay(seed int64, shape tensor.Shape) *tensor.RawTensor {
	rng := rand.New(rand.NewSource(seed))
	x := tensor.MustRaw(shape)
	for i := range x.Data() {
		x.Data()[i] = float32(rng.Intn(256))
	}
	return x
}

// checkerboard returns a [1, n, n, 3] display batch of black and white squares.
func checkerboard(n, square int) *tensor.RawTensor {
	x := tensor.MustRaw(tensor.Shape{1, n, n, 3})
	for y := range n {
		for col := range n {
			if (y/square+col/square)%2 == 0 {
				for c := range 3 {
					x.Set(255, 0, y, col, c)
				}
			}
		}
	}
	return x
}

func solid(n int, v float32) *tensor.RawTensor {
	x, _ := tensor.Full(tensor.Shape{1, n, n, 3}, v)
	return x
}

func mustPreprocess(display *tensor.RawTensor) *tensor.RawTensor {
	x, err := imaging.Preprocess(display)
	if err != nil {
		panic(err)
	}
	return x
}

// desaturated returns the normalized, desaturated form of a display batch,
// the way texture references are prepared.
func desaturated(display *tensor.RawTensor) *tensor.RawTensor {
	gray, err := imaging.Desaturate(display)
	if err != nil {
		panic(err)
	}
	return mustPreprocess(gray)
}

// recordingReporter keeps every report and checks the clip invariant on
// the live candidate.
type recordingReporter struct {
	steps     []int
	rates     []float64
	losses    []texture.Loss
	outOfClip int
}

func (r *recordingReporter) Report(p texture.Progress) {
	r.steps = append(r.steps, p.Iteration)
	r.rates = append(r.rates, p.LearningRate)
	r.losses = append(r.losses, *p.Loss)
	b := imaging.Bounds()
	for i, v := range p.Candidate.Data() {
		c := i % 3
		if v < b[c][0] || v > b[c][1] {
			r.outOfClip++
		}
	}
}
