package texture

import (
	"fmt"

	"github.com/born-ml/texturize/internal/tensor"
)

// Extractor computes named activations of a frozen network.
//
// Extract returns one activation per requested name, in order; each keeps
// the batch size of the input. Implementations must be differentiable
// with respect to batch when run on an autodiff backend. Errors wrapping
// vgg.ErrUnknownLayer or vgg.ErrInputShape are treated as configuration
// errors by the driver.
type Extractor interface {
	Extract(batch *tensor.RawTensor, layers []string) ([]*tensor.RawTensor, error)
}

// Outputs are the activations the loss compares, split out of one
// extractor pass over a doubled batch [2t, H, W, 3].
type Outputs struct {
	// Content holds the first t entries of every content layer.
	Content []*tensor.RawTensor
	// Gram holds the gram matrices of the last t entries of every texture layer.
	Gram []*tensor.RawTensor
	// NoGram holds the last t entries of every texture layer.
	NoGram []*tensor.RawTensor
}

// DeepOutputs runs ex once on batch for layers and splits the result.
//
// layers lists the numTexture texture layers first, then the content
// layers. The first half of batch feeds the content outputs, the second
// half the texture outputs.
func DeepOutputs(b tensor.Backend, ex Extractor, batch *tensor.RawTensor, layers []string, numTexture int) (*Outputs, error) {
	if numTexture <= 0 || numTexture >= len(layers) {
		return nil, fmt.Errorf("%w: %d texture layers out of %d", ErrInvalidConfig, numTexture, len(layers))
	}
	n := batch.Shape().Batch()
	if n == 0 || n%2 != 0 {
		return nil, fmt.Errorf("%w: deep outputs need an even batch, got %d", ErrInvalidConfig, n)
	}
	t := n / 2

	acts, err := ex.Extract(batch, layers)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	if len(acts) != len(layers) {
		return nil, fmt.Errorf("extract: got %d activations for %d layers", len(acts), len(layers))
	}

	out := &Outputs{}
	for _, act := range acts[numTexture:] {
		out.Content = append(out.Content, b.Slice(act, 0, t))
	}
	for _, act := range acts[:numTexture] {
		second := b.Slice(act, t, n)
		g, err := Gram(b, second)
		if err != nil {
			return nil, err
		}
		out.Gram = append(out.Gram, g)
		out.NoGram = append(out.NoGram, second)
	}
	return out, nil
}
