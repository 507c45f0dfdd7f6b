package texture

import (
	"fmt"

	"github.com/born-ml/texturize/internal/imaging"
	"github.com/born-ml/texturize/internal/tensor"
)

// References are the constant targets of the loss, computed once from the
// content and desaturated texture batches.
type References struct {
	Outputs
	// Image is the normalized content batch, the target of the direct term.
	Image *tensor.RawTensor
}

// Loss is the outcome of one loss evaluation.
type Loss struct {
	// Total is the per-tile loss [B]; it is the tensor to differentiate.
	Total *tensor.RawTensor

	// Batch means of the total and of each weighted term. Skipped terms are 0.
	Value   float64
	Direct  float64
	Content float64
	NoGram  float64
	Texture float64
}

// Composer evaluates the weighted loss of a candidate against references.
type Composer struct {
	backend tensor.Backend
	ex      Extractor
	layers  Layers
	weights Weights
	refs    *References
}

// NewComposer returns a composer. Operations run on backend, which should be
// the autodiff backend the candidate's gradient is taken on.
func NewComposer(backend tensor.Backend, ex Extractor, layers Layers, weights Weights, refs *References) *Composer {
	return &Composer{
		backend: backend,
		ex:      ex,
		layers:  layers,
		weights: weights,
		refs:    refs,
	}
}

// ComputeReferences runs the extractor on content stacked over texture and
// keeps the activations the loss compares against. Both batches are
// normalized; texture should already be desaturated.
func ComputeReferences(b tensor.Backend, ex Extractor, layers Layers, content, texture *tensor.RawTensor) (*References, error) {
	if !content.Shape().Equal(texture.Shape()) {
		return nil, fmt.Errorf("%w: content %v and texture %v differ in shape",
			ErrInvalidConfig, content.Shape(), texture.Shape())
	}
	both := b.Cat([]*tensor.RawTensor{content, texture})
	out, err := DeepOutputs(b, ex, both, layers.Query(), len(layers.Texture))
	if err != nil {
		return nil, err
	}
	return &References{Outputs: *out, Image: content}, nil
}

// Compute evaluates the loss of candidate [B, H, W, 3].
//
// Each layer error is the mean squared difference over all non-batch axes.
// Layer errors are averaged within a term, the term is scaled by its
// weight, and the weighted terms are added per tile.
func (c *Composer) Compute(candidate *tensor.RawTensor) (*Loss, error) {
	b := c.backend
	if !candidate.Shape().Equal(c.refs.Image.Shape()) {
		return nil, fmt.Errorf("%w: candidate %v does not match references %v",
			ErrInvalidConfig, candidate.Shape(), c.refs.Image.Shape())
	}

	loss := &Loss{}
	var terms []*tensor.RawTensor
	add := func(term *tensor.RawTensor, mean *float64) {
		terms = append(terms, term)
		*mean = term.Mean()
	}

	if c.weights.Direct > 0 {
		add(b.MulScalar(c.mse(candidate, c.refs.Image), c.weights.Direct), &loss.Direct)
	}

	if c.weights.usesExtractor() {
		gray, err := imaging.Grayscale(b, candidate)
		if err != nil {
			return nil, err
		}
		out, err := DeepOutputs(b, c.ex, b.Cat([]*tensor.RawTensor{candidate, gray}),
			c.layers.Query(), len(c.layers.Texture))
		if err != nil {
			return nil, err
		}

		if c.weights.Content > 0 {
			add(c.term(out.Content, c.refs.Content, c.weights.Content), &loss.Content)
		}
		if c.weights.NoGram > 0 {
			add(c.term(out.NoGram, c.refs.NoGram, c.weights.NoGram), &loss.NoGram)
		}
		if c.weights.Texture > 0 {
			add(c.term(out.Gram, c.refs.Gram, c.weights.Texture), &loss.Texture)
		}
	}

	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: every loss weight is zero", ErrInvalidConfig)
	}
	total := terms[0]
	for _, t := range terms[1:] {
		total = b.Add(total, t)
	}
	loss.Total = total
	loss.Value = total.Mean()
	return loss, nil
}

// term averages the layer errors of got against want and scales by weight.
func (c *Composer) term(got, want []*tensor.RawTensor, weight float32) *tensor.RawTensor {
	b := c.backend
	var sum *tensor.RawTensor
	for i := range got {
		e := c.mse(got[i], want[i])
		if sum == nil {
			sum = e
		} else {
			sum = b.Add(sum, e)
		}
	}
	return b.MulScalar(sum, weight/float32(len(got)))
}

// mse returns the per-tile mean squared difference [B].
func (c *Composer) mse(x, y *tensor.RawTensor) *tensor.RawTensor {
	b := c.backend
	d := b.Sub(x, y)
	return b.MeanBatch(b.Mul(d, d))
}
