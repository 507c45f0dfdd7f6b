package vgg

import (
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/born-ml/texturize/internal/backend/cpu"
	"github.com/born-ml/texturize/internal/tensor"
)

const (
	kernelSize = 3
	padding    = 1
	poolSize   = 2
)

// Errors returned by the extractor.
var (
	ErrUnknownLayer = errors.New("unknown layer")
	ErrInputShape   = errors.New("invalid input shape")
)

// params holds the frozen weights of one convolution.
type params struct {
	kernel *tensor.RawTensor // [3, 3, C_in, C_out] (HWIO)
	bias   *tensor.RawTensor // [C_out]
}

// Extractor runs the VGG feature stack on a backend.
//
// The backend decides whether the pass is differentiable: pass an
// autodiff backend to obtain activations that can be backpropagated to the
// input batch.
type Extractor struct {
	arch    Arch
	layers  []Layer
	index   map[string]int
	params  map[string]params
	backend tensor.Backend
}

// newExtractor assembles an extractor from validated weights.
func newExtractor(arch Arch, weights map[string]params, backend tensor.Backend) (*Extractor, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	layers := arch.Layers()
	index := make(map[string]int, len(layers))
	for i, l := range layers {
		index[l.Name] = i
		if l.Kind != Conv {
			continue
		}
		p, ok := weights[l.Name]
		if !ok {
			return nil, fmt.Errorf("vgg: missing weights for %s", l.Name)
		}
		want := tensor.Shape{kernelSize, kernelSize, l.InChannels, l.OutChannels}
		if !p.kernel.Shape().Equal(want) {
			return nil, fmt.Errorf("vgg: %s kernel has shape %v, want %v", l.Name, p.kernel.Shape(), want)
		}
		if !p.bias.Shape().Equal(tensor.Shape{l.OutChannels}) {
			return nil, fmt.Errorf("vgg: %s bias has shape %v, want [%d]", l.Name, p.bias.Shape(), l.OutChannels)
		}
	}
	return &Extractor{
		arch:    arch,
		layers:  layers,
		index:   index,
		params:  weights,
		backend: backend,
	}, nil
}

// Arch returns the network layout.
func (e *Extractor) Arch() Arch {
	return e.arch
}

// LayerNames lists the layers that can be queried, in forward order.
func (e *Extractor) LayerNames() []string {
	return e.arch.LayerNames()
}

// HasLayer reports whether name is a layer of this network.
func (e *Extractor) HasLayer(name string) bool {
	_, ok := e.index[name]
	return ok
}

// Extract runs the network on batch [N, H, W, 3] and returns the activation
// of each named layer, in the order requested.
//
// The forward pass stops at the deepest requested layer and every layer is
// computed once, so duplicate names share a single activation tensor.
func (e *Extractor) Extract(batch *tensor.RawTensor, names []string) ([]*tensor.RawTensor, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("vgg: no layers requested")
	}
	shape := batch.Shape()
	if len(shape) != 4 || shape[3] != 3 {
		return nil, fmt.Errorf("vgg: %w: expected [N, H, W, 3], got %v", ErrInputShape, shape)
	}

	wanted := lo.Uniq(names)
	depth := -1
	for _, name := range wanted {
		i, ok := e.index[name]
		if !ok {
			return nil, fmt.Errorf("vgg: %w: %q", ErrUnknownLayer, name)
		}
		depth = max(depth, i)
	}
	if err := e.checkSpatial(shape[1], shape[2], depth); err != nil {
		return nil, err
	}

	keep := lo.SliceToMap(wanted, func(name string) (string, bool) { return name, true })
	outputs := make(map[string]*tensor.RawTensor, len(wanted))

	x := batch
	for _, l := range e.layers[:depth+1] {
		x = e.forward(l, x)
		if keep[l.Name] {
			outputs[l.Name] = x
		}
	}

	return lo.Map(names, func(name string, _ int) *tensor.RawTensor {
		return outputs[name]
	}), nil
}

// forward applies one layer.
func (e *Extractor) forward(l Layer, x *tensor.RawTensor) *tensor.RawTensor {
	if l.Kind == Pool {
		return e.backend.MaxPool2D(x, poolSize, poolSize)
	}
	p := e.params[l.Name]
	h := e.backend.Conv2D(x, p.kernel, 1, padding)
	return e.backend.ReLU(e.backend.BiasAdd(h, p.bias))
}

// checkSpatial rejects inputs that pool away to nothing before depth.
func (e *Extractor) checkSpatial(h, w, depth int) error {
	if h <= 0 || w <= 0 {
		return fmt.Errorf("vgg: %w: empty spatial extent %dx%d", ErrInputShape, h, w)
	}
	for _, l := range e.layers[:depth+1] {
		if l.Kind != Pool {
			continue
		}
		h = cpu.PoolOutputSize(h, poolSize, poolSize)
		w = cpu.PoolOutputSize(w, poolSize, poolSize)
		if h <= 0 || w <= 0 {
			return fmt.Errorf("vgg: %w: input too small to reach %s", ErrInputShape, l.Name)
		}
	}
	return nil
}
