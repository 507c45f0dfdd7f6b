// Package vgg implements a frozen VGG-style convolutional feature extractor.
//
// The network is a stack of blocks; each block is a run of 3×3 same-padded
// convolutions with ReLU, followed by a 2×2 stride-2 max pool. Layers are
// named the Keras way, block<B>_conv<K> and block<B>_pool, so that weight
// files exported from Keras load without renaming.
//
// Weights never receive gradients. Running the extractor through an
// autodiff backend records only what is needed to differentiate the
// activations with respect to the input image.
package vgg

import (
	"fmt"
	"strings"
)

// LayerKind distinguishes convolution layers from pooling layers.
type LayerKind int

// Layer kinds.
const (
	Conv LayerKind = iota
	Pool
)

// String implements fmt.Stringer.
func (k LayerKind) String() string {
	if k == Pool {
		return "pool"
	}
	return "conv"
}

// Block is one run of convolutions ending in a pool.
type Block struct {
	Convs    int // number of 3×3 convolutions
	Channels int // output channels of every convolution in the block
}

// Arch describes the layout of a VGG network.
type Arch struct {
	Name   string
	Blocks []Block
}

// Layer is a named position in the forward pass.
type Layer struct {
	Name        string
	Kind        LayerKind
	InChannels  int
	OutChannels int
}

// VGG19 returns the standard VGG19 feature stack.
func VGG19() Arch {
	return NarrowVGG19(64)
}

// NarrowVGG19 returns the VGG19 layout with every block's width scaled so
// that the first block has width channels. Narrow variants keep the layer
// names of the full network.
func NarrowVGG19(width int) Arch {
	return Arch{
		Name: fmt.Sprintf("vgg19-w%d", width),
		Blocks: []Block{
			{Convs: 2, Channels: width},
			{Convs: 2, Channels: 2 * width},
			{Convs: 4, Channels: 4 * width},
			{Convs: 4, Channels: 8 * width},
			{Convs: 4, Channels: 8 * width},
		},
	}
}

// Validate checks that the architecture can be built.
func (a Arch) Validate() error {
	if len(a.Blocks) == 0 {
		return fmt.Errorf("vgg: architecture %q has no blocks", a.Name)
	}
	for i, b := range a.Blocks {
		if b.Convs <= 0 || b.Channels <= 0 {
			return fmt.Errorf("vgg: block %d has %d convs of width %d", i+1, b.Convs, b.Channels)
		}
	}
	return nil
}

// Layers lists every layer in forward order, starting from an RGB input.
func (a Arch) Layers() []Layer {
	var layers []Layer
	in := 3
	for bi, b := range a.Blocks {
		for k := range b.Convs {
			layers = append(layers, Layer{
				Name:        ConvName(bi+1, k+1),
				Kind:        Conv,
				InChannels:  in,
				OutChannels: b.Channels,
			})
			in = b.Channels
		}
		layers = append(layers, Layer{
			Name:        fmt.Sprintf("block%d_pool", bi+1),
			Kind:        Pool,
			InChannels:  in,
			OutChannels: in,
		})
	}
	return layers
}

// LayerNames lists every layer name in forward order.
func (a Arch) LayerNames() []string {
	layers := a.Layers()
	names := make([]string, len(layers))
	for i, l := range layers {
		names[i] = l.Name
	}
	return names
}

// ConvName returns the Keras name of convolution conv (1-based) in block (1-based).
func ConvName(block, conv int) string {
	return fmt.Sprintf("block%d_conv%d", block, conv)
}

// String renders the architecture as "name[2x64 2x128 ...]".
func (a Arch) String() string {
	parts := make([]string, len(a.Blocks))
	for i, b := range a.Blocks {
		parts[i] = fmt.Sprintf("%dx%d", b.Convs, b.Channels)
	}
	return a.Name + "[" + strings.Join(parts, " ") + "]"
}
