package vgg

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/texturize/internal/loader"
	"github.com/born-ml/texturize/internal/tensor"
)

// NewRandom builds an extractor with He-initialised kernels and zero biases.
//
// The same seed always produces the same network. Random extractors are not
// useful for real transfers; they serve tests and offline smoke runs.
func NewRandom(arch Arch, seed int64, backend tensor.Backend) (*Extractor, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	//nolint:gosec // Using math/rand for weight initialization (not security-critical)
	rng := rand.New(rand.NewSource(seed))

	weights := make(map[string]params)
	for _, l := range arch.Layers() {
		if l.Kind != Conv {
			continue
		}
		kernel := tensor.MustRaw(tensor.Shape{kernelSize, kernelSize, l.InChannels, l.OutChannels})
		// He normal: std = sqrt(2 / fan_in)
		std := math.Sqrt(2.0 / float64(kernelSize*kernelSize*l.InChannels))
		for i := range kernel.Data() {
			kernel.Data()[i] = float32(rng.NormFloat64() * std)
		}
		weights[l.Name] = params{
			kernel: kernel,
			bias:   tensor.MustRaw(tensor.Shape{l.OutChannels}),
		}
	}
	return newExtractor(arch, weights, backend)
}

// Load reads a VGG19-layout extractor from a SafeTensors file.
//
// Each convolution needs "<layer>.kernel" or "<layer>.weight" plus
// "<layer>.bias". Kernels may be stored HWIO [3, 3, in, out] (Keras) or
// OIHW [out, in, 3, 3] (PyTorch); the layout is detected from the shape.
// Block widths are read from the file, and the network is truncated after
// the last block whose convolutions are all present.
func Load(path string, backend tensor.Backend) (*Extractor, error) {
	reader, err := loader.NewSafeTensorsReader(path)
	if err != nil {
		return nil, fmt.Errorf("vgg: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	template := VGG19()
	arch := Arch{Name: "vgg19"}
	weights := make(map[string]params)
	in := 3

	for bi, b := range template.Blocks {
		block := make(map[string]params, b.Convs)
		width := 0
		complete := true
		cin := in
		for k := range b.Convs {
			name := ConvName(bi+1, k+1)
			p, ok, err := loadConv(reader, name, cin)
			if err != nil {
				return nil, fmt.Errorf("vgg: %w", err)
			}
			if !ok {
				complete = false
				break
			}
			cout := p.kernel.Shape()[3]
			if width != 0 && cout != width {
				return nil, fmt.Errorf("vgg: %s has %d output channels, block uses %d", name, cout, width)
			}
			width = cout
			block[name] = p
			cin = cout
		}
		if !complete {
			if len(block) > 0 {
				return nil, fmt.Errorf("vgg: block%d is incomplete", bi+1)
			}
			break
		}
		arch.Blocks = append(arch.Blocks, Block{Convs: b.Convs, Channels: width})
		for name, p := range block {
			weights[name] = p
		}
		in = width
	}

	if len(arch.Blocks) == 0 {
		return nil, fmt.Errorf("vgg: %s contains no %s weights", path, ConvName(1, 1))
	}
	return newExtractor(arch, weights, backend)
}

// loadConv reads the kernel and bias of one convolution.
// ok is false when the file has no kernel for name.
func loadConv(reader *loader.SafeTensorsReader, name string, inChannels int) (p params, ok bool, err error) {
	var key string
	switch {
	case reader.Has(name + ".kernel"):
		key = name + ".kernel"
	case reader.Has(name + ".weight"):
		key = name + ".weight"
	default:
		return params{}, false, nil
	}

	kernel, err := reader.LoadTensor(key)
	if err != nil {
		return params{}, false, err
	}
	kernel, err = toHWIO(kernel, inChannels)
	if err != nil {
		return params{}, false, fmt.Errorf("%s: %w", key, err)
	}

	bias, err := reader.LoadTensor(name + ".bias")
	if err != nil {
		return params{}, false, err
	}
	return params{kernel: kernel, bias: bias}, true, nil
}

// toHWIO returns kernel in [3, 3, in, out] layout, transposing OIHW input.
func toHWIO(kernel *tensor.RawTensor, inChannels int) (*tensor.RawTensor, error) {
	s := kernel.Shape()
	if len(s) != 4 {
		return nil, fmt.Errorf("kernel must be 4D, got %v", s)
	}
	switch {
	case s[0] == kernelSize && s[1] == kernelSize && s[2] == inChannels:
		return kernel, nil
	case s[2] == kernelSize && s[3] == kernelSize && s[1] == inChannels:
		out, in := s[0], s[1]
		hwio := tensor.MustRaw(tensor.Shape{kernelSize, kernelSize, in, out})
		src, dst := kernel.Data(), hwio.Data()
		for o := range out {
			for i := range in {
				for h := range kernelSize {
					for w := range kernelSize {
						dst[((h*kernelSize+w)*in+i)*out+o] = src[((o*in+i)*kernelSize+h)*kernelSize+w]
					}
				}
			}
		}
		return hwio, nil
	default:
		return nil, fmt.Errorf("kernel shape %v is neither [3,3,%d,C] nor [C,%d,3,3]", s, inChannels, inChannels)
	}
}

// Save writes the extractor's weights to path in HWIO layout.
func (e *Extractor) Save(path string) error {
	tensors := make(map[string]*tensor.RawTensor, 2*len(e.params))
	for name, p := range e.params {
		tensors[name+".kernel"] = p.kernel
		tensors[name+".bias"] = p.bias
	}
	return loader.WriteSafeTensors(path, tensors, map[string]string{"arch": e.arch.String()})
}
