package vgg

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/texturize/internal/autodiff"
	"github.com/born-ml/texturize/internal/backend/cpu"
	"github.com/born-ml/texturize/internal/loader"
	"github.com/born-ml/texturize/internal/tensor"
)

func randomBatch(seed int64, shape tensor.Shape) *tensor.RawTensor {
	rng := rand.New(rand.NewSource(seed))
	x := tensor.MustRaw(shape)
	for i := range x.Data() {
		x.Data()[i] = float32(rng.Float64()*255 - 128)
	}
	return x
}

func TestVGG19Layers(t *testing.T) {
	layers := VGG19().Layers()
	require.Len(t, layers, 21)

	assert.Equal(t, Layer{Name: "block1_conv1", Kind: Conv, InChannels: 3, OutChannels: 64}, layers[0])
	assert.Equal(t, "block1_pool", layers[2].Name)
	assert.Equal(t, Pool, layers[2].Kind)
	assert.Equal(t, "block3_conv4", layers[9].Name)
	assert.Equal(t, Layer{Name: "block5_pool", Kind: Pool, InChannels: 512, OutChannels: 512}, layers[20])
}

func TestArchValidate(t *testing.T) {
	assert.NoError(t, NarrowVGG19(2).Validate())
	assert.Error(t, Arch{Name: "empty"}.Validate())
	assert.Error(t, Arch{Name: "bad", Blocks: []Block{{Convs: 0, Channels: 4}}}.Validate())
	assert.Equal(t, "vgg19-w2[2x2 2x4 4x8 4x16 4x16]", NarrowVGG19(2).String())
}

func TestExtractOrderAndShapes(t *testing.T) {
	ex, err := NewRandom(NarrowVGG19(2), 1, cpu.New())
	require.NoError(t, err)

	batch := randomBatch(2, tensor.Shape{2, 8, 8, 3})
	outs, err := ex.Extract(batch, []string{"block2_conv1", "block1_conv1", "block2_conv1"})
	require.NoError(t, err)
	require.Len(t, outs, 3)

	assert.Equal(t, tensor.Shape{2, 4, 4, 4}, outs[0].Shape())
	assert.Equal(t, tensor.Shape{2, 8, 8, 2}, outs[1].Shape())
	assert.Same(t, outs[0], outs[2])

	for _, v := range outs[1].Data() {
		assert.GreaterOrEqual(t, v, float32(0), "activations are post-ReLU")
	}
}

func TestExtractDeterministic(t *testing.T) {
	a, err := NewRandom(NarrowVGG19(2), 7, cpu.New())
	require.NoError(t, err)
	b, err := NewRandom(NarrowVGG19(2), 7, cpu.New())
	require.NoError(t, err)

	batch := randomBatch(3, tensor.Shape{1, 8, 8, 3})
	outA, err := a.Extract(batch, []string{"block2_pool"})
	require.NoError(t, err)
	outB, err := b.Extract(batch, []string{"block2_pool"})
	require.NoError(t, err)
	assert.Equal(t, outA[0].Data(), outB[0].Data())
}

func TestExtractErrors(t *testing.T) {
	ex, err := NewRandom(NarrowVGG19(2), 1, cpu.New())
	require.NoError(t, err)

	_, err = ex.Extract(randomBatch(1, tensor.Shape{1, 8, 8, 3}), []string{"block9_conv1"})
	assert.ErrorIs(t, err, ErrUnknownLayer)

	_, err = ex.Extract(randomBatch(1, tensor.Shape{1, 8, 8, 4}), []string{"block1_conv1"})
	assert.ErrorIs(t, err, ErrInputShape)

	// 8 -> 4 -> 2 -> 1 -> cannot pool again
	_, err = ex.Extract(randomBatch(1, tensor.Shape{1, 8, 8, 3}), []string{"block4_pool"})
	assert.ErrorIs(t, err, ErrInputShape)

	_, err = ex.Extract(randomBatch(1, tensor.Shape{1, 8, 8, 3}), nil)
	assert.Error(t, err)
}

func TestExtractDifferentiable(t *testing.T) {
	backend := autodiff.New(cpu.New())
	ex, err := NewRandom(NarrowVGG19(2), 1, backend)
	require.NoError(t, err)

	batch := randomBatch(4, tensor.Shape{2, 8, 8, 3})
	backend.Tape().StartRecording()
	outs, err := ex.Extract(batch, []string{"block2_conv2"})
	require.NoError(t, err)

	grad, err := autodiff.Gradient(backend.MeanBatch(outs[0]), batch, backend)
	require.NoError(t, err)
	assert.Equal(t, batch.Shape(), grad.Shape())

	var nonzero bool
	for _, v := range grad.Data() {
		nonzero = nonzero || v != 0
	}
	assert.True(t, nonzero)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vgg.safetensors")
	ex, err := NewRandom(NarrowVGG19(2), 5, cpu.New())
	require.NoError(t, err)
	require.NoError(t, ex.Save(path))

	loaded, err := Load(path, cpu.New())
	require.NoError(t, err)
	assert.Equal(t, ex.Arch().Blocks, loaded.Arch().Blocks)

	batch := randomBatch(6, tensor.Shape{1, 16, 16, 3})
	want, err := ex.Extract(batch, []string{"block3_conv4", "block5_conv1"})
	require.NoError(t, err)
	got, err := loaded.Extract(batch, []string{"block3_conv4", "block5_conv1"})
	require.NoError(t, err)
	assert.Equal(t, want[0].Data(), got[0].Data())
	assert.Equal(t, want[1].Data(), got[1].Data())
}

// toOIHW converts an HWIO kernel to PyTorch layout.
func toOIHW(k *tensor.RawTensor) *tensor.RawTensor {
	s := k.Shape()
	out := tensor.MustRaw(tensor.Shape{s[3], s[2], s[0], s[1]})
	for h := range s[0] {
		for w := range s[1] {
			for i := range s[2] {
				for o := range s[3] {
					out.Set(k.At(h, w, i, o), o, i, h, w)
				}
			}
		}
	}
	return out
}

func TestLoadOIHWTruncated(t *testing.T) {
	ex, err := NewRandom(Arch{Name: "one", Blocks: []Block{{Convs: 2, Channels: 4}}}, 9, cpu.New())
	require.NoError(t, err)

	tensors := map[string]*tensor.RawTensor{}
	for name, p := range ex.params {
		tensors[name+".weight"] = toOIHW(p.kernel)
		tensors[name+".bias"] = p.bias
	}
	path := filepath.Join(t.TempDir(), "torch.safetensors")
	require.NoError(t, loader.WriteSafeTensors(path, tensors, nil))

	loaded, err := Load(path, cpu.New())
	require.NoError(t, err)
	assert.Equal(t, []Block{{Convs: 2, Channels: 4}}, loaded.Arch().Blocks)
	assert.False(t, loaded.HasLayer("block2_conv1"))
	assert.True(t, loaded.HasLayer("block1_pool"))

	batch := randomBatch(10, tensor.Shape{1, 6, 6, 3})
	want, err := ex.Extract(batch, []string{"block1_pool"})
	require.NoError(t, err)
	got, err := loaded.Extract(batch, []string{"block1_pool"})
	require.NoError(t, err)
	assert.InDeltaSlice(t, want[0].Data(), got[0].Data(), 1e-5)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.safetensors"), cpu.New())
	assert.Error(t, err)

	ex, err := NewRandom(Arch{Name: "one", Blocks: []Block{{Convs: 2, Channels: 4}}}, 9, cpu.New())
	require.NoError(t, err)

	partial := filepath.Join(dir, "partial.safetensors")
	p := ex.params["block1_conv1"]
	require.NoError(t, loader.WriteSafeTensors(partial, map[string]*tensor.RawTensor{
		"block1_conv1.kernel": p.kernel,
		"block1_conv1.bias":   p.bias,
	}, nil))
	_, err = Load(partial, cpu.New())
	assert.ErrorContains(t, err, "incomplete")

	empty := filepath.Join(dir, "empty.safetensors")
	require.NoError(t, loader.WriteSafeTensors(empty, map[string]*tensor.RawTensor{
		"other": tensor.MustRaw(tensor.Shape{1}),
	}, nil))
	_, err = Load(empty, cpu.New())
	assert.Error(t, err)
}
