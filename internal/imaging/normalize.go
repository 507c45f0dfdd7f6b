package imaging

import (
	"fmt"

	"github.com/born-ml/texturize/internal/tensor"
)

// Means are the ImageNet channel means in BGR order, the convention of the
// Keras VGG weights.
var Means = [3]float32{103.939, 116.779, 123.68}

// Luma holds the ITU-R BT.601 luma weights in RGB order.
var Luma = [3]float32{0.299, 0.587, 0.114}

func requireRGB(op string, x *tensor.RawTensor) error {
	s := x.Shape()
	if len(s) != 4 || s[3] != 3 {
		return fmt.Errorf("%s: expected [N, H, W, 3], got %v", op, s)
	}
	return nil
}

// Preprocess converts a display space RGB batch to normalized BGR.
func Preprocess(display *tensor.RawTensor) (*tensor.RawTensor, error) {
	if err := requireRGB("preprocess", display); err != nil {
		return nil, err
	}
	out := tensor.MustRaw(display.Shape())
	src, dst := display.Data(), out.Data()
	for i := 0; i < len(src); i += 3 {
		// BGR <- RGB
		dst[i] = src[i+2] - Means[0]
		dst[i+1] = src[i+1] - Means[1]
		dst[i+2] = src[i] - Means[2]
	}
	return out, nil
}

// Deprocess converts a normalized BGR batch back to display space RGB,
// clipped into [0, 255].
func Deprocess(normalized *tensor.RawTensor) (*tensor.RawTensor, error) {
	if err := requireRGB("deprocess", normalized); err != nil {
		return nil, err
	}
	out := tensor.MustRaw(normalized.Shape())
	src, dst := normalized.Data(), out.Data()
	for i := 0; i < len(src); i += 3 {
		dst[i] = clamp(src[i+2]+Means[2], 0, 255)
		dst[i+1] = clamp(src[i+1]+Means[1], 0, 255)
		dst[i+2] = clamp(src[i]+Means[0], 0, 255)
	}
	return out, nil
}

// Bounds returns the per-channel [min, max] of normalized space, in BGR
// order: the normalized images of display values 0 and 255.
func Bounds() [3][2]float32 {
	var b [3][2]float32
	for c, m := range Means {
		b[c] = [2]float32{-m, 255 - m}
	}
	return b
}

// Clip clamps a normalized batch into Bounds in place.
func Clip(normalized *tensor.RawTensor) {
	b := Bounds()
	data := normalized.Data()
	for i := range data {
		c := i % 3
		data[i] = clamp(data[i], b[c][0], b[c][1])
	}
}

// Desaturate replaces every display space RGB pixel with its BT.601 luma
// repeated on all three channels.
func Desaturate(display *tensor.RawTensor) (*tensor.RawTensor, error) {
	if err := requireRGB("desaturate", display); err != nil {
		return nil, err
	}
	out := tensor.MustRaw(display.Shape())
	src, dst := display.Data(), out.Data()
	for i := 0; i < len(src); i += 3 {
		y := Luma[0]*src[i] + Luma[1]*src[i+1] + Luma[2]*src[i+2]
		dst[i], dst[i+1], dst[i+2] = y, y, y
	}
	return out, nil
}

// GrayscaleMix returns the affine channel map that desaturates a normalized
// BGR batch: deprocess, take luma, repeat it and reprocess. With luma
// weights w in BGR order,
//
//	out[c] = Σ_k w[k]·x[k] + Σ_k w[k]·mean[k] − mean[c]
//
// Deprocess clipping is not part of the map, so it stays differentiable.
func GrayscaleMix() (mix, bias *tensor.RawTensor) {
	w := [3]float32{Luma[2], Luma[1], Luma[0]} // BGR order
	var offset float32
	for k := range 3 {
		offset += w[k] * Means[k]
	}

	mix = tensor.MustRaw(tensor.Shape{3, 3})
	bias = tensor.MustRaw(tensor.Shape{3})
	for c := range 3 {
		for k := range 3 {
			mix.Set(w[k], c, k)
		}
		bias.Data()[c] = offset - Means[c]
	}
	return mix, bias
}

// Grayscale desaturates a normalized batch on backend. Run on an autodiff
// backend it is differentiable with respect to x.
func Grayscale(backend tensor.Backend, x *tensor.RawTensor) (*tensor.RawTensor, error) {
	if err := requireRGB("grayscale", x); err != nil {
		return nil, err
	}
	mix, bias := GrayscaleMix()
	return backend.ChannelMix(x, mix, bias), nil
}

func clamp(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
