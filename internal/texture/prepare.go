package texture

import (
	"fmt"
	"image"

	"github.com/born-ml/texturize/internal/imaging"
	"github.com/born-ml/texturize/internal/tensor"
)

// Prepare turns decoded images into the normalized batches Driver.Run
// expects.
//
// The content image is split by grid. The texture image is resized to the
// content image's size, split the same way and desaturated, so texture
// tiles line up with content tiles.
func Prepare(content, tex image.Image, grid Grid) (contentBatch, textureBatch *tensor.RawTensor, err error) {
	display, err := imaging.Split(content, grid)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: content: %w", ErrInvalidConfig, err)
	}
	texDisplay, err := imaging.SplitTexture(tex, content.Bounds().Size(), grid)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: texture: %w", ErrInvalidConfig, err)
	}
	gray, err := imaging.Desaturate(texDisplay)
	if err != nil {
		return nil, nil, err
	}

	if contentBatch, err = imaging.Preprocess(display); err != nil {
		return nil, nil, err
	}
	if textureBatch, err = imaging.Preprocess(gray); err != nil {
		return nil, nil, err
	}
	return contentBatch, textureBatch, nil
}

// Grid is the tile split applied to both images.
type Grid = imaging.Grid
