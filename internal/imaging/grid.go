package imaging

import (
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/image/draw"

	"github.com/born-ml/texturize/internal/tensor"
)

// ErrInvalidGrid is returned for non-positive grids and grids that would
// produce empty tiles.
var ErrInvalidGrid = errors.New("invalid grid")

// Grid is a split of an image into Cols × Rows tiles.
type Grid struct {
	Cols int `yaml:"cols" toml:"cols"`
	Rows int `yaml:"rows" toml:"rows"`
}

// Validate checks that both counts are positive.
func (g Grid) Validate() error {
	if g.Cols <= 0 || g.Rows <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGrid, g.Cols, g.Rows)
	}
	return nil
}

// Tiles returns the number of tiles, which is the batch size.
func (g Grid) Tiles() int {
	return g.Cols * g.Rows
}

// TileSize returns the tile extent for an image of the given bounds.
// Trailing pixels that do not fill a whole tile are not covered.
func (g Grid) TileSize(bounds image.Rectangle) (image.Point, error) {
	if err := g.Validate(); err != nil {
		return image.Point{}, err
	}
	size := image.Pt(bounds.Dx()/g.Cols, bounds.Dy()/g.Rows)
	if size.X == 0 || size.Y == 0 {
		return image.Point{}, fmt.Errorf("%w: %dx%d grid on a %dx%d image leaves empty tiles",
			ErrInvalidGrid, g.Cols, g.Rows, bounds.Dx(), bounds.Dy())
	}
	return size, nil
}

// String implements fmt.Stringer.
func (g Grid) String() string {
	return fmt.Sprintf("%dx%d", g.Cols, g.Rows)
}

// toRGBA returns img as an *image.RGBA whose bounds start at the origin.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) {
		return rgba
	}
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// Split cuts img into grid tiles, row-major, and returns them as a display
// space batch [Cols*Rows, tileH, tileW, 3].
//
// Tile size is the image size divided by the grid, rounded down. The
// remainder strips on the right and bottom are discarded.
func Split(img image.Image, grid Grid) (*tensor.RawTensor, error) {
	rgba := toRGBA(img)
	size, err := grid.TileSize(rgba.Bounds())
	if err != nil {
		return nil, err
	}

	tiles := tensor.MustRaw(tensor.Shape{grid.Tiles(), size.Y, size.X, 3})
	for r := range grid.Rows {
		for c := range grid.Cols {
			dst := tiles.Batch(r*grid.Cols + c)
			for y := range size.Y {
				row := rgba.Pix[(r*size.Y+y)*rgba.Stride+c*size.X*4:]
				for x := range size.X {
					i := (y*size.X + x) * 3
					dst[i] = float32(row[4*x])
					dst[i+1] = float32(row[4*x+1])
					dst[i+2] = float32(row[4*x+2])
				}
			}
		}
	}
	return tiles, nil
}

// SplitTexture resizes img to size with Catmull-Rom resampling and splits
// the result, so a texture lines up tile for tile with a content image of
// that size.
func SplitTexture(img image.Image, size image.Point, grid Grid) (*tensor.RawTensor, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("%w: target size %v", ErrInvalidGrid, size)
	}
	resized := image.NewRGBA(image.Rectangle{Max: size})
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)
	return Split(resized, grid)
}

// Recompose joins display space tiles back into one image: each grid row
// is concatenated along the width, rows are stacked along the height.
// Values are rounded and clamped into [0, 255].
func Recompose(tiles *tensor.RawTensor, grid Grid) (*image.RGBA, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	shape := tiles.Shape()
	if len(shape) != 4 || shape[3] != 3 {
		return nil, fmt.Errorf("recompose: expected [N, H, W, 3] tiles, got %v", shape)
	}
	n, th, tw, _ := shape.NHWC()
	if n != grid.Tiles() {
		return nil, fmt.Errorf("%w: %d tiles for a %v grid", ErrInvalidGrid, n, grid)
	}

	out := image.NewRGBA(image.Rect(0, 0, grid.Cols*tw, grid.Rows*th))
	for r := range grid.Rows {
		for c := range grid.Cols {
			src := tiles.Batch(r*grid.Cols + c)
			for y := range th {
				row := out.Pix[(r*th+y)*out.Stride+c*tw*4:]
				for x := range tw {
					i := (y*tw + x) * 3
					row[4*x] = toByte(src[i])
					row[4*x+1] = toByte(src[i+1])
					row[4*x+2] = toByte(src[i+2])
					row[4*x+3] = 0xff
				}
			}
		}
	}
	return out, nil
}

// Crop returns the part of img covered by the grid's tiles.
func Crop(img image.Image, grid Grid) (*image.RGBA, error) {
	rgba := toRGBA(img)
	size, err := grid.TileSize(rgba.Bounds())
	if err != nil {
		return nil, err
	}
	covered := image.Rect(0, 0, grid.Cols*size.X, grid.Rows*size.Y)
	out := image.NewRGBA(covered)
	draw.Draw(out, covered, rgba, image.Point{}, draw.Src)
	return out, nil
}

// SaveTiles writes every tile of a display space batch to
// dir/<stem><n>.png, numbering from 1, and returns the paths written.
func SaveTiles(dir, stem string, tiles *tensor.RawTensor) ([]string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("save tiles: %w", err)
	}
	n := tiles.Shape().Batch()
	paths := make([]string, 0, n)
	for i := range n {
		img, err := Recompose(Tile(tiles, i), Grid{Cols: 1, Rows: 1})
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, stem+strconv.Itoa(i+1)+".png")
		if err := Save(path, img); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Tile copies batch entry i into a single-tile batch.
func Tile(tiles *tensor.RawTensor, i int) *tensor.RawTensor {
	tile, err := tensor.FromSlice(tiles.Batch(i), tiles.Shape().WithBatch(1))
	if err != nil {
		panic(err)
	}
	return tile
}

func toByte(v float32) uint8 {
	r := math.Round(float64(v))
	switch {
	case r <= 0 || math.IsNaN(r):
		return 0
	case r >= 255:
		return 255
	default:
		return uint8(r)
	}
}
