package vision

import (
	"fmt"
	"image"
	"image/color"

	"gorgonia.org/tensor"
)

// Classifier input geometry.
const (
	TileSize     = 50
	TileChannels = 1
)

// TileShape is the (batch, height, width, channels) shape expected by the classifier.
var TileShape = tensor.Shape{1, TileSize, TileSize, TileChannels}

// Tile is a normalized (1,50,50,1) float32 tensor with values in [0,1].
// It outlives the frame arena and must be closed once the classifier has consumed it.
type Tile struct {
	t      *tensor.Dense
	closed bool
}

// NewTile wraps data, which must hold exactly 50*50 values in [0,1].
func NewTile(data []float32) (*Tile, error) {
	if len(data) != TileSize*TileSize*TileChannels {
		return nil, fmt.Errorf("tile: got %d values, want %d", len(data), TileSize*TileSize*TileChannels)
	}
	return newTile(data), nil
}

func newTile(data []float32) *Tile {
	outstanding.Add(1)
	return &Tile{
		t: tensor.New(tensor.WithShape(TileShape...), tensor.Of(tensor.Float32), tensor.WithBacking(data)),
	}
}

// Tensor returns the underlying tensor. It is nil after Close.
func (t *Tile) Tensor() *tensor.Dense {
	if t == nil || t.closed {
		return nil
	}
	return t.t
}

// Data returns the backing values in row-major order.
func (t *Tile) Data() []float32 {
	if d := t.Tensor(); d != nil {
		return d.Float32s()
	}
	return nil
}

// Image renders the tile as an 8-bit grayscale image.
func (t *Tile) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, TileSize, TileSize))
	data := t.Data()
	for i, v := range data {
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		img.SetGray(i%TileSize, i/TileSize, color.Gray{Y: uint8(v*255 + 0.5)})
	}
	return img
}

// Close releases the tile.
func (t *Tile) Close() {
	if t == nil || t.closed {
		return
	}
	t.closed = true
	t.t = nil
	outstanding.Add(-1)
}
