package vision

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Region extraction defaults.
const (
	DefaultPadding    = 10
	DefaultKernelSize = 11
	DefaultSigma      = 2.0
)

// Region is a hand region found in the mask, ready for classification.
type Region struct {
	// Box is the padded, clamped bounding box in ROI coordinates.
	Box image.Rectangle
	// Tile is the normalized classifier input. The caller must Close it.
	Tile *Tile
}

// Extractor locates the skin region in a masked frame and normalizes it.
type Extractor struct {
	padding    int
	kernelSize int
	sigma      float64
}

// NewExtractor creates an Extractor with the default padding and blur.
func NewExtractor() *Extractor {
	return &Extractor{
		padding:    DefaultPadding,
		kernelSize: DefaultKernelSize,
		sigma:      DefaultSigma,
	}
}

// Extract masks the grayscale of rgb with mask, blurs it, bounds the nonzero
// area and produces a normalized tile from it.
//
// A nil Region with a nil error means no hand region was found in this frame.
func (e *Extractor) Extract(rgb, mask gocv.Mat, arena *Arena) (*Region, error) {
	if rgb.Rows() != mask.Rows() || rgb.Cols() != mask.Cols() {
		return nil, fmt.Errorf("extract: frame %dx%d and mask %dx%d differ",
			rgb.Cols(), rgb.Rows(), mask.Cols(), mask.Rows())
	}

	gray := e.grayscale(rgb, arena)

	masked := arena.NewMat()
	gocv.Multiply(gray, mask, &masked)

	blurred := arena.NewMat()
	gocv.GaussianBlur(masked, &blurred, image.Pt(e.kernelSize, e.kernelSize), e.sigma, e.sigma, gocv.BorderConstant)

	values, err := blurred.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("extract: read blurred mask: %w", err)
	}

	box, ok := BoundingBox(values, blurred.Cols(), blurred.Rows(), e.padding)
	if !ok {
		return nil, nil
	}

	crop := arena.Track(blurred.Region(box))
	square := SquarePad(crop, arena)

	resized := arena.NewMat()
	gocv.Resize(square, &resized, image.Pt(TileSize, TileSize), 0, 0, gocv.InterpolationLinear)

	pixels, err := resized.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("extract: read resized tile: %w", err)
	}

	data := make([]float32, TileSize*TileSize*TileChannels)
	for i := range data {
		data[i] = pixels[i] / 255
	}

	return &Region{Box: box, Tile: newTile(data)}, nil
}

// grayscale returns the per-pixel channel mean of rgb as CV_32FC1.
func (e *Extractor) grayscale(rgb gocv.Mat, arena *Arena) gocv.Mat {
	rgbF := arena.NewMat()
	rgb.ConvertTo(&rgbF, gocv.MatTypeCV32FC3)

	channels := gocv.Split(rgbF)
	for _, c := range channels {
		arena.Track(c)
	}

	sum := arena.NewMat()
	gocv.Add(channels[0], channels[1], &sum)

	gray := arena.NewMat()
	gocv.Add(sum, channels[2], &gray)
	gray.DivideFloat(3)

	return gray
}

// BoundingBox finds the smallest rectangle enclosing all positive values of a
// rows x cols grid, grows it by padding on each side and clamps it to the grid.
// The maximum edge is the last positive index plus padding, capped at the grid size.
// It returns false when no value is positive or the clamped box is empty.
func BoundingBox(values []float32, cols, rows, padding int) (image.Rectangle, bool) {
	minX, minY := cols, rows
	maxX, maxY := -1, -1

	for y := 0; y < rows; y++ {
		row := values[y*cols : (y+1)*cols]
		for x, v := range row {
			if v <= 0 {
				continue
			}
			minX = min(minX, x)
			maxX = max(maxX, x)
			minY = min(minY, y)
			maxY = max(maxY, y)
		}
	}

	if maxX < 0 {
		return image.Rectangle{}, false
	}

	x0, y0 := max(0, minX-padding), max(0, minY-padding)
	x1, y1 := min(cols, maxX+padding), min(rows, maxY+padding)
	if x1-x0 <= 0 || y1-y0 <= 0 {
		return image.Rectangle{}, false
	}

	return image.Rectangle{Min: image.Pt(x0, y0), Max: image.Pt(x1, y1)}, true
}

// SquarePadding returns the zero borders that make a w x h area square.
// The shorter side gets floor(diff/2) before and the remainder after.
func SquarePadding(w, h int) (top, bottom, left, right int) {
	switch {
	case w > h:
		diff := w - h
		top = diff / 2
		bottom = diff - top
	case h > w:
		diff := h - w
		left = diff / 2
		right = diff - left
	}
	return top, bottom, left, right
}

// SquarePad zero-pads m to a square. A square input is returned as is.
func SquarePad(m gocv.Mat, arena *Arena) gocv.Mat {
	top, bottom, left, right := SquarePadding(m.Cols(), m.Rows())
	if top+bottom+left+right == 0 {
		return m
	}

	padded := arena.NewMat()
	gocv.CopyMakeBorder(m, &padded, top, bottom, left, right, gocv.BorderConstant, color.RGBA{})
	return padded
}
