package vision

import (
	"fmt"

	"github.com/chewxy/math32"
	"gocv.io/x/gocv"
)

// SkinRange holds inclusive HSV bounds for skin-colored pixels.
// Hue is on the 0-180 scale, saturation and value on 0-255.
type SkinRange struct {
	HueMin, HueMax float32
	SatMin, SatMax float32
	ValMin, ValMax float32
}

// DefaultSkinRange returns the thresholds tuned for skin tones.
func DefaultSkinRange() SkinRange {
	return SkinRange{
		HueMin: 0, HueMax: 25,
		SatMin: 20, SatMax: 150,
		ValMin: 80, ValMax: 255,
	}
}

// Contains reports whether an HSV triple lies within the range.
func (s SkinRange) Contains(h, sat, v float32) bool {
	return h >= s.HueMin && h <= s.HueMax &&
		sat >= s.SatMin && sat <= s.SatMax &&
		v >= s.ValMin && v <= s.ValMax
}

// HSV converts an 8-bit RGB triple to hue (30x sector scale, 0-180),
// saturation (0-255) and value (0-255).
func HSV(r, g, b uint8) (h, s, v float32) {
	rf := float32(r) / 255
	gf := float32(g) / 255
	bf := float32(b) / 255

	maxC := math32.Max(rf, math32.Max(gf, bf))
	minC := math32.Min(rf, math32.Min(gf, bf))
	delta := maxC - minC

	switch {
	case delta == 0:
		h = 0
	case maxC == rf:
		offset := float32(0)
		if gf < bf {
			offset = 6
		}
		h = 30 * ((gf-bf)/delta + offset)
	case maxC == gf:
		h = 30 * ((bf-rf)/delta + 2)
	default:
		h = 30 * ((rf-gf)/delta + 4)
	}

	if maxC != 0 {
		s = 255 * (delta / maxC)
	}
	v = 255 * maxC

	return h, s, v
}

// Segmenter produces a skin mask from an RGB region of interest.
type Segmenter struct {
	skin SkinRange
}

// NewSegmenter creates a Segmenter using the given thresholds.
func NewSegmenter(skin SkinRange) *Segmenter {
	return &Segmenter{skin: skin}
}

// Segment converts rgb (CV_8UC3, RGB channel order) to HSV and thresholds it.
// The returned mask is CV_32FC1 holding 1 for skin pixels and 0 elsewhere.
// Every buffer, including the mask, is owned by the arena.
func (s *Segmenter) Segment(rgb gocv.Mat, arena *Arena) (gocv.Mat, error) {
	if rgb.Empty() || rgb.Type() != gocv.MatTypeCV8UC3 {
		return gocv.Mat{}, fmt.Errorf("segment: expected non-empty CV_8UC3 frame, got type %v", rgb.Type())
	}

	src := rgb
	if !src.IsContinuous() {
		src = arena.Track(rgb.Clone())
	}

	pixels, err := src.DataPtrUint8()
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("segment: read pixels: %w", err)
	}

	hsv := arena.NewMatWithSize(src.Rows(), src.Cols(), gocv.MatTypeCV32FC3)
	out, err := hsv.DataPtrFloat32()
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("segment: hsv buffer: %w", err)
	}

	for i := 0; i+2 < len(pixels); i += 3 {
		out[i], out[i+1], out[i+2] = HSV(pixels[i], pixels[i+1], pixels[i+2])
	}

	binary := arena.NewMat()
	gocv.InRangeWithScalar(hsv,
		gocv.NewScalar(float64(s.skin.HueMin), float64(s.skin.SatMin), float64(s.skin.ValMin), 0),
		gocv.NewScalar(float64(s.skin.HueMax), float64(s.skin.SatMax), float64(s.skin.ValMax), 0),
		&binary,
	)

	// InRange yields 0/255 bytes; scale down to 0/1 floats.
	mask := arena.NewMat()
	binary.ConvertToWithParams(&mask, gocv.MatTypeCV32F, 1.0/255, 0)

	return mask, nil
}
