// Package testutil builds synthetic camera frames for tests.
package testutil

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// SkinColor is an RGB color inside the default skin range: H=11.25, S=102, V=200.
var SkinColor = color.RGBA{R: 200, G: 150, B: 120, A: 255}

// HandRadius is the radius of the disc drawn by HandFrame.
const HandRadius = 50

// EmptyFrame returns a black w x h BGR frame.
func EmptyFrame(w, h int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), h, w, gocv.MatTypeCV8UC3)
}

// HandFrame returns a black w x h BGR frame with a skin disc at center.
func HandFrame(w, h int, center image.Point) gocv.Mat {
	frame := EmptyFrame(w, h)
	// gocv maps color.RGBA onto BGR channels
	gocv.Circle(&frame, center, HandRadius, SkinColor, -1)
	return frame
}

// Sequence returns one frame per entry of hands: a hand frame where the
// entry is true, an empty frame otherwise. Close them with CloseAll.
func Sequence(w, h int, center image.Point, hands []bool) []*gocv.Mat {
	frames := make([]*gocv.Mat, 0, len(hands))
	for _, hand := range hands {
		var frame gocv.Mat
		if hand {
			frame = HandFrame(w, h, center)
		} else {
			frame = EmptyFrame(w, h)
		}
		frames = append(frames, &frame)
	}
	return frames
}

// CloseAll closes every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}
