package capture

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/signlink/internal/vision"
)

// ROI is the fixed region of every frame that the pipeline looks at.
var ROI = image.Rect(300, 100, 600, 400)

// ErrSourceNotReady means the source has no usable frame yet.
// It is an expected, transient condition: callers reschedule and try again.
var ErrSourceNotReady = errors.New("video source not ready")

// Sampler cuts the region of interest out of video frames.
type Sampler struct {
	roi image.Rectangle
}

// NewSampler creates a Sampler for the given region.
func NewSampler(roi image.Rectangle) *Sampler {
	return &Sampler{roi: roi.Canon()}
}

// ROI returns the sampled region in frame coordinates.
func (s *Sampler) ROI() image.Rectangle {
	return s.roi
}

// Sample reads the current frame from src and returns its region of interest
// as an RGB Mat. All buffers, including the frame itself, belong to arena.
func (s *Sampler) Sample(src Source, arena *vision.Arena) (gocv.Mat, error) {
	if src.Width() == 0 || src.Height() == 0 {
		return gocv.Mat{}, ErrSourceNotReady
	}

	frame, err := src.ReadFrame()
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %w", ErrSourceNotReady, err)
	}
	arena.Track(*frame)

	return s.Crop(*frame, arena)
}

// Crop copies the region of interest of a BGR frame into a new RGB Mat.
// Parts of the region that fall outside the frame are black.
func (s *Sampler) Crop(frame gocv.Mat, arena *vision.Arena) (gocv.Mat, error) {
	if frame.Empty() {
		return gocv.Mat{}, ErrSourceNotReady
	}
	if frame.Type() != gocv.MatTypeCV8UC3 {
		return gocv.Mat{}, fmt.Errorf("sample: expected CV_8UC3 frame, got type %v", frame.Type())
	}

	bgr := arena.NewMatWithSize(s.roi.Dy(), s.roi.Dx(), gocv.MatTypeCV8UC3)

	visible := s.roi.Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if !visible.Empty() {
		src := arena.Track(frame.Region(visible))
		dst := arena.Track(bgr.Region(visible.Sub(s.roi.Min)))
		src.CopyTo(&dst)
	}

	rgb := arena.NewMat()
	gocv.CvtColor(bgr, &rgb, gocv.ColorBGRToRGB)

	return rgb, nil
}
