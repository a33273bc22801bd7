package capture

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/signlink/internal/vision"
)

// setBGR writes one BGR pixel.
func setBGR(m *gocv.Mat, x, y int, b, g, r uint8) {
	m.SetUCharAt(y, x*3, b)
	m.SetUCharAt(y, x*3+1, g)
	m.SetUCharAt(y, x*3+2, r)
}

func rgbAt(m gocv.Mat, x, y int) [3]uint8 {
	return [3]uint8{m.GetUCharAt(y, x*3), m.GetUCharAt(y, x*3+1), m.GetUCharAt(y, x*3+2)}
}

func TestNewSampler(t *testing.T) {
	s := NewSampler(image.Rect(600, 400, 300, 100))
	assert.Equal(t, ROI, s.ROI(), "rectangle should be canonicalized")
	assert.Equal(t, 300, ROI.Dx())
	assert.Equal(t, 300, ROI.Dy())
}

func TestSampler_SourceNotReady(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSize(DefaultHeight, DefaultWidth, gocv.MatTypeCV8UC3)
	defer frame.Close()

	t.Run("zero dimensions", func(t *testing.T) {
		cam := NewMockCamera([]*gocv.Mat{&frame}, true)

		arena := vision.NewArena()
		defer arena.Release()

		_, err := NewSampler(ROI).Sample(cam, arena)
		assert.ErrorIs(t, err, ErrSourceNotReady)
		assert.Equal(t, 0, cam.Served(), "no frame should be read before the size is known")
	})

	t.Run("read failure", func(t *testing.T) {
		cam := NewMockCamera([]*gocv.Mat{&frame}, false)
		cam.Open()
		defer cam.Close()

		f, err := cam.ReadFrame()
		require.NoError(t, err)
		f.Close()

		arena := vision.NewArena()
		defer arena.Release()

		_, err = NewSampler(ROI).Sample(cam, arena)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSourceNotReady))
	})
}

func TestSampler_Sample(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), DefaultHeight, DefaultWidth, gocv.MatTypeCV8UC3)
	defer frame.Close()

	setBGR(&frame, ROI.Min.X, ROI.Min.Y, 10, 20, 30)
	setBGR(&frame, ROI.Max.X-1, ROI.Max.Y-1, 40, 50, 60)
	setBGR(&frame, ROI.Min.X-1, ROI.Min.Y, 255, 255, 255) // outside the region

	cam := NewMockCamera([]*gocv.Mat{&frame}, true)
	cam.Open()
	defer cam.Close()

	before := vision.Outstanding()
	arena := vision.NewArena()

	roi, err := NewSampler(ROI).Sample(cam, arena)
	require.NoError(t, err)

	assert.Equal(t, ROI.Dy(), roi.Rows())
	assert.Equal(t, ROI.Dx(), roi.Cols())
	assert.Equal(t, [3]uint8{30, 20, 10}, rgbAt(roi, 0, 0), "channels should be in RGB order")
	assert.Equal(t, [3]uint8{60, 50, 40}, rgbAt(roi, ROI.Dx()-1, ROI.Dy()-1))

	arena.Release()
	assert.Equal(t, before, vision.Outstanding(), "sampling must not leak buffers")
}

func TestSampler_CropPastFrameEdge(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	// 320x240 frame only covers a 20x140 strip of the region
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(5, 6, 7, 0), 240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()

	arena := vision.NewArena()
	defer arena.Release()

	roi, err := NewSampler(ROI).Crop(frame, arena)
	require.NoError(t, err)

	assert.Equal(t, [3]uint8{7, 6, 5}, rgbAt(roi, 0, 0))
	assert.Equal(t, [3]uint8{7, 6, 5}, rgbAt(roi, 19, 139))
	assert.Equal(t, [3]uint8{0, 0, 0}, rgbAt(roi, 20, 0), "outside the frame should be black")
	assert.Equal(t, [3]uint8{0, 0, 0}, rgbAt(roi, 0, 140))
}

func TestSampler_CropRejectsGray(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC1)
	defer frame.Close()

	arena := vision.NewArena()
	defer arena.Release()

	_, err := NewSampler(ROI).Crop(frame, arena)
	assert.Error(t, err)
}
