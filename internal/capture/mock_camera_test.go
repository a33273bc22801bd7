package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestMockCamera_Playback(t *testing.T) {
	frame1 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame1.Close()
	frame2 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame2.Close()

	t.Run("once", func(t *testing.T) {
		cam := NewMockCamera([]*gocv.Mat{&frame1, &frame2}, false)
		require.NoError(t, cam.Open())
		defer cam.Close()

		for i := 0; i < 2; i++ {
			f, err := cam.ReadFrame()
			require.NoError(t, err)
			f.Close()
		}
		assert.Equal(t, 2, cam.Served())

		_, err := cam.ReadFrame()
		assert.Error(t, err, "playback without loop should run dry")
	})

	t.Run("loop", func(t *testing.T) {
		cam := NewMockCamera([]*gocv.Mat{&frame1}, true)
		require.NoError(t, cam.Open())
		defer cam.Close()

		for i := 0; i < 5; i++ {
			f, err := cam.ReadFrame()
			require.NoError(t, err, "iteration %d", i)
			f.Close()
		}
		assert.Equal(t, 5, cam.Served(), "wrapping playback keeps counting")
	})

	t.Run("reset", func(t *testing.T) {
		cam := NewMockCamera([]*gocv.Mat{&frame1, &frame2}, false)
		require.NoError(t, cam.Open())
		defer cam.Close()

		f, err := cam.ReadFrame()
		require.NoError(t, err)
		f.Close()

		cam.Reset()
		assert.Zero(t, cam.Served())

		cam.SetFrames([]*gocv.Mat{&frame2})
		f, err = cam.ReadFrame()
		require.NoError(t, err)
		f.Close()
		_, err = cam.ReadFrame()
		assert.Error(t, err)
	})
}

func TestMockCamera_ClosedCameraIsNotReady(t *testing.T) {
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	cam := NewMockCamera([]*gocv.Mat{&frame}, true)
	assert.Zero(t, cam.Width())
	assert.Zero(t, cam.Height())
	_, err := cam.ReadFrame()
	assert.Error(t, err)

	require.NoError(t, cam.Open())
	assert.Equal(t, 640, cam.Width())
	assert.Equal(t, 480, cam.Height())

	require.NoError(t, cam.Close())
	assert.Equal(t, 1, cam.Closes())
	assert.False(t, cam.IsOpen())
}
