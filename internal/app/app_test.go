package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/signlink/internal/capture"
	"github.com/ayusman/signlink/internal/classifier"
	"github.com/ayusman/signlink/internal/vision"
)

// manualClock delivers a tick only when the test asks for one.
type manualClock struct {
	ticks     chan time.Time
	requests  atomic.Int64
	delivered atomic.Int64
}

func newManualClock() *manualClock {
	return &manualClock{ticks: make(chan time.Time)}
}

func (c *manualClock) Next() <-chan time.Time {
	c.requests.Add(1)
	return c.ticks
}

// step delivers one tick and waits until the loop has finished the frame
// and requested the next tick. Every loop iteration requests exactly one
// tick, so after n delivered ticks the n-th frame is done once n+1 ticks
// have been requested.
func (c *manualClock) step(t *testing.T) {
	t.Helper()
	select {
	case c.ticks <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not take the tick")
	}
	n := c.delivered.Add(1)
	require.Eventually(t, func() bool {
		return c.requests.Load() > n
	}, 2*time.Second, time.Millisecond, "loop did not request the next tick")
}

func writeCalibration(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hist_data.json")
	require.NoError(t, os.WriteFile(path, []byte(`[[0.1, 0.2], [0.3, 0.4]]`), 0o644))
	return path
}

func modelOf(c classifier.Classifier) ModelLoader {
	return func(context.Context) (classifier.Classifier, error) { return c, nil }
}

func newLoadedApp(t *testing.T, cam capture.Camera, model classifier.Classifier) (*App, *manualClock) {
	t.Helper()
	clock := newManualClock()
	a := New(Config{
		Camera:      cam,
		Clock:       clock,
		Model:       modelOf(model),
		Calibration: writeCalibration(t),
	})
	require.NoError(t, a.Load(context.Background()))
	return a, clock
}

func TestApp_StartRequiresLoad(t *testing.T) {
	a := New(Config{Camera: capture.NewMockCamera(nil, true), Clock: newManualClock()})

	assert.ErrorIs(t, a.Start(), ErrNotReady)
	assert.False(t, a.Ready())
	assert.False(t, a.Running())
}

func TestApp_LoadFailures(t *testing.T) {
	tests := []struct {
		name  string
		model ModelLoader
		calib func(t *testing.T) string
	}{
		{
			name:  "no model",
			calib: writeCalibration,
		},
		{
			name:  "model error",
			model: func(context.Context) (classifier.Classifier, error) { return nil, errors.New("corrupt model") },
			calib: writeCalibration,
		},
		{
			name:  "missing calibration",
			model: modelOf(&countingModel{}),
			calib: func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.json") },
		},
		{
			name:  "calibration not an array",
			model: modelOf(&countingModel{}),
			calib: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "hist.json")
				require.NoError(t, os.WriteFile(path, []byte(`{"bins": 3}`), 0o644))
				return path
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(Config{
				Camera:      capture.NewMockCamera(nil, true),
				Clock:       newManualClock(),
				Model:       tt.model,
				Calibration: tt.calib(t),
			})

			err := a.Load(context.Background())
			assert.ErrorIs(t, err, ErrNotReady)

			st := a.Status()
			assert.False(t, st.Ready)
			assert.NotEmpty(t, st.Error)
			assert.ErrorIs(t, a.Start(), ErrNotReady)
		})
	}
}

func TestApp_LoadIsIdempotent(t *testing.T) {
	var loads atomic.Int64
	clock := newManualClock()
	a := New(Config{
		Camera: capture.NewMockCamera(nil, true),
		Clock:  clock,
		Model: func(context.Context) (classifier.Classifier, error) {
			loads.Add(1)
			return &countingModel{}, nil
		},
		Calibration: writeCalibration(t),
	})

	require.NoError(t, a.Load(context.Background()))
	require.NoError(t, a.Load(context.Background()))
	assert.EqualValues(t, 1, loads.Load())
	assert.True(t, a.Status().Ready)
	assert.Empty(t, a.Status().Error)
}

func TestApp_NotReadySourceReschedules(t *testing.T) {
	// No frames means zero dimensions.
	cam := capture.NewMockCamera(nil, true)
	model := &countingModel{}
	a, clock := newLoadedApp(t, cam, model)

	require.NoError(t, a.Start())
	defer a.Stop()

	for i := 0; i < 3; i++ {
		clock.step(t)
	}

	st := a.Stats()
	assert.EqualValues(t, 3, st.Frames)
	assert.EqualValues(t, 3, st.NotReady)
	assert.Zero(t, st.Failures)
	assert.Zero(t, model.calls.Load())
	assert.True(t, a.Running())
}

func TestApp_DisabledSkipsFrames(t *testing.T) {
	a, clock := newLoadedApp(t, capture.NewMockCamera(nil, true), &countingModel{})
	a.SetEnabled(false)

	require.NoError(t, a.Start())
	defer a.Stop()

	clock.step(t)
	clock.step(t)

	assert.Zero(t, a.Stats().Frames)
	assert.False(t, a.Status().Enabled)

	a.SetEnabled(true)
	clock.step(t)
	assert.EqualValues(t, 1, a.Stats().Frames)
}

func TestApp_StopReleasesCameraAndTick(t *testing.T) {
	cam := capture.NewMockCamera(nil, true)
	a, clock := newLoadedApp(t, cam, &countingModel{})

	require.NoError(t, a.Start())
	assert.True(t, cam.IsOpen())
	clock.step(t)

	a.Stop()

	assert.False(t, a.Running())
	assert.False(t, cam.IsOpen())
	assert.Equal(t, 1, cam.Closes())

	requests := clock.requests.Load()
	select {
	case clock.ticks <- time.Now():
		t.Fatal("stopped loop took a tick")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, requests, clock.requests.Load(), "no tick may be requested after Stop")

	// Stop is idempotent and leaves the camera alone.
	a.Stop()
	assert.Equal(t, 1, cam.Closes())
}

func TestApp_RestartAfterStop(t *testing.T) {
	cam := capture.NewMockCamera(nil, true)
	a, clock := newLoadedApp(t, cam, &countingModel{})

	require.NoError(t, a.Start())
	a.Stop()
	require.NoError(t, a.Start())
	defer a.Stop()

	select {
	case clock.ticks <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("restarted loop did not take the tick")
	}
	require.Eventually(t, func() bool {
		return a.Stats().Frames == 1
	}, 2*time.Second, time.Millisecond)
	assert.True(t, cam.IsOpen())
}

func TestApp_PublishesPredictions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	hand := newCameraFrame(true)
	defer hand.Close()
	empty := newCameraFrame(false)
	defer empty.Close()

	cam := capture.NewMockCamera([]*gocv.Mat{&hand, &empty, &hand}, true)
	model := &countingModel{index: 0}
	a, clock := newLoadedApp(t, cam, model)

	var (
		mu  sync.Mutex
		got []classifier.Prediction
	)
	a.OnPrediction(func(p classifier.Prediction) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})

	before := vision.Outstanding()
	require.NoError(t, a.Start())

	clock.step(t)
	assert.False(t, a.LastBox().Empty())

	clock.step(t)
	assert.True(t, a.LastBox().Empty(), "a frame without a hand clears the box")

	clock.step(t)
	a.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	for _, p := range got {
		assert.Equal(t, "A", p.Label)
		assert.InDelta(t, 100, p.Confidence, 1e-4)
	}

	last, ok := a.LastPrediction()
	require.True(t, ok)
	assert.Equal(t, "A", last.Label)

	st := a.Stats()
	assert.EqualValues(t, 3, st.Frames)
	assert.EqualValues(t, 2, st.Predictions)
	assert.EqualValues(t, 1, st.NoRegion)
	assert.Equal(t, before, vision.Outstanding())
}

func TestApp_LastFrameFollowsLoop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	hand := newCameraFrame(true)
	defer hand.Close()
	empty := newCameraFrame(false)
	defer empty.Close()

	cam := capture.NewMockCamera([]*gocv.Mat{&hand, &empty}, true)
	a, clock := newLoadedApp(t, cam, &countingModel{})

	_, ok := a.LastFrame()
	assert.False(t, ok, "no frame before the loop runs")

	before := vision.Outstanding()
	require.NoError(t, a.Start())

	// Blue channel at the disc center tells the two frames apart.
	cx, cy := capture.ROI.Min.X+150, capture.ROI.Min.Y+150
	blueAtCenter := func() uint8 {
		t.Helper()
		frame, ok := a.LastFrame()
		require.True(t, ok)
		defer frame.Close()
		return frame.GetUCharAt(cy, cx*3)
	}

	clock.step(t)
	assert.EqualValues(t, 120, blueAtCenter())

	clock.step(t)
	assert.EqualValues(t, 0, blueAtCenter())

	// Viewers copy the stored frame and never read the camera.
	for i := 0; i < 5; i++ {
		blueAtCenter()
	}
	assert.Equal(t, 2, cam.Served())
	assert.EqualValues(t, cam.Served(), a.Stats().Frames)

	a.Stop()
	_, ok = a.LastFrame()
	assert.False(t, ok, "Stop drops the stored frame")
	assert.Equal(t, before, vision.Outstanding())
}

func TestApp_ClassifierFailureKeepsLooping(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	hand := newCameraFrame(true)
	defer hand.Close()

	cam := capture.NewMockCamera([]*gocv.Mat{&hand}, true)
	model := &countingModel{err: errors.New("inference failed")}
	a, clock := newLoadedApp(t, cam, model)

	require.NoError(t, a.Start())
	defer a.Stop()

	clock.step(t)
	clock.step(t)

	assert.True(t, a.Running())
	assert.EqualValues(t, 2, a.Stats().Failures)
	assert.EqualValues(t, 2, model.calls.Load())

	_, ok := a.LastPrediction()
	assert.False(t, ok)
}

func TestApp_Close(t *testing.T) {
	a, _ := newLoadedApp(t, capture.NewMockCamera(nil, true), &countingModel{})
	require.NoError(t, a.Start())

	require.NoError(t, a.Close())
	assert.False(t, a.Running())
	assert.False(t, a.Ready())
	assert.ErrorIs(t, a.Start(), ErrNotReady)
}

func TestIntervalClock(t *testing.T) {
	c := NewIntervalClock(100)
	select {
	case <-c.Next():
	case <-time.After(time.Second):
		t.Fatal("interval clock did not fire")
	}

	assert.Equal(t, time.Second/capture.DefaultFPS, NewIntervalClock(0).(intervalClock).interval)
}
