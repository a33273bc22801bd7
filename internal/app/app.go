// Package app runs the sign recognition loop: one pipeline pass per frame
// tick, with predictions fanned out to registered sinks.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"

	"github.com/ayusman/signlink/internal/calibration"
	"github.com/ayusman/signlink/internal/capture"
	"github.com/ayusman/signlink/internal/classifier"
	"github.com/ayusman/signlink/internal/lgr"
	"github.com/ayusman/signlink/internal/vision"
)

// ErrNotReady is returned by Start until Load has succeeded.
var ErrNotReady = errors.New("model or calibration not loaded")

// ModelLoader opens the classifier. It is called once by Load.
type ModelLoader func(ctx context.Context) (classifier.Classifier, error)

// Config holds configuration options for the application.
type Config struct {
	// Camera is the video source. Defaults to the device CameraID.
	Camera   capture.Camera
	CameraID int
	// FPS paces the default frame clock.
	FPS int
	// Clock overrides the frame clock.
	Clock FrameClock

	Model       ModelLoader
	Calibration string

	// ROI and Skin default to capture.ROI and vision.DefaultSkinRange.
	ROI  image.Rectangle
	Skin *vision.SkinRange
}

// Stats counts loop outcomes since the app was created.
type Stats struct {
	Frames      int64 `json:"frames"`
	Predictions int64 `json:"predictions"`
	NoRegion    int64 `json:"noRegion"`
	NotReady    int64 `json:"notReady"`
	Failures    int64 `json:"failures"`
}

// Status is a snapshot of the app state.
type Status struct {
	Ready   bool                   `json:"ready"`
	Running bool                   `json:"running"`
	Enabled bool                   `json:"enabled"`
	Error   string                 `json:"error,omitempty"`
	Stats   Stats                  `json:"stats"`
	Last    *classifier.Prediction `json:"last,omitempty"`
}

// App owns the camera, the loaded model and the recognition loop.
type App struct {
	config Config
	camera capture.Camera
	clock  FrameClock
	log    *slog.Logger

	// runMu serializes Load, Start and Stop.
	runMu    sync.Mutex
	pipeline *Pipeline
	model    classifier.Classifier
	calib    *calibration.Data
	loadErr  error
	stopCh   chan struct{}
	doneCh   chan struct{}

	enabled atomic.Bool

	mu    sync.RWMutex
	sinks []func(classifier.Prediction)
	last  *classifier.Prediction
	box   image.Rectangle
	frame *gocv.Mat

	frames, predictions, noRegion, notReady, failures atomic.Int64
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	cam := config.Camera
	if cam == nil {
		cam = capture.NewCamera(config.CameraID)
	}
	if config.FPS <= 0 {
		config.FPS = capture.DefaultFPS
	}
	clock := config.Clock
	if clock == nil {
		clock = NewIntervalClock(config.FPS)
	}
	if config.ROI.Empty() {
		config.ROI = capture.ROI
	}

	a := &App{
		config: config,
		camera: cam,
		clock:  clock,
		log:    lgr.Logger.With(slog.String("component", "app")),
	}
	a.enabled.Store(true)
	return a
}

// Load opens the model and reads the calibration data. Until it succeeds the
// app reports not ready and Start refuses to run.
func (a *App) Load(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if a.pipeline != nil {
		return nil
	}

	if err := a.load(ctx); err != nil {
		a.loadErr = err
		a.log.Error("startup failed", slog.Any("error", err))
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}

	a.loadErr = nil
	a.log.Info("model and calibration loaded", slog.Int("calibrationEntries", a.calib.Len()))
	return nil
}

func (a *App) load(ctx context.Context) error {
	if a.config.Model == nil {
		return errors.New("no model configured")
	}

	calib, err := calibration.Load(ctx, a.config.Calibration)
	if err != nil {
		return err
	}

	model, err := a.config.Model(ctx)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}

	skin := vision.DefaultSkinRange()
	if a.config.Skin != nil {
		skin = *a.config.Skin
	}

	a.calib = calib
	a.model = model
	a.pipeline = NewPipeline(classifier.NewAdapter(model), a.config.ROI, skin)
	return nil
}

// Ready reports whether Load has succeeded.
func (a *App) Ready() bool {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.pipeline != nil
}

// Start opens the camera and begins the recognition loop.
func (a *App) Start() error {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if a.pipeline == nil {
		return ErrNotReady
	}

	// Don't start if already running
	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	a.camera.SetFPS(a.config.FPS)

	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.run(a.pipeline, a.stopCh, a.doneCh)

	a.log.Info("recognition loop started", slog.Int("fps", a.config.FPS))
	return nil
}

// Stop cancels the pending frame request, waits for the loop to exit and
// releases the camera. It must not be called from a prediction sink.
func (a *App) Stop() {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if a.stopCh == nil {
		return
	}

	close(a.stopCh)
	<-a.doneCh
	a.stopCh, a.doneCh = nil, nil
	a.setFrame(nil)

	if err := a.camera.Close(); err != nil {
		a.log.Warn("error closing camera", slog.Any("error", err))
	}

	a.log.Info("recognition loop stopped")
}

// Close stops the loop and releases the model.
func (a *App) Close() error {
	a.Stop()

	a.runMu.Lock()
	defer a.runMu.Unlock()

	if a.model == nil {
		return nil
	}
	err := a.model.Close()
	a.model = nil
	a.pipeline = nil
	return err
}

// Running reports whether the loop is active.
func (a *App) Running() bool {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.stopCh != nil
}

// SetEnabled pauses or resumes classification without releasing the camera.
func (a *App) SetEnabled(enabled bool) {
	a.enabled.Store(enabled)
}

// IsEnabled returns whether classification is currently enabled.
func (a *App) IsEnabled() bool {
	return a.enabled.Load()
}

// OnPrediction registers a sink. Sinks run on the loop goroutine in
// registration order and must return quickly.
func (a *App) OnPrediction(sink func(classifier.Prediction)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sinks = append(a.sinks, sink)
}

// LastPrediction returns the most recent prediction, if any.
func (a *App) LastPrediction() (classifier.Prediction, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.last == nil {
		return classifier.Prediction{}, false
	}
	return *a.last, true
}

// LastBox returns the hand box of the latest frame in ROI coordinates.
// It is empty when the latest frame had no hand region.
func (a *App) LastBox() image.Rectangle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.box
}

// LastFrame returns a copy of the frame the loop sampled last. The caller
// must close it. It reports false until the loop has read a frame and again
// after Stop.
func (a *App) LastFrame() (*gocv.Mat, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.frame == nil {
		return nil, false
	}
	frame := a.frame.Clone()
	return &frame, true
}

// setFrame keeps a copy of frame for LastFrame, or drops it when frame is nil.
func (a *App) setFrame(frame *gocv.Mat) {
	var next *gocv.Mat
	if frame != nil {
		c := frame.Clone()
		next = &c
	}

	a.mu.Lock()
	prev := a.frame
	a.frame = next
	a.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
}

// ROI returns the sampled region in frame coordinates.
func (a *App) ROI() image.Rectangle {
	return a.config.ROI
}

// Stats returns the loop counters.
func (a *App) Stats() Stats {
	return Stats{
		Frames:      a.frames.Load(),
		Predictions: a.predictions.Load(),
		NoRegion:    a.noRegion.Load(),
		NotReady:    a.notReady.Load(),
		Failures:    a.failures.Load(),
	}
}

// Status returns a snapshot for the status endpoint.
func (a *App) Status() Status {
	a.runMu.Lock()
	st := Status{
		Ready:   a.pipeline != nil,
		Running: a.stopCh != nil,
	}
	if a.loadErr != nil {
		st.Error = a.loadErr.Error()
	}
	a.runMu.Unlock()

	st.Enabled = a.IsEnabled()
	st.Stats = a.Stats()
	if p, ok := a.LastPrediction(); ok {
		st.Last = &p
	}
	return st
}
