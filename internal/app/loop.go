package app

import (
	"errors"
	"image"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/signlink/internal/capture"
	"github.com/ayusman/signlink/internal/classifier"
)

// FrameClock hands out frame ticks. Next is called once per frame, after
// the previous frame has been fully processed.
type FrameClock interface {
	Next() <-chan time.Time
}

type intervalClock struct {
	interval time.Duration
}

// NewIntervalClock returns a clock that fires 1/fps after each request.
func NewIntervalClock(fps int) FrameClock {
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	return intervalClock{interval: time.Second / time.Duration(fps)}
}

func (c intervalClock) Next() <-chan time.Time {
	return time.After(c.interval)
}

// run is the recognition loop. Each iteration waits for a tick, runs one
// synchronous pipeline pass and then asks the clock for the next tick.
func (a *App) run(p *Pipeline, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case <-a.clock.Next():
		}

		// A tick and a stop can arrive together; stop wins.
		select {
		case <-stop:
			return
		default:
		}

		if !a.IsEnabled() {
			continue
		}

		a.step(p)
	}
}

// step processes one frame and dispatches its outcome.
func (a *App) step(p *Pipeline) {
	a.frames.Add(1)

	res, err := p.Process(frameTap{a})
	switch {
	case errors.Is(err, capture.ErrSourceNotReady):
		a.notReady.Add(1)
		a.log.Debug("video source not ready", slog.Any("error", err))
		return
	case err != nil:
		a.failures.Add(1)
		a.setBox(image.Rectangle{})
		a.log.Warn("frame failed", slog.Any("error", err))
		return
	}

	if !res.Found() {
		a.noRegion.Add(1)
		a.setBox(image.Rectangle{})
		return
	}

	a.predictions.Add(1)
	a.publish(*res.Prediction, res.Box)
}

// frameTap reads from the app camera and keeps a copy of each frame for
// LastFrame, so viewers never pull frames from the camera themselves.
type frameTap struct {
	a *App
}

func (t frameTap) Width() int  { return t.a.camera.Width() }
func (t frameTap) Height() int { return t.a.camera.Height() }

func (t frameTap) ReadFrame() (*gocv.Mat, error) {
	frame, err := t.a.camera.ReadFrame()
	if err != nil {
		return nil, err
	}
	t.a.setFrame(frame)
	return frame, nil
}

func (a *App) setBox(box image.Rectangle) {
	a.mu.Lock()
	a.box = box
	a.mu.Unlock()
}

func (a *App) publish(pred classifier.Prediction, box image.Rectangle) {
	a.mu.Lock()
	a.last = &pred
	a.box = box
	sinks := make([]func(classifier.Prediction), len(a.sinks))
	copy(sinks, a.sinks)
	a.mu.Unlock()

	a.log.Debug("prediction",
		slog.String("label", pred.Label),
		slog.Float64("confidence", float64(pred.Confidence)),
	)

	for _, sink := range sinks {
		sink(pred)
	}
}
