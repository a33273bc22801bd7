package server

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"net/http"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/signlink/internal/lgr"
)

var (
	roiColor  = color.RGBA{G: 255, A: 255}
	handColor = color.RGBA{B: 255, R: 255, A: 255}
)

// FrameSource hands out copies of the frame the recognition loop sampled
// last. LastFrame reports false while no frame is available; the caller
// closes the returned Mat.
type FrameSource interface {
	LastFrame() (*gocv.Mat, bool)
}

// StreamHandler serves MJPEG frames from the recognition loop with the
// sampled region and the last hand box outlined.
type StreamHandler struct {
	frames   FrameSource
	roi      image.Rectangle
	box      func() image.Rectangle
	interval time.Duration
}

// NewStreamHandler creates a new StreamHandler. box may be nil.
func NewStreamHandler(frames FrameSource, roi image.Rectangle, box func() image.Rectangle) *StreamHandler {
	return &StreamHandler{
		frames:   frames,
		roi:      roi,
		box:      box,
		interval: 66 * time.Millisecond, // ~15 FPS
	}
}

// ServeHTTP streams MJPEG frames until the client goes away. It answers 503
// while the loop has no frame to show.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	frame, ok := h.frames.LastFrame()
	if !ok {
		http.Error(w, "Camera is not running", http.StatusServiceUnavailable)
		return
	}
	frame.Close()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	sent := 0
	defer func() {
		lgr.Logger.Debug("stream closed", slog.String("remote", r.RemoteAddr), slog.Int("frames", sent))
	}()

	for {
		wait := h.interval
		if err := h.writeFrame(w); err != nil {
			if errors.Is(err, errClientGone) {
				return
			}
			wait = 100 * time.Millisecond
		} else {
			sent++
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

var (
	errClientGone = errors.New("client gone")
	errNoFrame    = errors.New("no frame available")
)

// writeFrame copies, annotates and writes one multipart JPEG part.
func (h *StreamHandler) writeFrame(w http.ResponseWriter) error {
	frame, ok := h.frames.LastFrame()
	if !ok {
		return errNoFrame
	}
	defer frame.Close()

	h.annotate(frame)

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return err
	}
	defer buf.Close()

	header := fmt.Sprintf("--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", buf.Len())
	if _, err := w.Write([]byte(header)); err != nil {
		return errClientGone
	}
	if _, err := w.Write(buf.GetBytes()); err != nil {
		return errClientGone
	}
	if _, err := w.Write([]byte("\r\n")); err != nil {
		return errClientGone
	}

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// annotate outlines the ROI and, when known, the hand box inside it.
func (h *StreamHandler) annotate(frame *gocv.Mat) {
	gocv.Rectangle(frame, h.roi, roiColor, 2)

	if h.box == nil {
		return
	}
	if box := h.box(); !box.Empty() {
		gocv.Rectangle(frame, box.Add(h.roi.Min), handColor, 1)
	}
}
