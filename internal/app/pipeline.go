package app

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/signlink/internal/capture"
	"github.com/ayusman/signlink/internal/classifier"
	"github.com/ayusman/signlink/internal/vision"
)

// Result is the outcome of one pipeline pass.
type Result struct {
	// Prediction is nil when no hand region was found.
	Prediction *classifier.Prediction
	// Box is the hand bounding box in ROI coordinates. Empty without a region.
	Box image.Rectangle
	// Tile is a rendering of the classifier input, set only when tiles are kept.
	Tile *image.Gray
}

// Found reports whether the frame contained a hand region.
func (r Result) Found() bool {
	return r.Prediction != nil
}

// Pipeline runs the four per-frame stages:
// sample the ROI, segment skin, extract the region, classify the tile.
//
// Every buffer a pass allocates belongs to a frame arena that is released
// before the pass returns.
type Pipeline struct {
	sampler   *capture.Sampler
	segmenter *vision.Segmenter
	extractor *vision.Extractor
	adapter   *classifier.Adapter
	keepTiles bool
}

// NewPipeline builds a pipeline over the given classifier adapter.
func NewPipeline(adapter *classifier.Adapter, roi image.Rectangle, skin vision.SkinRange) *Pipeline {
	return &Pipeline{
		sampler:   capture.NewSampler(roi),
		segmenter: vision.NewSegmenter(skin),
		extractor: vision.NewExtractor(),
		adapter:   adapter,
	}
}

// KeepTiles makes every Result carry a rendering of its tile.
func (p *Pipeline) KeepTiles(keep bool) {
	p.keepTiles = keep
}

// ROI returns the sampled region of the camera frame.
func (p *Pipeline) ROI() image.Rectangle {
	return p.sampler.ROI()
}

// Process reads the current frame of src and runs it through the pipeline.
// It returns capture.ErrSourceNotReady while src has no frame to offer.
func (p *Pipeline) Process(src capture.Source) (Result, error) {
	arena := vision.NewArena()
	defer arena.Release()

	roi, err := p.sampler.Sample(src, arena)
	if err != nil {
		return Result{}, err
	}
	return p.run(roi, arena)
}

// ProcessFrame crops the ROI out of a full BGR camera frame and runs it
// through the pipeline. The frame is not modified or closed.
func (p *Pipeline) ProcessFrame(frame gocv.Mat) (Result, error) {
	arena := vision.NewArena()
	defer arena.Release()

	roi, err := p.sampler.Crop(frame, arena)
	if err != nil {
		return Result{}, err
	}
	return p.run(roi, arena)
}

// ProcessROI runs an RGB image that already is the region of interest.
func (p *Pipeline) ProcessROI(rgb gocv.Mat) (Result, error) {
	arena := vision.NewArena()
	defer arena.Release()

	return p.run(rgb, arena)
}

func (p *Pipeline) run(rgb gocv.Mat, arena *vision.Arena) (Result, error) {
	mask, err := p.segmenter.Segment(rgb, arena)
	if err != nil {
		return Result{}, err
	}

	region, err := p.extractor.Extract(rgb, mask, arena)
	if err != nil {
		return Result{}, err
	}
	if region == nil {
		return Result{}, nil
	}

	res := Result{Box: region.Box}
	if p.keepTiles {
		res.Tile = region.Tile.Image()
	}

	// Predict consumes the tile.
	pred, err := p.adapter.Predict(region.Tile)
	if err != nil {
		return res, err
	}
	res.Prediction = &pred

	return res, nil
}
