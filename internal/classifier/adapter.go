package classifier

import (
	"fmt"
	"time"

	"github.com/chewxy/math32"
	"gorgonia.org/tensor"

	"github.com/ayusman/signlink/internal/vision"
)

// Adapter turns raw model scores into a Prediction.
type Adapter struct {
	model Classifier
	now   func() time.Time
}

// NewAdapter wraps model.
func NewAdapter(model Classifier) *Adapter {
	return &Adapter{
		model: model,
		now:   time.Now,
	}
}

// Predict classifies tile and closes it, whatever the outcome.
// The label is the letter at the highest score and the confidence is that
// score times 100, unclamped. A vector that is empty or holds a NaN or
// infinite score is rejected.
func (a *Adapter) Predict(tile *vision.Tile) (Prediction, error) {
	defer tile.Close()

	input := tile.Tensor()
	if input == nil {
		return Prediction{}, fmt.Errorf("%w: tile already released", ErrClassifierFailed)
	}

	scores, err := a.classify(input)
	if err != nil {
		return Prediction{}, err
	}

	for i, s := range scores {
		if math32.IsNaN(s) || math32.IsInf(s, 0) {
			return Prediction{}, fmt.Errorf("%w: score %d is %v", ErrMalformedScores, i, s)
		}
	}

	best, idx := Argmax(scores)
	if idx < 0 {
		return Prediction{}, ErrMalformedScores
	}

	return Prediction{
		Label:      Label(idx),
		Confidence: best * 100,
		Scores:     scores,
		At:         a.now(),
	}, nil
}

func (a *Adapter) classify(input *tensor.Dense) (scores []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			scores = nil
			err = fmt.Errorf("%w: panic: %v", ErrClassifierFailed, r)
		}
	}()

	scores, err = a.model.Classify(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClassifierFailed, err)
	}
	return scores, nil
}

// Close releases the underlying model.
func (a *Adapter) Close() error {
	return a.model.Close()
}

// Argmax returns the largest score and its first index, or -1 for an empty slice.
func Argmax(scores []float32) (float32, int) {
	if len(scores) == 0 {
		return 0, -1
	}
	best, idx := scores[0], 0
	for i, s := range scores[1:] {
		if s > best {
			best, idx = s, i+1
		}
	}
	return best, idx
}
