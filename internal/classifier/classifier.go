// Package classifier maps normalized hand tiles to alphabet predictions.
package classifier

import (
	"errors"
	"time"

	"gorgonia.org/tensor"
)

// NumClasses is the length of the score vector a model produces.
const NumClasses = 26

// UnknownLabel is reported when the best score index has no letter.
const UnknownLabel = "Unknown"

// Alphabet is the class index to letter mapping.
var Alphabet = [NumClasses]string{
	"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L", "M",
	"N", "O", "P", "Q", "R", "S", "T", "U", "V", "W", "X", "Y", "Z",
}

var (
	// ErrClassifierFailed is returned when the model errors or panics on a tile.
	ErrClassifierFailed = errors.New("classifier failed")
	// ErrMalformedScores is returned when the model produces no scores or a
	// score that is not a finite number.
	ErrMalformedScores = errors.New("classifier returned malformed scores")
)

// Classifier runs an opaque model over a (1,50,50,1) tile.
type Classifier interface {
	Classify(tile *tensor.Dense) ([]float32, error)
	Close() error
}

// Func adapts a plain function to the Classifier interface.
type Func func(tile *tensor.Dense) ([]float32, error)

// Classify calls f.
func (f Func) Classify(tile *tensor.Dense) ([]float32, error) {
	return f(tile)
}

// Close is a no-op.
func (f Func) Close() error { return nil }

// Prediction is the outcome of classifying one tile.
type Prediction struct {
	Label      string    `json:"label"`
	Confidence float32   `json:"confidence"`
	Scores     []float32 `json:"scores,omitempty"`
	At         time.Time `json:"at"`
}

// Label returns the letter for a class index, or UnknownLabel.
func Label(index int) string {
	if index < 0 || index >= len(Alphabet) {
		return UnknownLabel
	}
	return Alphabet[index]
}

// OneHot returns a score vector with 1 at index and 0 elsewhere.
func OneHot(index int) []float32 {
	scores := make([]float32, NumClasses)
	if index >= 0 && index < NumClasses {
		scores[index] = 1
	}
	return scores
}
