package classifier

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"

	"github.com/ayusman/signlink/internal/vision"
)

// ONNXConfig describes a model file and its tensor names.
type ONNXConfig struct {
	ModelPath  string
	InputName  string
	OutputName string
	// SharedLibraryPath overrides the onnxruntime library search when set.
	SharedLibraryPath string
}

// ONNXClassifier runs an ONNX model with preallocated (1,50,50,1) input and
// (1,26) output tensors. Classify calls are serialized.
type ONNXClassifier struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewONNXClassifier loads the model described by cfg.
func NewONNXClassifier(cfg ONNXConfig) (*ONNXClassifier, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "model not found at %s", cfg.ModelPath)
	}

	if !ort.IsInitialized() {
		if cfg.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "initialize onnxruntime")
		}
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, vision.TileSize, vision.TileSize, vision.TileChannels))
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, NumClasses))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "create output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "create session options")
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "create session")
	}

	return &ONNXClassifier{
		session: session,
		input:   input,
		output:  output,
	}, nil
}

// Classify copies tile into the input tensor, runs the model and returns a
// copy of the output scores.
func (c *ONNXClassifier) Classify(tile *tensor.Dense) ([]float32, error) {
	if tile == nil || !tile.Shape().Eq(vision.TileShape) {
		return nil, errors.Errorf("tile shape must be %v", vision.TileShape)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, errors.New("classifier is closed")
	}

	copy(c.input.GetData(), tile.Float32s())
	if err := c.session.Run(); err != nil {
		return nil, errors.Wrap(err, "run session")
	}

	out := c.output.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

// Close destroys the session and its tensors.
func (c *ONNXClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}

	err := c.session.Destroy()
	c.input.Destroy()
	c.output.Destroy()
	c.session = nil
	return errors.Wrap(err, "destroy session")
}
