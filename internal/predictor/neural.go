// neural.go TensorFlow Lite regression backend
package predictor

import (
	"path/filepath"
	"runtime"

	"github.com/tphakala/go-tflite"

	"github.com/tphakala/nirspec-go/internal/errors"
)

// NeuralBackend wraps a serialized TFLite regression graph. Inference is a
// single forward pass on CPU.
type NeuralBackend struct {
	interpreter *tflite.Interpreter
	model       *tflite.Model
	inputSize   int
	outputSize  int
}

// NewNeuralBackend loads the graph file from the model directory and
// allocates an interpreter sized per the model info.
func NewNeuralBackend(dir string, info *ModelInfo) (*NeuralBackend, error) {
	graphPath := filepath.Join(dir, GraphFile)

	model := tflite.NewModelFromFile(graphPath)
	if model == nil {
		return nil, errors.Newf("cannot load model from %s", graphPath).
			Component("predictor").
			Category(errors.CategoryModelLoad).
			Context("path", graphPath).
			Build()
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(runtime.NumCPU())
	options.SetErrorReporter(func(msg string, userData interface{}) {
		// Interpreter diagnostic messages are discarded; failed calls
		// surface only as the generic errors returned by Infer.
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, errors.Newf("cannot create interpreter").
			Component("predictor").
			Category(errors.CategoryModelInit).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, errors.Newf("tensor allocation failed").
			Component("predictor").
			Category(errors.CategoryModelInit).
			Build()
	}

	return &NeuralBackend{
		interpreter: interpreter,
		model:       model,
		inputSize:   info.InputSize,
		outputSize:  info.OutputSize,
	}, nil
}

// Name identifies the backend.
func (b *NeuralBackend) Name() string { return "neural" }

// InputSize returns the declared feature vector length.
func (b *NeuralBackend) InputSize() int { return b.inputSize }

// OutputSize returns the declared output vector length.
func (b *NeuralBackend) OutputSize() int { return b.outputSize }

// Infer runs one forward pass.
func (b *NeuralBackend) Infer(features []float64) ([]float64, error) {
	input := b.interpreter.GetInputTensor(0)
	if input == nil {
		return nil, errors.Newf("cannot get input tensor").
			Component("predictor").
			Category(errors.CategoryModelInit).
			Build()
	}

	in := input.Float32s()
	if len(in) != len(features) {
		return nil, errors.New(ErrShape).
			Component("predictor").
			Category(errors.CategoryShape).
			Context("tensor_len", len(in)).
			Context("features", len(features)).
			Build()
	}
	for i, v := range features {
		in[i] = float32(v)
	}

	if status := b.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Newf("tensor invoke failed").
			Component("predictor").
			Category(errors.CategoryShape).
			Build()
	}

	output := b.interpreter.GetOutputTensor(0)
	raw := output.Float32s()

	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out, nil
}

// Close releases the interpreter and model.
func (b *NeuralBackend) Close() error {
	if b.interpreter != nil {
		b.interpreter.Delete()
		b.interpreter = nil
	}
	if b.model != nil {
		b.model.Delete()
		b.model = nil
	}
	return nil
}
