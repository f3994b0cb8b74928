// svr.go support-vector regression backend
package predictor

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tphakala/nirspec-go/internal/errors"
)

// svrParams is the optional linear parameter file for the SVR backend:
// one weight row and bias per property.
type svrParams struct {
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

// SVRBackend wraps K independent scalar regressors behind the common
// backend interface. Without a parameter file it degrades to predicting
// the mean of its input for every property, which keeps the capability
// available while a trained model is absent.
type SVRBackend struct {
	inputSize  int
	outputSize int
	params     *svrParams
}

// NewSVRBackend loads svr_params.json from the model directory when
// present and validates it against the model info.
func NewSVRBackend(dir string, info *ModelInfo) (*SVRBackend, error) {
	b := &SVRBackend{
		inputSize:  info.InputSize,
		outputSize: info.OutputSize,
	}

	path := filepath.Join(dir, SVRParamsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, errors.New(err).
			Component("predictor").
			Category(errors.CategoryModelLoad).
			Context("path", path).
			Build()
	}

	var params svrParams
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, errors.New(err).
			Component("predictor").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}
	if len(params.Weights) != info.OutputSize || len(params.Bias) != info.OutputSize {
		return nil, errors.Newf("svr params carry %d regressors for output size %d", len(params.Weights), info.OutputSize).
			Component("predictor").
			Category(errors.CategoryValidation).
			Build()
	}
	for k, row := range params.Weights {
		if len(row) != info.InputSize {
			return nil, errors.Newf("svr regressor %d has %d weights for input size %d", k, len(row), info.InputSize).
				Component("predictor").
				Category(errors.CategoryValidation).
				Build()
		}
	}

	b.params = &params
	return b, nil
}

// Name identifies the backend.
func (b *SVRBackend) Name() string { return "svr" }

// InputSize returns the declared feature vector length.
func (b *SVRBackend) InputSize() int { return b.inputSize }

// OutputSize returns the declared output vector length.
func (b *SVRBackend) OutputSize() int { return b.outputSize }

// Infer evaluates the K regressors.
func (b *SVRBackend) Infer(features []float64) ([]float64, error) {
	out := make([]float64, b.outputSize)

	if b.params == nil {
		m := 0.0
		for _, x := range features {
			m += x
		}
		if len(features) > 0 {
			m /= float64(len(features))
		}
		for k := range out {
			out[k] = m
		}
		return out, nil
	}

	for k := range out {
		sum := b.params.Bias[k]
		for i, w := range b.params.Weights[k] {
			sum += w * features[i]
		}
		out[k] = sum
	}
	return out, nil
}

// Close is a no-op; the SVR backend holds no native resources.
func (b *SVRBackend) Close() error { return nil }
