// Package predictor maps a spectrum vector to labeled chemical property
// predictions: SNV, feature selection, optional PCA projection, backend
// inference, and inverse target scaling.
package predictor

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tphakala/nirspec-go/internal/errors"
)

// Asset bundle file names inside the model directory.
const (
	ModelInfoFile     = "model_info.json"
	PreprocessingFile = "preprocessing_params.json"
	GraphFile         = "model.tflite"
	SVRParamsFile     = "svr_params.json"
)

// ModelInfo describes the regression model's interface: input/output sizes,
// property labels, and the VIP-selected feature indices.
type ModelInfo struct {
	InputSize              int      `json:"input_size"`
	OutputSize             int      `json:"output_size"`
	PropertyLabels         []string `json:"property_labels"`
	WavelengthLabels       []string `json:"wavelength_labels"`
	SelectedFeatureIndices []int    `json:"selected_feature_indices"`
}

// PropertyScaler holds the per-property standardization parameters used to
// map scaled model outputs back to original units.
type PropertyScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// PCAParams is a fixed linear projection (x − mean) · componentsᵀ.
type PCAParams struct {
	NComponents int         `json:"n_components"`
	Mean        []float64   `json:"mean"`
	Components  [][]float64 `json:"components"`
}

// PreprocessingParams is the JSON parameter bundle shipped with the model.
type PreprocessingParams struct {
	PropertyScaler *PropertyScaler `json:"property_scaler"`
	PCA            *PCAParams      `json:"pca"`
}

// LoadModelInfo reads and validates model_info.json from dir.
func LoadModelInfo(dir string) (*ModelInfo, error) {
	path := filepath.Join(dir, ModelInfoFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("predictor").
			Category(errors.CategoryModelLoad).
			Context("path", path).
			Build()
	}

	var info ModelInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, errors.New(err).
			Component("predictor").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}

	if info.InputSize <= 0 || info.OutputSize <= 0 {
		return nil, errors.Newf("model info has non-positive sizes: input %d, output %d", info.InputSize, info.OutputSize).
			Component("predictor").
			Category(errors.CategoryValidation).
			Build()
	}
	if len(info.PropertyLabels) != info.OutputSize {
		return nil, errors.Newf("model info has %d property labels for output size %d", len(info.PropertyLabels), info.OutputSize).
			Component("predictor").
			Category(errors.CategoryValidation).
			Build()
	}

	return &info, nil
}

// LoadPreprocessingParams reads and validates preprocessing_params.json
// from dir against the model interface. A missing file yields empty params,
// not an error: scaling and PCA are both optional.
func LoadPreprocessingParams(dir string, info *ModelInfo) (*PreprocessingParams, error) {
	path := filepath.Join(dir, PreprocessingFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &PreprocessingParams{}, nil
		}
		return nil, errors.New(err).
			Component("predictor").
			Category(errors.CategoryModelLoad).
			Context("path", path).
			Build()
	}

	var params PreprocessingParams
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, errors.New(err).
			Component("predictor").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}

	if s := params.PropertyScaler; s != nil {
		if len(s.Mean) != info.OutputSize || len(s.Scale) != info.OutputSize {
			return nil, errors.Newf("property scaler lengths (%d mean, %d scale) do not match output size %d",
				len(s.Mean), len(s.Scale), info.OutputSize).
				Component("predictor").
				Category(errors.CategoryValidation).
				Build()
		}
	}
	if p := params.PCA; p != nil {
		if p.NComponents <= 0 || len(p.Components) != p.NComponents {
			return nil, errors.Newf("pca declares %d components but carries %d rows", p.NComponents, len(p.Components)).
				Component("predictor").
				Category(errors.CategoryValidation).
				Build()
		}
		for i, row := range p.Components {
			if len(row) != len(p.Mean) {
				return nil, errors.Newf("pca component %d has length %d, mean has length %d", i, len(row), len(p.Mean)).
					Component("predictor").
					Category(errors.CategoryValidation).
					Build()
			}
		}
	}

	return &params, nil
}
