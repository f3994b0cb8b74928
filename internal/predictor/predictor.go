package predictor

import (
	"log/slog"

	"github.com/tphakala/nirspec-go/internal/errors"
	"github.com/tphakala/nirspec-go/internal/spectral"
)

// Sentinel errors for the two recoverable prediction failures.
var (
	ErrNotReady = errors.NewStd("predictor not ready")
	ErrShape    = errors.NewStd("feature dimension mismatch")
)

// Backend performs the raw forward pass. Implementations own their model
// resources; the façade owns the pre- and post-inference pipeline.
type Backend interface {
	Name() string
	InputSize() int
	OutputSize() int
	Infer(features []float64) ([]float64, error)
	Close() error
}

// SpectrumPredictor is the façade over an interchangeable backend. It
// applies SNV, VIP feature selection, the optional PCA projection, the
// forward pass, and inverse target scaling, and pairs outputs with their
// property labels.
type SpectrumPredictor struct {
	info    *ModelInfo
	params  *PreprocessingParams
	backend Backend
	log     *slog.Logger

	warnedNotReady bool
	warnedPCASkip  bool
}

// New creates a predictor façade. backend may be nil; Predict then fails
// with ErrNotReady until SetBackend is called.
func New(info *ModelInfo, params *PreprocessingParams, backend Backend, log *slog.Logger) *SpectrumPredictor {
	if params == nil {
		params = &PreprocessingParams{}
	}
	return &SpectrumPredictor{
		info:    info,
		params:  params,
		backend: backend,
		log:     log,
	}
}

// SetBackend swaps the inference backend.
func (p *SpectrumPredictor) SetBackend(b Backend) {
	p.backend = b
	p.warnedNotReady = false
}

// Labels returns the property labels in output order.
func (p *SpectrumPredictor) Labels() []string {
	return p.info.PropertyLabels
}

// Ready reports whether a backend is attached.
func (p *SpectrumPredictor) Ready() bool {
	return p.backend != nil
}

// Predict maps a spectrum to labeled property values. On a dimension
// mismatch it returns an empty result with ErrShape; with no backend it
// returns ErrNotReady, warning once per state transition.
func (p *SpectrumPredictor) Predict(spectrum []float64) (map[string]float64, error) {
	if p.backend == nil {
		if !p.warnedNotReady {
			p.warnedNotReady = true
			if p.log != nil {
				p.log.Warn("prediction requested before a model was loaded")
			}
		}
		return nil, errors.New(ErrNotReady).
			Component("predictor").
			Category(errors.CategoryNotReady).
			Build()
	}

	features, err := p.prepare(spectrum)
	if err != nil {
		return nil, err
	}

	if len(features) != p.backend.InputSize() {
		return nil, errors.New(ErrShape).
			Component("predictor").
			Category(errors.CategoryShape).
			Context("features", len(features)).
			Context("input_size", p.backend.InputSize()).
			Build()
	}

	outputs, err := p.backend.Infer(features)
	if err != nil {
		return nil, err
	}
	if len(outputs) != p.info.OutputSize {
		return nil, errors.New(ErrShape).
			Component("predictor").
			Category(errors.CategoryShape).
			Context("outputs", len(outputs)).
			Context("output_size", p.info.OutputSize).
			Build()
	}

	// Inverse target scaling back to original units
	if s := p.params.PropertyScaler; s != nil {
		for i := range outputs {
			outputs[i] = outputs[i]*s.Scale[i] + s.Mean[i]
		}
	}

	result := make(map[string]float64, len(outputs))
	for i, v := range outputs {
		result[p.info.PropertyLabels[i]] = v
	}
	return result, nil
}

// prepare runs the shared pre-inference pipeline: SNV, VIP gather, and the
// optional PCA projection.
func (p *SpectrumPredictor) prepare(spectrum []float64) ([]float64, error) {
	if len(spectrum) == 0 {
		return nil, errors.New(ErrShape).
			Component("predictor").
			Category(errors.CategoryShape).
			Context("reason", "empty spectrum").
			Build()
	}

	normalized := spectral.SNV(spectrum)

	features := normalized
	if len(p.info.SelectedFeatureIndices) > 0 {
		features = make([]float64, 0, len(p.info.SelectedFeatureIndices))
		for _, idx := range p.info.SelectedFeatureIndices {
			if idx < 0 || idx >= len(normalized) {
				return nil, errors.New(ErrShape).
					Component("predictor").
					Category(errors.CategoryShape).
					Context("feature_index", idx).
					Context("spectrum_len", len(normalized)).
					Build()
			}
			features = append(features, normalized[idx])
		}
	}

	if pca := p.params.PCA; pca != nil {
		features = p.project(features, pca)
	}

	return features, nil
}

// project applies the PCA projection when the feature length matches the
// loaded mean vector. A longer feature vector is truncated; a shorter one
// aborts the projection, leaving the features untransformed.
func (p *SpectrumPredictor) project(features []float64, pca *PCAParams) []float64 {
	v := len(pca.Mean)
	switch {
	case len(features) > v:
		features = features[:v]
	case len(features) < v:
		if !p.warnedPCASkip {
			p.warnedPCASkip = true
			if p.log != nil {
				p.log.Warn("pca projection skipped: feature length below component length",
					"features", len(features), "pca_len", v)
			}
		}
		return features
	}

	centered := make([]float64, v)
	for i := range centered {
		centered[i] = features[i] - pca.Mean[i]
	}

	out := make([]float64, pca.NComponents)
	for k, component := range pca.Components {
		sum := 0.0
		for i, c := range component {
			sum += centered[i] * c
		}
		out[k] = sum
	}
	return out
}

// Close releases the backend resources.
func (p *SpectrumPredictor) Close() error {
	if p.backend == nil {
		return nil
	}
	return p.backend.Close()
}
