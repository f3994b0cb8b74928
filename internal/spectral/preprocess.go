package spectral

import (
	"math"

	"github.com/tphakala/nirspec-go/internal/errors"
)

// StageTag names a preprocessing stage.
type StageTag string

const (
	StageSmooth     StageTag = "smooth"
	StageBaseline   StageTag = "baseline"
	StageDerivative StageTag = "derivative"
	StageNormalize  StageTag = "normalize"
)

// Stage is one configured pipeline step. Parameters are validated when the
// stage is appended.
type Stage struct {
	Tag StageTag

	Window      int     // smooth: moving-average window
	EdgePercent float64 // baseline: percentage of each edge used as anchor
	Order       int     // derivative: 1 or 2
}

// Pipeline is an ordered sequence of stages applied in append order.
// The zero value is an empty pipeline, which is a no-op.
type Pipeline struct {
	stages []Stage
}

// Append validates the stage parameters and adds the stage to the end of
// the pipeline.
func (p *Pipeline) Append(stage Stage) error {
	switch stage.Tag {
	case StageSmooth:
		if stage.Window < 3 {
			return stageError("smooth window must be at least 3, got %d", stage.Window)
		}
	case StageBaseline:
		if stage.EdgePercent < 1 || stage.EdgePercent > 20 {
			return stageError("baseline edge percent must be in [1,20], got %g", stage.EdgePercent)
		}
	case StageDerivative:
		if stage.Order != 1 && stage.Order != 2 {
			return stageError("derivative order must be 1 or 2, got %d", stage.Order)
		}
	case StageNormalize:
		// no parameters
	default:
		return stageError("unknown stage %q", string(stage.Tag))
	}
	p.stages = append(p.stages, stage)
	return nil
}

// Clear removes all stages.
func (p *Pipeline) Clear() {
	p.stages = nil
}

// Stages returns a copy of the configured stage sequence.
func (p *Pipeline) Stages() []Stage {
	out := make([]Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

// Len returns the number of configured stages.
func (p *Pipeline) Len() int {
	return len(p.stages)
}

// Apply runs the working vector through every stage in insertion order.
// Output length equals input length. Vectors of length 2 or less cannot be
// meaningfully processed and are rejected.
func (p *Pipeline) Apply(v []float64) ([]float64, error) {
	if len(v) <= 2 {
		return nil, stageError("pipeline input length must exceed 2, got %d", len(v))
	}
	out := make([]float64, len(v))
	copy(out, v)
	for _, s := range p.stages {
		switch s.Tag {
		case StageSmooth:
			out = Smooth(out, s.Window)
		case StageBaseline:
			out = BaselineCorrect(out, s.EdgePercent)
		case StageDerivative:
			out = Derivative(out, s.Order)
		case StageNormalize:
			out = Normalize(out)
		}
	}
	return out, nil
}

// Smooth applies a centered moving average with edge clipping. The window
// is clamped to [3, len(v)] and forced odd by adding one when even.
func Smooth(v []float64, window int) []float64 {
	n := len(v)
	if window < 3 {
		window = 3
	}
	if window%2 == 0 {
		window++
	}
	if window > n {
		window = n
		if window%2 == 0 {
			window--
		}
	}
	half := window / 2

	out := make([]float64, n)
	for i := range v {
		lo := max(0, i-half)
		hi := min(n-1, i+half)
		sum := 0.0
		for j := lo; j <= hi; j++ {
			sum += v[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

// BaselineCorrect subtracts a linear baseline anchored on the means of the
// first and last edgePercent of the vector.
func BaselineCorrect(v []float64, edgePercent float64) []float64 {
	n := len(v)
	edge := int(float64(n) * edgePercent / 100.0)
	if edge < 1 {
		edge = 1
	}

	start := mean(v[:edge])
	end := mean(v[n-edge:])

	out := make([]float64, n)
	for i := range v {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		out[i] = v[i] - ((1-t)*start + t*end)
	}
	return out
}

// Derivative computes a forward finite difference. The leading element is
// zero so length is preserved; order 2 repeats the difference.
func Derivative(v []float64, order int) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	for o := 0; o < order; o++ {
		d := make([]float64, len(out))
		for i := 1; i < len(out); i++ {
			d[i] = out[i] - out[i-1]
		}
		out = d
	}
	return out
}

// Normalize rescales to [0,1] by min-max. A constant vector is returned
// unchanged.
func Normalize(v []float64) []float64 {
	lo, hi := v[0], v[0]
	for _, x := range v {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	out := make([]float64, len(v))
	if hi == lo {
		copy(out, v)
		return out
	}
	span := hi - lo
	for i, x := range v {
		out[i] = (x - lo) / span
	}
	return out
}

// SNV applies the standard normal variate transform: mean-center, then
// scale by the standard deviation. A zero deviation only centers.
func SNV(v []float64) []float64 {
	m := mean(v)
	variance := 0.0
	for _, x := range v {
		d := x - m
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(v)))

	out := make([]float64, len(v))
	for i, x := range v {
		if std > 0 {
			out[i] = (x - m) / std
		} else {
			out[i] = x - m
		}
	}
	return out
}

func mean(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func stageError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("spectral").
		Category(errors.CategoryValidation).
		Build()
}
