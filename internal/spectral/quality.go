package spectral

import "math"

const qualityEpsilon = 1e-12

// QualityLimits are the acceptance thresholds for a spectrum frame.
type QualityLimits struct {
	SNRMin       float64
	BaselineMax  float64
	IntegrityMin float64
}

// QualityMetrics scores one spectrum frame. When fewer than two finite
// samples exist the metrics are not available and the frame is not treated
// as a breach.
type QualityMetrics struct {
	Available bool
	SNR       float64
	Baseline  float64
	Integrity float64
	Score     float64
	OK        bool
}

// EvaluateQuality computes SNR, baseline drift, integrity, and the
// composite score for a spectrum vector against its limits.
func EvaluateQuality(values []float64, limits QualityLimits) QualityMetrics {
	n := len(values)

	finite := make([]float64, 0, n)
	for _, x := range values {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			finite = append(finite, x)
		}
	}
	valid := len(finite)

	if valid < 2 {
		// Insufficient data: metrics undefined, never a stream-stopping verdict.
		return QualityMetrics{Available: false, OK: true}
	}

	m := mean(finite)
	variance := 0.0
	lo, hi := finite[0], finite[0]
	for _, x := range finite {
		d := x - m
		variance += d * d
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	std := math.Sqrt(variance / float64(valid))

	snr := 0.0
	if std > 0 {
		snr = (hi - lo) / std
	}

	edge := max(1, int(float64(valid)*0.05))
	drift := math.Abs(mean(finite[valid-edge:])-mean(finite[:edge])) / math.Max(std, qualityEpsilon)

	integrity := float64(valid) / float64(n)

	score := 0.5*clamp(snr/50.0*100.0, 0, 100) +
		0.2*clamp(100.0/(1.0+drift), 0, 100) +
		0.3*clamp(integrity*100.0, 0, 100)

	return QualityMetrics{
		Available: true,
		SNR:       snr,
		Baseline:  drift,
		Integrity: integrity,
		Score:     score,
		OK:        snr >= limits.SNRMin && drift <= limits.BaselineMax && integrity >= limits.IntegrityMin,
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
