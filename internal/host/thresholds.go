package host

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/nirspec-go/internal/conf"
	"github.com/tphakala/nirspec-go/internal/datastore"
)

// AlarmKind is a threshold alarm edge event type.
type AlarmKind string

const (
	AlarmRaised  AlarmKind = "raised"
	AlarmCleared AlarmKind = "cleared"
)

// AlarmEvent is one alarm lifecycle edge.
type AlarmEvent struct {
	ID       string
	Kind     AlarmKind
	Property string
	Value    float64
	Min      float64
	Max      float64
	Ts       time.Time
}

// AlarmState are the per-property counters. abnormal_count never exceeds
// detect_count.
type AlarmState struct {
	DetectCount       int
	AbnormalCount     int
	CurrentlyAbnormal bool
}

// ThresholdEngine tracks per-property acceptance bands and alarm edges.
// Property keys are matched case-insensitively; a property with no
// configured band gets the open band and never alarms.
type ThresholdEngine struct {
	bands  map[string]conf.ThresholdBand
	states map[string]*AlarmState
}

// NewThresholdEngine creates an engine over normalized-key bands.
func NewThresholdEngine(bands map[string]conf.ThresholdBand) *ThresholdEngine {
	e := &ThresholdEngine{states: make(map[string]*AlarmState)}
	e.Reload(bands)
	return e
}

// Reload replaces the band table, preserving alarm states and counters.
func (e *ThresholdEngine) Reload(bands map[string]conf.ThresholdBand) {
	normalized := make(map[string]conf.ThresholdBand, len(bands))
	for k, v := range bands {
		normalized[conf.NormalizeKey(k)] = v
	}
	e.bands = normalized
}

// Band returns the band for a property, defaulting to the open band.
func (e *ThresholdEngine) Band(property string) conf.ThresholdBand {
	if band, ok := e.bands[conf.NormalizeKey(property)]; ok {
		return band
	}
	return conf.ThresholdBand{Min: -math.MaxFloat64, Max: math.MaxFloat64}
}

// State returns a copy of the alarm state for a property.
func (e *ThresholdEngine) State(property string) AlarmState {
	if st, ok := e.states[conf.NormalizeKey(property)]; ok {
		return *st
	}
	return AlarmState{}
}

// Evaluate updates counters for one prediction and returns the status rows
// to persist plus any alarm edge events. Properties are visited in sorted
// order so persistence rows are deterministic.
func (e *ThresholdEngine) Evaluate(results map[string]float64) (statuses []datastore.StatusRow, events []AlarmEvent) {
	now := time.Now()

	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, property := range keys {
		value := results[property]
		normKey := conf.NormalizeKey(property)
		band := e.Band(property)

		st, ok := e.states[normKey]
		if !ok {
			st = &AlarmState{}
			e.states[normKey] = st
		}

		st.DetectCount++
		abnormal := value < band.Min || value > band.Max
		if abnormal {
			st.AbnormalCount++
		}

		switch {
		case abnormal && !st.CurrentlyAbnormal:
			events = append(events, AlarmEvent{
				ID:       uuid.NewString(),
				Kind:     AlarmRaised,
				Property: property,
				Value:    value,
				Min:      band.Min,
				Max:      band.Max,
				Ts:       now,
			})
		case !abnormal && st.CurrentlyAbnormal:
			events = append(events, AlarmEvent{
				ID:       uuid.NewString(),
				Kind:     AlarmCleared,
				Property: property,
				Value:    value,
				Min:      band.Min,
				Max:      band.Max,
				Ts:       now,
			})
		}
		st.CurrentlyAbnormal = abnormal

		statuses = append(statuses, datastore.StatusRow{
			Property: property,
			Value:    value,
			Min:      band.Min,
			Max:      band.Max,
			Abnormal: abnormal,
		})
	}

	return statuses, events
}
