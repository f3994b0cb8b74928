package host

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWorkerDeliversCompletion(t *testing.T) {
	w := NewInferenceWorker(func(spectrum []float64) (map[string]float64, error) {
		sum := 0.0
		for _, x := range spectrum {
			sum += x
		}
		return map[string]float64{"sum": sum}, nil
	})
	defer w.Close()

	w.Submit([]float64{1, 2, 3})

	select {
	case result := <-w.Results():
		require.NoError(t, result.Err)
		assert.InDelta(t, 6.0, result.Values["sum"], 1e-12)
	case <-time.After(2 * time.Second):
		t.Fatal("no completion")
	}
}

func TestWorkerCoalescesWhileBusy(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var seen [][]float64

	w := NewInferenceWorker(func(spectrum []float64) (map[string]float64, error) {
		mu.Lock()
		seen = append(seen, append([]float64(nil), spectrum...))
		first := len(seen) == 1
		mu.Unlock()
		if first {
			started <- struct{}{}
			<-release
		}
		return map[string]float64{"v": spectrum[0]}, nil
	})
	defer w.Close()

	w.Submit([]float64{1})
	<-started

	// These three land while the worker is busy; only the last survives
	w.Submit([]float64{2})
	w.Submit([]float64{3})
	w.Submit([]float64{4})
	close(release)

	var results []WorkerResult
	timeout := time.After(2 * time.Second)
	for len(results) < 2 {
		select {
		case r := <-w.Results():
			results = append(results, r)
		case <-timeout:
			t.Fatalf("got %d completions, want 2", len(results))
		}
	}

	assert.InDelta(t, 1.0, results[0].Values["v"], 1e-12)
	assert.InDelta(t, 4.0, results[1].Values["v"], 1e-12, "intermediate submits are coalesced away")

	// No further completions arrive
	select {
	case r := <-w.Results():
		t.Fatalf("unexpected extra completion: %+v", r)
	case <-time.After(100 * time.Millisecond):
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 2)
}

func TestWorkerCopiesInput(t *testing.T) {
	gate := make(chan struct{})
	w := NewInferenceWorker(func(spectrum []float64) (map[string]float64, error) {
		<-gate
		return map[string]float64{"v": spectrum[0]}, nil
	})
	defer w.Close()

	spectrum := []float64{7}
	w.Submit(spectrum)
	spectrum[0] = 99 // caller mutation must not reach the worker
	close(gate)

	select {
	case result := <-w.Results():
		require.NoError(t, result.Err)
		assert.InDelta(t, 7.0, result.Values["v"], 1e-12)
	case <-time.After(2 * time.Second):
		t.Fatal("no completion")
	}
}

func TestWorkerPropagatesErrors(t *testing.T) {
	w := NewInferenceWorker(func([]float64) (map[string]float64, error) {
		return nil, assert.AnError
	})
	defer w.Close()

	w.Submit([]float64{1})

	select {
	case result := <-w.Results():
		assert.ErrorIs(t, result.Err, assert.AnError)
		assert.Nil(t, result.Values)
	case <-time.After(2 * time.Second):
		t.Fatal("no completion")
	}
}

func TestWorkerCloseIsIdempotent(t *testing.T) {
	w := NewInferenceWorker(func([]float64) (map[string]float64, error) {
		return nil, nil
	})
	w.Close()
	w.Close()
}
