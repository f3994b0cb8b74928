package host

import (
	"sync"
)

// WorkerResult is one inference completion delivered back to the host loop.
type WorkerResult struct {
	Values map[string]float64
	Err    error
}

// InferenceWorker decouples model evaluation from the I/O loop. It exposes
// a single pending slot: submitting while a job is in flight overwrites the
// pending spectrum, so the worker always evaluates the most recent input
// available when it becomes free.
type InferenceWorker struct {
	predict func([]float64) (map[string]float64, error)
	results chan WorkerResult
	notify  chan struct{}
	quit    chan struct{}

	mu      sync.Mutex
	pending []float64
	has     bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewInferenceWorker starts the worker goroutine around a predict function.
func NewInferenceWorker(predict func([]float64) (map[string]float64, error)) *InferenceWorker {
	w := &InferenceWorker{
		predict: predict,
		results: make(chan WorkerResult, 16),
		notify:  make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

// Submit hands a spectrum to the worker, coalescing with any pending one.
// The spectrum is copied across the boundary.
func (w *InferenceWorker) Submit(spectrum []float64) {
	w.mu.Lock()
	w.pending = append(w.pending[:0], spectrum...)
	w.has = true
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Results returns the completion channel consumed by the host loop.
func (w *InferenceWorker) Results() <-chan WorkerResult {
	return w.results
}

// Close stops the worker and waits for the goroutine to exit.
func (w *InferenceWorker) Close() {
	w.closeOnce.Do(func() {
		close(w.quit)
	})
	<-w.done
}

func (w *InferenceWorker) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.quit:
			return
		case <-w.notify:
		}

		for {
			w.mu.Lock()
			if !w.has {
				w.mu.Unlock()
				break
			}
			spectrum := append([]float64(nil), w.pending...)
			w.has = false
			w.mu.Unlock()

			values, err := w.predict(spectrum)

			select {
			case w.results <- WorkerResult{Values: values, Err: err}:
			case <-w.quit:
				return
			}
		}
	}
}
