package interpolation

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one query of a batch
type Result[D any] struct {
	Value      []float64
	Diagnostic D
	Err        error
}

// EstimateBatch evaluates est at every point using up to workers goroutines
// (runtime.NumCPU() when workers <= 0). The estimator is initialized first
// if needed so that the concurrent queries only read shared state. Per-point
// failures are reported in the results; the returned error is only set
// when the estimator cannot be initialized.
func EstimateBatch[D any](est ValueEstimator[D], points [][]float64, workers int) ([]Result[D], error) {
	if !est.Ready() {
		if err := est.Initialize(); err != nil {
			return nil, err
		}
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]Result[D], len(points))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, p := range points {
		g.Go(func() error {
			v, d, err := est.Estimate(p)
			results[i] = Result[D]{Value: v, Diagnostic: d, Err: err}
			return nil
		})
	}
	g.Wait()
	return results, nil
}
