// Package validation measures how well an estimator reproduces samples it
// was not built from.
package validation

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"psinterp/internal/models"
	"psinterp/pkg/interpolation"
)

// ErrTooFewSamples is returned when a dataset cannot be split into folds
var ErrTooFewSamples = errors.New("validation: at least two samples are required")

// Metrics summarizes the agreement between reference and estimated values
// of one output dimension
type Metrics struct {
	// Samples is the number of compared values
	Samples int

	// Failed counts the samples the estimator could not answer
	Failed int

	RMSE     float64
	MAE      float64
	MaxError float64

	// RSquared is the coefficient of determination of the estimates
	RSquared float64
}

// Compare computes the metrics of estimated against actual. NaN estimates
// are counted as failures.
func Compare(actual, estimated []float64) Metrics {
	var m Metrics
	var a, e []float64
	for i := range actual {
		if math.IsNaN(estimated[i]) {
			m.Failed++
			continue
		}
		a = append(a, actual[i])
		e = append(e, estimated[i])
	}

	m.Samples = len(a)
	if m.Samples == 0 {
		return m
	}

	var sq, abs float64
	for i := range a {
		diff := math.Abs(a[i] - e[i])
		sq += diff * diff
		abs += diff
		m.MaxError = math.Max(m.MaxError, diff)
	}
	m.RMSE = math.Sqrt(sq / float64(m.Samples))
	m.MAE = abs / float64(m.Samples)
	m.RSquared = stat.RSquaredFrom(e, a, nil)
	return m
}

// Evaluate queries est at the inputs of every test sample and compares
// the estimates with the stored outputs, one Metrics per output dimension
func Evaluate[D any](est interpolation.ValueEstimator[D], test *models.Dataset) []Metrics {
	estimated := predict(est, test)

	metrics := make([]Metrics, test.OutputDim)
	for j := range metrics {
		metrics[j] = Compare(test.Column(test.InputDim+j), estimated[j])
	}
	return metrics
}

// CrossValidate runs k-fold cross-validation: sample i is held out in fold
// i mod folds and estimated by an estimator built from all other folds.
// folds < 2 or folds >= Len() means leave-one-out. newEstimator must
// return a fresh estimator on every call; folds run concurrently on up to
// workers goroutines.
func CrossValidate[D any](newEstimator func() interpolation.ValueEstimator[D], ds *models.Dataset, folds, workers int) ([]Metrics, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	n := ds.Len()
	if n < 2 {
		return nil, ErrTooFewSamples
	}
	if folds < 2 || folds > n {
		folds = n
	}

	estimated := make([][]float64, ds.OutputDim)
	for j := range estimated {
		estimated[j] = make([]float64, n)
	}

	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for fold := 0; fold < folds; fold++ {
		g.Go(func() error {
			train := models.NewDataset(ds.InputDim, ds.OutputDim)
			test := models.NewDataset(ds.InputDim, ds.OutputDim)
			var held []int
			for i, row := range ds.Rows {
				if i%folds == fold {
					test.Rows = append(test.Rows, row)
					held = append(held, i)
				} else {
					train.Rows = append(train.Rows, row)
				}
			}

			est := newEstimator()
			if err := est.SetData(train); err != nil {
				return fmt.Errorf("fold %d: %w", fold, err)
			}
			// a fold whose training set cannot be initialized leaves its
			// samples unanswered
			est.Initialize()

			fe := predict(est, test)
			for j := range estimated {
				for k, i := range held {
					estimated[j][i] = fe[j][k]
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	metrics := make([]Metrics, ds.OutputDim)
	for j := range metrics {
		metrics[j] = Compare(ds.Column(ds.InputDim+j), estimated[j])
	}
	return metrics, nil
}

// predict returns the estimates of every output dimension at the test
// inputs, NaN where the estimator fails
func predict[D any](est interpolation.ValueEstimator[D], test *models.Dataset) [][]float64 {
	estimated := make([][]float64, test.OutputDim)
	for j := range estimated {
		estimated[j] = make([]float64, test.Len())
	}
	for i := range test.Rows {
		v, _, err := est.Estimate(test.At(i).Input())
		for j := range estimated {
			if err != nil {
				estimated[j][i] = math.NaN()
				continue
			}
			estimated[j][i] = v[j]
		}
	}
	return estimated
}
