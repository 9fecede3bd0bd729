// Package scaler computes per-axis scaling factors that normalize distance
// metrics before a dataset is spatially indexed.
package scaler

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"psinterp/internal/models"
)

var (
	// ErrEmptyDataset is returned when scaling factors are requested for a
	// dataset without samples.
	ErrEmptyDataset = errors.New("scaler: dataset has no samples")

	// ErrUnknownScaler is returned by New for an unrecognized name
	ErrUnknownScaler = errors.New("scaler: unknown scaler")
)

// Scaler derives one strictly positive factor per input axis of a dataset.
// Implementations are pure functions of the dataset.
type Scaler interface {
	Name() string
	Apply(ds *models.Dataset) ([]float64, error)
}

// New returns the scaler registered under name ("standard" or "median")
func New(name string) (Scaler, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "standard", "stddev":
		return NewStandardScaler(), nil
	case "median", "mediandistance":
		return NewMedianDistanceScaler(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScaler, name)
	}
}

// StandardScaler scales every axis by the inverse of its population
// standard deviation, so that axes with a larger spread do not dominate
// Euclidean distances.
type StandardScaler struct {
	// Workers bounds the number of axes processed concurrently.
	// Zero means runtime.NumCPU().
	Workers int
}

// NewStandardScaler creates a StandardScaler using all available cores
func NewStandardScaler() *StandardScaler {
	return &StandardScaler{}
}

// Name implements Scaler
func (s *StandardScaler) Name() string { return "standard" }

// Apply implements Scaler. Each axis is reduced independently in its own
// goroutine and writes only its own output slot.
func (s *StandardScaler) Apply(ds *models.Dataset) ([]float64, error) {
	if ds.Empty() {
		return nil, ErrEmptyDataset
	}

	factors := make([]float64, ds.InputDim)

	var g errgroup.Group
	g.SetLimit(workers(s.Workers))
	for axis := range factors {
		g.Go(func() error {
			_, std := stat.PopMeanStdDev(ds.Column(axis), nil)
			factors[axis] = inverseOrOne(std)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return factors, nil
}

// inverseOrOne maps a spread measure to a scaling factor. Degenerate
// spreads (zero, negative, NaN or infinite) yield 1.
func inverseOrOne(spread float64) float64 {
	if f := 1 / spread; spread > 0 && f > 0 && !math.IsInf(f, 1) {
		return f
	}
	return 1
}

func workers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}
