package scaler

import (
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"psinterp/internal/models"
)

// DefaultMaxPairs bounds the number of pairwise distances evaluated per axis
const DefaultMaxPairs = 1 << 20

// MedianDistanceScaler scales every axis by the inverse of the median
// distance between distinct coordinate values on that axis. It is less
// sensitive to outliers than StandardScaler and treats grid-like axes by
// their typical spacing instead of their total extent.
type MedianDistanceScaler struct {
	// Workers bounds the number of axes processed concurrently.
	// Zero means runtime.NumCPU().
	Workers int

	// MaxPairs caps the pairwise distances considered per axis. When an
	// axis has more distinct values than the cap allows, an evenly strided
	// subset of the sorted values is used. Zero means DefaultMaxPairs.
	MaxPairs int
}

// NewMedianDistanceScaler creates a MedianDistanceScaler with default limits
func NewMedianDistanceScaler() *MedianDistanceScaler {
	return &MedianDistanceScaler{}
}

// Name implements Scaler
func (s *MedianDistanceScaler) Name() string { return "median" }

// Apply implements Scaler
func (s *MedianDistanceScaler) Apply(ds *models.Dataset) ([]float64, error) {
	if ds.Empty() {
		return nil, ErrEmptyDataset
	}

	maxPairs := s.MaxPairs
	if maxPairs <= 0 {
		maxPairs = DefaultMaxPairs
	}

	factors := make([]float64, ds.InputDim)

	var g errgroup.Group
	g.SetLimit(workers(s.Workers))
	for axis := range factors {
		g.Go(func() error {
			values := subsample(distinct(ds.Column(axis)), maxPairs)
			if len(values) < 2 {
				factors[axis] = 1
				return nil
			}

			distances := make([]float64, 0, len(values)*(len(values)-1)/2)
			for i := range values {
				for j := i + 1; j < len(values); j++ {
					distances = append(distances, values[j]-values[i])
				}
			}

			median, err := stats.Median(distances)
			if err != nil {
				return fmt.Errorf("median distance on axis %d: %w", axis, err)
			}
			factors[axis] = inverseOrOne(median)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return factors, nil
}

// distinct returns the sorted unique values of xs. xs is reordered.
func distinct(xs []float64) []float64 {
	sort.Float64s(xs)
	out := xs[:0]
	for i, v := range xs {
		if i == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// subsample keeps an evenly strided subset of sorted values so that the
// number of pairs does not exceed maxPairs. The extremes are always kept.
func subsample(values []float64, maxPairs int) []float64 {
	n := len(values)
	if n*(n-1)/2 <= maxPairs {
		return values
	}

	keep := 2
	for (keep+1)*keep/2 <= maxPairs {
		keep++
	}

	out := make([]float64, keep)
	for i := range out {
		out[i] = values[i*(n-1)/(keep-1)]
	}
	return out
}
