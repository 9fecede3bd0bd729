// Package locator provides spatial indices over scaled sample coordinates
// supporting nearest, k-nearest and radius queries.
package locator

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	// ErrNotBuilt is returned for queries against an empty or unbuilt index
	ErrNotBuilt = errors.New("locator: index is empty or has not been built")

	// ErrInvalidK is returned when k is not positive
	ErrInvalidK = errors.New("locator: k must be positive")

	// ErrInvalidRadius is returned for negative or NaN radii
	ErrInvalidRadius = errors.New("locator: radius must be non-negative")

	// ErrInvalidScaling is returned when the scaling vector does not match
	// the point dimension or holds a non-positive factor
	ErrInvalidScaling = errors.New("locator: invalid scaling factors")

	// ErrInvalidQuery is returned for queries holding NaN coordinates
	ErrInvalidQuery = errors.New("locator: query has NaN coordinates")

	// ErrUnknownLocator is returned by New for an unrecognized name
	ErrUnknownLocator = errors.New("locator: unknown locator")
)

// DimensionMismatchError indicates a query or point with the wrong arity
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("locator: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Neighbor is a located sample: its position in the table the index was
// built from and its Euclidean distance to the query in scaled space.
type Neighbor struct {
	Index    int
	Distance float64
}

// PointLocator is a static spatial index. Build must be called before any
// query; calling it again discards the previous index. Queries never
// mutate the index and may run concurrently once Build has returned.
type PointLocator interface {
	Build(points [][]float64, scaling []float64) error
	FindNearest(query []float64) (Neighbor, error)
	FindKNearest(query []float64, k int) ([]Neighbor, error)
	FindNearestWithinRadius(query []float64, radius float64) ([]Neighbor, error)
	Len() int
}

// New returns the locator registered under name ("kdtree" or "bruteforce")
func New(name string) (PointLocator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "kdtree", "kd-tree":
		return NewKDTree(), nil
	case "bruteforce", "brute-force", "linear":
		return NewBruteForce(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownLocator, name)
	}
}

// scalePoints validates the inputs of Build and returns scaled copies of
// the points. A nil scaling vector means unit factors.
func scalePoints(points [][]float64, scaling []float64) ([][]float64, int, error) {
	if len(points) == 0 {
		return nil, 0, nil
	}

	dims := len(points[0])
	if scaling == nil {
		scaling = make([]float64, dims)
		for i := range scaling {
			scaling[i] = 1
		}
	}
	if len(scaling) != dims {
		return nil, 0, fmt.Errorf("%w: %d factors for %d dimensions", ErrInvalidScaling, len(scaling), dims)
	}
	for i, f := range scaling {
		if !(f > 0) || math.IsInf(f, 1) {
			return nil, 0, fmt.Errorf("%w: factor %d is %v", ErrInvalidScaling, i, f)
		}
	}

	scaled := make([][]float64, len(points))
	for i, p := range points {
		if len(p) != dims {
			return nil, 0, &DimensionMismatchError{Expected: dims, Actual: len(p)}
		}
		scaled[i] = scale(p, scaling)
	}
	return scaled, dims, nil
}

func checkQuery(query []float64) error {
	for _, v := range query {
		if math.IsNaN(v) {
			return ErrInvalidQuery
		}
	}
	return nil
}

func scale(p, scaling []float64) []float64 {
	s := make([]float64, len(p))
	for i, v := range p {
		s[i] = v * scaling[i]
	}
	return s
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// closer orders neighbours by distance, breaking ties by table index
func closer(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Index < b.Index
}

func sortNeighbors(ns []Neighbor) {
	sort.Slice(ns, func(i, j int) bool { return closer(ns[i], ns[j]) })
}
