package interpolation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"psinterp/pkg/locator"
	"psinterp/pkg/logging"
	"psinterp/pkg/scaler"
)

// NeighborsParams holds the construction-time configuration of a
// NearestNeighbors estimator
type NeighborsParams struct {
	// Neighbors is the number of samples blended per query
	Neighbors int

	// DistanceExponent controls how quickly the influence of a sample
	// decays with distance. Values <= 0 approach an unweighted average.
	DistanceExponent float64

	// Scaler computes the per-axis scaling factors. Defaults to a
	// StandardScaler.
	Scaler scaler.Scaler

	// Locator indexes the scaled samples. Defaults to a KDTree.
	Locator locator.PointLocator

	Logger *logging.Logger
}

// DefaultNeighborsParams returns the default estimator configuration
func DefaultNeighborsParams() NeighborsParams {
	return NeighborsParams{
		Neighbors:        3,
		DistanceExponent: 2,
	}
}

// NearestNeighbors estimates values at arbitrary points of scattered data
// by inverse-distance weighting of the k nearest samples. Distances are
// measured after scaling every input axis.
type NearestNeighbors struct {
	lifecycle

	k        int
	exponent float64
	scaler   scaler.Scaler
	locator  locator.PointLocator

	inputDim int
	factors  []float64
}

var _ ValueEstimator[float64] = (*NearestNeighbors)(nil)

// NewNearestNeighbors creates a nearest-neighbour estimator. The number of
// neighbours is validated on every query, so an invalid count only fails
// the calls that use it.
func NewNearestNeighbors(params NeighborsParams) *NearestNeighbors {
	if params.Scaler == nil {
		params.Scaler = scaler.NewStandardScaler()
	}
	if params.Locator == nil {
		params.Locator = locator.NewKDTree()
	}
	return &NearestNeighbors{
		lifecycle: newLifecycle(params.Logger, "nearest_neighbors"),
		k:         params.Neighbors,
		exponent:  params.DistanceExponent,
		scaler:    params.Scaler,
		locator:   params.Locator,
	}
}

// Neighbors returns the configured number of neighbours
func (n *NearestNeighbors) Neighbors() int {
	return n.k
}

// DistanceExponent returns the configured distance exponent
func (n *NearestNeighbors) DistanceExponent() float64 {
	return n.exponent
}

// Initialize scales the ingested samples and builds the point locator
func (n *NearestNeighbors) Initialize() error {
	n.factors = nil

	ds, err := n.ingest()
	if err != nil {
		return n.finish(err)
	}

	factors, err := n.scaler.Apply(ds)
	if err != nil {
		return n.finish(fmt.Errorf("error computing scaling factors: %w", err))
	}
	if err := n.locator.Build(ds.Inputs(), factors); err != nil {
		return n.finish(fmt.Errorf("error building %T: %w", n.locator, err))
	}

	n.inputDim = ds.InputDim
	n.factors = factors
	n.logger.WithDims(ds.InputDim, ds.OutputDim).Debug("point locator built",
		"scaler", n.scaler.Name(),
		"factors", factors,
		"points", n.locator.Len())
	return n.finish(nil)
}

// ScalingFactors returns a copy of the per-axis scaling factors
func (n *NearestNeighbors) ScalingFactors() []float64 {
	if !n.Ready() {
		return nil
	}
	return append([]float64(nil), n.factors...)
}

// Estimate returns the inverse-distance-weighted average of the outputs of
// the k samples nearest to x, together with the distance to the nearest
// one. A sample at distance zero is returned unblended.
func (n *NearestNeighbors) Estimate(x []float64) ([]float64, float64, error) {
	neighbors, weights, err := n.weigh(x)
	if err != nil {
		return nil, math.Inf(1), err
	}

	out := make([]float64, n.data.OutputDim)
	for i, nb := range neighbors {
		if weights[i] == 0 {
			continue
		}
		floats.AddScaled(out, weights[i], n.data.At(nb.Index).Output())
	}
	return out, neighbors[0].Distance, nil
}

// Weights returns the neighbours used for x and their normalized weights
func (n *NearestNeighbors) Weights(x []float64) ([]locator.Neighbor, []float64, error) {
	return n.weigh(x)
}

func (n *NearestNeighbors) weigh(x []float64) ([]locator.Neighbor, []float64, error) {
	if err := n.ensure(n.Initialize); err != nil {
		return nil, nil, err
	}
	if n.k <= 0 {
		return nil, nil, fmt.Errorf("%w: %d", ErrInvalidNeighbors, n.k)
	}
	if err := checkQuery(x, n.inputDim); err != nil {
		return nil, nil, err
	}

	neighbors, err := n.locator.FindKNearest(x, n.k)
	if err != nil {
		return nil, nil, err
	}
	if len(neighbors) == 0 {
		return nil, nil, ErrNoData
	}

	weights := make([]float64, len(neighbors))

	// neighbours are sorted, so an exact match is always first
	nearest := neighbors[0].Distance
	if nearest == 0 {
		weights[0] = 1
		return neighbors, weights, nil
	}

	// d^-p relative to the nearest distance keeps every weight within
	// (0, 1] for p > 0 and yields the same normalized weights
	for i, nb := range neighbors {
		weights[i] = math.Pow(nearest/nb.Distance, n.exponent)
	}
	floats.Scale(1/floats.Sum(weights), weights)
	return neighbors, weights, nil
}
