package validation

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psinterp/internal/models"
	"psinterp/pkg/interpolation"
)

func TestCompare(t *testing.T) {
	m := Compare([]float64{1, 2, 3, 4}, []float64{1, 2, 5, math.NaN()})
	assert.Equal(t, 3, m.Samples)
	assert.Equal(t, 1, m.Failed)
	assert.InDelta(t, math.Sqrt(4.0/3.0), m.RMSE, 1e-12)
	assert.InDelta(t, 2.0/3.0, m.MAE, 1e-12)
	assert.Equal(t, 2.0, m.MaxError)

	m = Compare([]float64{1, 2, 3}, []float64{1, 2, 3})
	assert.Zero(t, m.RMSE)
	assert.InDelta(t, 1, m.RSquared, 1e-12)

	m = Compare([]float64{1}, []float64{math.NaN()})
	assert.Equal(t, Metrics{Failed: 1}, m)
}

func plane(n int, seed uint64) *models.Dataset {
	rng := rand.New(rand.NewPCG(seed, 1))
	ds := models.NewDataset(2, 1)
	for range n {
		x, y := rng.Float64(), rng.Float64()
		ds.Append([]float64{x, y}, []float64{2*x - y})
	}
	return ds
}

func nearest() interpolation.ValueEstimator[float64] {
	params := interpolation.DefaultNeighborsParams()
	params.Neighbors = 4
	return interpolation.NewNearestNeighbors(params)
}

func TestCrossValidateNearest(t *testing.T) {
	ds := plane(300, 3)

	metrics, err := CrossValidate(nearest, ds, 10, 4)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, 300, metrics[0].Samples)
	assert.Zero(t, metrics[0].Failed)
	assert.Less(t, metrics[0].RMSE, 0.2)
	assert.Greater(t, metrics[0].RSquared, 0.9)

	// the fold assignment is deterministic
	again, err := CrossValidate(nearest, ds, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, metrics, again)
}

func TestCrossValidateGridFailures(t *testing.T) {
	ds := &models.Dataset{InputDim: 1, OutputDim: 2, Rows: [][]float64{
		{0, 0, 1}, {1, 1, 1}, {2, 2, 1}, {3, 3, 1},
	}}
	grid := func() interpolation.ValueEstimator[bool] {
		return interpolation.NewRectilinearGrid(interpolation.GridParams{})
	}

	// interior samples are interpolated exactly from their neighbours, the
	// end points fall outside of the remaining grid
	metrics, err := CrossValidate(grid, ds, 0, 0)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	for _, m := range metrics {
		assert.Equal(t, 2, m.Samples)
		assert.Equal(t, 2, m.Failed)
		assert.Zero(t, m.MaxError)
	}
}

func TestCrossValidateErrors(t *testing.T) {
	_, err := CrossValidate(nearest, plane(1, 1), 0, 0)
	assert.ErrorIs(t, err, ErrTooFewSamples)

	_, err = CrossValidate(nearest, nil, 0, 0)
	assert.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	est := nearest()
	require.NoError(t, est.SetData(plane(200, 5)))

	metrics := Evaluate(est, plane(50, 6))
	require.Len(t, metrics, 1)
	assert.Equal(t, 50, metrics[0].Samples)
	assert.Less(t, metrics[0].MAE, 0.2)

	empty := interpolation.NewNearestNeighbors(interpolation.DefaultNeighborsParams())
	metrics = Evaluate[float64](empty, plane(5, 7))
	assert.Equal(t, 5, metrics[0].Failed)
}
