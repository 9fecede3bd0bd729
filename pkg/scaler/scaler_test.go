package scaler

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psinterp/internal/models"
)

// createScatter builds a dataset with the given per-axis spreads
func createScatter(n int, spreads []float64, seed uint64) *models.Dataset {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	ds := models.NewDataset(len(spreads), 1)
	for i := 0; i < n; i++ {
		in := make([]float64, len(spreads))
		for axis, s := range spreads {
			in[axis] = rng.NormFloat64() * s
		}
		_ = ds.Append(in, []float64{float64(i)})
	}
	return ds
}

func TestStandardScalerKnownValues(t *testing.T) {
	// axis 0: {1, 3} -> population stddev 1
	// axis 1: {0, 4} -> population stddev 2
	ds := &models.Dataset{InputDim: 2, OutputDim: 1, Rows: [][]float64{
		{1, 0, 10},
		{3, 4, 20},
	}}

	factors, err := NewStandardScaler().Apply(ds)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 0.5}, factors, 1e-12)
}

func TestStandardScalerZeroVarianceAxis(t *testing.T) {
	ds := &models.Dataset{InputDim: 2, OutputDim: 1, Rows: [][]float64{
		{5, 0, 1},
		{5, 1, 1},
		{5, 2, 1},
	}}

	factors, err := NewStandardScaler().Apply(ds)
	require.NoError(t, err)
	assert.Equal(t, 1.0, factors[0])
	assert.InDelta(t, 1/math.Sqrt(2.0/3.0), factors[1], 1e-12)
}

func TestScalersEmptyDataset(t *testing.T) {
	for _, s := range []Scaler{NewStandardScaler(), NewMedianDistanceScaler()} {
		_, err := s.Apply(models.NewDataset(2, 1))
		assert.ErrorIs(t, err, ErrEmptyDataset, s.Name())

		_, err = s.Apply(nil)
		assert.ErrorIs(t, err, ErrEmptyDataset, s.Name())
	}
}

func TestScalingFactorsStrictlyPositive(t *testing.T) {
	spreads := []float64{1e-3, 1, 250, 0}
	ds := createScatter(200, spreads, 7)

	for _, s := range []Scaler{
		&StandardScaler{Workers: 1},
		&StandardScaler{Workers: 4},
		NewMedianDistanceScaler(),
	} {
		factors, err := s.Apply(ds)
		require.NoError(t, err, s.Name())
		require.Len(t, factors, len(spreads))
		for axis, f := range factors {
			assert.Greater(t, f, 0.0, "%s axis %d", s.Name(), axis)
			assert.False(t, math.IsInf(f, 0), "%s axis %d", s.Name(), axis)
		}
		assert.Equal(t, 1.0, factors[3], "%s zero-spread axis", s.Name())
		assert.Greater(t, factors[0], factors[1], s.Name())
		assert.Greater(t, factors[1], factors[2], s.Name())
	}
}

func TestStandardScalerDeterministicAcrossWorkers(t *testing.T) {
	ds := createScatter(500, []float64{2, 3, 5, 7, 11}, 3)

	a, err := (&StandardScaler{Workers: 1}).Apply(ds)
	require.NoError(t, err)
	b, err := (&StandardScaler{Workers: 8}).Apply(ds)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMedianDistanceScalerUniformGrid(t *testing.T) {
	// distinct values {0, 1, 2, 3}: pair distances 1,1,1,2,2,3 -> median 1.5
	ds := models.NewDataset(1, 1)
	for _, x := range []float64{0, 1, 2, 3, 3, 0} {
		_ = ds.Append([]float64{x}, []float64{0})
	}

	factors, err := NewMedianDistanceScaler().Apply(ds)
	require.NoError(t, err)
	assert.InDelta(t, 1/1.5, factors[0], 1e-12)
}

func TestMedianDistanceScalerDoesNotReorderDataset(t *testing.T) {
	ds := &models.Dataset{InputDim: 1, OutputDim: 1, Rows: [][]float64{{3, 0}, {1, 1}, {2, 2}}}
	_, err := NewMedianDistanceScaler().Apply(ds)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 2}, ds.Column(0))
}

func TestSubsampleKeepsExtremes(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i)
	}

	out := subsample(values, 10)
	require.GreaterOrEqual(t, len(out), 2)
	assert.LessOrEqual(t, len(out)*(len(out)-1)/2, 10)
	assert.Equal(t, 0.0, out[0])
	assert.Equal(t, 99.0, out[len(out)-1])
	assert.IsIncreasing(t, out)

	assert.Len(t, subsample(values[:4], 10), 4)
}

func TestNewByName(t *testing.T) {
	s, err := New("standard")
	require.NoError(t, err)
	assert.Equal(t, "standard", s.Name())

	s, err = New(" Median ")
	require.NoError(t, err)
	assert.Equal(t, "median", s.Name())

	_, err = New("minmax")
	assert.ErrorIs(t, err, ErrUnknownScaler)
}
