package interpolation

import (
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"psinterp/internal/models"
	"psinterp/pkg/datasource"
)

func line() *models.Dataset {
	return &models.Dataset{InputDim: 1, OutputDim: 1, Rows: [][]float64{{0, 0}, {1, 10}}}
}

// bilinear is reproduced exactly by multilinear interpolation on any cell
func bilinear(x, y float64) []float64 {
	return []float64{1 + 2*x + 3*y + 4*x*y, x * y}
}

// createGrid returns the samples of bilinear on xs × ys in shuffled order
func createGrid(xs, ys []float64, seed uint64) *models.Dataset {
	ds := models.NewDataset(2, 2)
	for _, x := range xs {
		for _, y := range ys {
			ds.Append([]float64{x, y}, bilinear(x, y))
		}
	}
	rng := rand.New(rand.NewPCG(seed, 7))
	rng.Shuffle(len(ds.Rows), func(i, j int) { ds.Rows[i], ds.Rows[j] = ds.Rows[j], ds.Rows[i] })
	return ds
}

func newGrid(t *testing.T, ds *models.Dataset, extrapolate bool) *RectilinearGrid {
	t.Helper()
	g := NewRectilinearGrid(GridParams{AllowExtrapolation: extrapolate})
	require.NoError(t, g.SetData(ds))
	require.NoError(t, g.Initialize())
	return g
}

func TestGridLineMidpoint(t *testing.T) {
	g := newGrid(t, line(), false)

	v, inside, err := g.Estimate([]float64{0.5})
	require.NoError(t, err)
	assert.True(t, inside)
	assert.Equal(t, []float64{5}, v)
}

func TestGridOutsideWithoutExtrapolation(t *testing.T) {
	g := newGrid(t, line(), false)

	v, inside, err := g.Estimate([]float64{2})
	assert.ErrorIs(t, err, ErrOutsideGrid)
	assert.False(t, inside)
	assert.Nil(t, v)

	// the failure is per call
	v, inside, err = g.Estimate([]float64{0.25})
	require.NoError(t, err)
	assert.True(t, inside)
	assert.Equal(t, []float64{2.5}, v)
}

func TestGridExtrapolation(t *testing.T) {
	g := newGrid(t, line(), true)

	v, inside, err := g.Estimate([]float64{2})
	require.NoError(t, err)
	assert.False(t, inside)
	assert.Equal(t, []float64{20}, v)

	v, inside, err = g.Estimate([]float64{-1})
	require.NoError(t, err)
	assert.False(t, inside)
	assert.Equal(t, []float64{-10}, v)

	xs, ys := []float64{0, 1, 3}, []float64{-1, 0.5, 2}
	g = newGrid(t, createGrid(xs, ys, 1), true)
	v, inside, err = g.Estimate([]float64{5, -2})
	require.NoError(t, err)
	assert.False(t, inside)
	assert.InDeltaSlice(t, bilinear(5, -2), v, 1e-9)
}

func TestGridIrregularRejected(t *testing.T) {
	ds := &models.Dataset{InputDim: 2, OutputDim: 1, Rows: [][]float64{
		{0, 0, 0},
		{1, 0, 1},
		{0, 1, 2},
	}}
	g := NewRectilinearGrid(GridParams{})
	require.NoError(t, g.SetData(ds))

	err := g.Initialize()
	assert.ErrorIs(t, err, ErrNotRectilinear)
	assert.False(t, g.Ready())
	assert.Nil(t, g.Descriptor())

	_, inside, err := g.Estimate([]float64{0.5, 0.5})
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, err, ErrNotRectilinear)
	assert.False(t, inside)
}

func TestGridMismatchedGroupsRejected(t *testing.T) {
	tests := []struct {
		name string
		rows [][]float64
	}{
		{
			name: "same group sizes, different values",
			rows: [][]float64{{0, 0, 0}, {0, 1, 0}, {1, 0, 0}, {1, 2, 0}},
		},
		{
			name: "duplicated samples",
			rows: [][]float64{{0, 0}, {0, 0}, {1, 1}, {1, 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := &models.Dataset{InputDim: len(tt.rows[0]) - 1, OutputDim: 1, Rows: tt.rows}
			g := NewRectilinearGrid(GridParams{})
			require.NoError(t, g.SetData(ds))
			assert.ErrorIs(t, g.Initialize(), ErrNotRectilinear)
		})
	}
}

// TestGridPerturbationRejected moves each coordinate of each sample of a
// valid grid off its grid line and expects initialization to fail
func TestGridPerturbationRejected(t *testing.T) {
	xs, ys := []float64{0, 1, 2}, []float64{0, 1, 2}
	base := createGrid(xs, ys, 3)

	for r := range base.Rows {
		for axis := 0; axis < base.InputDim; axis++ {
			ds := base.Clone()
			ds.Rows[r][axis] += 0.25

			g := NewRectilinearGrid(GridParams{})
			require.NoError(t, g.SetData(ds))
			assert.ErrorIs(t, g.Initialize(), ErrNotRectilinear, "row %d axis %d", r, axis)
		}
	}
}

func TestGridVerticesExact(t *testing.T) {
	xs := []float64{-2, 0, 0.5, 4}
	ys := []float64{1, 1.5, 10}
	zs := []float64{0, 3}

	ds := models.NewDataset(3, 1)
	value := func(x, y, z float64) float64 { return math.Sin(x) + math.Exp(y/10)*z + x*y*z }
	for _, x := range xs {
		for _, y := range ys {
			for _, z := range zs {
				ds.Append([]float64{x, y, z}, []float64{value(x, y, z)})
			}
		}
	}
	rng := rand.New(rand.NewPCG(5, 5))
	rng.Shuffle(len(ds.Rows), func(i, j int) { ds.Rows[i], ds.Rows[j] = ds.Rows[j], ds.Rows[i] })

	g := newGrid(t, ds, false)
	assert.Equal(t, []int{4, 3, 2}, g.Shape())
	assert.Equal(t, [][]float64{xs, ys, zs}, g.Descriptor())

	for _, x := range xs {
		for _, y := range ys {
			for _, z := range zs {
				v, inside, err := g.Estimate([]float64{x, y, z})
				require.NoError(t, err)
				assert.True(t, inside)
				assert.Equal(t, value(x, y, z), v[0], "vertex (%v, %v, %v)", x, y, z)
			}
		}
	}
}

func TestGridBilinearInterior(t *testing.T) {
	xs, ys := []float64{0, 1, 3}, []float64{-1, 0.5, 2}
	g := newGrid(t, createGrid(xs, ys, 11), false)

	rng := rand.New(rand.NewPCG(1, 2))
	for range 200 {
		x := 3 * rng.Float64()
		y := -1 + 3*rng.Float64()

		v, inside, err := g.Estimate([]float64{x, y})
		require.NoError(t, err)
		assert.True(t, inside)
		assert.InDeltaSlice(t, bilinear(x, y), v, 1e-9)
	}
}

func TestGridCornerWeightsSumToOne(t *testing.T) {
	xs, ys := []float64{0, 1, 3}, []float64{-1, 0.5, 2}
	g := newGrid(t, createGrid(xs, ys, 13), false)

	rng := rand.New(rand.NewPCG(3, 4))
	for range 100 {
		x := []float64{3 * rng.Float64(), -1 + 3*rng.Float64()}
		rows, weights, err := g.CornerWeights(x)
		require.NoError(t, err)
		require.Len(t, rows, 4)
		require.Len(t, weights, 4)
		assert.InDelta(t, 1, floats.Sum(weights), 1e-12)

		// the weighted corners reproduce Estimate
		want, _, err := g.Estimate(x)
		require.NoError(t, err)
		got := make([]float64, 2)
		for i, r := range rows {
			floats.AddScaled(got, weights[i], g.Row(r)[2:])
		}
		assert.InDeltaSlice(t, want, got, 1e-9)
	}
}

// TestGridUpperBoundUsesLastCell checks that a query exactly on the largest
// grid value is interpolated in the last cell with a local coordinate of one
func TestGridUpperBoundUsesLastCell(t *testing.T) {
	ds := &models.Dataset{InputDim: 1, OutputDim: 1, Rows: [][]float64{{2, 30}, {0, 0}, {1, 10}}}
	g := newGrid(t, ds, false)

	v, inside, err := g.Estimate([]float64{2})
	require.NoError(t, err)
	assert.True(t, inside)
	assert.Equal(t, []float64{30}, v)

	rows, weights, err := g.CornerWeights([]float64{2})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, rows)
	assert.Equal(t, []float64{0, 1}, weights)

	rows, weights, err = g.CornerWeights([]float64{0})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, rows)
	assert.Equal(t, []float64{1, 0}, weights)
}

func TestGridSingleValueAxis(t *testing.T) {
	ds := &models.Dataset{InputDim: 2, OutputDim: 1, Rows: [][]float64{{1, 5, 3}, {0, 5, 1}}}

	g := newGrid(t, ds, false)
	v, inside, err := g.Estimate([]float64{0.5, 5})
	require.NoError(t, err)
	assert.True(t, inside)
	assert.Equal(t, []float64{2}, v)

	_, _, err = g.Estimate([]float64{0.5, 6})
	assert.ErrorIs(t, err, ErrOutsideGrid)

	g = newGrid(t, ds, true)
	v, inside, err = g.Estimate([]float64{0.5, 6})
	require.NoError(t, err)
	assert.False(t, inside)
	assert.Equal(t, []float64{2}, v)
}

func TestGridSingleSample(t *testing.T) {
	ds := &models.Dataset{InputDim: 2, OutputDim: 2, Rows: [][]float64{{1, 2, 3, 4}}}
	g := newGrid(t, ds, false)

	v, inside, err := g.Estimate([]float64{1, 2})
	require.NoError(t, err)
	assert.True(t, inside)
	assert.Equal(t, []float64{3, 4}, v)
}

func TestGridNoData(t *testing.T) {
	g := NewRectilinearGrid(GridParams{})
	assert.False(t, g.Ready())

	_, inside, err := g.Estimate([]float64{0})
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, err, ErrNoData)
	assert.False(t, inside)

	assert.ErrorIs(t, g.Initialize(), ErrNoData)

	assert.Error(t, g.SetData(nil))
	_, _, err = g.Estimate([]float64{0})
	assert.ErrorIs(t, err, ErrNoData)

	require.NoError(t, g.SetData(models.NewDataset(1, 1)))
	assert.ErrorIs(t, g.Initialize(), ErrNoData)
}

func TestGridQueryErrors(t *testing.T) {
	g := newGrid(t, line(), true)

	_, _, err := g.Estimate([]float64{0, 1})
	var dimErr *DimensionMismatchError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 1, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Actual)

	_, _, err = g.Estimate([]float64{math.NaN()})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestGridTooManyDimensions(t *testing.T) {
	ds := models.NewDataset(maxGridDims+1, 1)
	require.NoError(t, ds.Append(make([]float64, maxGridDims+1), []float64{1}))

	g := NewRectilinearGrid(GridParams{})
	require.NoError(t, g.SetData(ds))
	assert.ErrorIs(t, g.Initialize(), ErrTooManyDimensions)
}

func TestGridLazyReinitialization(t *testing.T) {
	ds := line()
	g := NewRectilinearGrid(GridParams{})
	require.NoError(t, g.SetData(ds))

	// the caller keeps ownership of its table
	ds.Rows[1][1] = 100

	v, _, err := g.Estimate([]float64{0.5})
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, v)
	assert.True(t, g.Ready())

	require.NoError(t, g.SetData(ds))
	assert.False(t, g.Ready())
	v, _, err = g.Estimate([]float64{0.5})
	require.NoError(t, err)
	assert.Equal(t, []float64{50}, v)
}

func TestGridIdempotentInitialization(t *testing.T) {
	xs, ys := []float64{0, 1, 3}, []float64{-1, 0.5, 2}
	g := newGrid(t, createGrid(xs, ys, 17), false)

	descriptor := g.Descriptor()
	query := []float64{1.7, 0.1}
	first, _, err := g.Estimate(query)
	require.NoError(t, err)

	require.NoError(t, g.Initialize())
	assert.Equal(t, descriptor, g.Descriptor())
	second, _, err := g.Estimate(query)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGridDataSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.csv")
	content := "# x, y, value\n1, 1, 4\n0, 0, 1\n1, 0, 3\n0, 1, 2\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	g := NewRectilinearGrid(GridParams{})
	g.SetDataSource(datasource.NewCSV(path, 2, 1))

	v, inside, err := g.Estimate([]float64{0.5, 0.5})
	require.NoError(t, err)
	assert.True(t, inside)
	assert.Equal(t, []float64{2.5}, v)

	g.SetDataSource(datasource.NewCSV(filepath.Join(t.TempDir(), "missing.csv"), 2, 1))
	_, _, err = g.Estimate([]float64{0.5, 0.5})
	assert.ErrorIs(t, err, ErrNoData)
	assert.ErrorIs(t, err, datasource.ErrNoData)

	g.SetDataSource(datasource.NewMemory(line()))
	v, _, err = g.Estimate([]float64{0.75})
	require.NoError(t, err)
	assert.Equal(t, []float64{7.5}, v)
}

func TestGridConcurrentQueries(t *testing.T) {
	xs, ys := []float64{0, 1, 3}, []float64{-1, 0.5, 2}
	g := newGrid(t, createGrid(xs, ys, 19), false)

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(w), 1))
			for range 100 {
				x, y := 3*rng.Float64(), -1+3*rng.Float64()
				v, _, err := g.Estimate([]float64{x, y})
				assert.NoError(t, err)
				assert.InDeltaSlice(t, bilinear(x, y), v, 1e-9)
			}
		}()
	}
	wg.Wait()
}
