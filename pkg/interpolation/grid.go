package interpolation

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"psinterp/pkg/logging"
)

// maxGridDims bounds InputDim so that the 2^InputDim corners of a cell can
// be enumerated with an int
const maxGridDims = 30

// GridParams holds the construction-time configuration of a RectilinearGrid
type GridParams struct {
	// AllowExtrapolation lets queries fall outside of the grid bounds. The
	// outermost cell is then extended linearly.
	AllowExtrapolation bool

	// Logger receives structural failures and initialization summaries.
	// Nil disables logging.
	Logger *logging.Logger
}

// RectilinearGrid performs multilinear interpolation on data whose input
// coordinates form a rectilinear grid, i.e. the full Cartesian product of
// per-axis value sets. The grid structure is discovered from the samples,
// which may be supplied in any order.
type RectilinearGrid struct {
	lifecycle

	allowExtrapolation bool

	inputDim  int
	outputDim int

	// rows holds the samples in row-major grid order (last axis fastest)
	rows [][]float64

	// axes holds the ascending unique coordinate values of every axis
	axes [][]float64

	// strides[i] is the row distance between neighbouring values of axis i
	strides []int
}

var _ ValueEstimator[bool] = (*RectilinearGrid)(nil)

// NewRectilinearGrid creates a grid interpolator with the given parameters
func NewRectilinearGrid(params GridParams) *RectilinearGrid {
	return &RectilinearGrid{
		lifecycle:          newLifecycle(params.Logger, "rectilinear_grid"),
		allowExtrapolation: params.AllowExtrapolation,
	}
}

// AllowsExtrapolation reports whether out-of-bounds queries are extrapolated
func (g *RectilinearGrid) AllowsExtrapolation() bool {
	return g.allowExtrapolation
}

// Initialize discovers the grid structure of the ingested data and orders
// the samples in grid order. It fails with ErrNotRectilinear if the samples
// do not form a complete grid; Estimate then keeps failing until new data
// is ingested.
func (g *RectilinearGrid) Initialize() error {
	g.rows, g.axes, g.strides = nil, nil, nil

	ds, err := g.ingest()
	if err != nil {
		return g.finish(err)
	}
	if ds.InputDim > maxGridDims {
		return g.finish(fmt.Errorf("%w: %d > %d", ErrTooManyDimensions, ds.InputDim, maxGridDims))
	}

	g.inputDim = ds.InputDim
	g.outputDim = ds.OutputDim
	g.axes = make([][]float64, ds.InputDim)

	if err := g.rearrange(ds.Rows, 0, true); err != nil {
		g.logger.Warn("data is not arranged in a rectilinear grid", "error", err)
		g.axes = nil
		return g.finish(err)
	}
	if err := g.verifyProduct(ds.Rows); err != nil {
		g.logger.Warn("data is not arranged in a rectilinear grid", "error", err)
		g.axes = nil
		return g.finish(err)
	}

	g.rows = ds.Rows
	g.logger.WithDims(g.inputDim, g.outputDim).Debug("grid structure discovered", "shape", g.Shape())
	return g.finish(nil)
}

// rearrange sorts rows along axis, splits them into runs of equal
// coordinate and recurses into every run for the next axis. All runs must
// have the same length. Only the first run at every level records the
// unique values of the next axis, since all runs share the same structure.
func (g *RectilinearGrid) rearrange(rows [][]float64, axis int, capture bool) error {
	if axis >= g.inputDim || len(rows) == 0 {
		return nil
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i][axis] < rows[j][axis] })

	runLength := 0
	start := 0
	var runs [][2]int
	for i := 1; i <= len(rows); i++ {
		if i < len(rows) && rows[i][axis] == rows[start][axis] {
			continue
		}
		if runLength == 0 {
			runLength = i - start
		} else if i-start != runLength {
			return fmt.Errorf("%w: axis %d has runs of %d and %d samples at value %v",
				ErrNotRectilinear, axis, runLength, i-start, rows[start][axis])
		}
		if capture {
			g.axes[axis] = append(g.axes[axis], rows[start][axis])
		}
		runs = append(runs, [2]int{start, i})
		start = i
	}

	for i, run := range runs {
		if err := g.rearrange(rows[run[0]:run[1]], axis+1, capture && i == 0); err != nil {
			return err
		}
	}
	return nil
}

// verifyProduct checks that the grid-ordered rows are exactly the Cartesian
// product of the recorded axis values, each combination present once
func (g *RectilinearGrid) verifyProduct(rows [][]float64) error {
	g.strides = make([]int, g.inputDim)
	total := 1
	for axis := g.inputDim - 1; axis >= 0; axis-- {
		if len(g.axes[axis]) == 0 {
			return fmt.Errorf("%w: axis %d", ErrEmptyAxis, axis)
		}
		g.strides[axis] = total
		total *= len(g.axes[axis])
		if total > len(rows) {
			break
		}
	}
	if total != len(rows) {
		return fmt.Errorf("%w: %d samples for a grid of %v points", ErrNotRectilinear, len(rows), g.Shape())
	}

	for r, row := range rows {
		for axis, values := range g.axes {
			want := values[(r/g.strides[axis])%len(values)]
			if row[axis] != want {
				return fmt.Errorf("%w: sample %d has %v on axis %d, expected %v",
					ErrNotRectilinear, r, row[axis], axis, want)
			}
		}
	}
	return nil
}

// Shape returns the number of grid values along every axis
func (g *RectilinearGrid) Shape() []int {
	shape := make([]int, len(g.axes))
	for i, values := range g.axes {
		shape[i] = len(values)
	}
	return shape
}

// Descriptor returns a copy of the ascending unique coordinate values of
// every axis, or nil if the grid is not initialized
func (g *RectilinearGrid) Descriptor() [][]float64 {
	if !g.Ready() {
		return nil
	}
	out := make([][]float64, len(g.axes))
	for i, values := range g.axes {
		out[i] = append([]float64(nil), values...)
	}
	return out
}

// Estimate interpolates the output vector at x. The returned flag reports
// whether x lies within the grid bounds. With extrapolation disabled an
// out-of-bounds query fails with ErrOutsideGrid.
func (g *RectilinearGrid) Estimate(x []float64) ([]float64, bool, error) {
	c, err := g.locate(x)
	if err != nil {
		return nil, c.inside, err
	}

	corners := make([][]float64, 1<<g.inputDim)
	for i := range corners {
		row := g.rows[c.cornerRow(i, g.strides)]
		corners[i] = append([]float64(nil), row[g.inputDim:]...)
	}

	// Collapse one axis at a time, last axis first. The last remaining axis
	// always sits in the lowest bit of the corner index.
	for axis := g.inputDim - 1; axis >= 0; axis-- {
		t := c.t[axis]
		half := len(corners) / 2
		for k := 0; k < half; k++ {
			lower, upper := corners[2*k], corners[2*k+1]
			floats.Scale(1-t, lower)
			floats.AddScaled(lower, t, upper)
			corners[k] = lower
		}
		corners = corners[:half]
	}

	return corners[0], c.inside, nil
}

// CornerWeights returns the grid rows of the 2^InputDim corners of the cell
// containing x and their multilinear weights. The weights sum to one.
func (g *RectilinearGrid) CornerWeights(x []float64) (rows []int, weights []float64, err error) {
	c, err := g.locate(x)
	if err != nil {
		return nil, nil, err
	}

	n := 1 << g.inputDim
	rows = make([]int, n)
	weights = make([]float64, n)
	for i := range rows {
		rows[i] = c.cornerRow(i, g.strides)
		w := 1.0
		for axis, t := range c.t {
			if c.upperBit(i, axis) {
				w *= t
			} else {
				w *= 1 - t
			}
		}
		weights[i] = w
	}
	return rows, weights, nil
}

// Row returns a copy of the sample stored at grid row r
func (g *RectilinearGrid) Row(r int) []float64 {
	return append([]float64(nil), g.rows[r]...)
}

// cell is the hyper-rectangle selected for a query
type cell struct {
	lower, upper []int
	t            []float64
	inside       bool
	dims         int
}

// upperBit reports whether corner i takes the upper grid line on axis.
// Axis 0 maps to the most significant bit.
func (c *cell) upperBit(i, axis int) bool {
	return (i>>(c.dims-1-axis))&1 == 1
}

func (c *cell) cornerRow(i int, strides []int) int {
	row := 0
	for axis := 0; axis < c.dims; axis++ {
		idx := c.lower[axis]
		if c.upperBit(i, axis) {
			idx = c.upper[axis]
		}
		row += idx * strides[axis]
	}
	return row
}

// locate finds the cell containing x and the normalized local coordinates
// of x within it
func (g *RectilinearGrid) locate(x []float64) (cell, error) {
	c := cell{inside: false}
	if err := g.ensure(g.Initialize); err != nil {
		return c, err
	}
	if err := checkQuery(x, g.inputDim); err != nil {
		return c, err
	}

	c = cell{
		lower:  make([]int, g.inputDim),
		upper:  make([]int, g.inputDim),
		t:      make([]float64, g.inputDim),
		inside: true,
		dims:   g.inputDim,
	}

	for axis, values := range g.axes {
		if len(values) == 0 {
			return cell{}, fmt.Errorf("%w: axis %d", ErrEmptyAxis, axis)
		}
		v := x[axis]
		last := len(values) - 1
		if v < values[0] || v > values[last] {
			c.inside = false
			if !g.allowExtrapolation {
				return cell{}, fmt.Errorf("%w: %v on axis %d is outside [%v, %v]",
					ErrOutsideGrid, v, axis, values[0], values[last])
			}
		}

		if last == 0 {
			// single grid line: both corners reuse it
			continue
		}

		// lower grid line: largest value strictly below v, kept within
		// [0, last-1] so that the cell always exists. A query exactly on
		// the upper bound falls into the last cell with t = 1.
		lo := sort.SearchFloat64s(values, v) - 1
		lo = max(0, min(lo, last-1))
		c.lower[axis], c.upper[axis] = lo, lo+1

		t := (v - values[lo]) / (values[lo+1] - values[lo])
		if !g.allowExtrapolation {
			t = max(0, min(t, 1))
		}
		c.t[axis] = t
	}

	return c, nil
}
