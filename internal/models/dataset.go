package models

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidDataset is returned by Validate for tables that cannot be used
// by an estimator.
var ErrInvalidDataset = errors.New("invalid dataset")

// Dataset is an in-memory table of samples. Each row holds InputDim input
// coordinates followed by OutputDim output values.
type Dataset struct {
	// InputDim is the number of leading coordinate columns in every row
	InputDim int

	// OutputDim is the number of trailing value columns in every row
	OutputDim int

	// Rows holds the samples in table order. Indices returned by spatial
	// queries refer to positions in this slice.
	Rows [][]float64
}

// Sample is a read-only view over a single dataset row
type Sample struct {
	row      []float64
	inputDim int
}

// NewDataset creates an empty dataset with the given dimensions
func NewDataset(inputDim, outputDim int) *Dataset {
	return &Dataset{
		InputDim:  inputDim,
		OutputDim: outputDim,
		Rows:      make([][]float64, 0),
	}
}

// Width returns the number of columns of a row
func (d *Dataset) Width() int {
	return d.InputDim + d.OutputDim
}

// Len returns the number of samples. A nil dataset has no samples.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Empty reports whether the dataset holds no samples
func (d *Dataset) Empty() bool {
	return d.Len() == 0
}

// Append adds a copy of the given input and output values as a new row
func (d *Dataset) Append(input, output []float64) error {
	if len(input) != d.InputDim || len(output) != d.OutputDim {
		return fmt.Errorf("%w: row has %d+%d columns, want %d+%d",
			ErrInvalidDataset, len(input), len(output), d.InputDim, d.OutputDim)
	}
	row := make([]float64, 0, d.Width())
	row = append(row, input...)
	row = append(row, output...)
	d.Rows = append(d.Rows, row)
	return nil
}

// At returns the sample at table position i
func (d *Dataset) At(i int) Sample {
	return Sample{row: d.Rows[i], inputDim: d.InputDim}
}

// Column returns a copy of column c across all rows
func (d *Dataset) Column(c int) []float64 {
	col := make([]float64, len(d.Rows))
	for i, row := range d.Rows {
		col[i] = row[c]
	}
	return col
}

// Inputs returns the input coordinates of every row. The returned slices
// alias the dataset rows and must not be modified.
func (d *Dataset) Inputs() [][]float64 {
	inputs := make([][]float64, len(d.Rows))
	for i, row := range d.Rows {
		inputs[i] = row[:d.InputDim:d.InputDim]
	}
	return inputs
}

// Clone returns a deep copy of the dataset
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	c := &Dataset{
		InputDim:  d.InputDim,
		OutputDim: d.OutputDim,
		Rows:      make([][]float64, len(d.Rows)),
	}
	for i, row := range d.Rows {
		c.Rows[i] = append([]float64(nil), row...)
	}
	return c
}

// Validate checks the dimensions and the shape of every row. Input
// coordinates must be finite numbers; outputs may hold any value.
func (d *Dataset) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil dataset", ErrInvalidDataset)
	}
	if d.InputDim <= 0 {
		return fmt.Errorf("%w: input dimension %d", ErrInvalidDataset, d.InputDim)
	}
	if d.OutputDim <= 0 {
		return fmt.Errorf("%w: output dimension %d", ErrInvalidDataset, d.OutputDim)
	}
	width := d.Width()
	for i, row := range d.Rows {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d columns, want %d",
				ErrInvalidDataset, i, len(row), width)
		}
		for axis, v := range row[:d.InputDim] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: row %d has non-finite coordinate on axis %d",
					ErrInvalidDataset, i, axis)
			}
		}
	}
	return nil
}

// Bounds returns the per-axis minimum and maximum input coordinates
func (d *Dataset) Bounds() (lower, upper []float64) {
	lower = make([]float64, d.InputDim)
	upper = make([]float64, d.InputDim)
	for axis := range lower {
		lower[axis] = math.Inf(1)
		upper[axis] = math.Inf(-1)
	}
	for _, row := range d.Rows {
		for axis := 0; axis < d.InputDim; axis++ {
			lower[axis] = math.Min(lower[axis], row[axis])
			upper[axis] = math.Max(upper[axis], row[axis])
		}
	}
	return lower, upper
}

// Input returns the input coordinates of the sample
func (s Sample) Input() []float64 {
	return s.row[:s.inputDim:s.inputDim]
}

// Output returns the output values of the sample
func (s Sample) Output() []float64 {
	return s.row[s.inputDim:]
}
