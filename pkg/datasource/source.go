// Package datasource supplies fully materialized datasets to the
// estimators. A source is pulled once per (re-)initialization; a missing or
// malformed source yields an error and no data.
package datasource

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"psinterp/internal/models"
)

var (
	// ErrNoData is returned by sources that could not produce any sample
	ErrNoData = errors.New("datasource: no data")

	// ErrUnknownFormat is returned by Open for unsupported formats
	ErrUnknownFormat = errors.New("datasource: unknown format")
)

// DataSource produces a complete, already-parsed dataset on demand
type DataSource interface {
	All() (*models.Dataset, error)
}

// ParameterSource is implemented by sources that carry metadata parameters
// next to the samples, such as "#!" lines in CSV files
type ParameterSource interface {
	PositionalParameters() []float64
	NamedParameters() map[string]float64
}

// Memory serves a dataset held in memory. Every pull returns a fresh copy.
type Memory struct {
	data *models.Dataset
}

// NewMemory creates a Memory source over a copy of ds
func NewMemory(ds *models.Dataset) *Memory {
	return &Memory{data: ds.Clone()}
}

// All implements DataSource
func (m *Memory) All() (*models.Dataset, error) {
	if m.data.Empty() {
		return nil, ErrNoData
	}
	return m.data.Clone(), nil
}

// Options describe where a dataset comes from and how its columns split
// into inputs and outputs
type Options struct {
	// Path of a CSV (optionally compressed) or XLSX file
	Path string

	// Format overrides detection by file extension: "csv", "xlsx" or "sql"
	Format string

	// InputDim and OutputDim give the column split of every row
	InputDim  int
	OutputDim int

	// Offset is the number of leading lines (CSV) or rows (XLSX) to skip
	Offset int

	// Delimiter separates CSV fields; zero means ','
	Delimiter rune

	// Sheet selects an XLSX worksheet; empty means the first sheet
	Sheet string

	// Driver, DSN and Query configure a SQL source
	Driver string
	DSN    string
	Query  string
}

// Open builds the source described by opts. SQL sources open their
// database lazily on the first pull.
func Open(opts Options) (DataSource, error) {
	if opts.InputDim <= 0 || opts.OutputDim <= 0 {
		return nil, fmt.Errorf("datasource: invalid dimensions %d+%d", opts.InputDim, opts.OutputDim)
	}

	switch detectFormat(opts) {
	case "csv":
		src := NewCSV(opts.Path, opts.InputDim, opts.OutputDim)
		src.Offset = opts.Offset
		if opts.Delimiter != 0 {
			src.Delimiter = opts.Delimiter
		}
		return src, nil
	case "xlsx":
		src := NewXLSX(opts.Path, opts.InputDim, opts.OutputDim)
		src.Sheet = opts.Sheet
		src.Offset = opts.Offset
		return src, nil
	case "sql":
		return NewSQL(opts.Driver, opts.DSN, opts.Query, opts.InputDim, opts.OutputDim), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}
}

func detectFormat(opts Options) string {
	if opts.Format != "" {
		return strings.ToLower(opts.Format)
	}
	if opts.DSN != "" {
		return "sql"
	}

	name := strings.ToLower(opts.Path)
	for _, ext := range compressedExtensions {
		name = strings.TrimSuffix(name, ext)
	}
	switch filepath.Ext(name) {
	case ".csv", ".txt", ".dat":
		return "csv"
	case ".xlsx", ".xlsm":
		return "xlsx"
	}
	return ""
}
