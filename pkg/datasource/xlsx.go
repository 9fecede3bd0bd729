package datasource

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"psinterp/internal/models"
)

// XLSX reads samples from a spreadsheet worksheet. Each row holds the
// input columns followed by the output columns; rows whose leading cell
// starts with '#' and fully empty rows are skipped.
type XLSX struct {
	Path      string
	InputDim  int
	OutputDim int

	// Sheet selects the worksheet; empty means the first one
	Sheet string

	// Offset is the number of leading rows to skip, e.g. a header
	Offset int
}

// NewXLSX creates an XLSX source for the given workbook and column split
func NewXLSX(path string, inputDim, outputDim int) *XLSX {
	return &XLSX{Path: path, InputDim: inputDim, OutputDim: outputDim}
}

// All implements DataSource
func (x *XLSX) All() (*models.Dataset, error) {
	f, err := excelize.OpenFile(x.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoData, err)
	}
	defer f.Close()

	sheet := x.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: %s has no worksheets", ErrNoData, x.Path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("error reading sheet %q of %s: %w", sheet, x.Path, err)
	}

	ds := models.NewDataset(x.InputDim, x.OutputDim)
	width := ds.Width()
	for i, cells := range rows {
		if i < x.Offset || skipRow(cells) {
			continue
		}
		if len(cells) < width {
			return nil, fmt.Errorf("error reading %s: row %d has %d cells, want %d", x.Path, i+1, len(cells), width)
		}

		row := make([]float64, width)
		for c := range row {
			v, err := strconv.ParseFloat(strings.TrimSpace(cells[c]), 64)
			if err != nil {
				return nil, fmt.Errorf("error reading %s: row %d cell %d: %w", x.Path, i+1, c+1, err)
			}
			row[c] = v
		}
		ds.Rows = append(ds.Rows, row)
	}

	if ds.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrNoData, x.Path)
	}
	return ds, nil
}

func skipRow(cells []string) bool {
	for i, c := range cells {
		c = strings.TrimSpace(c)
		if i == 0 && strings.HasPrefix(c, "#") {
			return true
		}
		if c != "" {
			return false
		}
	}
	return true
}
