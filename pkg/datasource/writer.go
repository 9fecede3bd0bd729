package datasource

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// CSVWriter writes rows of floats as delimited text, preceded by an
// optional '#' comment header
type CSVWriter struct {
	w         *bufio.Writer
	closer    io.Closer
	delimiter string
	columns   int
}

// NewCSVWriter creates a writer on w. Every line of header is written as a
// comment. columns fixes the row width; zero accepts any width.
func NewCSVWriter(w io.Writer, header string, columns int) (*CSVWriter, error) {
	cw := &CSVWriter{
		w:         bufio.NewWriter(w),
		delimiter: ",",
		columns:   columns,
	}
	if header != "" {
		for _, line := range strings.Split(header, "\n") {
			if _, err := fmt.Fprintf(cw.w, "# %s\n", strings.TrimRight(line, "\r")); err != nil {
				return nil, fmt.Errorf("error writing header: %w", err)
			}
		}
	}
	return cw, nil
}

// CreateCSVWriter creates the file at path, including missing parent
// directories, and returns a writer on it. Close must be called.
func CreateCSVWriter(path, header string, columns int) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("error creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("error creating output file: %w", err)
	}
	cw, err := NewCSVWriter(f, header, columns)
	if err != nil {
		f.Close()
		return nil, err
	}
	cw.closer = f
	return cw, nil
}

// WriteRow writes one row
func (cw *CSVWriter) WriteRow(values []float64) error {
	if cw.columns > 0 && len(values) != cw.columns {
		return fmt.Errorf("row has %d values, want %d", len(values), cw.columns)
	}
	for i, v := range values {
		if i > 0 {
			if _, err := cw.w.WriteString(cw.delimiter); err != nil {
				return err
			}
		}
		if _, err := cw.w.WriteString(strconv.FormatFloat(v, 'g', -1, 64)); err != nil {
			return err
		}
	}
	return cw.w.WriteByte('\n')
}

// Flush writes buffered rows to the underlying writer
func (cw *CSVWriter) Flush() error {
	return cw.w.Flush()
}

// Close flushes and closes the underlying file if the writer owns one
func (cw *CSVWriter) Close() error {
	if err := cw.Flush(); err != nil {
		if cw.closer != nil {
			cw.closer.Close()
		}
		return err
	}
	if cw.closer != nil {
		return cw.closer.Close()
	}
	return nil
}
