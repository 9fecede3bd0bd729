package datasource

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"psinterp/internal/models"
)

var compressedExtensions = []string{".gz", ".zst", ".lz4"}

var (
	namedParamRegex = regexp.MustCompile(`^[ \t]*([0-9a-zA-Z_]+)[ \t]*=[ \t]*([0-9eE.\-+]+)[ \t]*$`)
	spaceRunRegex   = regexp.MustCompile(` {2,}`)
)

// CSV reads samples from a delimited text file. Lines starting with '#' are
// comments; comment lines starting with "#!" carry comma separated
// parameters, either plain numbers (positional) or name=value pairs (named).
// Files ending in .gz, .zst or .lz4 are decompressed transparently.
type CSV struct {
	Path      string
	InputDim  int
	OutputDim int

	// Offset is the number of leading lines to skip, e.g. a header
	Offset int

	// Delimiter separates fields; defaults to ','
	Delimiter rune

	mu         sync.Mutex
	comments   []string
	positional []float64
	named      map[string]float64
	parsed     bool
}

// NewCSV creates a CSV source for the given file and column split
func NewCSV(path string, inputDim, outputDim int) *CSV {
	return &CSV{
		Path:      path,
		InputDim:  inputDim,
		OutputDim: outputDim,
		Delimiter: ',',
	}
}

// All implements DataSource
func (c *CSV) All() (*models.Dataset, error) {
	r, err := openDecompressed(c.Path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	ds, comments, err := c.parse(r)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", c.Path, err)
	}

	positional, named := parseParameters(comments)

	c.mu.Lock()
	c.comments = comments
	c.positional = positional
	c.named = named
	c.parsed = true
	c.mu.Unlock()

	if ds.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrNoData, c.Path)
	}
	return ds, nil
}

// Comments returns the comment lines of the last pull without the leading '#'
func (c *CSV) Comments() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.comments...)
}

// PositionalParameters implements ParameterSource. It returns nil before
// the first successful call to All.
func (c *CSV) PositionalParameters() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.parsed {
		return nil
	}
	return append([]float64(nil), c.positional...)
}

// NamedParameters implements ParameterSource. It returns nil before the
// first successful call to All.
func (c *CSV) NamedParameters() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.parsed {
		return nil
	}
	out := make(map[string]float64, len(c.named))
	for k, v := range c.named {
		out[k] = v
	}
	return out
}

func (c *CSV) parse(r io.Reader) (*models.Dataset, []string, error) {
	delimiter := c.Delimiter
	if delimiter == 0 {
		delimiter = ','
	}

	ds := models.NewDataset(c.InputDim, c.OutputDim)
	width := ds.Width()
	var comments []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo <= c.Offset {
			continue
		}

		line := strings.TrimSpace(spaceRunRegex.ReplaceAllString(scanner.Text(), " "))
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			comments = append(comments, strings.TrimPrefix(line, "#"))
			continue
		}

		fields := strings.Split(line, string(delimiter))
		if len(fields) < width {
			return nil, nil, fmt.Errorf("line %d: %d fields, want %d", lineNo, len(fields), width)
		}

		row := make([]float64, width)
		for i := range row {
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d field %d: %w", lineNo, i+1, err)
			}
			row[i] = v
		}
		ds.Rows = append(ds.Rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	return ds, comments, nil
}

// parseParameters extracts the parameters of "#!" comment lines. Entries
// that cannot be parsed are skipped.
func parseParameters(comments []string) ([]float64, map[string]float64) {
	positional := make([]float64, 0)
	named := make(map[string]float64)

	for _, comment := range comments {
		if !strings.HasPrefix(comment, "!") {
			continue
		}
		for _, entry := range strings.Split(comment[1:], ",") {
			if strings.TrimSpace(entry) == "" {
				continue
			}
			if !strings.Contains(entry, "=") {
				if v, err := strconv.ParseFloat(strings.TrimSpace(entry), 64); err == nil {
					positional = append(positional, v)
				}
				continue
			}
			m := namedParamRegex.FindStringSubmatch(entry)
			if m == nil {
				continue
			}
			if v, err := strconv.ParseFloat(m[2], 64); err == nil {
				named[m[1]] = v
			}
		}
	}

	return positional, named
}

// decompressedFile closes both the decoder and the underlying file
type decompressedFile struct {
	io.Reader
	closers []func() error
}

func (d *decompressedFile) Close() error {
	var first error
	for _, c := range d.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openDecompressed opens path and wraps it in a decoder chosen by extension
func openDecompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoData, err)
	}

	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("error opening gzip stream: %w", err)
		}
		return &decompressedFile{Reader: zr, closers: []func() error{zr.Close, f.Close}}, nil
	case strings.HasSuffix(lower, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("error opening zstd stream: %w", err)
		}
		return &decompressedFile{Reader: zr, closers: []func() error{
			func() error { zr.Close(); return nil },
			f.Close,
		}}, nil
	case strings.HasSuffix(lower, ".lz4"):
		return &decompressedFile{Reader: lz4.NewReader(f), closers: []func() error{f.Close}}, nil
	default:
		return f, nil
	}
}
