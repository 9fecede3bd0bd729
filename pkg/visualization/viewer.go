// Package visualization renders two-dimensional slices of an estimator as
// grayscale images.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"psinterp/pkg/interpolation"
)

// Slice holds estimates sampled on a width x height lattice spanning two
// input axes. Values are stored row by row, the first axis varying fastest.
type Slice struct {
	values []float64
	width  int
	height int

	// Axes are the input axes mapped to image columns and rows
	Axes [2]int
}

// NewSlice wraps precomputed values. NaN marks points without an estimate.
func NewSlice(values []float64, width, height int) (*Slice, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("slice dimensions must be positive, got %dx%d", width, height)
	}
	if len(values) != width*height {
		return nil, fmt.Errorf("slice has %d values, want %d", len(values), width*height)
	}
	return &Slice{values: values, width: width, height: height, Axes: [2]int{0, 1}}, nil
}

// SampleSlice evaluates output of est on a width x height lattice over
// [lower, upper] along axes. The remaining input axes are fixed at the
// centre of their bounds. Points the estimator cannot answer become NaN.
func SampleSlice[D any](est interpolation.ValueEstimator[D], lower, upper []float64, axes [2]int, output, width, height, workers int) (*Slice, error) {
	if len(lower) != len(upper) {
		return nil, fmt.Errorf("bounds have %d and %d dimensions", len(lower), len(upper))
	}
	for _, a := range axes {
		if a < 0 || a >= len(lower) {
			return nil, fmt.Errorf("axis %d out of range [0, %d)", a, len(lower))
		}
	}
	if axes[0] == axes[1] {
		return nil, fmt.Errorf("slice axes must differ, got %d twice", axes[0])
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("slice dimensions must be positive, got %dx%d", width, height)
	}

	centre := make([]float64, len(lower))
	for i := range centre {
		centre[i] = (lower[i] + upper[i]) / 2
	}

	points := make([][]float64, 0, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p := append([]float64(nil), centre...)
			p[axes[0]] = position(lower[axes[0]], upper[axes[0]], x, width)
			p[axes[1]] = position(lower[axes[1]], upper[axes[1]], y, height)
			points = append(points, p)
		}
	}

	results, err := interpolation.EstimateBatch(est, points, workers)
	if err != nil {
		return nil, err
	}

	values := make([]float64, len(results))
	for i, r := range results {
		if r.Err != nil || output >= len(r.Value) {
			values[i] = math.NaN()
			continue
		}
		values[i] = r.Value[output]
	}

	s, err := NewSlice(values, width, height)
	if err != nil {
		return nil, err
	}
	s.Axes = axes
	return s, nil
}

// position returns the i-th of n evenly spaced values spanning [lo, hi]
func position(lo, hi float64, i, n int) float64 {
	switch {
	case n == 1:
		return (lo + hi) / 2
	case i == n-1:
		return hi
	default:
		return lo + (hi-lo)*float64(i)/float64(n-1)
	}
}

// At returns the value of pixel (x, y)
func (s *Slice) At(x, y int) float64 {
	return s.values[y*s.width+x]
}

// Range returns the smallest and largest finite values of the slice
func (s *Slice) Range() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range s.values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// Image maps the value range of the slice linearly onto 16-bit gray
// levels. Row 0 of the image holds the largest values of the second axis.
// Missing values are black.
func (s *Slice) Image() image.Image {
	lo, hi := s.Range()
	span := hi - lo

	img := image.NewGray16(image.Rect(0, 0, s.width, s.height))
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			v := s.At(x, y)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			level := 1.0
			if span > 0 {
				level = (v - lo) / span
			}
			value := uint16(math.Max(0, math.Min(65535, level*65535)))
			img.SetGray16(x, s.height-1-y, color.Gray16{Y: value})
		}
	}
	return img
}

// Save writes the slice image to filename. The encoding follows the file
// extension: .png, or .jpg/.jpeg.
func (s *Slice) Save(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return png.Encode(file, s.Image())
	case ".jpg", ".jpeg":
		return jpeg.Encode(file, s.Image(), &jpeg.Options{Quality: 90})
	default:
		return fmt.Errorf("unsupported image format: %s", filepath.Ext(filename))
	}
}
