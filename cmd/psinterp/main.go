package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"psinterp/internal/models"
	"psinterp/pkg/config"
	"psinterp/pkg/datasource"
	"psinterp/pkg/interpolation"
	"psinterp/pkg/locator"
	"psinterp/pkg/logging"
	"psinterp/pkg/scaler"
	"psinterp/pkg/validation"
	"psinterp/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "psinterp.yaml", "YAML configuration file")
	envPath := flag.String("env", ".env", "Optional file with PSINTERP_* environment variables")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	input := flag.String("input", "", "Data file (.csv, .txt, .xlsx, optionally .gz/.zst/.lz4 compressed)")
	output := flag.String("output", "", "Output CSV file for the estimates (default: stdout)")
	method := flag.String("method", "", "Estimation method: grid or nearest")
	extrapolate := flag.Bool("extrapolate", false, "Allow the grid interpolator to extrapolate")
	neighbors := flag.Int("neighbors", 0, "Number of neighbours blended by the nearest method")
	exponent := flag.Float64("exponent", 0, "Inverse-distance exponent of the nearest method")
	inputDim := flag.Int("input-dim", 0, "Number of coordinate columns")
	outputDim := flag.Int("output-dim", 0, "Number of value columns")
	samples := flag.Int("samples", 10, "Lattice points per axis over the data bounds")
	query := flag.String("query", "", "Single comma-separated point to evaluate instead of a lattice")
	imagePath := flag.String("image", "", "Render the first output over the first two input axes to a .png or .jpg file")
	imageSize := flag.Int("image-size", 256, "Width and height of the rendered image in pixels")
	folds := flag.Int("validate", -1, "Run k-fold cross-validation with this many folds (0 or 1: leave-one-out)")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	if err := config.LoadEnvFiles(*envPath); err != nil {
		log.Fatalf("Failed to load environment: %v", err)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("Failed to apply environment: %v", err)
	}

	// Explicit flags take precedence over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Source.Path = *input
		case "output":
			cfg.Output.Path = *output
		case "method":
			cfg.Estimator.Method = *method
		case "extrapolate":
			cfg.Estimator.AllowExtrapolation = *extrapolate
		case "neighbors":
			cfg.Estimator.Neighbors = *neighbors
		case "exponent":
			cfg.Estimator.DistanceExponent = *exponent
		case "input-dim":
			cfg.Source.InputDim = *inputDim
		case "output-dim":
			cfg.Source.OutputDim = *outputDim
		}
	})

	if err := cfg.Validate(); err != nil {
		flag.Usage()
		log.Fatalf("%v", err)
	}

	logger := logging.FromConfig(os.Stderr, cfg.Output.LogFormat, cfg.Output.Verbose)

	fmt.Fprintln(os.Stderr, "================================")
	fmt.Fprintln(os.Stderr, "PSINTERP: DATA-DRIVEN VALUE ESTIMATION")
	fmt.Fprintf(os.Stderr, "Method: %s, dimensions: %d -> %d\n", cfg.Estimator.Method, cfg.Source.InputDim, cfg.Source.OutputDim)
	fmt.Fprintln(os.Stderr, "================================")

	src, err := datasource.Open(cfg.SourceOptions())
	if err != nil {
		log.Fatalf("Failed to open data source: %v", err)
	}
	if s, ok := src.(*datasource.SQL); ok {
		defer s.Close()
	}

	ds, err := src.All()
	logger.LogIngest(fmt.Sprintf("%T", src), ds.Len(), err)
	if err != nil {
		log.Fatalf("Failed to read data: %v", err)
	}
	if c, ok := src.(*datasource.CSV); ok {
		if params := c.PositionalParameters(); len(params) > 0 {
			logger.Info("positional parameters", "values", params)
		}
		for name, v := range c.NamedParameters() {
			logger.Info("named parameter", "name", name, "value", v)
		}
	}

	var points [][]float64
	if *query != "" {
		p, err := parsePoint(*query, ds.InputDim)
		if err != nil {
			log.Fatalf("Invalid query: %v", err)
		}
		points = [][]float64{p}
	} else {
		points = lattice(ds, *samples)
	}

	w, err := openWriter(cfg, ds)
	if err != nil {
		log.Fatalf("Failed to create output: %v", err)
	}

	work := job{
		data:      ds,
		points:    points,
		workers:   cfg.Estimator.Workers,
		writer:    w,
		imagePath: *imagePath,
		imageSize: *imageSize,
		folds:     *folds,
	}

	startTime := time.Now()
	var failed int
	switch cfg.Estimator.Method {
	case config.MethodGrid:
		newGrid := func() interpolation.ValueEstimator[bool] {
			return interpolation.NewRectilinearGrid(interpolation.GridParams{
				AllowExtrapolation: cfg.Estimator.AllowExtrapolation,
				Logger:             logger,
			})
		}
		failed, err = run(newGrid, work, func(inside bool) float64 {
			if inside {
				return 1
			}
			return 0
		})
	case config.MethodNearest:
		newNearest := func() interpolation.ValueEstimator[float64] {
			// names were checked by Validate
			est, _ := buildNearest(cfg, logger)
			return est
		}
		failed, err = run(newNearest, work, func(d float64) float64 { return d })
	}
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		log.Fatalf("Estimation failed: %v", err)
	}
	processingTime := time.Since(startTime)

	fmt.Fprintf(os.Stderr, "\nEvaluated %d points in %.3f seconds (%d failed)\n", len(points), processingTime.Seconds(), failed)
	if cfg.Output.Path != "" {
		fmt.Fprintf(os.Stderr, "Estimates saved to: %s\n", cfg.Output.Path)
	}
}

// buildNearest creates a nearest-neighbour estimator with the configured
// scaler and locator
func buildNearest(cfg *config.Config, logger *logging.Logger) (*interpolation.NearestNeighbors, error) {
	s, err := scaler.New(cfg.Estimator.Scaler)
	if err != nil {
		return nil, err
	}
	switch s := s.(type) {
	case *scaler.StandardScaler:
		s.Workers = cfg.Estimator.Workers
	case *scaler.MedianDistanceScaler:
		s.Workers = cfg.Estimator.Workers
	}

	l, err := locator.New(cfg.Estimator.Locator)
	if err != nil {
		return nil, err
	}

	return interpolation.NewNearestNeighbors(interpolation.NeighborsParams{
		Neighbors:        cfg.Estimator.Neighbors,
		DistanceExponent: cfg.Estimator.DistanceExponent,
		Scaler:           s,
		Locator:          l,
		Logger:           logger,
	}), nil
}

// job describes the work requested on the command line
type job struct {
	data      *models.Dataset
	points    [][]float64
	workers   int
	writer    *datasource.CSVWriter
	imagePath string
	imageSize int
	folds     int
}

// run evaluates an estimator at every point and writes one row per
// successful estimate: the point, the value and the diagnostic. It then
// renders the requested image and runs the requested cross-validation.
func run[D any](newEstimator func() interpolation.ValueEstimator[D], j job, diagnostic func(D) float64) (int, error) {
	est := newEstimator()
	if err := est.SetData(j.data); err != nil {
		return 0, err
	}
	results, err := interpolation.EstimateBatch(est, j.points, j.workers)
	if err != nil {
		return 0, err
	}

	failed := 0
	for i, r := range results {
		if r.Err != nil {
			log.Printf("Warning: point %v: %v", j.points[i], r.Err)
			failed++
			continue
		}
		row := make([]float64, 0, len(j.points[i])+len(r.Value)+1)
		row = append(row, j.points[i]...)
		row = append(row, r.Value...)
		row = append(row, diagnostic(r.Diagnostic))
		if err := j.writer.WriteRow(row); err != nil {
			return failed, err
		}
	}

	if j.imagePath != "" {
		if j.data.InputDim < 2 {
			log.Printf("Warning: image rendering needs at least two input dimensions")
		} else {
			lower, upper := j.data.Bounds()
			slice, err := visualization.SampleSlice(est, lower, upper, [2]int{0, 1}, 0, j.imageSize, j.imageSize, j.workers)
			if err != nil {
				return failed, fmt.Errorf("error rendering image: %w", err)
			}
			if err := slice.Save(j.imagePath); err != nil {
				return failed, fmt.Errorf("error saving image: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Image saved to: %s\n", j.imagePath)
		}
	}

	if j.folds >= 0 {
		metrics, err := validation.CrossValidate(newEstimator, j.data, j.folds, j.workers)
		if err != nil {
			return failed, fmt.Errorf("error cross-validating: %w", err)
		}
		fmt.Fprintf(os.Stderr, "\nCross-validation:\n")
		fmt.Fprintf(os.Stderr, "=================\n")
		for k, m := range metrics {
			fmt.Fprintf(os.Stderr, "f%d: RMSE %.6g, MAE %.6g, max error %.6g, R^2 %.4f (%d samples, %d unanswered)\n",
				k, m.RMSE, m.MAE, m.MaxError, m.RSquared, m.Samples, m.Failed)
		}
	}
	return failed, nil
}

func openWriter(cfg *config.Config, ds *models.Dataset) (*datasource.CSVWriter, error) {
	diagnostic := "inside"
	if cfg.Estimator.Method == config.MethodNearest {
		diagnostic = "distance"
	}
	columns := make([]string, 0, ds.Width()+1)
	for i := 0; i < ds.InputDim; i++ {
		columns = append(columns, fmt.Sprintf("x%d", i))
	}
	for i := 0; i < ds.OutputDim; i++ {
		columns = append(columns, fmt.Sprintf("f%d", i))
	}
	columns = append(columns, diagnostic)

	header := strings.Join(columns, ", ")
	if cfg.Output.Header != "" {
		header = cfg.Output.Header + "\n" + header
	}

	if cfg.Output.Path == "" {
		return datasource.NewCSVWriter(os.Stdout, header, len(columns))
	}
	return datasource.CreateCSVWriter(cfg.Output.Path, header, len(columns))
}

func parsePoint(s string, dims int) ([]float64, error) {
	fields := strings.Split(s, ",")
	if len(fields) != dims {
		return nil, fmt.Errorf("%d coordinates, want %d", len(fields), dims)
	}
	p := make([]float64, dims)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, err
		}
		p[i] = v
	}
	return p, nil
}

// lattice returns n evenly spaced points per axis spanning the bounding
// box of the dataset inputs, last axis varying fastest
func lattice(ds *models.Dataset, n int) [][]float64 {
	n = max(n, 1)
	lower, upper := ds.Bounds()

	total := int(math.Pow(float64(n), float64(ds.InputDim)))
	points := make([][]float64, 0, total)
	idx := make([]int, ds.InputDim)
	for range total {
		p := make([]float64, ds.InputDim)
		for axis, i := range idx {
			switch {
			case n == 1:
				p[axis] = (lower[axis] + upper[axis]) / 2
			case i == n-1:
				p[axis] = upper[axis]
			default:
				p[axis] = lower[axis] + (upper[axis]-lower[axis])*float64(i)/float64(n-1)
			}
		}
		points = append(points, p)

		for axis := ds.InputDim - 1; axis >= 0; axis-- {
			idx[axis]++
			if idx[axis] < n {
				break
			}
			idx[axis] = 0
		}
	}
	return points
}
