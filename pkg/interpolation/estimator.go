// Package interpolation turns tabular datasets into reusable functions
// f: R^InputDim -> R^OutputDim. Two estimators are provided: multilinear
// interpolation on rectilinear grids and inverse-distance-weighted
// nearest-neighbour estimation for scattered samples.
//
// Both follow the same lifecycle. Data is ingested once through SetData or
// SetDataSource, Initialize performs the one-time preprocessing, and any
// number of Estimate calls follow. Ingesting new data invalidates the
// preprocessed structures; the next Estimate re-initializes. Once
// initialized, Estimate does not mutate the estimator and may be called
// from several goroutines, but ingestion must not overlap with queries.
package interpolation

import (
	"errors"
	"fmt"
	"math"

	"psinterp/internal/models"
	"psinterp/pkg/datasource"
	"psinterp/pkg/logging"
)

var (
	// ErrNoData is returned when no dataset has been ingested or the data
	// source produced none
	ErrNoData = errors.New("interpolation: no data")

	// ErrNotInitialized wraps the initialization failure reported by every
	// Estimate call until new data is ingested
	ErrNotInitialized = errors.New("interpolation: estimator is not initialized")

	// ErrNotRectilinear is returned when the samples do not form the full
	// Cartesian product of their per-axis coordinate values
	ErrNotRectilinear = errors.New("interpolation: data is not arranged in a rectilinear grid")

	// ErrOutsideGrid is returned for queries outside the grid bounds when
	// extrapolation is disabled
	ErrOutsideGrid = errors.New("interpolation: point lies outside of the grid")

	// ErrEmptyAxis is returned when the grid holds no values along an axis
	ErrEmptyAxis = errors.New("interpolation: grid has no values along an axis")

	// ErrInvalidNeighbors is returned when fewer than one neighbour is requested
	ErrInvalidNeighbors = errors.New("interpolation: number of neighbors must be positive")

	// ErrInvalidQuery is returned for query points holding NaN coordinates
	ErrInvalidQuery = errors.New("interpolation: query has NaN coordinates")

	// ErrTooManyDimensions is returned when the corner count of a grid cell
	// would not fit in an int
	ErrTooManyDimensions = errors.New("interpolation: too many input dimensions")
)

// DimensionMismatchError indicates a query point with the wrong arity
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("interpolation: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ValueEstimator is the query interface shared by the estimators. D is the
// per-query diagnostic: an inside-bounds flag for grids, the nearest
// distance for nearest-neighbour estimation.
type ValueEstimator[D any] interface {
	SetDataSource(src datasource.DataSource)
	SetData(ds *models.Dataset) error
	Initialize() error
	Ready() bool
	Estimate(x []float64) ([]float64, D, error)
}

// lifecycle holds the ingestion state shared by the estimators. The
// dataset is exclusively owned: it is either pulled from the source or
// copied from the caller, and replaced wholesale on re-ingestion.
type lifecycle struct {
	source  datasource.DataSource
	data    *models.Dataset
	dirty   bool
	ready   bool
	initErr error
	logger  *logging.Logger
}

func newLifecycle(logger *logging.Logger, component string) lifecycle {
	return lifecycle{
		initErr: ErrNoData,
		logger:  logging.Or(logger).WithComponent(component),
	}
}

// SetDataSource replaces the data source. The source is pulled on the next
// initialization.
func (l *lifecycle) SetDataSource(src datasource.DataSource) {
	l.source = src
	l.data = nil
	l.invalidate()
}

// SetData replaces the dataset with a copy of ds and detaches any data
// source. An invalid dataset is rejected and leaves the estimator without
// data.
func (l *lifecycle) SetData(ds *models.Dataset) error {
	l.source = nil
	l.data = nil
	l.invalidate()

	if err := ds.Validate(); err != nil {
		l.initErr = fmt.Errorf("%w: %w", ErrNoData, err)
		l.dirty = false
		return err
	}
	l.data = ds.Clone()
	return nil
}

// Ready reports whether the estimator has been successfully initialized
// on the current data
func (l *lifecycle) Ready() bool {
	return l.ready && !l.dirty
}

func (l *lifecycle) invalidate() {
	l.dirty = true
	l.ready = false
	l.initErr = ErrNoData
}

// ingest pulls from the data source when one is set and returns the
// dataset to initialize from
func (l *lifecycle) ingest() (*models.Dataset, error) {
	if l.source != nil {
		ds, err := l.source.All()
		l.logger.LogIngest(fmt.Sprintf("%T", l.source), ds.Len(), err)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoData, err)
		}
		if err := ds.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoData, err)
		}
		l.data = ds
	}
	if l.data.Empty() {
		return nil, ErrNoData
	}
	return l.data, nil
}

// finish records the outcome of an initialization
func (l *lifecycle) finish(err error) error {
	l.dirty = false
	l.ready = err == nil
	l.initErr = err
	l.logger.LogInitialize(l.data.Len(), err)
	return err
}

// ensure initializes lazily when new data has been ingested and reports
// the stored failure otherwise
func (l *lifecycle) ensure(initialize func() error) error {
	if l.dirty {
		initialize()
	}
	if !l.ready {
		return fmt.Errorf("%w: %w", ErrNotInitialized, l.initErr)
	}
	return nil
}

func checkQuery(x []float64, dims int) error {
	if len(x) != dims {
		return &DimensionMismatchError{Expected: dims, Actual: len(x)}
	}
	for _, v := range x {
		if math.IsNaN(v) {
			return ErrInvalidQuery
		}
	}
	return nil
}
