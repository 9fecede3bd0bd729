package datasource

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"psinterp/internal/models"
)

// SQL reads samples from the result set of a query. The first
// InputDim+OutputDim columns of every result row are used. The database
// driver must be registered by the caller (e.g. by importing lib/pq).
type SQL struct {
	Driver    string
	DSN       string
	Query     string
	InputDim  int
	OutputDim int

	db *sqlx.DB
}

// NewSQL creates a SQL source that connects on the first pull
func NewSQL(driver, dsn, query string, inputDim, outputDim int) *SQL {
	return &SQL{
		Driver:    driver,
		DSN:       dsn,
		Query:     query,
		InputDim:  inputDim,
		OutputDim: outputDim,
	}
}

// NewSQLFromDB creates a SQL source over an existing connection pool
func NewSQLFromDB(db *sqlx.DB, query string, inputDim, outputDim int) *SQL {
	return &SQL{
		Driver:    db.DriverName(),
		Query:     query,
		InputDim:  inputDim,
		OutputDim: outputDim,
		db:        db,
	}
}

// All implements DataSource
func (s *SQL) All() (*models.Dataset, error) {
	if s.db == nil {
		db, err := sqlx.Connect(s.Driver, s.DSN)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoData, err)
		}
		s.db = db
	}

	rows, err := s.db.Queryx(s.Query)
	if err != nil {
		return nil, fmt.Errorf("error running query: %w", err)
	}
	defer rows.Close()

	ds := models.NewDataset(s.InputDim, s.OutputDim)
	width := ds.Width()
	for n := 1; rows.Next(); n++ {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("error scanning row %d: %w", n, err)
		}
		if len(values) < width {
			return nil, fmt.Errorf("error scanning row %d: %d columns, want %d", n, len(values), width)
		}

		row := make([]float64, width)
		for i := range row {
			if row[i], err = toFloat(values[i]); err != nil {
				return nil, fmt.Errorf("error scanning row %d column %d: %w", n, i+1, err)
			}
		}
		ds.Rows = append(ds.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	if ds.Empty() {
		return nil, ErrNoData
	}
	return ds, nil
}

// Close releases the connection pool
func (s *SQL) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// toFloat converts a value returned by a database driver to float64
func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	case nil:
		return 0, fmt.Errorf("NULL value")
	default:
		return 0, fmt.Errorf("unsupported column type %T", v)
	}
}
