// Package config provides configuration loading and management for psinterp.
// It handles loading configuration from YAML files, overlaying environment
// variables and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"psinterp/pkg/datasource"
	"psinterp/pkg/locator"
	"psinterp/pkg/scaler"
)

// EnvPrefix is the prefix of the environment variables read by ApplyEnv
const EnvPrefix = "PSINTERP_"

// Estimation methods
const (
	MethodGrid    = "grid"
	MethodNearest = "nearest"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the application configuration loaded from YAML
type Config struct {
	// Estimator parameters
	Estimator struct {
		// Method selects the estimator: "grid" or "nearest"
		Method string `yaml:"method"`

		// AllowExtrapolation lets the grid interpolator answer queries
		// outside of the grid bounds
		AllowExtrapolation bool `yaml:"allowExtrapolation"`

		// Neighbors is the number of samples blended by the nearest-neighbour estimator
		Neighbors int `yaml:"neighbors"`

		// DistanceExponent controls the decay of the inverse-distance weights
		DistanceExponent float64 `yaml:"distanceExponent"`

		// Scaler selects the per-axis scaling: "standard" or "median"
		Scaler string `yaml:"scaler"`

		// Locator selects the spatial index: "kdtree" or "bruteforce"
		Locator string `yaml:"locator"`

		// Workers bounds the goroutines used for scaling and batch queries
		Workers int `yaml:"workers"`
	} `yaml:"estimator"`

	// Source describes where the samples are read from
	Source struct {
		// Path of a CSV (optionally .gz, .zst or .lz4 compressed) or XLSX file
		Path string `yaml:"path"`

		// Format overrides the detection by file extension: "csv", "xlsx" or "sql"
		Format string `yaml:"format"`

		// Offset is the number of leading lines or rows to skip
		Offset int `yaml:"offset"`

		// Delimiter separates CSV fields
		Delimiter string `yaml:"delimiter"`

		// Sheet names the XLSX sheet; empty selects the first one
		Sheet string `yaml:"sheet"`

		// Driver, DSN and Query describe a SQL source
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
		Query  string `yaml:"query"`

		// InputDim and OutputDim split every row into coordinates and values
		InputDim  int `yaml:"inputDim"`
		OutputDim int `yaml:"outputDim"`
	} `yaml:"source"`

	// Output parameters
	Output struct {
		// Path of the CSV file receiving the estimates; empty writes to stdout
		Path string `yaml:"path"`

		// Header is written as '#' comment lines before the estimates
		Header string `yaml:"header"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`

		// LogFormat is "text" or "json"
		LogFormat string `yaml:"logFormat"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Estimator.Method = MethodGrid
	cfg.Estimator.AllowExtrapolation = false
	cfg.Estimator.Neighbors = 3
	cfg.Estimator.DistanceExponent = 2
	cfg.Estimator.Scaler = "standard"
	cfg.Estimator.Locator = "kdtree"
	cfg.Estimator.Workers = runtime.NumCPU()

	cfg.Source.Delimiter = ","
	cfg.Source.Driver = "postgres"
	cfg.Source.InputDim = 1
	cfg.Source.OutputDim = 1

	cfg.Output.Verbose = false
	cfg.Output.LogFormat = "text"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// LoadEnvFiles loads KEY=VALUE pairs from the given dotenv files into the
// process environment. Missing files are ignored; variables that are
// already set are not overridden.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("error loading env file %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv overrides configuration values with PSINTERP_* environment
// variables, e.g. PSINTERP_SOURCE_DSN or PSINTERP_ESTIMATOR_NEIGHBORS
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"ESTIMATOR_METHOD":  &c.Estimator.Method,
		"ESTIMATOR_SCALER":  &c.Estimator.Scaler,
		"ESTIMATOR_LOCATOR": &c.Estimator.Locator,
		"SOURCE_PATH":       &c.Source.Path,
		"SOURCE_FORMAT":     &c.Source.Format,
		"SOURCE_DELIMITER":  &c.Source.Delimiter,
		"SOURCE_SHEET":      &c.Source.Sheet,
		"SOURCE_DRIVER":     &c.Source.Driver,
		"SOURCE_DSN":        &c.Source.DSN,
		"SOURCE_QUERY":      &c.Source.Query,
		"OUTPUT_PATH":       &c.Output.Path,
		"OUTPUT_HEADER":     &c.Output.Header,
		"OUTPUT_LOG_FORMAT": &c.Output.LogFormat,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"ESTIMATOR_NEIGHBORS": &c.Estimator.Neighbors,
		"ESTIMATOR_WORKERS":   &c.Estimator.Workers,
		"SOURCE_OFFSET":       &c.Source.Offset,
		"SOURCE_INPUT_DIM":    &c.Source.InputDim,
		"SOURCE_OUTPUT_DIM":   &c.Source.OutputDim,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("error parsing %s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "ESTIMATOR_DISTANCE_EXPONENT"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("error parsing %sESTIMATOR_DISTANCE_EXPONENT: %w", EnvPrefix, err)
		}
		c.Estimator.DistanceExponent = f
	}

	bools := map[string]*bool{
		"ESTIMATOR_ALLOW_EXTRAPOLATION": &c.Estimator.AllowExtrapolation,
		"OUTPUT_VERBOSE":                &c.Output.Verbose,
	}
	for key, dst := range bools {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("error parsing %s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}

	return nil
}

// Validate checks that the configuration describes a usable estimator and
// data source
func (c *Config) Validate() error {
	switch c.Estimator.Method {
	case MethodGrid, MethodNearest:
	default:
		return fmt.Errorf("%w: unknown method %q", ErrInvalidConfig, c.Estimator.Method)
	}
	if c.Estimator.Method == MethodNearest && c.Estimator.Neighbors <= 0 {
		return fmt.Errorf("%w: neighbors must be positive, got %d", ErrInvalidConfig, c.Estimator.Neighbors)
	}
	if _, err := scaler.New(c.Estimator.Scaler); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := locator.New(c.Estimator.Locator); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Source.InputDim <= 0 || c.Source.OutputDim <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %d+%d",
			ErrInvalidConfig, c.Source.InputDim, c.Source.OutputDim)
	}
	if c.Source.Offset < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrInvalidConfig, c.Source.Offset)
	}
	if len([]rune(c.Source.Delimiter)) > 1 {
		return fmt.Errorf("%w: delimiter %q is not a single character", ErrInvalidConfig, c.Source.Delimiter)
	}
	if c.Source.Path == "" && c.Source.DSN == "" {
		return fmt.Errorf("%w: no data source configured", ErrInvalidConfig)
	}
	return nil
}

// SourceOptions converts the source section into data source options
func (c *Config) SourceOptions() datasource.Options {
	opts := datasource.Options{
		Path:      c.Source.Path,
		Format:    c.Source.Format,
		InputDim:  c.Source.InputDim,
		OutputDim: c.Source.OutputDim,
		Offset:    c.Source.Offset,
		Sheet:     c.Source.Sheet,
		Driver:    c.Source.Driver,
		DSN:       c.Source.DSN,
		Query:     c.Source.Query,
	}
	if r := []rune(c.Source.Delimiter); len(r) == 1 {
		opts.Delimiter = r[0]
	}
	return opts
}
