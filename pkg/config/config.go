// Package config loads the on-disk layout and tuning of a timegraph
// database from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/timegraphdb/pkg/logging"
)

// Environment overrides applied by Load.
const (
	EnvDataDir  = "TIMEGRAPH_DATA_DIR"
	EnvLogLevel = "LOG_LEVEL"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		_, ok := logging.LookupLevel(fl.Field().String())
		return ok
	}); err != nil {
		panic(err)
	}
	return v
}

// Config describes where a database lives and how it is tuned. File names
// are relative to DataDir unless absolute.
type Config struct {
	DataDir         string `yaml:"data_dir" validate:"required"`
	GraphFile       string `yaml:"graph_file" validate:"required"`
	IndexFile       string `yaml:"index_file" validate:"required"`
	NodeIndexFile   string `yaml:"node_index_file" validate:"required"`
	NodeContentFile string `yaml:"node_content_file" validate:"required"`

	FillFactor         int  `yaml:"fill_factor" validate:"min=1,max=1000"`
	MaxShuffleDistance int  `yaml:"max_shuffle_distance" validate:"min=1,max=65536"`
	CompressNodes      bool `yaml:"compress_nodes"`

	LogLevel string `yaml:"log_level" validate:"omitempty,loglevel"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DataDir:            ".",
		GraphFile:          "database.graph",
		IndexFile:          "unique.index",
		NodeIndexFile:      "nodes.index",
		NodeContentFile:    "nodes.content",
		FillFactor:         10,
		MaxShuffleDistance: 225,
		LogLevel:           "info",
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields set in the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate checks every field against its constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// Save writes c to path as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func (c Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// GraphPath is the sorted gap file.
func (c Config) GraphPath() string { return c.resolve(c.GraphFile) }

// IndexPath is the unique key hash index.
func (c Config) IndexPath() string { return c.resolve(c.IndexFile) }

// NodeIndexPath is the node content index.
func (c Config) NodeIndexPath() string { return c.resolve(c.NodeIndexFile) }

// NodeContentPath is the node content file.
func (c Config) NodeContentPath() string { return c.resolve(c.NodeContentFile) }

// Level returns the configured log level.
func (c Config) Level() logging.Level {
	return logging.ParseLevel(c.LogLevel)
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// Report the first failure
	for _, e := range validationErrs {
		field := e.Field()
		switch e.Tag() {
		case "required":
			return fmt.Errorf("config.%s: field is required", field)
		case "min":
			return fmt.Errorf("config.%s: must be at least %s", field, e.Param())
		case "max":
			return fmt.Errorf("config.%s: must not exceed %s", field, e.Param())
		case "oneof":
			return fmt.Errorf("config.%s: must be one of %s", field, e.Param())
		case "loglevel":
			return fmt.Errorf("config.%s: unknown level %q", field, e.Value())
		default:
			return fmt.Errorf("config.%s: validation failed (%s)", field, e.Tag())
		}
	}
	return err
}
