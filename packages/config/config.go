// Package config loads the YAML job files that describe report runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/vogtb/sheetcalc/packages/spreadsheet"
	"github.com/vogtb/sheetcalc/packages/tsv"
)

// EnvLogLevel overrides logging.level when set
const EnvLogLevel = "SHEETCALC_LOG_LEVEL"

// Config holds all configuration for a run
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Jobs    []JobConfig   `yaml:"jobs"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// JobConfig describes one report: a formula sheet evaluated against a raw
// sheet and written to an output file. .xlsx inputs and outputs are
// workbooks; anything else is TSV.
type JobConfig struct {
	Name    string `yaml:"name"`
	Formula string `yaml:"formula"`
	Raw     string `yaml:"raw,omitempty"`
	Output  string `yaml:"output"`

	// RawHasHeader drops the first row of the raw sheet
	RawHasHeader bool `yaml:"raw_has_header,omitempty"`

	// Sheet names the formula sheet. for workbook inputs it also selects
	// the worksheet to read.
	Sheet string `yaml:"sheet,omitempty"`

	// RawSheet is the sheet name formulas use to read raw data
	RawSheet string `yaml:"raw_sheet,omitempty"`

	ReferencePolicy string `yaml:"reference_policy,omitempty"` // any, same_row_leftward
	InputEncoding   string `yaml:"input_encoding,omitempty"`   // auto, utf-8, shift_jis
}

// DefaultSheet names the formula sheet when a job does not
const DefaultSheet = "Sheet1"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. relative job paths are
// resolved against the directory holding the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.resolvePaths(filepath.Dir(path))

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func (c *Config) applyDefaults() {
	for i := range c.Jobs {
		job := &c.Jobs[i]
		if job.Sheet == "" {
			job.Sheet = DefaultSheet
		}
		if job.RawSheet == "" {
			job.RawSheet = spreadsheet.DefaultRawSheetName
		}
		if job.ReferencePolicy == "" {
			job.ReferencePolicy = spreadsheet.PolicyAny
		}
		if job.InputEncoding == "" {
			job.InputEncoding = tsv.EncodingAuto
		}
	}
}

func (c *Config) resolvePaths(dir string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	for i := range c.Jobs {
		job := &c.Jobs[i]
		job.Formula = resolve(job.Formula)
		job.Raw = resolve(job.Raw)
		job.Output = resolve(job.Output)
	}
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Logging.Level = level
	}
}

// ValidEncodings lists the accepted input_encoding values.
var ValidEncodings = []string{tsv.EncodingAuto, tsv.EncodingUTF8, tsv.EncodingShiftJIS, tsv.EncodingLatin1}

// Validate reports every problem found in the configuration.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Logging.ZapLevel(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Jobs) == 0 {
		errs = append(errs, errors.New("no jobs configured"))
	}

	seen := make(map[string]struct{}, len(c.Jobs))
	for i, job := range c.Jobs {
		if job.Name == "" {
			errs = append(errs, fmt.Errorf("job %d: name is required", i+1))
		} else if _, dup := seen[job.Name]; dup {
			errs = append(errs, fmt.Errorf("job %s: duplicate name", job.Name))
		}
		seen[job.Name] = struct{}{}

		if err := job.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", job.Name, err))
		}
	}

	return errors.Join(errs...)
}

// Validate checks a single job
func (j *JobConfig) Validate() error {
	var errs []error
	if j.Formula == "" {
		errs = append(errs, errors.New("formula path is required"))
	}
	if j.Output == "" {
		errs = append(errs, errors.New("output path is required"))
	}
	if _, err := spreadsheet.PolicyByName(j.ReferencePolicy); err != nil {
		errs = append(errs, err)
	}
	if j.InputEncoding != "" && !slices.Contains(ValidEncodings, strings.ToLower(j.InputEncoding)) {
		errs = append(errs, fmt.Errorf("invalid input encoding: %s (valid: %v)", j.InputEncoding, ValidEncodings))
	}
	if j.Sheet != "" && j.Sheet == j.RawSheet {
		errs = append(errs, fmt.Errorf("sheet and raw_sheet are both %q", j.Sheet))
	}
	return errors.Join(errs...)
}

// Job returns the job with the given name
func (c *Config) Job(name string) (*JobConfig, error) {
	for i := range c.Jobs {
		if c.Jobs[i].Name == name {
			return &c.Jobs[i], nil
		}
	}
	return nil, spreadsheet.NewApplicationError(spreadsheet.NotFound, fmt.Sprintf("no job named %q", name))
}

// ZapLevel parses Level; "" means info
func (l LoggingConfig) ZapLevel() (zapcore.Level, error) {
	if l.Level == "" {
		return zapcore.InfoLevel, nil
	}
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid logging level: %s", l.Level)
	}
	return level, nil
}
