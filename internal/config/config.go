// Package config loads batch configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ukclimate/gridalign/internal/domain"
)

// Config is the full batch configuration surface. Every field can be
// set in the YAML file; the GRIDALIGN_* environment variables override
// file values, and CLI flags override both.
type Config struct {
	Source     string `yaml:"source"` // "cpm" or "hads"
	InputRoot  string `yaml:"input_root"`
	OutputRoot string `yaml:"output_root"`
	CropRoot   string `yaml:"crop_root"`
	RefGrid    string `yaml:"ref_grid"`

	Variables []string `yaml:"variables"`
	Runs      []string `yaml:"runs"`
	Regions   []string `yaml:"regions"`

	Start    int `yaml:"start"`
	Stop     int `yaml:"stop"`
	JobStart int `yaml:"job_start"`
	JobStop  int `yaml:"job_stop"`

	Workers    int  `yaml:"workers"`
	BestEffort bool `yaml:"best_effort"`
	MaxGapDays int  `yaml:"max_gap_days"`

	LogLevel    string `yaml:"log_level"`
	MonitorAddr string `yaml:"monitor_addr"`
}

// Load reads the optional YAML file at path (empty means no file) and
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{LogLevel: "info"}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setList := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = splitCSV(v)
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("GRIDALIGN_SOURCE", &cfg.Source)
	setString("GRIDALIGN_INPUT_ROOT", &cfg.InputRoot)
	setString("GRIDALIGN_OUTPUT_ROOT", &cfg.OutputRoot)
	setString("GRIDALIGN_CROP_ROOT", &cfg.CropRoot)
	setString("GRIDALIGN_REF_GRID", &cfg.RefGrid)
	setString("GRIDALIGN_LOG_LEVEL", &cfg.LogLevel)
	setString("GRIDALIGN_MONITOR_ADDR", &cfg.MonitorAddr)
	setList("GRIDALIGN_VARIABLES", &cfg.Variables)
	setList("GRIDALIGN_RUNS", &cfg.Runs)
	setList("GRIDALIGN_REGIONS", &cfg.Regions)
	setInt("GRIDALIGN_WORKERS", &cfg.Workers)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SourceType resolves the configured source tag.
func (c *Config) SourceType() (domain.SourceType, error) {
	switch strings.ToLower(c.Source) {
	case "cpm":
		return domain.SourceCPM, nil
	case "hads":
		return domain.SourceHADS, nil
	default:
		return 0, fmt.Errorf("config: unknown source %q (want cpm or hads)", c.Source)
	}
}

// Validate checks the fields every run needs. Pass-specific fields
// (crop root, reference grid) are validated by the batch manager.
func (c *Config) Validate() error {
	if _, err := c.SourceType(); err != nil {
		return err
	}
	if c.InputRoot == "" {
		return fmt.Errorf("config: input_root is required")
	}
	if c.OutputRoot == "" {
		return fmt.Errorf("config: output_root is required")
	}
	for _, name := range c.Regions {
		if _, err := domain.RegionByName(name); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must be >= 0")
	}
	return nil
}
