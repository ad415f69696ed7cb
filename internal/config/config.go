package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/frame-curator/internal/dedup"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Curator   CuratorConfig   `yaml:"curator"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Web       WebConfig       `yaml:"web"`
}

// CuratorConfig drives the quality-check stage. Explicit directories win
// over the base-dir layout.
type CuratorConfig struct {
	BaseDir      string `yaml:"base_dir"`
	InputDir     string `yaml:"input_dir"`
	OutputDir    string `yaml:"output_dir"`
	StageDir     string `yaml:"stage_dir"`
	InputSubdir  string `yaml:"input_subdir"`
	OutputSubdir string `yaml:"output_subdir"`
	StageSubdir  string `yaml:"stage_subdir"`
	StageName    string `yaml:"stage_name"`

	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	EdgeThreshold       int     `yaml:"edge_threshold"`
	CannyLow            float64 `yaml:"canny_low"`
	CannyHigh           float64 `yaml:"canny_high"`
	SSIMWindow          int     `yaml:"ssim_window"`
	Workers             int     `yaml:"workers"`
}

type TelemetryConfig struct {
	URL      string        `yaml:"url"`
	AgentID  string        `yaml:"agent_id"` // defaults to the hostname
	Interval time.Duration `yaml:"interval"`
}

type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// InputPath returns the directory candidates are read from.
func (c *CuratorConfig) InputPath() string {
	if c.InputDir != "" {
		return c.InputDir
	}
	return filepath.Join(c.BaseDir, c.InputSubdir)
}

// OutputPath returns the directory accepted images are written to.
func (c *CuratorConfig) OutputPath() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return filepath.Join(c.BaseDir, c.OutputSubdir)
}

// StagePath returns the directory holding stage status files.
func (c *CuratorConfig) StagePath() string {
	if c.StageDir != "" {
		return c.StageDir
	}
	return filepath.Join(c.BaseDir, c.StageSubdir)
}

// Thresholds returns the engine thresholds.
func (c *CuratorConfig) Thresholds() dedup.Thresholds {
	return dedup.Thresholds{
		Similarity: c.SimilarityThreshold,
		Edge:       c.EdgeThreshold,
	}
}

// Validate reports configuration errors wrapped with dedup.ErrConfig.
func (c *Config) Validate() error {
	if err := c.Curator.Thresholds().Validate(); err != nil {
		return err
	}
	if c.Curator.CannyLow < 0 || c.Curator.CannyHigh < c.Curator.CannyLow {
		return fmt.Errorf("%w: canny thresholds low=%v high=%v", dedup.ErrConfig, c.Curator.CannyLow, c.Curator.CannyHigh)
	}
	if c.Curator.SSIMWindow < 1 {
		return fmt.Errorf("%w: ssim window %d must be positive", dedup.ErrConfig, c.Curator.SSIMWindow)
	}
	if c.Curator.Workers < 1 {
		return fmt.Errorf("%w: workers %d must be positive", dedup.ErrConfig, c.Curator.Workers)
	}
	return nil
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// Threshold variables are range-checked by Validate, so a parse failure is
// reported instead of silently falling back.
func envThresholdInt(key string, defaultVal int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", dedup.ErrConfig, key, s)
	}
	return n, nil
}

func envThresholdFloat(key string, defaultVal float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a number", dedup.ErrConfig, key, s)
	}
	return f, nil
}

// Defaults returns the embedded defaults without environment overrides.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load applies environment overrides on top of the embedded defaults.
func Load() (*Config, error) {
	cfg := Defaults()
	var err error

	cur := &cfg.Curator
	cur.BaseDir = envString("CURATOR_BASE_DIR", cur.BaseDir)
	cur.InputDir = envString("CURATOR_INPUT_DIR", cur.InputDir)
	cur.OutputDir = envString("CURATOR_OUTPUT_DIR", cur.OutputDir)
	cur.StageDir = envString("CURATOR_STAGE_DIR", cur.StageDir)
	cur.Workers = envInt("CURATOR_WORKERS", cur.Workers)
	if cur.SimilarityThreshold, err = envThresholdFloat("CURATOR_SSIM_THRESHOLD", cur.SimilarityThreshold); err != nil {
		return nil, err
	}
	if cur.EdgeThreshold, err = envThresholdInt("CURATOR_EDGE_THRESHOLD", cur.EdgeThreshold); err != nil {
		return nil, err
	}

	cfg.Telemetry.URL = envString("TELEMETRY_URL", cfg.Telemetry.URL)
	cfg.Telemetry.AgentID = envString("TELEMETRY_AGENT_ID", cfg.Telemetry.AgentID)
	if cfg.Telemetry.AgentID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Telemetry.AgentID = host
		}
	}
	if s := os.Getenv("TELEMETRY_INTERVAL"); s != "" {
		// Plain integers are seconds, matching the agent's --interval flag.
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.Telemetry.Interval = time.Duration(n) * time.Second
		} else if d, err := time.ParseDuration(s); err == nil && d > 0 {
			cfg.Telemetry.Interval = d
		}
	}

	cfg.Web.Host = envString("WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envInt("WEB_PORT", cfg.Web.Port)

	return cfg, nil
}
