package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/justinbach/migration-pipeline/internal/mapper"
	"github.com/justinbach/migration-pipeline/internal/segmenter"
	"github.com/justinbach/migration-pipeline/internal/validator"
)

const (
	EnvPipelineWorkspace     = "PIPELINE_WORKSPACE"
	EnvPipelineTaxonomyDir   = "PIPELINE_TAXONOMY_DIR"
	EnvPipelineWorkers       = "PIPELINE_WORKERS"
	EnvPipelineFileLog       = "PIPELINE_FILE_LOG"
	EnvPipelineLogTimeout    = "PIPELINE_LOG_TIMEOUT"
	EnvPipelineMapThreshold  = "PIPELINE_MAP_THRESHOLD"
	EnvPipelineMapMargin     = "PIPELINE_MAP_MARGIN"
	EnvPipelineMapWorkers    = "PIPELINE_MAP_WORKERS"
	EnvPipelineCallTimeout   = "PIPELINE_CALL_TIMEOUT"
	EnvPipelineThreshold     = "PIPELINE_VALIDATION_THRESHOLD"
	EnvPipelineCeiling       = "PIPELINE_SEVERITY_CEILING"
	EnvPipelineNoiseFloor    = "PIPELINE_NOISE_FLOOR"
	EnvPipelineRendererURL   = "PIPELINE_RENDERER_URL"
	EnvPipelineRenderTimeout = "PIPELINE_RENDER_TIMEOUT"
)

// PipelineConfig holds run execution, mapping and validation settings.
type PipelineConfig struct {
	Workspace     string  `toml:"workspace"`
	TaxonomyDir   string  `toml:"taxonomy_dir"`
	Workers       int     `toml:"workers"`
	FileLog       bool    `toml:"file_log"`
	LogTimeout    string  `toml:"log_timeout"`
	MapThreshold  float64 `toml:"map_threshold"`
	MapMargin     float64 `toml:"map_margin"`
	MapWorkers    int     `toml:"map_workers"`
	CallTimeout   string  `toml:"call_timeout"`
	Threshold     float64 `toml:"validation_threshold"`
	Ceiling       float64 `toml:"severity_ceiling"`
	NoiseFloor    float64 `toml:"noise_floor"`
	RendererURL   string  `toml:"renderer_url"`
	RenderTimeout string  `toml:"render_timeout"`
}

// CallTimeoutDuration returns CallTimeout as a time.Duration.
func (c *PipelineConfig) CallTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.CallTimeout)
	return d
}

// RenderTimeoutDuration returns RenderTimeout as a time.Duration.
func (c *PipelineConfig) RenderTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.RenderTimeout)
	return d
}

// LogTimeoutDuration returns LogTimeout as a time.Duration.
func (c *PipelineConfig) LogTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.LogTimeout)
	return d
}

// Segmenter returns segmenter settings with the configured call timeout.
func (c *PipelineConfig) Segmenter() segmenter.Config {
	cfg := segmenter.DefaultConfig()
	cfg.CallTimeout = c.CallTimeoutDuration()
	return cfg
}

// Mapper returns mapper settings derived from the pipeline config.
func (c *PipelineConfig) Mapper() mapper.Config {
	cfg := mapper.DefaultConfig()
	cfg.Threshold = c.MapThreshold
	cfg.Margin = c.MapMargin
	cfg.Workers = c.MapWorkers
	cfg.CallTimeout = c.CallTimeoutDuration()
	return cfg
}

// Validator returns validator settings derived from the pipeline config.
func (c *PipelineConfig) Validator() validator.Config {
	cfg := validator.DefaultConfig()
	cfg.Threshold = c.Threshold
	cfg.Ceiling = c.Ceiling
	cfg.NoiseFloor = c.NoiseFloor
	return cfg
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *PipelineConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *PipelineConfig) Merge(overlay *PipelineConfig) {
	if overlay.Workspace != "" {
		c.Workspace = overlay.Workspace
	}
	if overlay.TaxonomyDir != "" {
		c.TaxonomyDir = overlay.TaxonomyDir
	}
	if overlay.Workers != 0 {
		c.Workers = overlay.Workers
	}
	if overlay.FileLog {
		c.FileLog = true
	}
	if overlay.LogTimeout != "" {
		c.LogTimeout = overlay.LogTimeout
	}
	if overlay.MapThreshold != 0 {
		c.MapThreshold = overlay.MapThreshold
	}
	if overlay.MapMargin != 0 {
		c.MapMargin = overlay.MapMargin
	}
	if overlay.MapWorkers != 0 {
		c.MapWorkers = overlay.MapWorkers
	}
	if overlay.CallTimeout != "" {
		c.CallTimeout = overlay.CallTimeout
	}
	if overlay.Threshold != 0 {
		c.Threshold = overlay.Threshold
	}
	if overlay.Ceiling != 0 {
		c.Ceiling = overlay.Ceiling
	}
	if overlay.NoiseFloor != 0 {
		c.NoiseFloor = overlay.NoiseFloor
	}
	if overlay.RendererURL != "" {
		c.RendererURL = overlay.RendererURL
	}
	if overlay.RenderTimeout != "" {
		c.RenderTimeout = overlay.RenderTimeout
	}
}

func (c *PipelineConfig) loadDefaults() {
	mc := mapper.DefaultConfig()
	vc := validator.DefaultConfig()

	if c.Workspace == "" {
		c.Workspace = "data/workspace"
	}
	if c.TaxonomyDir == "" {
		c.TaxonomyDir = "taxonomy"
	}
	if c.Workers == 0 {
		c.Workers = 2
	}
	if c.LogTimeout == "" {
		c.LogTimeout = "10s"
	}
	if c.MapThreshold == 0 {
		c.MapThreshold = mc.Threshold
	}
	if c.MapMargin == 0 {
		c.MapMargin = mc.Margin
	}
	if c.MapWorkers == 0 {
		c.MapWorkers = mc.Workers
	}
	if c.CallTimeout == "" {
		c.CallTimeout = "2m"
	}
	if c.Threshold == 0 {
		c.Threshold = vc.Threshold
	}
	if c.Ceiling == 0 {
		c.Ceiling = vc.Ceiling
	}
	if c.NoiseFloor == 0 {
		c.NoiseFloor = vc.NoiseFloor
	}
	if c.RenderTimeout == "" {
		c.RenderTimeout = "1m"
	}
}

func (c *PipelineConfig) loadEnv() {
	if v := os.Getenv(EnvPipelineWorkspace); v != "" {
		c.Workspace = v
	}
	if v := os.Getenv(EnvPipelineTaxonomyDir); v != "" {
		c.TaxonomyDir = v
	}
	if v := os.Getenv(EnvPipelineWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
	if v := os.Getenv(EnvPipelineFileLog); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.FileLog = b
		}
	}
	if v := os.Getenv(EnvPipelineLogTimeout); v != "" {
		c.LogTimeout = v
	}
	parseFloat := func(env string, dst *float64) {
		if v := os.Getenv(env); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	parseFloat(EnvPipelineMapThreshold, &c.MapThreshold)
	parseFloat(EnvPipelineMapMargin, &c.MapMargin)
	parseFloat(EnvPipelineThreshold, &c.Threshold)
	parseFloat(EnvPipelineCeiling, &c.Ceiling)
	parseFloat(EnvPipelineNoiseFloor, &c.NoiseFloor)

	if v := os.Getenv(EnvPipelineMapWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MapWorkers = n
		}
	}
	if v := os.Getenv(EnvPipelineCallTimeout); v != "" {
		c.CallTimeout = v
	}
	if v := os.Getenv(EnvPipelineRendererURL); v != "" {
		c.RendererURL = v
	}
	if v := os.Getenv(EnvPipelineRenderTimeout); v != "" {
		c.RenderTimeout = v
	}
}

func (c *PipelineConfig) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive")
	}
	if c.MapWorkers < 1 {
		return fmt.Errorf("map_workers must be positive")
	}
	for name, v := range map[string]float64{
		"map_threshold":        c.MapThreshold,
		"map_margin":           c.MapMargin,
		"validation_threshold": c.Threshold,
		"severity_ceiling":     c.Ceiling,
		"noise_floor":          c.NoiseFloor,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", name, v)
		}
	}
	if _, err := time.ParseDuration(c.CallTimeout); err != nil {
		return fmt.Errorf("invalid call_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.RenderTimeout); err != nil {
		return fmt.Errorf("invalid render_timeout: %w", err)
	}
	if d, err := time.ParseDuration(c.LogTimeout); err != nil {
		return fmt.Errorf("invalid log_timeout: %w", err)
	} else if d <= 0 {
		return fmt.Errorf("log_timeout must be positive")
	}
	return nil
}
