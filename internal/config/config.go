// Package config loads the render engine configuration: defaults, an
// optional YAML file, CAL_* environment overrides and the OS keyring.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/calendarpress/calendar-engine/internal/geometry"
	"github.com/calendarpress/calendar-engine/internal/logging"
	"github.com/calendarpress/calendar-engine/internal/output"
	"github.com/calendarpress/calendar-engine/internal/renderer"
	"github.com/calendarpress/calendar-engine/internal/telemetry"
	"github.com/calendarpress/calendar-engine/internal/upscale"
	"github.com/calendarpress/calendar-engine/pkg/calendarformat"
	"gopkg.in/yaml.v3"
)

type RenderConfig struct {
	Preset           string        `yaml:"preset"`
	Mode             string        `yaml:"mode"` // overrides the description when set
	Workers          int           `yaml:"workers"`
	Bold             string        `yaml:"bold"` // heavy, regular, light or a divisor
	MissingHeader    string        `yaml:"missing_header"`
	TransitionHeight int           `yaml:"transition_height"`
	FontsDir         string        `yaml:"fonts_dir"`
	WorkspaceDir     string        `yaml:"workspace_dir"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
}

type OutputConfig struct {
	Dir        string  `yaml:"dir"`
	Format     string  `yaml:"format"`
	ColorSpace string  `yaml:"color_space"`
	DPI        float64 `yaml:"dpi"`
	Quality    int     `yaml:"quality"`
	PSDEncoder string  `yaml:"psd_encoder"`
	PDFProof   bool    `yaml:"pdf_proof"`
}

type UpscaleConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	Style    string        `yaml:"style"`
	Noise    int           `yaml:"noise"`
	Factor   int           `yaml:"factor"`
	Timeout  time.Duration `yaml:"timeout"`
	// APIKey may be left empty and kept in the OS keyring instead
	APIKey string `yaml:"api_key"`
}

type LedgerConfig struct {
	Path string `yaml:"path"`
}

type Config struct {
	Render    RenderConfig     `yaml:"render"`
	Output    OutputConfig     `yaml:"output"`
	Upscale   UpscaleConfig    `yaml:"upscale"`
	Logging   logging.Config   `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Ledger    LedgerConfig     `yaml:"ledger"`
}

// Defaults returns the production defaults
func Defaults() Config {
	return Config{
		Render: RenderConfig{
			Preset:        geometry.DefaultPreset,
			Workers:       2,
			Bold:          "regular",
			MissingHeader: string(renderer.MissingHeaderBackground),
			FontsDir:      "fonts",
			WorkspaceDir:  "workspace",
			FetchTimeout:  renderer.DefaultFetchTimeout,
		},
		Output: OutputConfig{
			Dir:        "output",
			Format:     string(output.FormatPSD),
			ColorSpace: string(output.ColorCMYK),
			DPI:        output.DefaultDPI,
			Quality:    output.DefaultQuality,
			PSDEncoder: output.PSDNative,
		},
		Upscale: UpscaleConfig{
			Style:   "art",
			Noise:   3,
			Factor:  4,
			Timeout: upscale.DefaultTimeout,
		},
		Logging: logging.Config{Level: "info", Format: "console"},
		Telemetry: telemetry.Config{
			ServiceName: "calendar-engine",
			SampleRatio: 1,
		},
		Ledger: LedgerConfig{Path: "renders.json"},
	}
}

// Environment overrides
const (
	EnvPreset          = "CAL_PRESET"
	EnvMode            = "CAL_MODE"
	EnvWorkers         = "CAL_WORKERS"
	EnvFontsDir        = "CAL_FONTS_DIR"
	EnvWorkspaceDir    = "CAL_WORKSPACE_DIR"
	EnvOutputDir       = "CAL_OUTPUT_DIR"
	EnvOutputFormat    = "CAL_OUTPUT_FORMAT"
	EnvPSDEncoder      = "CAL_PSD_ENCODER"
	EnvUpscaleEnabled  = "CAL_UPSCALE_ENABLED"
	EnvUpscaleEndpoint = "CAL_UPSCALE_ENDPOINT"
	EnvUpscaleAPIKey   = "CAL_UPSCALE_API_KEY"
	EnvLogLevel        = "CAL_LOG_LEVEL"
	EnvLogFile         = "CAL_LOG_FILE"
	EnvOTLPEndpoint    = "CAL_OTLP_ENDPOINT"
	EnvLedgerPath      = "CAL_LEDGER_PATH"
)

// Load reads the YAML file at path over the defaults and applies env
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, cfg.Validate()
}

func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	str(EnvPreset, &cfg.Render.Preset)
	str(EnvMode, &cfg.Render.Mode)
	str(EnvFontsDir, &cfg.Render.FontsDir)
	str(EnvWorkspaceDir, &cfg.Render.WorkspaceDir)
	str(EnvOutputDir, &cfg.Output.Dir)
	str(EnvOutputFormat, &cfg.Output.Format)
	str(EnvPSDEncoder, &cfg.Output.PSDEncoder)
	str(EnvUpscaleEndpoint, &cfg.Upscale.Endpoint)
	str(EnvUpscaleAPIKey, &cfg.Upscale.APIKey)
	str(EnvLogLevel, &cfg.Logging.Level)
	str(EnvLogFile, &cfg.Logging.File)
	str(EnvOTLPEndpoint, &cfg.Telemetry.Endpoint)
	str(EnvLedgerPath, &cfg.Ledger.Path)

	if v := strings.TrimSpace(os.Getenv(EnvWorkers)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Render.Workers = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvUpscaleEnabled)); v != "" {
		lv := strings.ToLower(v)
		cfg.Upscale.Enabled = lv == "1" || lv == "true" || lv == "on" || lv == "yes"
	}
}

// Validate reports the first invalid setting
func (c Config) Validate() error {
	if _, err := geometry.Preset(c.Render.Preset); err != nil {
		return err
	}
	switch calendarformat.Mode(c.Render.Mode) {
	case "", calendarformat.ModeSplit, calendarformat.ModeCombined:
	default:
		return fmt.Errorf("render.mode must be split or combined, got %q", c.Render.Mode)
	}
	if c.Render.Workers < 1 {
		return errors.New("render.workers must be at least 1")
	}
	if _, err := c.Render.BoldDivisor(); err != nil {
		return err
	}
	switch renderer.MissingHeaderPolicy(c.Render.MissingHeader) {
	case renderer.MissingHeaderBackground, renderer.MissingHeaderWhite:
	default:
		return fmt.Errorf("render.missing_header must be background or white, got %q", c.Render.MissingHeader)
	}
	if _, err := output.ParseFormat(c.Output.Format); err != nil {
		return err
	}
	switch output.ColorSpace(c.Output.ColorSpace) {
	case output.ColorRGB, output.ColorCMYK:
	default:
		return fmt.Errorf("output.color_space must be rgb or cmyk, got %q", c.Output.ColorSpace)
	}
	switch c.Output.PSDEncoder {
	case output.PSDNative, output.PSDMagick, output.PSDNone:
	default:
		return fmt.Errorf("output.psd_encoder must be native, magick or none, got %q", c.Output.PSDEncoder)
	}
	if c.Upscale.Enabled && c.Upscale.Endpoint == "" {
		return errors.New("upscale.endpoint is required when upscaling is enabled")
	}
	return nil
}

// BoldDivisor resolves the bold setting to a stroke divisor
func (r RenderConfig) BoldDivisor() (float64, error) {
	if r.Bold == "" {
		return renderer.DefaultBoldDivisor, nil
	}
	if d, ok := renderer.BoldPresets[strings.ToLower(r.Bold)]; ok {
		return d, nil
	}
	d, err := strconv.ParseFloat(r.Bold, 64)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("render.bold must be heavy, regular, light or a positive divisor, got %q", r.Bold)
	}
	return d, nil
}

// Geometry returns the configured preset
func (c Config) Geometry() (geometry.Geometry, error) {
	return geometry.Preset(c.Render.Preset)
}

// RendererOptions maps the render section onto renderer.Options
func (c Config) RendererOptions(metrics *telemetry.Metrics) (renderer.Options, error) {
	g, err := c.Geometry()
	if err != nil {
		return renderer.Options{}, err
	}
	divisor, err := c.Render.BoldDivisor()
	if err != nil {
		return renderer.Options{}, err
	}
	return renderer.Options{
		Geometry:         g,
		BoldDivisor:      divisor,
		MissingHeader:    renderer.MissingHeaderPolicy(c.Render.MissingHeader),
		TransitionHeight: c.Render.TransitionHeight,
		Metrics:          metrics,
	}, nil
}

// WriterOptions maps the output section onto output.WriterOptions
func (c Config) WriterOptions() output.WriterOptions {
	return output.WriterOptions{PSDEncoder: c.Output.PSDEncoder, Quality: c.Output.Quality}
}

// OutputOptions is the per-file request for the main artifacts
func (c Config) OutputOptions() output.Options {
	f, _ := output.ParseFormat(c.Output.Format)
	return output.Options{
		Format:     f,
		ColorSpace: output.ColorSpace(c.Output.ColorSpace),
		DPI:        c.Output.DPI,
		Quality:    c.Output.Quality,
	}
}

// UpscaleOptions maps the upscale section onto upscale.Options. The key
// comes from the file or env first, then from the keyring.
func (c Config) UpscaleOptions() upscale.Options {
	key := c.Upscale.APIKey
	if key == "" {
		key, _ = LoadAPIKey()
	}
	return upscale.Options{
		Endpoint: c.Upscale.Endpoint,
		APIKey:   key,
		Style:    c.Upscale.Style,
		Noise:    c.Upscale.Noise,
		Factor:   c.Upscale.Factor,
		Timeout:  c.Upscale.Timeout,
	}
}
