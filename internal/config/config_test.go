package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/calendarpress/calendar-engine/internal/geometry"
	"github.com/calendarpress/calendar-engine/internal/output"
	"github.com/calendarpress/calendar-engine/internal/renderer"
	"github.com/zalando/go-keyring"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
render:
  preset: classic-300dpi
  workers: 4
  bold: heavy
  fetch_timeout: 5s
output:
  psd_encoder: none
  pdf_proof: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Render.Preset != geometry.PresetClassic || cfg.Render.Workers != 4 {
		t.Errorf("render section not applied: %+v", cfg.Render)
	}
	if cfg.Render.FetchTimeout != 5*time.Second {
		t.Errorf("fetch timeout = %v", cfg.Render.FetchTimeout)
	}
	if cfg.Output.PSDEncoder != output.PSDNone || !cfg.Output.PDFProof {
		t.Errorf("output section not applied: %+v", cfg.Output)
	}
	if cfg.Output.DPI != output.DefaultDPI || cfg.Render.FontsDir != "fonts" {
		t.Error("unset keys should keep their defaults")
	}

	opts, err := cfg.RendererOptions(nil)
	if err != nil {
		t.Fatal(err)
	}
	if opts.BoldDivisor != renderer.BoldPresets["heavy"] || opts.Geometry.Name != geometry.PresetClassic {
		t.Errorf("unexpected renderer options %+v", opts)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvPreset, geometry.PresetPreview)
	t.Setenv(EnvWorkers, "8")
	t.Setenv(EnvUpscaleEnabled, "yes")
	t.Setenv(EnvUpscaleEndpoint, "https://upscaler.test/api/v1/task")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Render.Preset != geometry.PresetPreview || cfg.Render.Workers != 8 {
		t.Errorf("env not applied: %+v", cfg.Render)
	}
	if !cfg.Upscale.Enabled || cfg.Upscale.Endpoint != "https://upscaler.test/api/v1/task" {
		t.Errorf("upscale env not applied: %+v", cfg.Upscale)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown preset", func(c *Config) { c.Render.Preset = "a4" }},
		{"bad mode", func(c *Config) { c.Render.Mode = "triple" }},
		{"no workers", func(c *Config) { c.Render.Workers = 0 }},
		{"bad bold", func(c *Config) { c.Render.Bold = "extra" }},
		{"negative bold divisor", func(c *Config) { c.Render.Bold = "-3" }},
		{"bad header policy", func(c *Config) { c.Render.MissingHeader = "black" }},
		{"bad format", func(c *Config) { c.Output.Format = "gif" }},
		{"bad color space", func(c *Config) { c.Output.ColorSpace = "lab" }},
		{"bad psd encoder", func(c *Config) { c.Output.PSDEncoder = "gimp" }},
		{"upscale without endpoint", func(c *Config) { c.Upscale.Enabled = true }},
	}

	for _, tt := range tests {
		cfg := Defaults()
		tt.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestBoldDivisor(t *testing.T) {
	tests := map[string]float64{
		"":        renderer.DefaultBoldDivisor,
		"regular": 40,
		"Light":   60,
		"25":      25,
	}
	for in, want := range tests {
		got, err := RenderConfig{Bold: in}.BoldDivisor()
		if err != nil || got != want {
			t.Errorf("BoldDivisor(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}

func TestUpscaleKeyFromKeyring(t *testing.T) {
	keyring.MockInit()

	if err := SaveAPIKey("from-keyring"); err != nil {
		t.Fatal(err)
	}
	cfg := Defaults()
	if got := cfg.UpscaleOptions().APIKey; got != "from-keyring" {
		t.Errorf("APIKey = %q, want keyring value", got)
	}

	cfg.Upscale.APIKey = "from-config"
	if got := cfg.UpscaleOptions().APIKey; got != "from-config" {
		t.Errorf("config key should win, got %q", got)
	}

	if err := SaveAPIKey(""); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadAPIKey(); err == nil {
		t.Error("key should be deleted")
	}
}
