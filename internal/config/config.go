// Package config loads the server configuration: defaults, then an optional
// YAML file, then environment overrides. The result is validated before use.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/screen-elements-mcp/internal/detection"
	"github.com/ironsheep/screen-elements-mcp/internal/fusion"
	"github.com/ironsheep/screen-elements-mcp/internal/labeling"
	"github.com/ironsheep/screen-elements-mcp/internal/layout"
	"github.com/ironsheep/screen-elements-mcp/internal/logging"
	"github.com/ironsheep/screen-elements-mcp/internal/ocr"
	"github.com/ironsheep/screen-elements-mcp/internal/pipeline"
	"github.com/ironsheep/screen-elements-mcp/internal/screen"
)

const (
	configPathEnv     = "SCREEN_MCP_CONFIG"
	logLevelEnv       = "SCREEN_MCP_LOG_LEVEL"
	labelerURLEnv     = "SCREEN_MCP_LABELER_URL"
	labelerAPIKeyEnv  = "SCREEN_MCP_LABELER_API_KEY"
	textEngineEnv     = "SCREEN_MCP_TEXT_ENGINE"
	tessdataPrefixEnv = "TESSDATA_PREFIX"
)

// Text detection engines.
const (
	EngineTesseract = "tesseract"
	EngineHeuristic = "heuristic"
)

// Config holds every setting of the server.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Fusion    fusion.Config   `yaml:"fusion"`
	Layout    layout.Config   `yaml:"layout"`
	Detection DetectionConfig `yaml:"detection"`
	Labeling  labeling.Config `yaml:"labeling"`
}

// DetectionConfig selects and tunes the two detectors.
type DetectionConfig struct {
	Object detection.ObjectConfig `yaml:"object"`
	Text   TextConfig             `yaml:"text"`
}

// TextConfig picks the text engine. Tesseract settings apply to the
// tesseract engine, Heuristic settings to the pure-Go fallback.
type TextConfig struct {
	Engine    string               `yaml:"engine"`
	Tesseract ocr.Config           `yaml:"tesseract"`
	Heuristic detection.TextConfig `yaml:"heuristic"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Fusion:   fusion.DefaultConfig(),
		Layout:   layout.DefaultConfig(),
		Detection: DetectionConfig{
			Object: detection.DefaultObjectConfig(),
			Text: TextConfig{
				Engine:    EngineTesseract,
				Tesseract: ocr.DefaultConfig(),
				Heuristic: detection.DefaultTextConfig(),
			},
		},
		Labeling: labeling.DefaultConfig(),
	}
}

// Load reads the file named by SCREEN_MCP_CONFIG, if set, over the defaults
// and applies environment overrides. An unreadable or malformed file is an
// error, as is any invalid value.
func Load() (Config, error) {
	return LoadFile(os.Getenv(configPathEnv))
}

// LoadFile is Load with an explicit path. An empty path skips the file.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: cannot read %s: %w", path, err)
		}
		if err := Parse(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: cannot parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Keys absent from raw keep the values cfg
// already holds; unknown keys are rejected.
func Parse(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.LogLevel = v
	}

	if v := os.Getenv(labelerURLEnv); v != "" {
		c.Labeling.Endpoint = v
		c.Labeling.Enabled = true
	}

	if v := os.Getenv(labelerAPIKeyEnv); v != "" {
		c.Labeling.APIKey = v
	}

	if v := os.Getenv(textEngineEnv); v != "" {
		c.Detection.Text.Engine = v
	}

	if v := os.Getenv(tessdataPrefixEnv); v != "" && c.Detection.Text.Tesseract.TessdataPrefix == "" {
		c.Detection.Text.Tesseract.TessdataPrefix = v
	}
}

// Validate checks every section and fails on the first invalid value.
func (c Config) Validate() error {
	if !logging.ValidLevel(c.LogLevel) {
		return &screen.ConfigError{Field: "log_level", Value: c.LogLevel, Reason: "must be one of debug, info, warn, error"}
	}
	if err := c.Pipeline().Validate(); err != nil {
		return err
	}
	if err := c.Detection.Object.Validate(); err != nil {
		return err
	}

	switch c.Detection.Text.Engine {
	case EngineTesseract:
		return c.Detection.Text.Tesseract.Validate()
	case EngineHeuristic:
		return c.Detection.Text.Heuristic.Validate()
	}
	return &screen.ConfigError{Field: "detection.text.engine", Value: c.Detection.Text.Engine, Reason: "must be tesseract or heuristic"}
}

// Pipeline returns the stage configuration for the analyzer.
func (c Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		Fusion:   c.Fusion,
		Layout:   c.Layout,
		Labeling: c.Labeling,
	}
}

// TextDetector builds the configured text detector.
func (c Config) TextDetector() detection.Detector {
	if c.Detection.Text.Engine == EngineHeuristic {
		return detection.NewHeuristicTextDetector(c.Detection.Text.Heuristic)
	}
	return ocr.NewTextDetector(c.Detection.Text.Tesseract)
}

// ObjectDetector builds the object detector.
func (c Config) ObjectDetector() detection.Detector {
	return detection.NewObjectDetector(c.Detection.Object)
}

// Labeler builds the labeling client, or returns nil when labeling is
// disabled.
func (c Config) Labeler() labeling.Labeler {
	if !c.Labeling.Enabled {
		return nil
	}
	return labeling.NewClient(c.Labeling.Endpoint, c.Labeling.APIKey, c.Labeling.Timeout)
}
