package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/screen-elements-mcp/internal/detection"
	"github.com/ironsheep/screen-elements-mcp/internal/labeling"
	"github.com/ironsheep/screen-elements-mcp/internal/ocr"
	"github.com/ironsheep/screen-elements-mcp/internal/screen"
)

// clearEnv blanks every variable Load looks at.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{configPathEnv, logLevelEnv, labelerURLEnv, labelerAPIKeyEnv, textEngineEnv, tessdataPrefixEnv} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.05, cfg.Fusion.IoUThreshold)
	assert.Equal(t, 0.8, cfg.Fusion.ContainmentThreshold)
	assert.Equal(t, 1.0, cfg.Fusion.MinArea)
	assert.Equal(t, 0.9, cfg.Layout.SpanThresholdX)
	assert.Equal(t, EngineTesseract, cfg.Detection.Text.Engine)
	assert.False(t, cfg.Labeling.Enabled)
}

func TestLoadWithoutFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
log_level: debug
fusion:
  iou_threshold: 0.3
layout:
  row_tolerance: 20
detection:
  text:
    engine: heuristic
    heuristic:
      min_confidence: 0.5
labeling:
  enabled: true
  endpoint: http://localhost:9000
  timeout: 5s
  max_concurrency: 2
`)
	t.Setenv(configPathEnv, path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.3, cfg.Fusion.IoUThreshold)
	assert.Equal(t, 0.8, cfg.Fusion.ContainmentThreshold, "unset keys keep defaults")
	assert.Equal(t, 20.0, cfg.Layout.RowTolerance)
	assert.Equal(t, 12.0, cfg.Layout.ColumnTolerance)
	assert.Equal(t, EngineHeuristic, cfg.Detection.Text.Engine)
	assert.Equal(t, 0.5, cfg.Detection.Text.Heuristic.MinConfidence)
	assert.Equal(t, uint8(64), cfg.Detection.Text.Heuristic.EdgeThreshold)
	assert.True(t, cfg.Labeling.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Labeling.Timeout)
	assert.Equal(t, 2, cfg.Labeling.MaxConcurrency)
	assert.Equal(t, 8, cfg.Labeling.Padding)
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantClass error
	}{
		{"threshold out of range", "fusion:\n  containment_threshold: 1.2\n", screen.ErrConfiguration},
		{"zero min area", "fusion:\n  min_area: 0\n", screen.ErrConfiguration},
		{"span of zero", "layout:\n  span_threshold_x: 0\n", screen.ErrConfiguration},
		{"negative tolerance", "layout:\n  column_tolerance: -1\n", screen.ErrConfiguration},
		{"unknown engine", "detection:\n  text:\n    engine: easyocr\n", screen.ErrConfiguration},
		{"bad ocr level", "detection:\n  text:\n    tesseract:\n      level: glyph\n", screen.ErrConfiguration},
		{"labeling without endpoint", "labeling:\n  enabled: true\n", screen.ErrConfiguration},
		{"bad log level", "log_level: loud\n", screen.ErrConfiguration},
		{"unknown key", "fusion:\n  iou: 0.2\n", nil},
		{"malformed yaml", "fusion: [\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := LoadFile(writeConfig(t, tt.body))
			require.Error(t, err)
			if tt.wantClass != nil {
				assert.ErrorIs(t, err, tt.wantClass)
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	clearEnv(t)
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(logLevelEnv, "warn")
	t.Setenv(labelerURLEnv, "http://labeler:8080")
	t.Setenv(labelerAPIKeyEnv, "k-123")
	t.Setenv(textEngineEnv, EngineHeuristic)

	cfg, err := LoadFile(writeConfig(t, "log_level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel, "env wins over file")
	assert.True(t, cfg.Labeling.Enabled)
	assert.Equal(t, "http://labeler:8080", cfg.Labeling.Endpoint)
	assert.Equal(t, "k-123", cfg.Labeling.APIKey)
	assert.Equal(t, EngineHeuristic, cfg.Detection.Text.Engine)
}

func TestEnvOverrideInvalid(t *testing.T) {
	clearEnv(t)
	t.Setenv(logLevelEnv, "verbose")

	_, err := Load()
	assert.ErrorIs(t, err, screen.ErrConfiguration)
}

func TestBuilders(t *testing.T) {
	cfg := Default()

	assert.IsType(t, &ocr.TextDetector{}, cfg.TextDetector())
	assert.IsType(t, &detection.ObjectDetector{}, cfg.ObjectDetector())
	assert.Nil(t, cfg.Labeler())

	cfg.Detection.Text.Engine = EngineHeuristic
	assert.IsType(t, &detection.HeuristicTextDetector{}, cfg.TextDetector())

	cfg.Labeling.Enabled = true
	cfg.Labeling.Endpoint = "http://localhost:1"
	assert.IsType(t, &labeling.Client{}, cfg.Labeler())

	p := cfg.Pipeline()
	assert.Equal(t, cfg.Fusion, p.Fusion)
	assert.Equal(t, cfg.Layout, p.Layout)
	assert.Equal(t, cfg.Labeling, p.Labeling)
}
