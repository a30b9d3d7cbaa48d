package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/ironsheep/screen-elements-mcp/internal/screen"
)

// Level is the Tesseract page-iterator granularity of reported regions.
type Level string

const (
	LevelWord  Level = "word"
	LevelLine  Level = "line"
	LevelBlock Level = "block"
)

func (l Level) iteratorLevel() (gosseract.PageIteratorLevel, error) {
	switch l {
	case LevelWord:
		return gosseract.RIL_WORD, nil
	case LevelLine:
		return gosseract.RIL_TEXTLINE, nil
	case LevelBlock:
		return gosseract.RIL_BLOCK, nil
	}
	return 0, fmt.Errorf("unknown level %q", string(l))
}

// Config selects the Tesseract language and filtering.
type Config struct {
	// Language is a Tesseract language code such as "eng". Several codes may
	// be joined with "+".
	Language string `yaml:"language" json:"language"`

	// MinConfidence drops regions Tesseract is less sure of (0.0 to 1.0).
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`

	// Level is the region granularity: word, line or block.
	Level Level `yaml:"level" json:"level"`

	// TessdataPrefix overrides the directory holding *.traineddata files.
	TessdataPrefix string `yaml:"tessdata_prefix" json:"tessdata_prefix"`
}

// DefaultConfig returns English line-level detection.
func DefaultConfig() Config {
	return Config{Language: "eng", MinConfidence: 0.3, Level: LevelLine}
}

// Validate rejects unusable settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Language) == "" {
		return &screen.ConfigError{Field: "detection.text.language", Value: c.Language, Reason: "must not be empty"}
	}
	if !(c.MinConfidence >= 0 && c.MinConfidence <= 1) {
		return &screen.ConfigError{Field: "detection.text.min_confidence", Value: c.MinConfidence, Reason: "must be within [0,1]"}
	}
	if _, err := c.Level.iteratorLevel(); err != nil {
		return &screen.ConfigError{Field: "detection.text.level", Value: c.Level, Reason: "must be word, line or block"}
	}
	return nil
}

// TextDetector reports text regions found by Tesseract.
type TextDetector struct {
	cfg Config
}

// NewTextDetector returns a detector using cfg.
func NewTextDetector(cfg Config) *TextDetector {
	return &TextDetector{cfg: cfg}
}

// Region is one recognized text region.
type Region struct {
	Text       string      `json:"text"`
	BBox       screen.BBox `json:"bbox"`
	Confidence float64     `json:"confidence"`
}

// Detect returns the text regions of img as candidates, in Tesseract's
// reading order.
func (d *TextDetector) Detect(ctx context.Context, img image.Image) ([]screen.Candidate, error) {
	regions, err := d.Recognize(ctx, img)
	if err != nil {
		return nil, err
	}
	out := make([]screen.Candidate, len(regions))
	for i, r := range regions {
		out[i] = screen.Candidate{BBox: r.BBox, Confidence: r.Confidence}
	}
	return out, nil
}

// Recognize runs OCR on img and returns the regions with their text.
//
// The image is handed to Tesseract as an in-memory PNG. Boxes are returned
// in the coordinate space of img. Regions with empty text or confidence
// below MinConfidence are dropped.
//
// Tesseract cannot be interrupted; ctx is checked before and after the call.
func (d *TextDetector) Recognize(ctx context.Context, img image.Image) ([]Region, error) {
	if err := d.cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := d.cfg.Level.iteratorLevel()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if d.cfg.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(d.cfg.TessdataPrefix); err != nil {
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(strings.Split(d.cfg.Language, "+")...); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	// UI text is scattered rather than laid out in paragraphs.
	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(level)
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return toRegions(boxes, img.Bounds().Min, d.cfg.MinConfidence), nil
}

// toRegions converts Tesseract boxes to regions offset by origin.
func toRegions(boxes []gosseract.BoundingBox, origin image.Point, minConfidence float64) []Region {
	regions := make([]Region, 0, len(boxes))
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" || box.Box.Empty() {
			continue
		}
		confidence := math.Max(0, math.Min(1, box.Confidence/100.0))
		if confidence < minConfidence {
			continue
		}
		regions = append(regions, Region{
			Text:       text,
			BBox:       screen.FromRect(box.Box.Add(origin)),
			Confidence: confidence,
		})
	}
	return regions
}
