package detection

import (
	"context"
	"image"
	"math"

	"github.com/ironsheep/screen-elements-mcp/internal/screen"
)

// TextConfig tunes the heuristic text-region detector.
type TextConfig struct {
	EdgeThreshold uint8   `yaml:"edge_threshold" json:"edge_threshold"`
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`
}

// DefaultTextConfig returns the heuristic detector defaults.
func DefaultTextConfig() TextConfig {
	return TextConfig{EdgeThreshold: 64, MinConfidence: 0.3}
}

// Validate rejects unusable settings.
func (c TextConfig) Validate() error {
	if c.EdgeThreshold == 0 {
		return &screen.ConfigError{Field: "detection.text.edge_threshold", Value: c.EdgeThreshold, Reason: "must be > 0"}
	}
	if !(c.MinConfidence >= 0 && c.MinConfidence <= 1) {
		return &screen.ConfigError{Field: "detection.text.min_confidence", Value: c.MinConfidence, Reason: "must be within [0,1]"}
	}
	return nil
}

// windowSizes are the sliding windows scanned, roughly one per text size.
var windowSizes = []struct{ w, h int }{
	{100, 30},
	{150, 40},
	{200, 50},
	{80, 25},
}

// HeuristicTextDetector finds regions likely to contain text without an OCR
// engine: areas of medium edge density whose edges run mostly horizontally.
// It is the fallback when Tesseract is not installed.
type HeuristicTextDetector struct {
	cfg TextConfig
}

// NewHeuristicTextDetector returns a detector using cfg.
func NewHeuristicTextDetector(cfg TextConfig) *HeuristicTextDetector {
	return &HeuristicTextDetector{cfg: cfg}
}

// Detect returns merged text regions in reading order.
func (d *HeuristicTextDetector) Detect(ctx context.Context, img image.Image) ([]screen.Candidate, error) {
	if err := d.cfg.Validate(); err != nil {
		return nil, err
	}
	origin := img.Bounds().Min
	edges := DetectEdges(img, d.cfg.EdgeThreshold)

	candidates := make([]textRegion, 0)
	for _, ws := range windowSizes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stepX := ws.w / 2
		stepY := ws.h / 2

		for y := 0; y <= edges.Height-ws.h; y += stepY {
			for x := 0; x <= edges.Width-ws.w; x += stepX {
				window := image.Rect(x, y, x+ws.w, y+ws.h)
				density := float64(edges.Count(window)) / float64(ws.w*ws.h)

				// Text has medium edge density: not sparse, not a texture.
				if density < 0.05 || density > 0.4 {
					continue
				}
				confidence := horizontalScore(edges, window) * (1.0 - math.Abs(density-0.2)/0.2)
				if confidence >= d.cfg.MinConfidence {
					candidates = append(candidates, textRegion{
						rect:       window,
						confidence: math.Round(confidence*1000) / 1000,
					})
				}
			}
		}
	}

	merged := mergeOverlapping(candidates)
	out := make([]screen.Candidate, len(merged))
	for i, r := range merged {
		out[i] = screen.Candidate{BBox: screen.FromRect(r.rect.Add(origin)), Confidence: r.confidence}
	}
	sortReadingOrder(out)
	return out, nil
}

type textRegion struct {
	rect       image.Rectangle
	confidence float64
}

// horizontalScore is the share of horizontal edge runs among all runs in r.
func horizontalScore(edges *EdgeMap, r image.Rectangle) float64 {
	horizontalRuns := 0
	verticalRuns := 0

	for row := r.Min.Y; row < r.Max.Y; row++ {
		inRun := false
		for col := r.Min.X; col < r.Max.X; col++ {
			if edges.At(col, row) {
				if !inRun {
					horizontalRuns++
					inRun = true
				}
			} else {
				inRun = false
			}
		}
	}

	for col := r.Min.X; col < r.Max.X; col++ {
		inRun := false
		for row := r.Min.Y; row < r.Max.Y; row++ {
			if edges.At(col, row) {
				if !inRun {
					verticalRuns++
					inRun = true
				}
			} else {
				inRun = false
			}
		}
	}

	if horizontalRuns+verticalRuns == 0 {
		return 0
	}
	return float64(horizontalRuns) / float64(horizontalRuns+verticalRuns)
}

// mergeOverlapping unions overlapping regions until none overlap, keeping
// the highest confidence of each union.
func mergeOverlapping(regions []textRegion) []textRegion {
	merged := make([]textRegion, 0, len(regions))
	for _, r := range regions {
		merged = append(merged, r)
		// Absorb every region the newcomer touches, repeating while the union
		// keeps growing into further regions.
		for changed := true; changed; {
			changed = false
			last := &merged[len(merged)-1]
			for i := 0; i < len(merged)-1; i++ {
				if !last.rect.Overlaps(merged[i].rect) {
					continue
				}
				last.rect = last.rect.Union(merged[i].rect)
				last.confidence = math.Max(last.confidence, merged[i].confidence)
				merged = append(merged[:i], merged[i+1:]...)
				changed = true
				break
			}
		}
	}
	return merged
}
