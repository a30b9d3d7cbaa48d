package detection

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/ironsheep/screen-elements-mcp/internal/screen"
)

// Detector produces candidate regions for one source.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]screen.Candidate, error)
}

// ObjectConfig tunes the contour-based object detector.
type ObjectConfig struct {
	// EdgeThreshold is the minimum Sobel response (0-255) of an edge pixel.
	EdgeThreshold uint8 `yaml:"edge_threshold" json:"edge_threshold"`

	// MinContourPixels discards edge components with fewer pixels.
	MinContourPixels int `yaml:"min_contour_pixels" json:"min_contour_pixels"`

	// MinArea discards bounding boxes smaller than this, in square pixels.
	MinArea int `yaml:"min_area" json:"min_area"`

	// MaxAreaFraction discards boxes covering more than this fraction of the
	// image, typically the window frame itself.
	MaxAreaFraction float64 `yaml:"max_area_fraction" json:"max_area_fraction"`

	// MinConfidence discards boxes whose outline coverage is lower.
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`
}

// DefaultObjectConfig returns settings suited to desktop screenshots.
func DefaultObjectConfig() ObjectConfig {
	return ObjectConfig{
		EdgeThreshold:    64,
		MinContourPixels: 10,
		MinArea:          64,
		MaxAreaFraction:  0.95,
		MinConfidence:    0.3,
	}
}

// Validate rejects unusable settings.
func (c ObjectConfig) Validate() error {
	if c.EdgeThreshold == 0 {
		return &screen.ConfigError{Field: "detection.object.edge_threshold", Value: c.EdgeThreshold, Reason: "must be > 0"}
	}
	if c.MinContourPixels < 1 {
		return &screen.ConfigError{Field: "detection.object.min_contour_pixels", Value: c.MinContourPixels, Reason: "must be >= 1"}
	}
	if c.MinArea < 1 {
		return &screen.ConfigError{Field: "detection.object.min_area", Value: c.MinArea, Reason: "must be >= 1"}
	}
	if !(c.MaxAreaFraction > 0 && c.MaxAreaFraction <= 1) {
		return &screen.ConfigError{Field: "detection.object.max_area_fraction", Value: c.MaxAreaFraction, Reason: "must be within (0,1]"}
	}
	if !(c.MinConfidence >= 0 && c.MinConfidence <= 1) {
		return &screen.ConfigError{Field: "detection.object.min_confidence", Value: c.MinConfidence, Reason: "must be within [0,1]"}
	}
	return nil
}

// ObjectDetector finds icon and widget candidates as bounding boxes of
// connected edge components.
type ObjectDetector struct {
	cfg ObjectConfig
}

// NewObjectDetector returns a detector using cfg.
func NewObjectDetector(cfg ObjectConfig) *ObjectDetector {
	return &ObjectDetector{cfg: cfg}
}

// Detect returns candidate boxes in reading order (top to bottom, then left
// to right), in the coordinate space of img.
//
// # Algorithm
//
//  1. Edge map from the Sobel response of the grayscale image
//  2. 8-connected components of edge pixels via flood fill
//  3. Bounding box of each component, filtered by MinArea and
//     MaxAreaFraction
//  4. Confidence is the fraction of the box outline covered by the
//     component: 1.0 for a closed rectangular frame, lower for open or
//     irregular shapes
func (d *ObjectDetector) Detect(ctx context.Context, img image.Image) ([]screen.Candidate, error) {
	if err := d.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	origin := img.Bounds().Min
	edges := DetectEdges(img, d.cfg.EdgeThreshold)
	imageArea := float64(edges.Width * edges.Height)
	if imageArea == 0 {
		return nil, fmt.Errorf("empty image")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	contours := findContours(edges, d.cfg.MinContourPixels)

	out := make([]screen.Candidate, 0, len(contours))
	for _, contour := range contours {
		r := boundsOf(contour)
		area := r.Dx() * r.Dy()
		if area < d.cfg.MinArea || float64(area) > d.cfg.MaxAreaFraction*imageArea {
			continue
		}
		conf := outlineCoverage(contour, r, 2)
		if conf < d.cfg.MinConfidence {
			continue
		}
		out = append(out, screen.Candidate{
			BBox:       screen.FromRect(r.Add(origin)),
			Confidence: math.Round(conf*1000) / 1000,
		})
	}

	sortReadingOrder(out)
	return out, nil
}

// outlineCoverage returns the fraction of positions along the four sides of
// r that have a contour pixel within band pixels of that side.
func outlineCoverage(contour []image.Point, r image.Rectangle, band int) float64 {
	w, h := r.Dx(), r.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	top := make([]bool, w)
	bottom := make([]bool, w)
	left := make([]bool, h)
	right := make([]bool, h)

	for _, p := range contour {
		x, y := p.X-r.Min.X, p.Y-r.Min.Y
		if y < band {
			top[x] = true
		}
		if y >= h-band {
			bottom[x] = true
		}
		if x < band {
			left[y] = true
		}
		if x >= w-band {
			right[y] = true
		}
	}

	hits := count(top) + count(bottom) + count(left) + count(right)
	return float64(hits) / float64(2*w+2*h)
}

func count(flags []bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

// sortReadingOrder orders candidates top to bottom, then left to right.
func sortReadingOrder(c []screen.Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		a, b := c[i].BBox, c[j].BBox
		if a.YMin != b.YMin {
			return a.YMin < b.YMin
		}
		if a.XMin != b.XMin {
			return a.XMin < b.XMin
		}
		if a.XMax != b.XMax {
			return a.XMax < b.XMax
		}
		return a.YMax < b.YMax
	})
}
