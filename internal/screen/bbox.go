package screen

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
)

// BBox is an axis-aligned bounding box in pixel coordinates.
//
// It serializes as a four element JSON array [xmin, ymin, xmax, ymax], the
// shape every detector backend and exporter uses.
type BBox struct {
	XMin float64
	YMin float64
	XMax float64
	YMax float64
}

// Point is a location in pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size holds the dimensions of the analyzed image.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SizeOf returns the dimensions of img.
func SizeOf(img image.Image) Size {
	b := img.Bounds()
	return Size{Width: b.Dx(), Height: b.Dy()}
}

// Box builds a BBox from its four edges.
func Box(xmin, ymin, xmax, ymax float64) BBox {
	return BBox{XMin: xmin, YMin: ymin, XMax: xmax, YMax: ymax}
}

// Width returns the horizontal extent, never negative.
func (b BBox) Width() float64 {
	return math.Max(0, b.XMax-b.XMin)
}

// Height returns the vertical extent, never negative.
func (b BBox) Height() float64 {
	return math.Max(0, b.YMax-b.YMin)
}

// Area returns Width × Height.
func (b BBox) Area() float64 {
	return b.Width() * b.Height()
}

// Center returns the midpoint of the box.
func (b BBox) Center() Point {
	return Point{X: (b.XMin + b.XMax) / 2, Y: (b.YMin + b.YMax) / 2}
}

// Intersect returns the overlapping region of two boxes. The result has zero
// area when the boxes do not overlap.
func (b BBox) Intersect(o BBox) BBox {
	r := BBox{
		XMin: math.Max(b.XMin, o.XMin),
		YMin: math.Max(b.YMin, o.YMin),
		XMax: math.Min(b.XMax, o.XMax),
		YMax: math.Min(b.YMax, o.YMax),
	}
	if r.XMax < r.XMin {
		r.XMax = r.XMin
	}
	if r.YMax < r.YMin {
		r.YMax = r.YMin
	}
	return r
}

// IoU returns the intersection-over-union ratio of two boxes in [0, 1].
func (b BBox) IoU(o BBox) float64 {
	inter := b.Intersect(o).Area()
	if inter == 0 {
		return 0
	}
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Containment returns the intersection area divided by the area of the
// smaller box. A small box fully inside a large one scores 1.
func (b BBox) Containment(o BBox) float64 {
	inter := b.Intersect(o).Area()
	if inter == 0 {
		return 0
	}
	smaller := math.Min(b.Area(), o.Area())
	if smaller <= 0 {
		return 0
	}
	return inter / smaller
}

// OverlapX returns the length of the horizontal overlap of two boxes.
func (b BBox) OverlapX(o BBox) float64 {
	return math.Max(0, math.Min(b.XMax, o.XMax)-math.Max(b.XMin, o.XMin))
}

// OverlapY returns the length of the vertical overlap of two boxes.
func (b BBox) OverlapY(o BBox) float64 {
	return math.Max(0, math.Min(b.YMax, o.YMax)-math.Max(b.YMin, o.YMin))
}

// Validate reports whether the box has finite, correctly ordered edges.
func (b BBox) Validate() error {
	for _, v := range [4]float64{b.XMin, b.YMin, b.XMax, b.YMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite coordinate in %v", b)
		}
	}
	if b.XMax < b.XMin || b.YMax < b.YMin {
		return fmt.Errorf("inverted box %v", b)
	}
	return nil
}

// Rect converts the box to an image.Rectangle, expanding outward to whole
// pixels.
func (b BBox) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(b.XMin)), int(math.Floor(b.YMin)),
		int(math.Ceil(b.XMax)), int(math.Ceil(b.YMax)),
	)
}

// FromRect converts an image.Rectangle to a BBox.
func FromRect(r image.Rectangle) BBox {
	return Box(float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y))
}

// String formats the box as [xmin,ymin,xmax,ymax].
func (b BBox) String() string {
	return fmt.Sprintf("[%g,%g,%g,%g]", b.XMin, b.YMin, b.XMax, b.YMax)
}

// Array returns the box as [xmin, ymin, xmax, ymax].
func (b BBox) Array() [4]float64 {
	return [4]float64{b.XMin, b.YMin, b.XMax, b.YMax}
}

// MarshalJSON encodes the box as a four element array.
func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Array())
}

// UnmarshalJSON decodes a four element array. Boxes arrive from detectors,
// so anything else is reported as an *UpstreamDetectionError.
func (b *BBox) UnmarshalJSON(data []byte) error {
	var a []float64
	if err := json.Unmarshal(data, &a); err != nil {
		return &UpstreamDetectionError{Err: fmt.Errorf("bbox must be [xmin,ymin,xmax,ymax]: %w", err)}
	}
	if len(a) != 4 {
		return &UpstreamDetectionError{Err: fmt.Errorf("bbox must be [xmin,ymin,xmax,ymax], got %d values", len(a))}
	}
	*b = Box(a[0], a[1], a[2], a[3])
	return nil
}
