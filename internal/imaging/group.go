package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/screen-elements-mcp/internal/screen"
)

// Encoded is a PNG rendering ready to embed in a JSON response.
type Encoded struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`

	// Origin is the top-left corner of the rendering in source image
	// coordinates, before any scaling.
	Origin screen.Point `json:"origin"`

	// Scale is the factor applied after cropping.
	Scale float64 `json:"scale"`
}

// CropOptions controls CropGroup.
type CropOptions struct {
	// Padding in pixels added around the union of the boxes.
	Padding int

	// MaxWidth and MaxHeight bound the rendering; larger crops are scaled
	// down preserving aspect ratio. Zero means unbounded.
	MaxWidth  int
	MaxHeight int
}

// CropGroup renders the region covering every box, padded and clipped to
// the image, as the picture a labeler sees for one group.
//
// # Errors
//
//   - no boxes
//   - the padded union does not intersect the image
func CropGroup(img image.Image, boxes []screen.BBox, opts CropOptions) (*Encoded, error) {
	if len(boxes) == 0 {
		return nil, fmt.Errorf("no boxes to crop")
	}

	union := boxes[0].Rect()
	for _, b := range boxes[1:] {
		union = union.Union(b.Rect())
	}
	region := union.Inset(-opts.Padding).Intersect(img.Bounds())
	if region.Empty() {
		return nil, fmt.Errorf("crop region %v outside image bounds %v", union, img.Bounds())
	}

	cropped := imaging.Crop(img, region)

	scale := 1.0
	if (opts.MaxWidth > 0 && region.Dx() > opts.MaxWidth) || (opts.MaxHeight > 0 && region.Dy() > opts.MaxHeight) {
		maxW, maxH := opts.MaxWidth, opts.MaxHeight
		if maxW <= 0 {
			maxW = region.Dx()
		}
		if maxH <= 0 {
			maxH = region.Dy()
		}
		cropped = imaging.Fit(cropped, maxW, maxH, imaging.Lanczos)
		scale = float64(cropped.Bounds().Dx()) / float64(region.Dx())
	}

	enc, err := EncodePNG(cropped)
	if err != nil {
		return nil, err
	}
	enc.Origin = screen.Point{X: float64(region.Min.X), Y: float64(region.Min.Y)}
	enc.Scale = scale
	return enc, nil
}

// EncodePNG encodes img as base64 PNG.
func EncodePNG(img image.Image) (*Encoded, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return &Encoded{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
		Scale:       1,
	}, nil
}
