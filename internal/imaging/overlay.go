package imaging

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/screen-elements-mcp/internal/screen"
)

// goldenAngle spreads consecutive hues as far apart as possible.
const goldenAngle = 137.508

// OverlayBox is one box drawn by Overlay.
type OverlayBox struct {
	BBox  screen.BBox
	Label string

	// Group selects the colour; boxes sharing a group share a colour.
	Group int
}

// OverlayOptions controls Overlay.
type OverlayOptions struct {
	// Thickness of box outlines in pixels. Zero means 2.
	Thickness int

	// HideLabels suppresses the text tags.
	HideLabels bool
}

// GroupColor returns the outline colour of the i-th group. Colours are
// stable for a given i.
func GroupColor(i int) color.RGBA {
	hue := math.Mod(float64(i)*goldenAngle, 360)
	r, g, b := colorful.Hsv(hue, 0.85, 0.95).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Overlay draws every box on a copy of img with its label above the top-left
// corner, and returns the PNG rendering.
func Overlay(img image.Image, boxes []OverlayBox, opts OverlayOptions) (*Encoded, error) {
	thickness := opts.Thickness
	if thickness <= 0 {
		thickness = 2
	}

	bounds := img.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, img, bounds.Min, draw.Src)

	for _, b := range boxes {
		col := GroupColor(b.Group)
		r := b.BBox.Rect().Intersect(bounds)
		if r.Empty() {
			continue
		}
		strokeRect(canvas, r, thickness, col)
	}

	// Labels go on top of every outline.
	if !opts.HideLabels {
		for _, b := range boxes {
			if b.Label == "" {
				continue
			}
			r := b.BBox.Rect().Intersect(bounds)
			if r.Empty() {
				continue
			}
			drawTag(canvas, r.Min, b.Label, GroupColor(b.Group))
		}
	}

	return EncodePNG(canvas)
}

func strokeRect(dst *image.RGBA, r image.Rectangle, thickness int, col color.Color) {
	src := image.NewUniform(col)
	t := thickness
	if t*2 > r.Dx() || t*2 > r.Dy() {
		draw.Draw(dst, r, src, image.Point{}, draw.Over)
		return
	}
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t), src, image.Point{}, draw.Over)
	draw.Draw(dst, image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y), src, image.Point{}, draw.Over)
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y), src, image.Point{}, draw.Over)
	draw.Draw(dst, image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y), src, image.Point{}, draw.Over)
}

// drawTag renders text on a filled background just above at, or just inside
// the box when there is no room above.
func drawTag(dst *image.RGBA, at image.Point, text string, bg color.RGBA) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 4
	height := face.Height + 2

	top := at.Y - height
	if top < dst.Bounds().Min.Y {
		top = at.Y
	}
	tag := image.Rect(at.X, top, at.X+width, top+height).Intersect(dst.Bounds())
	draw.Draw(dst, tag, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(contrastText(bg)),
		Face: face,
		Dot:  fixed.P(at.X+2, top+face.Ascent+1),
	}
	d.DrawString(text)
}

// contrastText picks black or white, whichever reads better on bg.
func contrastText(bg color.RGBA) color.Color {
	c, _ := colorful.MakeColor(bg)
	_, _, l := c.Hcl()
	if l > 0.6 {
		return color.Black
	}
	return color.White
}
