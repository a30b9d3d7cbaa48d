package detection

import (
	"image"

	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
)

// EdgeMap is a binary edge image indexed [y][x] relative to the source
// image's bounds.
type EdgeMap struct {
	Width  int
	Height int
	pix    []bool
}

// At reports whether (x, y) is an edge pixel. Out-of-range coordinates are
// never edges.
func (m *EdgeMap) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.pix[y*m.Width+x]
}

// Count returns the number of edge pixels inside r.
func (m *EdgeMap) Count(r image.Rectangle) int {
	r = r.Intersect(image.Rect(0, 0, m.Width, m.Height))
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := m.pix[y*m.Width : (y+1)*m.Width]
		for x := r.Min.X; x < r.Max.X; x++ {
			if row[x] {
				n++
			}
		}
	}
	return n
}

// DetectEdges computes a Sobel edge map of img.
//
// The Sobel response is clamped at zero, so a single pass only sees
// dark-to-light transitions in one direction. The map is the union of the
// thresholded responses of the grayscale image and its inverse, which marks
// both sides of every boundary.
//
// threshold is the minimum 8-bit Sobel response (0-255) of an edge pixel.
func DetectEdges(img image.Image, threshold uint8) *EdgeMap {
	b := img.Bounds()
	m := &EdgeMap{Width: b.Dx(), Height: b.Dy(), pix: make([]bool, b.Dx()*b.Dy())}
	if m.Width == 0 || m.Height == 0 {
		return m
	}

	gray := effect.Grayscale(img)
	rising := segment.Threshold(effect.Sobel(gray), threshold)
	falling := segment.Threshold(effect.Sobel(effect.Invert(gray)), threshold)

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			i := y*rising.Stride + x
			if rising.Pix[i] != 0 || falling.Pix[y*falling.Stride+x] != 0 {
				m.pix[y*m.Width+x] = true
			}
		}
	}
	return m
}

// findContours groups edge pixels into 8-connected components. Components
// smaller than minPixels are discarded as noise.
func findContours(edges *EdgeMap, minPixels int) [][]image.Point {
	visited := make([]bool, len(edges.pix))
	contours := make([][]image.Point, 0)

	for y := 0; y < edges.Height; y++ {
		for x := 0; x < edges.Width; x++ {
			i := y*edges.Width + x
			if edges.pix[i] && !visited[i] {
				contour := floodFill(edges, visited, x, y)
				if len(contour) >= minPixels {
					contours = append(contours, contour)
				}
			}
		}
	}
	return contours
}

// floodFill collects the component containing (startX, startY) with an
// explicit stack.
func floodFill(edges *EdgeMap, visited []bool, startX, startY int) []image.Point {
	var contour []image.Point
	stack := []image.Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !edges.At(p.X, p.Y) {
			continue
		}
		i := p.Y*edges.Width + p.X
		if visited[i] {
			continue
		}
		visited[i] = true
		contour = append(contour, p)

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, image.Point{X: p.X + dx, Y: p.Y + dy})
			}
		}
	}
	return contour
}

// boundsOf returns the smallest rectangle containing every point.
func boundsOf(points []image.Point) image.Rectangle {
	r := image.Rect(points[0].X, points[0].Y, points[0].X+1, points[0].Y+1)
	for _, p := range points[1:] {
		if p.X < r.Min.X {
			r.Min.X = p.X
		}
		if p.Y < r.Min.Y {
			r.Min.Y = p.Y
		}
		if p.X+1 > r.Max.X {
			r.Max.X = p.X + 1
		}
		if p.Y+1 > r.Max.Y {
			r.Max.Y = p.Y + 1
		}
	}
	return r
}
