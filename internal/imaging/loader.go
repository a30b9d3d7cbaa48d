package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"strings"
	"sync"
)

// Source is a decoded screen capture together with where it came from.
type Source struct {
	Image  image.Image
	Format string
	// Path is empty for images supplied inline.
	Path string
}

// ImageCache provides thread-safe caching of decoded screen captures read
// from disk, keyed by file path.
//
// A cache built with a positive max keeps at most max images and drops the
// least recently loaded one when full. Callers can also drop an entry early
// with Evict.
//
// ImageCache is safe for concurrent use by multiple goroutines.
type ImageCache struct {
	mu     sync.RWMutex
	max    int
	images map[string]Source
	order  []string
}

// NewImageCache creates an empty image cache holding at most max images.
// max < 1 means unbounded.
func NewImageCache(max int) *ImageCache {
	return &ImageCache{
		max:    max,
		images: make(map[string]Source),
	}
}

// Load retrieves an image from the cache or decodes it from disk.
//
// Supported formats are PNG, JPEG, and GIF. The path string is the cache
// key as given; relative and absolute spellings of one file are separate
// entries.
func (c *ImageCache) Load(path string) (Source, error) {
	c.mu.RLock()
	if src, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return src, nil
	}
	c.mu.RUnlock()

	f, err := os.Open(path)
	if err != nil {
		return Source{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return Source{}, fmt.Errorf("failed to decode image: %w", err)
	}

	src := Source{Image: img, Format: format, Path: path}
	c.mu.Lock()
	if _, ok := c.images[path]; !ok {
		c.order = append(c.order, path)
	}
	c.images[path] = src
	for c.max > 0 && len(c.order) > c.max {
		delete(c.images, c.order[0])
		c.order = c.order[1:]
	}
	c.mu.Unlock()

	return src, nil
}

// Evict removes one image from the cache. Unknown keys are ignored.
func (c *ImageCache) Evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.images[key]; !ok {
		return
	}
	delete(c.images, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// DecodeBase64 decodes an inline image. A "data:image/...;base64," prefix
// is accepted and ignored.
func DecodeBase64(data string) (Source, error) {
	if i := strings.Index(data, ";base64,"); i >= 0 && strings.HasPrefix(data, "data:") {
		data = data[i+len(";base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return Source{}, fmt.Errorf("invalid base64 image: %w", err)
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Source{}, fmt.Errorf("failed to decode image: %w", err)
	}
	return Source{Image: img, Format: format}, nil
}

// ImageInfo contains metadata about a loaded screen capture.
type ImageInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	// Format is the decoder that read the image: "png", "jpeg" or "gif".
	Format string `json:"format"`

	// ColorDepth is "8-bit" or "16-bit" per channel.
	ColorDepth string `json:"color_depth"`

	HasAlpha bool `json:"has_alpha"`

	// FileSizeBytes is zero for inline images.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// Describe returns metadata about src.
func Describe(src Source) (*ImageInfo, error) {
	bounds := src.Image.Bounds()

	var size int64
	if src.Path != "" {
		stat, err := os.Stat(src.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat file: %w", err)
		}
		size = stat.Size()
	}

	hasAlpha := false
	colorDepth := "8-bit"
	switch src.Image.(type) {
	case *image.RGBA, *image.NRGBA:
		hasAlpha = true
	case *image.RGBA64, *image.NRGBA64:
		hasAlpha = true
		colorDepth = "16-bit"
	case *image.Gray16:
		colorDepth = "16-bit"
	}

	return &ImageInfo{
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		Format:        src.Format,
		ColorDepth:    colorDepth,
		HasAlpha:      hasAlpha,
		FileSizeBytes: size,
	}, nil
}
