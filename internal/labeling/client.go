// Package labeling requests semantic annotations for grouped screen elements
// from an external labeling service and merges them back into provenance
// records.
package labeling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ironsheep/screen-elements-mcp/internal/screen"
)

// Config describes the labeling service integration.
type Config struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	APIKey   string `yaml:"api_key" json:"-"`
	Model    string `yaml:"model" json:"model"`

	// MaxConcurrency bounds the number of group requests in flight.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`

	// Timeout applies to each group request.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Padding in pixels around each group crop.
	Padding int `yaml:"padding" json:"padding"`

	// MaxImageWidth scales down wider crops. Zero leaves them as is.
	MaxImageWidth int `yaml:"max_image_width" json:"max_image_width"`
}

// DefaultConfig returns labeling disabled with conservative limits.
func DefaultConfig() Config {
	return Config{
		Model:          "default",
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
		Padding:        8,
		MaxImageWidth:  1024,
	}
}

// Validate rejects unusable settings. An enabled labeler needs an endpoint.
func (c Config) Validate() error {
	if c.Enabled && strings.TrimSpace(c.Endpoint) == "" {
		return &screen.ConfigError{Field: "labeling.endpoint", Value: c.Endpoint, Reason: "required when labeling is enabled"}
	}
	if c.MaxConcurrency < 1 {
		return &screen.ConfigError{Field: "labeling.max_concurrency", Value: c.MaxConcurrency, Reason: "must be >= 1"}
	}
	if c.Timeout <= 0 {
		return &screen.ConfigError{Field: "labeling.timeout", Value: c.Timeout, Reason: "must be > 0"}
	}
	if c.Padding < 0 {
		return &screen.ConfigError{Field: "labeling.padding", Value: c.Padding, Reason: "must be >= 0"}
	}
	if c.MaxImageWidth < 0 {
		return &screen.ConfigError{Field: "labeling.max_image_width", Value: c.MaxImageWidth, Reason: "must be >= 0"}
	}
	return nil
}

// SlotInfo describes one member of the group shown to the labeler. BBox is
// relative to the group image.
type SlotInfo struct {
	SlotID    string      `json:"slot_id"`
	BBox      screen.BBox `json:"bbox"`
	ElementID string      `json:"element_id"`
	Origin    string      `json:"origin"`
}

// Request asks for annotations of every slot in one group.
type Request struct {
	Model       string     `json:"model"`
	Group       string     `json:"group"`
	Category    string     `json:"category"`
	ImageBase64 string     `json:"image_base64"`
	MimeType    string     `json:"mime_type"`
	Slots       []SlotInfo `json:"slots"`
}

// Item is one annotation returned by the labeler.
type Item struct {
	SlotID string `json:"slot_id"`
	Name   string `json:"name"`
	Brief  string `json:"brief"`
}

type response struct {
	Items []Item `json:"items"`
}

// Labeler produces annotations for one group.
type Labeler interface {
	Label(ctx context.Context, req Request) ([]Item, error)
}

// Client talks to a labeling service over HTTP.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ Labeler = (*Client)(nil)

// NewClient creates a reusable HTTP client. Per-request deadlines come from
// the context; timeout is a backstop for callers that pass none.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

// Label posts req to /label and returns the items of the reply.
func (c *Client) Label(ctx context.Context, req Request) ([]Item, error) {
	var resp response
	if err := c.post(ctx, "/label", req, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
