// Package export renders an analysis as a flat report for downstream
// consumers, as JSON or as MessagePack.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ironsheep/screen-elements-mcp/internal/labeling"
	"github.com/ironsheep/screen-elements-mcp/internal/pipeline"
	"github.com/ironsheep/screen-elements-mcp/internal/provenance"
	"github.com/ironsheep/screen-elements-mcp/internal/screen"
)

// Format selects the report encoding.
type Format string

const (
	JSON    Format = "json"
	MsgPack Format = "msgpack"
)

// ParseFormat accepts "json", "msgpack" or "mpk", case-insensitively. An
// empty string means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "msgpack", "mpk":
		return MsgPack, nil
	}
	return "", fmt.Errorf("unknown export format %q (expected json or msgpack)", s)
}

// Report is the exported form of one analysis. Boxes are [xmin, ymin, xmax,
// ymax]; absent source ids are "NA".
type Report struct {
	RunID     string    `json:"run_id" msgpack:"run_id"`
	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`
	Image     ImageInfo `json:"image" msgpack:"image"`

	Detection DetectionSummary `json:"detection_summary" msgpack:"detection_summary"`
	Grouping  GroupingSummary  `json:"grouping_summary" msgpack:"grouping_summary"`
	Labeling  LabelingSummary  `json:"labeling_summary" msgpack:"labeling_summary"`
	TimingMS  Timing           `json:"timing_ms" msgpack:"timing_ms"`

	Elements []Element      `json:"elements" msgpack:"elements"`
	Groups   map[string]Row `json:"groups" msgpack:"groups"`

	// SourceIndex maps raw detection ids to slot ids.
	SourceIndex map[string]string `json:"source_index" msgpack:"source_index"`
}

type ImageInfo struct {
	Width  int `json:"width" msgpack:"width"`
	Height int `json:"height" msgpack:"height"`
}

type DetectionSummary struct {
	Objects           int `json:"objects" msgpack:"objects"`
	Texts             int `json:"texts" msgpack:"texts"`
	DiscardedSmall    int `json:"discarded_small" msgpack:"discarded_small"`
	DuplicatesRemoved int `json:"duplicates_removed" msgpack:"duplicates_removed"`
	// Removed counts every input detection that did not become an element.
	Removed  int `json:"removed" msgpack:"removed"`
	Elements int `json:"elements" msgpack:"elements"`
}

type GroupingSummary struct {
	TotalGroups        int     `json:"total_groups" msgpack:"total_groups"`
	HorizontalGroups   int     `json:"horizontal_groups" msgpack:"horizontal_groups"`
	VerticalGroups     int     `json:"vertical_groups" msgpack:"vertical_groups"`
	LongBoxGroups      int     `json:"long_box_groups" msgpack:"long_box_groups"`
	SingletonGroups    int     `json:"singleton_groups" msgpack:"singleton_groups"`
	GroupingEfficiency float64 `json:"grouping_efficiency" msgpack:"grouping_efficiency"`
}

type LabelingSummary struct {
	Enabled   bool `json:"enabled" msgpack:"enabled"`
	Annotated int  `json:"annotated" msgpack:"annotated"`
	Failed    int  `json:"failed" msgpack:"failed"`
	Warnings  int  `json:"warnings" msgpack:"warnings"`
}

type Timing struct {
	Detection float64 `json:"detection" msgpack:"detection"`
	Fusion    float64 `json:"fusion" msgpack:"fusion"`
	Grouping  float64 `json:"grouping" msgpack:"grouping"`
	Labeling  float64 `json:"labeling" msgpack:"labeling"`
	Total     float64 `json:"total" msgpack:"total"`
}

// Element is one fused element with its slot.
type Element struct {
	ElementID      string     `json:"elementId" msgpack:"elementId"`
	SlotID         string     `json:"slotId" msgpack:"slotId"`
	BBox           [4]float64 `json:"bbox" msgpack:"bbox"`
	OriginSource   string     `json:"originSource" msgpack:"originSource"`
	ObjectSourceID string     `json:"objectSourceId" msgpack:"objectSourceId"`
	TextSourceID   string     `json:"textSourceId" msgpack:"textSourceId"`
	Confidence     float64    `json:"confidence" msgpack:"confidence"`
}

// Row is the flat provenance record of one slot.
type Row struct {
	BBox            [4]float64 `json:"bbox" msgpack:"bbox"`
	ElementID       string     `json:"elementId" msgpack:"elementId"`
	ObjectSourceID  string     `json:"objectSourceId" msgpack:"objectSourceId"`
	TextSourceID    string     `json:"textSourceId" msgpack:"textSourceId"`
	Category        string     `json:"category" msgpack:"category"`
	OriginSource    string     `json:"originSource" msgpack:"originSource"`
	AnnotationName  string     `json:"annotationName" msgpack:"annotationName"`
	AnnotationBrief string     `json:"annotationBrief" msgpack:"annotationBrief"`
}

func rowOf(f provenance.Flat) Row {
	return Row{
		BBox:            f.BBox.Array(),
		ElementID:       f.ElementID,
		ObjectSourceID:  f.ObjectSourceID,
		TextSourceID:    f.TextSourceID,
		Category:        f.Category,
		OriginSource:    f.OriginSource,
		AnnotationName:  f.AnnotationName,
		AnnotationBrief: f.AnnotationBrief,
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// Build snapshots an analysis into a report. Annotations merged after Build
// returns are not reflected.
func Build(an *pipeline.Analysis) *Report {
	records := an.Records()
	sum := an.Layout.Summary

	r := &Report{
		RunID:     an.RunID,
		CreatedAt: an.CreatedAt.UTC(),
		Image:     ImageInfo{Width: an.Size.Width, Height: an.Size.Height},
		Detection: DetectionSummary{
			Objects:           an.Fusion.ObjectsIn,
			Texts:             an.Fusion.TextsIn,
			DiscardedSmall:    an.Fusion.DiscardedSmall,
			DuplicatesRemoved: an.Fusion.DuplicatesRemoved,
			Removed:           an.Fusion.Removed(),
			Elements:          len(an.Elements),
		},
		Grouping: GroupingSummary{
			TotalGroups:        sum.TotalGroups,
			HorizontalGroups:   sum.HorizontalGroups,
			VerticalGroups:     sum.VerticalGroups,
			LongBoxGroups:      sum.LongBoxGroups,
			SingletonGroups:    sum.SingletonGroups,
			GroupingEfficiency: sum.GroupingEfficiency,
		},
		Labeling: labelingSummary(an.Labeling, records, len(an.Tracker.Warnings())),
		TimingMS: Timing{
			Detection: millis(an.Timing.Detection),
			Fusion:    millis(an.Timing.Fusion),
			Grouping:  millis(an.Timing.Grouping),
			Labeling:  millis(an.Timing.Labeling),
			Total:     millis(an.Timing.Total),
		},
		Elements:    make([]Element, len(an.Elements)),
		Groups:      make(map[string]Row, len(records)),
		SourceIndex: records.SourceIndex(),
	}

	for i, e := range an.Elements {
		r.Elements[i] = Element{
			ElementID:      e.ID,
			SlotID:         an.Layout.ElementToSlot[e.ID],
			BBox:           e.BBox.Array(),
			OriginSource:   e.Origin.String(),
			ObjectSourceID: e.SourceIDOr(screen.SourceObject),
			TextSourceID:   e.SourceIDOr(screen.SourceText),
			Confidence:     e.Confidence,
		}
	}
	for slot, f := range records.Flat() {
		r.Groups[slot] = rowOf(f)
	}
	return r
}

func labelingSummary(s *labeling.Summary, records provenance.Records, warnings int) LabelingSummary {
	out := LabelingSummary{Annotated: records.Annotated(), Warnings: warnings}
	if s != nil {
		out.Enabled = true
		out.Failed = s.Failed
	}
	return out
}

// Encode serializes r in format f.
func Encode(r *Report, f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, r, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write serializes r in format f to w. JSON output is indented.
func Write(w io.Writer, r *Report, f Format) error {
	switch f {
	case JSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
	case MsgPack:
		enc := msgpack.NewEncoder(w)
		enc.SetSortMapKeys(true)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
	return nil
}

// Decode parses a report produced by Encode.
func Decode(data []byte, f Format) (*Report, error) {
	var r Report
	var err error
	switch f {
	case JSON, "":
		err = json.Unmarshal(data, &r)
	case MsgPack:
		err = msgpack.Unmarshal(data, &r)
	default:
		return nil, fmt.Errorf("unknown export format %q", f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}

// WriteFile writes r to path, replacing any existing file.
func WriteFile(path string, r *Report, f Format) error {
	data, err := Encode(r, f)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
