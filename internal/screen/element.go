package screen

import (
	"fmt"
	"strings"
)

// NA is the placeholder rendered for an absent source id.
const NA = "NA"

// SourceKind identifies which detector produced a region.
type SourceKind int

const (
	// SourceObject is the object/icon detector.
	SourceObject SourceKind = iota + 1
	// SourceText is the text-region detector.
	SourceText
)

// String returns "object" or "text".
func (k SourceKind) String() string {
	switch k {
	case SourceObject:
		return "object"
	case SourceText:
		return "text"
	default:
		return fmt.Sprintf("SourceKind(%d)", int(k))
	}
}

// Prefix returns the id prefix used for detections of this kind.
func (k SourceKind) Prefix() string {
	switch k {
	case SourceObject:
		return "Y"
	case SourceText:
		return "O"
	default:
		return "?"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k SourceKind) MarshalText() ([]byte, error) {
	switch k {
	case SourceObject, SourceText:
		return []byte(k.String()), nil
	}
	return nil, fmt.Errorf("invalid source kind %d", int(k))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *SourceKind) UnmarshalText(text []byte) error {
	parsed, err := ParseSourceKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseSourceKind accepts "object"/"text" and the detector aliases used by
// callers that only know the id prefix ("y"/"o", "yolo"/"ocr").
func ParseSourceKind(s string) (SourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "object", "y", "yolo", "icon":
		return SourceObject, nil
	case "text", "o", "ocr":
		return SourceText, nil
	}
	return 0, fmt.Errorf("unknown source kind %q", s)
}

// KindOfID infers the source kind from a source-scoped id such as "Y012".
func KindOfID(id string) (SourceKind, bool) {
	switch {
	case strings.HasPrefix(id, "Y"):
		return SourceObject, true
	case strings.HasPrefix(id, "O"):
		return SourceText, true
	}
	return 0, false
}

// FormatID renders the n-th (1-based) identifier with a prefix, e.g. "M007".
func FormatID(prefix string, n int) string {
	return fmt.Sprintf("%s%03d", prefix, n)
}

// ElementPrefix is the id prefix of fused elements.
const ElementPrefix = "M"

// Candidate is an untagged region reported by a detector backend.
type Candidate struct {
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
}

// Detection is one raw candidate region from one detector, tagged with its
// source-scoped id. Detections are values and are never modified after
// tagging.
type Detection struct {
	Kind       SourceKind `json:"source"`
	ID         string     `json:"sourceId"`
	BBox       BBox       `json:"bbox"`
	Confidence float64    `json:"confidence"`
}

// TagDetections assigns sequential ids (Y001... or O001...) to candidates in
// the order the detector reported them.
func TagDetections(kind SourceKind, candidates []Candidate) []Detection {
	out := make([]Detection, len(candidates))
	for i, c := range candidates {
		out[i] = Detection{
			Kind:       kind,
			ID:         FormatID(kind.Prefix(), i+1),
			BBox:       c.BBox,
			Confidence: c.Confidence,
		}
	}
	return out
}

// Validate checks a detection received from a detector backend.
func (d Detection) Validate() error {
	if d.Kind != SourceObject && d.Kind != SourceText {
		return fmt.Errorf("invalid source kind %d", int(d.Kind))
	}
	if d.ID == "" {
		return fmt.Errorf("empty source id")
	}
	if err := d.BBox.Validate(); err != nil {
		return err
	}
	if d.Confidence < 0 || d.Confidence > 1 || d.Confidence != d.Confidence {
		return fmt.Errorf("confidence %v outside [0,1]", d.Confidence)
	}
	return nil
}

// Element is a canonical, deduplicated on-screen region.
//
// An Element originates from exactly one Detection; SourceID holds that
// detection's id and Origin its kind.
type Element struct {
	ID         string     `json:"elementId"`
	BBox       BBox       `json:"bbox"`
	Origin     SourceKind `json:"originSource"`
	Confidence float64    `json:"confidence"`
	SourceID   string     `json:"sourceId"`
}

// ObjectSourceID returns the object detection id, if the element came from
// the object detector.
func (e Element) ObjectSourceID() (string, bool) {
	if e.Origin == SourceObject {
		return e.SourceID, true
	}
	return "", false
}

// TextSourceID returns the text detection id, if the element came from the
// text detector.
func (e Element) TextSourceID() (string, bool) {
	if e.Origin == SourceText {
		return e.SourceID, true
	}
	return "", false
}

// SourceIDOr returns the id for the given source kind, or NA when the
// element did not come from that source.
func (e Element) SourceIDOr(kind SourceKind) string {
	if e.Origin == kind {
		return e.SourceID
	}
	return NA
}
