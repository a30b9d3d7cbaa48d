// Package provenance keeps the identifier chain from raw detector output
// through fusion and grouping to the semantic annotation of each slot.
//
// Records are keyed by slot id (e.g. "H3_2"). Identity fields are fixed when
// the records are built; only the annotation may change afterwards, through
// MergeAnnotations or a Tracker.
package provenance

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ironsheep/screen-elements-mcp/internal/layout"
	"github.com/ironsheep/screen-elements-mcp/internal/screen"
)

// Rendered values of an unset annotation.
const (
	UnanalyzedName  = "unanalyzed"
	UnanalyzedBrief = "Not analyzed"
)

// Annotation is the semantic label of one slot.
type Annotation struct {
	Name  string `json:"name"`
	Brief string `json:"brief"`
}

// Entry is the provenance record of one slot.
type Entry struct {
	SlotID    string            `json:"slotId"`
	Group     string            `json:"group"`
	Position  int               `json:"position"`
	Category  layout.Category   `json:"category"`
	BBox      screen.BBox       `json:"bbox"`
	ElementID string            `json:"elementId"`
	Origin    screen.SourceKind `json:"originSource"`
	SourceID  string            `json:"sourceId"`

	// Annotation is nil until a labeler result is merged.
	Annotation *Annotation `json:"annotation,omitempty"`
}

// Annotated reports whether the entry carries an annotation.
func (e Entry) Annotated() bool { return e.Annotation != nil }

// Name returns the annotation name, or "unanalyzed".
func (e Entry) Name() string {
	if e.Annotation == nil {
		return UnanalyzedName
	}
	return e.Annotation.Name
}

// Brief returns the annotation brief, or "Not analyzed".
func (e Entry) Brief() string {
	if e.Annotation == nil {
		return UnanalyzedBrief
	}
	return e.Annotation.Brief
}

// ObjectSourceID returns the object detection id or "NA".
func (e Entry) ObjectSourceID() string {
	if e.Origin == screen.SourceObject {
		return e.SourceID
	}
	return screen.NA
}

// TextSourceID returns the text detection id or "NA".
func (e Entry) TextSourceID() string {
	if e.Origin == screen.SourceText {
		return e.SourceID
	}
	return screen.NA
}

// ClickPoint returns the point to click to activate the element: the centre
// of its box in image coordinates.
func (e Entry) ClickPoint() screen.Point {
	return e.BBox.Center()
}

// Flat is the serialized form of an entry consumed by the labeler and by
// exporters. Field names are part of the external contract.
type Flat struct {
	BBox            screen.BBox `json:"bbox"`
	ElementID       string      `json:"elementId"`
	ObjectSourceID  string      `json:"objectSourceId"`
	TextSourceID    string      `json:"textSourceId"`
	Category        string      `json:"category"`
	OriginSource    string      `json:"originSource"`
	AnnotationName  string      `json:"annotationName"`
	AnnotationBrief string      `json:"annotationBrief"`
}

// Flat renders the entry in its serialized form.
func (e Entry) Flat() Flat {
	return Flat{
		BBox:            e.BBox,
		ElementID:       e.ElementID,
		ObjectSourceID:  e.ObjectSourceID(),
		TextSourceID:    e.TextSourceID(),
		Category:        string(e.Category),
		OriginSource:    e.Origin.String(),
		AnnotationName:  e.Name(),
		AnnotationBrief: e.Brief(),
	}
}

// Records maps slot ids to their provenance entries. A Records value is
// treated as immutable: operations return new maps.
type Records map[string]Entry

// BuildInitialRecords creates one unannotated entry per slot of res.
//
// elements must be the sequence res was grouped from; identity fields are
// taken from it. An element without a slot, or a slot whose element is not
// in elements, yields *screen.GroupingIncompleteError.
func BuildInitialRecords(res *layout.Result, elements []screen.Element) (Records, error) {
	if res == nil {
		return nil, &screen.GroupingIncompleteError{Detail: "no grouping result"}
	}

	byID := make(map[string]screen.Element, len(elements))
	for _, e := range elements {
		byID[e.ID] = e
	}

	records := make(Records, len(elements))
	var unknown []string
	for _, s := range res.Slots() {
		e, ok := byID[s.Element.ID]
		if !ok {
			unknown = append(unknown, s.Element.ID)
			continue
		}
		records[s.ID] = Entry{
			SlotID:    s.ID,
			Group:     s.Group,
			Position:  s.Position,
			Category:  s.Category,
			BBox:      e.BBox,
			ElementID: e.ID,
			Origin:    e.Origin,
			SourceID:  e.SourceID,
		}
	}
	if len(unknown) > 0 {
		return nil, &screen.GroupingIncompleteError{ElementIDs: unknown, Detail: "slots reference unknown elements"}
	}

	var missing []string
	for _, e := range elements {
		if _, ok := res.ElementToSlot[e.ID]; !ok {
			missing = append(missing, e.ID)
		}
	}
	if len(missing) > 0 || len(records) != len(elements) {
		return nil, &screen.GroupingIncompleteError{
			ElementIDs: missing,
			Detail:     fmt.Sprintf("%d records for %d elements", len(records), len(elements)),
		}
	}
	return records, nil
}

// Clone returns a copy of r. Annotations are shared; they are never mutated
// in place.
func (r Records) Clone() Records {
	out := make(Records, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// SlotIDs returns the slot ids in label order: L groups, then H, then V,
// each by group ordinal and position.
func (r Records) SlotIDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return slotLess(ids[i], ids[j]) })
	return ids
}

// Entries returns the entries in SlotIDs order.
func (r Records) Entries() []Entry {
	ids := r.SlotIDs()
	out := make([]Entry, len(ids))
	for i, id := range ids {
		out[i] = r[id]
	}
	return out
}

// ByElementID finds the entry of an element.
func (r Records) ByElementID(elementID string) (Entry, bool) {
	for _, e := range r {
		if e.ElementID == elementID {
			return e, true
		}
	}
	return Entry{}, false
}

// BySourceID finds the entry whose element originated from the given raw
// detection, e.g. (SourceText, "O012").
func (r Records) BySourceID(kind screen.SourceKind, sourceID string) (Entry, bool) {
	for _, e := range r {
		if e.Origin == kind && e.SourceID == sourceID {
			return e, true
		}
	}
	return Entry{}, false
}

// SlotForSource returns the slot id owning a raw detection.
func (r Records) SlotForSource(kind screen.SourceKind, sourceID string) (string, bool) {
	e, ok := r.BySourceID(kind, sourceID)
	return e.SlotID, ok
}

// SourceIndex returns the reverse index from raw source id to slot id.
func (r Records) SourceIndex() map[string]string {
	out := make(map[string]string, len(r))
	for id, e := range r {
		out[e.SourceID] = id
	}
	return out
}

// FindByName returns the first annotated entry, in slot order, whose name
// matches name ignoring case and surrounding space.
func (r Records) FindByName(name string) (Entry, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return Entry{}, false
	}
	for _, e := range r.Entries() {
		if e.Annotation == nil {
			continue
		}
		if strings.ToLower(strings.TrimSpace(e.Annotation.Name)) == want {
			return e, true
		}
	}
	return Entry{}, false
}

// Annotated counts the entries carrying an annotation.
func (r Records) Annotated() int {
	n := 0
	for _, e := range r {
		if e.Annotation != nil {
			n++
		}
	}
	return n
}

// Flat renders every entry in its serialized form, keyed by slot id.
func (r Records) Flat() map[string]Flat {
	out := make(map[string]Flat, len(r))
	for id, e := range r {
		out[id] = e.Flat()
	}
	return out
}

// slotLess orders slot ids "<letter><ordinal>_<position>" by category letter
// (L, H, V), then ordinal, then position. Ids that do not parse sort after
// the rest, lexically.
func slotLess(a, b string) bool {
	ka, okA := parseSlotID(a)
	kb, okB := parseSlotID(b)
	switch {
	case okA && !okB:
		return true
	case !okA && okB:
		return false
	case !okA && !okB:
		return a < b
	}
	if ka.rank != kb.rank {
		return ka.rank < kb.rank
	}
	if ka.ordinal != kb.ordinal {
		return ka.ordinal < kb.ordinal
	}
	return ka.position < kb.position
}

type slotKey struct {
	rank     int
	ordinal  int
	position int
}

func parseSlotID(id string) (slotKey, bool) {
	label, pos, ok := strings.Cut(id, "_")
	if !ok || len(label) < 2 {
		return slotKey{}, false
	}
	rank := strings.IndexByte("LHV", label[0])
	if rank < 0 {
		return slotKey{}, false
	}
	ordinal, err := strconv.Atoi(label[1:])
	if err != nil {
		return slotKey{}, false
	}
	position, err := strconv.Atoi(pos)
	if err != nil {
		return slotKey{}, false
	}
	return slotKey{rank: rank, ordinal: ordinal, position: position}, true
}
