package layout

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/ironsheep/screen-elements-mcp/internal/screen"
)

// Category is the kind of layout unit a group represents.
type Category string

const (
	Horizontal Category = "horizontal"
	Vertical   Category = "vertical"
	LongBox    Category = "long_box"
)

// Letter returns the label prefix of the category.
func (c Category) Letter() string {
	switch c {
	case Horizontal:
		return "H"
	case Vertical:
		return "V"
	case LongBox:
		return "L"
	}
	return "?"
}

// Config holds the grouping tolerances. It is passed by value and never
// mutated by Group.
type Config struct {
	// SpanThresholdX is the fraction of the image width above which an
	// element is treated as full-width chrome.
	SpanThresholdX float64 `yaml:"span_threshold_x" json:"span_threshold_x"`

	// SpanThresholdY is the fraction of the image height above which an
	// element is treated as full-height chrome.
	SpanThresholdY float64 `yaml:"span_threshold_y" json:"span_threshold_y"`

	// RowTolerance is the maximum distance in pixels between an element's
	// vertical centre and the running row centre.
	RowTolerance float64 `yaml:"row_tolerance" json:"row_tolerance"`

	// ColumnTolerance is the maximum distance in pixels between an element's
	// horizontal centre and the running column centre.
	ColumnTolerance float64 `yaml:"column_tolerance" json:"column_tolerance"`

	// MaxOverlap is the largest overlap between neighbours of one row (or
	// column), as a fraction of the narrower (or shorter) box.
	MaxOverlap float64 `yaml:"max_overlap" json:"max_overlap"`
}

// DefaultConfig returns the tolerances the pipeline ships with.
func DefaultConfig() Config {
	return Config{
		SpanThresholdX:  0.9,
		SpanThresholdY:  0.9,
		RowTolerance:    12,
		ColumnTolerance: 12,
		MaxOverlap:      0.1,
	}
}

// Validate rejects out-of-range tolerances.
func (c Config) Validate() error {
	if !(c.SpanThresholdX > 0 && c.SpanThresholdX <= 1) {
		return &screen.ConfigError{Field: "layout.span_threshold_x", Value: c.SpanThresholdX, Reason: "must be within (0,1]"}
	}
	if !(c.SpanThresholdY > 0 && c.SpanThresholdY <= 1) {
		return &screen.ConfigError{Field: "layout.span_threshold_y", Value: c.SpanThresholdY, Reason: "must be within (0,1]"}
	}
	if !(c.RowTolerance > 0) || math.IsInf(c.RowTolerance, 0) {
		return &screen.ConfigError{Field: "layout.row_tolerance", Value: c.RowTolerance, Reason: "must be > 0"}
	}
	if !(c.ColumnTolerance > 0) || math.IsInf(c.ColumnTolerance, 0) {
		return &screen.ConfigError{Field: "layout.column_tolerance", Value: c.ColumnTolerance, Reason: "must be > 0"}
	}
	if !(c.MaxOverlap >= 0 && c.MaxOverlap <= 1) {
		return &screen.ConfigError{Field: "layout.max_overlap", Value: c.MaxOverlap, Reason: "must be within [0,1]"}
	}
	return nil
}

// Group is a cluster of elements forming one layout unit. Membership is
// fixed at creation.
type Group struct {
	Label    string           `json:"label"`
	Category Category         `json:"category"`
	Members  []screen.Element `json:"members"`
}

// SlotID returns the slot id of the member at 0-based position i.
func (g Group) SlotID(i int) string {
	return g.Label + "_" + strconv.Itoa(i+1)
}

// Slot is the position of one element inside its group.
type Slot struct {
	ID       string         `json:"slot_id"`
	Group    string         `json:"group"`
	Position int            `json:"position"`
	Category Category       `json:"category"`
	Element  screen.Element `json:"element"`
}

// Summary reports the grouping counts.
type Summary struct {
	Elements           int     `json:"elements"`
	TotalGroups        int     `json:"total_groups"`
	HorizontalGroups   int     `json:"horizontal_groups"`
	VerticalGroups     int     `json:"vertical_groups"`
	LongBoxGroups      int     `json:"long_box_groups"`
	SingletonGroups    int     `json:"singleton_groups"`
	GroupingEfficiency float64 `json:"grouping_efficiency"`
}

// Result is the outcome of Group.
type Result struct {
	// Groups in label order: L*, then H*, then V*.
	Groups []Group `json:"groups"`

	// ElementToSlot maps every element id to its slot id.
	ElementToSlot map[string]string `json:"element_to_slot"`

	Summary Summary `json:"summary"`

	slots []Slot
	index map[string]int
}

// Slots returns every slot in group order, then position order.
func (r *Result) Slots() []Slot {
	out := make([]Slot, len(r.slots))
	copy(out, r.slots)
	return out
}

// Slot looks up a slot by id.
func (r *Result) Slot(id string) (Slot, bool) {
	i, ok := r.index[id]
	if !ok {
		return Slot{}, false
	}
	return r.slots[i], true
}

// Group looks up a group by label.
func (r *Result) Group(label string) (Group, bool) {
	for _, g := range r.Groups {
		if g.Label == label {
			return g, true
		}
	}
	return Group{}, false
}

// item is an element with its input position and cached centre.
type item struct {
	el     screen.Element
	idx    int
	center screen.Point
}

// band is a row or column under construction.
type band struct {
	members []item
	sum     float64
	seq     int
}

func (b *band) mean() float64 { return b.sum / float64(len(b.members)) }

// loose is an element not absorbed by a row of two or more, remembered with
// its row-scan position.
type loose struct {
	it  item
	seq int
}

// Group partitions elements into layout groups.
//
// Parameters:
//   - elements: fused elements; ids must be unique.
//   - size: dimensions of the analyzed image, used for span classification.
//   - cfg: tolerances; Group validates them before doing any work.
//
// # Algorithm
//
//  1. Elements wider than SpanThresholdX of the image (or taller than
//     SpanThresholdY) become long_box singletons.
//  2. The rest are sorted by vertical centre, then horizontal centre.
//  3. Row scan: an element joins the open row when its vertical centre is
//     within RowTolerance of the row's mean centre and it overlaps no member
//     by more than MaxOverlap of the narrower box. A centre beyond tolerance
//     opens a new row. In-band but overlapping elements are set aside.
//  4. Column scan over everything not in a row of two or more, sorted by
//     horizontal centre: the same rule with ColumnTolerance and vertical
//     overlap.
//  5. Whatever is left becomes a singleton horizontal group.
//
// # Errors
//
//   - *screen.ConfigError for invalid tolerances or image size
//   - *screen.GroupingIncompleteError for duplicate element ids or if an
//     element fails to land in exactly one slot
func Group(elements []screen.Element, size screen.Size, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if size.Width <= 0 || size.Height <= 0 {
		return nil, &screen.ConfigError{Field: "image.size", Value: size, Reason: "width and height must be > 0"}
	}

	seen := make(map[string]struct{}, len(elements))
	for _, e := range elements {
		if _, dup := seen[e.ID]; dup {
			return nil, &screen.GroupingIncompleteError{ElementIDs: []string{e.ID}, Detail: "duplicate element id"}
		}
		seen[e.ID] = struct{}{}
	}

	var longs, rest []item
	for i, e := range elements {
		it := item{el: e, idx: i, center: e.BBox.Center()}
		if e.BBox.Width() > cfg.SpanThresholdX*float64(size.Width) ||
			e.BBox.Height() > cfg.SpanThresholdY*float64(size.Height) {
			longs = append(longs, it)
			continue
		}
		rest = append(rest, it)
	}

	sort.SliceStable(rest, func(i, j int) bool {
		a, b := rest[i], rest[j]
		if a.center.Y != b.center.Y {
			return a.center.Y < b.center.Y
		}
		if a.center.X != b.center.X {
			return a.center.X < b.center.X
		}
		return a.idx < b.idx
	})

	rows, pool := scanRows(rest, cfg)
	columns, singles := scanColumns(pool, cfg)

	type pending struct {
		members []item
		seq     int
	}
	horizontals := make([]pending, 0, len(rows)+len(singles))
	for _, r := range rows {
		horizontals = append(horizontals, pending{members: r.members, seq: r.seq})
	}
	for _, s := range singles {
		horizontals = append(horizontals, pending{members: []item{s.it}, seq: s.seq})
	}
	sort.SliceStable(horizontals, func(i, j int) bool { return horizontals[i].seq < horizontals[j].seq })

	groups := make([]Group, 0, len(longs)+len(horizontals)+len(columns))
	for _, it := range longs {
		groups = append(groups, newGroup(LongBox, len(groups)+1, []item{it}))
	}
	for i, h := range horizontals {
		groups = append(groups, newGroup(Horizontal, i+1, h.members))
	}
	for i, c := range columns {
		groups = append(groups, newGroup(Vertical, i+1, c.members))
	}

	res := assemble(groups, len(elements))
	if err := checkComplete(res, elements); err != nil {
		return nil, err
	}
	return res, nil
}

// scanRows clusters vertically sorted items into rows. Rows of two or more
// are returned; every other item is returned as loose with its scan
// position.
func scanRows(sorted []item, cfg Config) ([]*band, []loose) {
	var all []*band
	var aside []loose
	var cur *band
	for seq, it := range sorted {
		if cur != nil && math.Abs(it.center.Y-cur.mean()) <= cfg.RowTolerance {
			if fits(cur, it, cfg.MaxOverlap, horizontalOverlap) {
				cur.members = append(cur.members, it)
				cur.sum += it.center.Y
			} else {
				aside = append(aside, loose{it: it, seq: seq})
			}
			continue
		}
		cur = &band{members: []item{it}, sum: it.center.Y, seq: seq}
		all = append(all, cur)
	}

	var rows []*band
	for _, r := range all {
		if len(r.members) >= 2 {
			rows = append(rows, r)
			continue
		}
		aside = append(aside, loose{it: r.members[0], seq: r.seq})
	}
	return rows, aside
}

// scanColumns clusters the loose items into columns by horizontal centre.
// Columns of two or more are returned in discovery order; the rest stay
// loose.
func scanColumns(pool []loose, cfg Config) ([]*band, []loose) {
	sorted := make([]loose, len(pool))
	copy(sorted, pool)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].it, sorted[j].it
		if a.center.X != b.center.X {
			return a.center.X < b.center.X
		}
		if a.center.Y != b.center.Y {
			return a.center.Y < b.center.Y
		}
		return a.idx < b.idx
	})

	type column struct {
		band
		rowSeq []int
	}
	var all []*column
	var left []loose
	var cur *column
	for _, l := range sorted {
		it := l.it
		if cur != nil && math.Abs(it.center.X-cur.mean()) <= cfg.ColumnTolerance {
			if fits(&cur.band, it, cfg.MaxOverlap, verticalOverlap) {
				cur.members = append(cur.members, it)
				cur.sum += it.center.X
				cur.rowSeq = append(cur.rowSeq, l.seq)
			} else {
				left = append(left, l)
			}
			continue
		}
		cur = &column{band: band{members: []item{it}, sum: it.center.X}, rowSeq: []int{l.seq}}
		all = append(all, cur)
	}

	var columns []*band
	for _, c := range all {
		if len(c.members) >= 2 {
			b := c.band
			columns = append(columns, &b)
			continue
		}
		left = append(left, loose{it: c.members[0], seq: c.rowSeq[0]})
	}
	return columns, left
}

type overlapFunc func(a, b screen.BBox) (overlap, extentA, extentB float64)

func horizontalOverlap(a, b screen.BBox) (float64, float64, float64) {
	return a.OverlapX(b), a.Width(), b.Width()
}

func verticalOverlap(a, b screen.BBox) (float64, float64, float64) {
	return a.OverlapY(b), a.Height(), b.Height()
}

// fits reports whether it overlaps every member of b by at most maxOverlap
// of the smaller extent.
func fits(b *band, it item, maxOverlap float64, overlap overlapFunc) bool {
	for _, m := range b.members {
		ov, ea, eb := overlap(m.el.BBox, it.el.BBox)
		if ov > maxOverlap*math.Min(ea, eb) {
			return false
		}
	}
	return true
}

func newGroup(cat Category, ordinal int, members []item) Group {
	sorted := make([]item, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].el.BBox, sorted[j].el.BBox
		if cat == Vertical {
			if a.YMin != b.YMin {
				return a.YMin < b.YMin
			}
			if a.XMin != b.XMin {
				return a.XMin < b.XMin
			}
		} else {
			if a.XMin != b.XMin {
				return a.XMin < b.XMin
			}
			if a.YMin != b.YMin {
				return a.YMin < b.YMin
			}
		}
		return sorted[i].idx < sorted[j].idx
	})

	g := Group{
		Label:    cat.Letter() + strconv.Itoa(ordinal),
		Category: cat,
		Members:  make([]screen.Element, len(sorted)),
	}
	for i, it := range sorted {
		g.Members[i] = it.el
	}
	return g
}

func assemble(groups []Group, elementCount int) *Result {
	res := &Result{
		Groups:        groups,
		ElementToSlot: make(map[string]string, elementCount),
		index:         make(map[string]int, elementCount),
	}
	for _, g := range groups {
		for i, e := range g.Members {
			slot := Slot{ID: g.SlotID(i), Group: g.Label, Position: i + 1, Category: g.Category, Element: e}
			res.index[slot.ID] = len(res.slots)
			res.slots = append(res.slots, slot)
			res.ElementToSlot[e.ID] = slot.ID
		}
		switch g.Category {
		case Horizontal:
			res.Summary.HorizontalGroups++
		case Vertical:
			res.Summary.VerticalGroups++
		case LongBox:
			res.Summary.LongBoxGroups++
		}
		if len(g.Members) == 1 {
			res.Summary.SingletonGroups++
		}
	}
	res.Summary.Elements = elementCount
	res.Summary.TotalGroups = len(groups)
	if elementCount > 0 {
		res.Summary.GroupingEfficiency = 1 - float64(res.Summary.SingletonGroups)/float64(elementCount)
	}
	return res
}

// checkComplete verifies that every element occupies exactly one slot.
func checkComplete(res *Result, elements []screen.Element) error {
	counts := make(map[string]int, len(elements))
	for _, s := range res.slots {
		counts[s.Element.ID]++
	}
	var missing []string
	for _, e := range elements {
		if counts[e.ID] != 1 {
			missing = append(missing, e.ID)
		}
	}
	if len(missing) > 0 || len(res.slots) != len(elements) {
		return &screen.GroupingIncompleteError{
			ElementIDs: missing,
			Detail:     fmt.Sprintf("%d slots for %d elements", len(res.slots), len(elements)),
		}
	}
	return nil
}
