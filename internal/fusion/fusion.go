// Package fusion reconciles the object and text detector outputs into one
// canonical, deduplicated sequence of elements.
//
// Two detections from opposite sources are duplicates when their IoU or
// their containment ratio reaches the configured threshold. Duplicates are
// resolved per connected component of the duplicate graph, so the outcome
// never depends on the order pairs happen to be visited.
package fusion

import (
	"fmt"

	"github.com/ironsheep/screen-elements-mcp/internal/screen"
)

// Config holds the fusion thresholds. It is passed by value and never
// mutated by Fuse.
type Config struct {
	// IoUThreshold is the intersection-over-union ratio at or above which an
	// object box and a text box describe the same element.
	IoUThreshold float64 `yaml:"iou_threshold" json:"iou_threshold"`

	// ContainmentThreshold is the fraction of the smaller box covered by the
	// larger at or above which the pair counts as a duplicate.
	ContainmentThreshold float64 `yaml:"containment_threshold" json:"containment_threshold"`

	// MinArea discards detections whose area is below it as noise.
	MinArea float64 `yaml:"min_area" json:"min_area"`
}

// DefaultConfig returns the thresholds the pipeline ships with.
func DefaultConfig() Config {
	return Config{
		IoUThreshold:         0.05,
		ContainmentThreshold: 0.8,
		MinArea:              1.0,
	}
}

// Validate rejects out-of-range thresholds.
func (c Config) Validate() error {
	if !(c.IoUThreshold >= 0 && c.IoUThreshold <= 1) {
		return &screen.ConfigError{Field: "fusion.iou_threshold", Value: c.IoUThreshold, Reason: "must be within [0,1]"}
	}
	if !(c.ContainmentThreshold >= 0 && c.ContainmentThreshold <= 1) {
		return &screen.ConfigError{Field: "fusion.containment_threshold", Value: c.ContainmentThreshold, Reason: "must be within [0,1]"}
	}
	if !(c.MinArea > 0) {
		return &screen.ConfigError{Field: "fusion.min_area", Value: c.MinArea, Reason: "must be > 0"}
	}
	return nil
}

// Stats summarizes a fusion run. It is informational only.
type Stats struct {
	ObjectsIn         int `json:"objects_in"`
	TextsIn           int `json:"texts_in"`
	DiscardedSmall    int `json:"discarded_small"`
	DuplicateGroups   int `json:"duplicate_groups"`
	DuplicatesRemoved int `json:"duplicates_removed"`
	ElementsOut       int `json:"elements_out"`
}

// Removed returns how many input detections did not become elements.
func (s Stats) Removed() int {
	return s.ObjectsIn + s.TextsIn - s.ElementsOut
}

// candidate is a detection that survived the area filter, remembered with
// its position in its own input sequence.
type candidate struct {
	det   screen.Detection
	index int
	area  float64
}

// Fuse merges object and text detections into canonical elements.
//
// Parameters:
//   - objects: object-detector output, in detector order, ids Y001...
//   - texts: text-detector output, in detector order, ids O001...
//   - cfg: thresholds; Fuse validates them before doing any work.
//
// Returns the elements in output order (object survivors in input order,
// then text survivors in input order) with ids M001, M002, ..., plus
// informational statistics.
//
// # Algorithm
//
//  1. Drop detections with area < MinArea.
//  2. For every (object, text) pair compute IoU and containment.
//  3. Link the pair when IoU >= IoUThreshold or containment >=
//     ContainmentThreshold.
//  4. Collapse every connected component of links to the single best
//     detection: larger area, then higher confidence, then the object
//     source, then the earlier position in its own sequence.
//  5. Unlinked detections survive unchanged.
//
// # Errors
//
//   - *screen.ConfigError for invalid thresholds
//   - *screen.UpstreamDetectionError for malformed detections (wrong kind in
//     a sequence, repeated or empty ids, non-finite boxes, bad confidence)
//   - *screen.FusionInvariantError if the output fails its consistency check
func Fuse(objects, texts []screen.Detection, cfg Config) ([]screen.Element, Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, Stats{}, err
	}
	if err := validateSource(screen.SourceObject, objects); err != nil {
		return nil, Stats{}, err
	}
	if err := validateSource(screen.SourceText, texts); err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{ObjectsIn: len(objects), TextsIn: len(texts)}

	objs := filterSmall(objects, cfg.MinArea)
	txts := filterSmall(texts, cfg.MinArea)
	stats.DiscardedSmall = len(objects) - len(objs) + len(texts) - len(txts)

	// Nodes 0..len(objs)-1 are objects, the rest are texts.
	uf := newUnionFind(len(objs) + len(txts))
	linked := make([]bool, len(objs)+len(txts))
	for i, o := range objs {
		for j, t := range txts {
			if isDuplicate(o.det.BBox, t.det.BBox, cfg) {
				uf.union(i, len(objs)+j)
				linked[i] = true
				linked[len(objs)+j] = true
			}
		}
	}

	node := func(n int) candidate {
		if n < len(objs) {
			return objs[n]
		}
		return txts[n-len(objs)]
	}

	// Pick the winner of every component.
	winner := make(map[int]int)
	for n := 0; n < len(objs)+len(txts); n++ {
		root := uf.find(n)
		best, ok := winner[root]
		if !ok || better(node(n), node(best)) {
			winner[root] = n
		}
	}

	survives := make([]bool, len(objs)+len(txts))
	components := make(map[int]struct{})
	for n := range survives {
		root := uf.find(n)
		if linked[n] {
			components[root] = struct{}{}
		}
		survives[n] = winner[root] == n
	}
	stats.DuplicateGroups = len(components)

	elements := make([]screen.Element, 0, len(objs)+len(txts))
	for n := range survives {
		if !survives[n] {
			stats.DuplicatesRemoved++
			continue
		}
		d := node(n).det
		elements = append(elements, screen.Element{
			ID:         screen.FormatID(screen.ElementPrefix, len(elements)+1),
			BBox:       d.BBox,
			Origin:     d.Kind,
			Confidence: d.Confidence,
			SourceID:   d.ID,
		})
	}
	stats.ElementsOut = len(elements)

	if err := CheckInvariants(elements); err != nil {
		return nil, stats, err
	}
	return elements, stats, nil
}

// isDuplicate applies the IoU-or-containment rule to one pair.
func isDuplicate(a, b screen.BBox, cfg Config) bool {
	if a.Intersect(b).Area() == 0 {
		return false
	}
	return a.IoU(b) >= cfg.IoUThreshold || a.Containment(b) >= cfg.ContainmentThreshold
}

// better reports whether a beats b under the tie-break order.
func better(a, b candidate) bool {
	if a.area != b.area {
		return a.area > b.area
	}
	if a.det.Confidence != b.det.Confidence {
		return a.det.Confidence > b.det.Confidence
	}
	if a.det.Kind != b.det.Kind {
		return a.det.Kind == screen.SourceObject
	}
	return a.index < b.index
}

func filterSmall(dets []screen.Detection, minArea float64) []candidate {
	out := make([]candidate, 0, len(dets))
	for i, d := range dets {
		area := d.BBox.Area()
		if area < minArea {
			continue
		}
		out = append(out, candidate{det: d, index: i, area: area})
	}
	return out
}

func validateSource(kind screen.SourceKind, dets []screen.Detection) error {
	seen := make(map[string]struct{}, len(dets))
	for _, d := range dets {
		if d.Kind != kind {
			return &screen.UpstreamDetectionError{
				Source:      kind,
				DetectionID: d.ID,
				Err:         fmt.Errorf("detection of kind %s in %s sequence", d.Kind, kind),
			}
		}
		if err := d.Validate(); err != nil {
			return &screen.UpstreamDetectionError{Source: kind, DetectionID: d.ID, Err: err}
		}
		if _, dup := seen[d.ID]; dup {
			return &screen.UpstreamDetectionError{
				Source:      kind,
				DetectionID: d.ID,
				Err:         fmt.Errorf("source id repeated"),
			}
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}

// CheckInvariants verifies a fused sequence: unique element ids, each source
// detection referenced at most once, and origin agreeing with the source id
// prefix.
func CheckInvariants(elements []screen.Element) error {
	ids := make(map[string]struct{}, len(elements))
	sources := make(map[string]string, len(elements))
	for _, e := range elements {
		if _, dup := ids[e.ID]; dup {
			return &screen.FusionInvariantError{Detail: fmt.Sprintf("duplicate element id %s", e.ID)}
		}
		ids[e.ID] = struct{}{}

		if e.SourceID == "" {
			return &screen.FusionInvariantError{Detail: fmt.Sprintf("element %s has no source detection", e.ID)}
		}
		key := e.Origin.String() + "/" + e.SourceID
		if prev, dup := sources[key]; dup {
			return &screen.FusionInvariantError{
				Detail: fmt.Sprintf("source %s referenced by both %s and %s", e.SourceID, prev, e.ID),
			}
		}
		sources[key] = e.ID

		if kind, ok := screen.KindOfID(e.SourceID); ok && kind != e.Origin {
			return &screen.FusionInvariantError{
				Detail: fmt.Sprintf("element %s has origin %s but source %s", e.ID, e.Origin, e.SourceID),
			}
		}
	}
	return nil
}
