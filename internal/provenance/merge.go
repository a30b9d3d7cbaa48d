package provenance

import (
	"fmt"
	"sort"
	"strings"
)

// WarnKind classifies a recoverable annotation merge problem.
type WarnKind int

const (
	// WarnOrphan: the annotation names a slot that does not exist.
	WarnOrphan WarnKind = iota + 1
	// WarnDuplicate: the slot already carries a different annotation.
	WarnDuplicate
)

func (k WarnKind) String() string {
	switch k {
	case WarnOrphan:
		return "orphan"
	case WarnDuplicate:
		return "duplicate"
	}
	return fmt.Sprintf("WarnKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k WarnKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// MergeWarning reports one annotation that was dropped during a merge.
type MergeWarning struct {
	Kind       WarnKind   `json:"kind"`
	SlotID     string     `json:"slotId"`
	Annotation Annotation `json:"annotation"`
}

func (w MergeWarning) String() string {
	switch w.Kind {
	case WarnOrphan:
		return fmt.Sprintf("annotation for unknown slot %s dropped", w.SlotID)
	case WarnDuplicate:
		return fmt.Sprintf("slot %s already annotated, %q dropped", w.SlotID, w.Annotation.Name)
	}
	return fmt.Sprintf("%s annotation for %s", w.Kind, w.SlotID)
}

// MergeAnnotations returns a copy of records with annotations applied.
//
// Only the annotation field of matching entries changes. Entries without an
// annotation in the map stay as they are. Keys naming unknown slots are
// dropped with a WarnOrphan. A slot that already carries a different
// annotation keeps it and yields a WarnDuplicate; re-applying an identical
// annotation is a no-op, so merging the same map twice equals merging it
// once. Warnings are returned in slot-id order.
func MergeAnnotations(records Records, annotations map[string]Annotation) (Records, []MergeWarning) {
	out := records.Clone()

	keys := make([]string, 0, len(annotations))
	for k := range annotations {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return slotLess(keys[i], keys[j]) })

	var warnings []MergeWarning
	for _, slotID := range keys {
		ann := normalize(annotations[slotID])
		entry, ok := out[slotID]
		if !ok {
			warnings = append(warnings, MergeWarning{Kind: WarnOrphan, SlotID: slotID, Annotation: ann})
			continue
		}
		if entry.Annotation != nil {
			if *entry.Annotation != ann {
				warnings = append(warnings, MergeWarning{Kind: WarnDuplicate, SlotID: slotID, Annotation: ann})
			}
			continue
		}
		a := ann
		entry.Annotation = &a
		out[slotID] = entry
	}
	return out, warnings
}

func normalize(a Annotation) Annotation {
	return Annotation{Name: strings.TrimSpace(a.Name), Brief: strings.TrimSpace(a.Brief)}
}
