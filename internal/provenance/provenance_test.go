package provenance

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/screen-elements-mcp/internal/layout"
	"github.com/ironsheep/screen-elements-mcp/internal/screen"
)

// fixture groups into H1 = [M001, M002] and V1 = [M003, M004].
func fixture(t *testing.T) ([]screen.Element, *layout.Result) {
	t.Helper()
	elements := []screen.Element{
		{ID: "M001", BBox: screen.Box(100, 100, 140, 120), Origin: screen.SourceObject, Confidence: 0.9, SourceID: "Y001"},
		{ID: "M002", BBox: screen.Box(200, 100, 240, 120), Origin: screen.SourceObject, Confidence: 0.8, SourceID: "Y002"},
		{ID: "M003", BBox: screen.Box(50, 300, 90, 320), Origin: screen.SourceText, Confidence: 0.7, SourceID: "O001"},
		{ID: "M004", BBox: screen.Box(50, 400, 90, 420), Origin: screen.SourceText, Confidence: 0.6, SourceID: "O002"},
	}
	res, err := layout.Group(elements, screen.Size{Width: 800, Height: 600}, layout.DefaultConfig())
	require.NoError(t, err)
	return elements, res
}

func initial(t *testing.T) Records {
	t.Helper()
	elements, res := fixture(t)
	records, err := BuildInitialRecords(res, elements)
	require.NoError(t, err)
	return records
}

func TestBuildInitialRecords(t *testing.T) {
	records := initial(t)

	assert.Equal(t, []string{"H1_1", "H1_2", "V1_1", "V1_2"}, records.SlotIDs())

	e := records["V1_1"]
	assert.Equal(t, "M003", e.ElementID)
	assert.Equal(t, layout.Vertical, e.Category)
	assert.Equal(t, screen.SourceText, e.Origin)
	assert.Equal(t, screen.NA, e.ObjectSourceID())
	assert.Equal(t, "O001", e.TextSourceID())
	assert.False(t, e.Annotated())

	assert.Equal(t, Flat{
		BBox:            screen.Box(100, 100, 140, 120),
		ElementID:       "M001",
		ObjectSourceID:  "Y001",
		TextSourceID:    screen.NA,
		Category:        "horizontal",
		OriginSource:    "object",
		AnnotationName:  "unanalyzed",
		AnnotationBrief: "Not analyzed",
	}, records["H1_1"].Flat())
}

func TestBuildInitialRecords_Incomplete(t *testing.T) {
	elements, res := fixture(t)

	_, err := BuildInitialRecords(res, elements[:3])
	assert.True(t, errors.Is(err, screen.ErrGroupingIncomplete), "got %v", err)

	extra := append(append([]screen.Element(nil), elements...),
		screen.Element{ID: "M005", BBox: screen.Box(0, 0, 5, 5), Origin: screen.SourceObject, SourceID: "Y003"})
	_, err = BuildInitialRecords(res, extra)
	var incomplete *screen.GroupingIncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []string{"M005"}, incomplete.ElementIDs)

	_, err = BuildInitialRecords(nil, elements)
	assert.Error(t, err)
}

func TestMergeAnnotations_Partial(t *testing.T) {
	records := initial(t)

	merged, warnings := MergeAnnotations(records, map[string]Annotation{
		"H1_2": {Name: " Settings ", Brief: "Opens preferences"},
	})
	assert.Empty(t, warnings)

	assert.Equal(t, "Settings", merged["H1_2"].Name())
	assert.Equal(t, "Opens preferences", merged["H1_2"].Brief())
	assert.Equal(t, "unanalyzed", merged["H1_1"].Name())
	assert.Equal(t, 1, merged.Annotated())

	// Input records are untouched.
	assert.Equal(t, 0, records.Annotated())
}

func TestMergeAnnotations_IdentityFieldsNeverChange(t *testing.T) {
	records := initial(t)
	merged, _ := MergeAnnotations(records, map[string]Annotation{
		"H1_1": {Name: "Back"},
		"V1_2": {Name: "Total"},
	})

	for id, before := range records {
		after := merged[id]
		after.Annotation = nil
		if diff := cmp.Diff(before, after); diff != "" {
			t.Errorf("identity of %s changed (-before +after):\n%s", id, diff)
		}
	}
}

func TestMergeAnnotations_OrphanSlot(t *testing.T) {
	records := initial(t)

	merged, warnings := MergeAnnotations(records, map[string]Annotation{
		"H9_1": {Name: "Ghost"},
	})

	if diff := cmp.Diff(records, merged); diff != "" {
		t.Errorf("records changed (-want +got):\n%s", diff)
	}
	require.Len(t, warnings, 1)
	assert.Equal(t, WarnOrphan, warnings[0].Kind)
	assert.Equal(t, "H9_1", warnings[0].SlotID)
	_, inserted := merged["H9_1"]
	assert.False(t, inserted)
}

func TestMergeAnnotations_Idempotent(t *testing.T) {
	records := initial(t)
	ann := map[string]Annotation{
		"H1_1": {Name: "Back", Brief: "Navigate back"},
		"V1_1": {Name: "7", Brief: "Digit key"},
		"V3_1": {Name: "stale"},
	}

	once, _ := MergeAnnotations(records, ann)
	twice, warnings := MergeAnnotations(once, ann)

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second merge changed records (-once +twice):\n%s", diff)
	}
	// Only the orphan warns again; identical annotations are no-ops.
	require.Len(t, warnings, 1)
	assert.Equal(t, WarnOrphan, warnings[0].Kind)
}

func TestMergeAnnotations_ConflictKeepsFirst(t *testing.T) {
	records := initial(t)
	first, _ := MergeAnnotations(records, map[string]Annotation{"H1_1": {Name: "Back"}})
	second, warnings := MergeAnnotations(first, map[string]Annotation{"H1_1": {Name: "Forward"}})

	assert.Equal(t, "Back", second["H1_1"].Name())
	require.Len(t, warnings, 1)
	assert.Equal(t, WarnDuplicate, warnings[0].Kind)
	assert.Contains(t, warnings[0].String(), "Forward")
}

func TestMergeAnnotations_EmptyMap(t *testing.T) {
	records := initial(t)
	merged, warnings := MergeAnnotations(records, nil)
	assert.Empty(t, warnings)
	assert.Equal(t, records, merged)
}

func TestLookups(t *testing.T) {
	records, _ := MergeAnnotations(initial(t), map[string]Annotation{
		"H1_2": {Name: "Equals"},
		"V1_2": {Name: "equals"},
	})

	e, ok := records.ByElementID("M004")
	require.True(t, ok)
	assert.Equal(t, "V1_2", e.SlotID)

	_, ok = records.ByElementID("M999")
	assert.False(t, ok)

	e, ok = records.BySourceID(screen.SourceText, "O001")
	require.True(t, ok)
	assert.Equal(t, "M003", e.ElementID)

	// Source ids are scoped by kind.
	_, ok = records.BySourceID(screen.SourceObject, "O001")
	assert.False(t, ok)

	slot, ok := records.SlotForSource(screen.SourceObject, "Y002")
	require.True(t, ok)
	assert.Equal(t, "H1_2", slot)

	assert.Equal(t, map[string]string{
		"Y001": "H1_1", "Y002": "H1_2", "O001": "V1_1", "O002": "V1_2",
	}, records.SourceIndex())

	// First match in slot order, case-insensitive.
	e, ok = records.FindByName("  EQUALS ")
	require.True(t, ok)
	assert.Equal(t, "H1_2", e.SlotID)
	assert.Equal(t, screen.Point{X: 220, Y: 110}, e.ClickPoint())

	_, ok = records.FindByName("unanalyzed")
	assert.False(t, ok)
	_, ok = records.FindByName("")
	assert.False(t, ok)
}

func TestSlotIDsOrdering(t *testing.T) {
	r := Records{
		"V1_1": {}, "H10_1": {}, "H2_1": {}, "H2_10": {}, "H2_2": {}, "L1_1": {}, "junk": {},
	}
	assert.Equal(t, []string{"L1_1", "H2_1", "H2_2", "H2_10", "H10_1", "V1_1", "junk"}, r.SlotIDs())
}

func TestTracker_ConcurrentApply(t *testing.T) {
	tracker := NewTracker(initial(t), nil)

	slots := []string{"V1_2", "H1_1", "V1_1", "H1_2"}
	var wg sync.WaitGroup
	for i, slot := range slots {
		wg.Add(1)
		go func(i int, slot string) {
			defer wg.Done()
			tracker.Apply(map[string]Annotation{slot: {Name: fmt.Sprintf("item %d", i)}})
		}(i, slot)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		tracker.Apply(map[string]Annotation{"H7_1": {Name: "stale"}})
	}()
	wg.Wait()

	snap := tracker.Snapshot()
	assert.Equal(t, 4, snap.Annotated())
	for i, slot := range slots {
		assert.Equal(t, fmt.Sprintf("item %d", i), snap[slot].Name())
	}

	warnings := tracker.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, WarnOrphan, warnings[0].Kind)
}

func TestTracker_SnapshotIsACopy(t *testing.T) {
	tracker := NewTracker(initial(t), nil)
	snap := tracker.Snapshot()
	delete(snap, "H1_1")

	assert.Len(t, tracker.Snapshot(), 4)
	assert.Nil(t, tracker.Apply(nil))
}

func TestTracker_RecordKeepsWarnings(t *testing.T) {
	tracker := NewTracker(initial(t), nil)
	tracker.Record(nil)
	assert.Empty(t, tracker.Warnings())

	dup := MergeWarning{Kind: WarnDuplicate, SlotID: "H1_1", Annotation: Annotation{Name: "again"}}
	tracker.Record([]MergeWarning{dup})
	tracker.Apply(map[string]Annotation{"H7_1": {Name: "stale"}})

	warnings := tracker.Warnings()
	require.Len(t, warnings, 2)
	assert.Equal(t, dup, warnings[0])
	assert.Equal(t, WarnOrphan, warnings[1].Kind)
	assert.Equal(t, 0, tracker.Snapshot().Annotated())
}
