package fusion

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/screen-elements-mcp/internal/screen"
)

func obj(id string, b screen.BBox, conf float64) screen.Detection {
	return screen.Detection{Kind: screen.SourceObject, ID: id, BBox: b, Confidence: conf}
}

func txt(id string, b screen.BBox, conf float64) screen.Detection {
	return screen.Detection{Kind: screen.SourceText, ID: id, BBox: b, Confidence: conf}
}

func sourceIDs(elements []screen.Element) []string {
	out := make([]string, len(elements))
	for i, e := range elements {
		out[i] = e.SourceID
	}
	return out
}

func TestFuse_ObjectAbsorbsOverlappingText(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IoUThreshold = 0.5

	elements, stats, err := Fuse(
		[]screen.Detection{obj("Y001", screen.Box(10, 10, 50, 30), 0.9)},
		[]screen.Detection{txt("O001", screen.Box(12, 12, 48, 28), 0.8)},
		cfg,
	)
	require.NoError(t, err)
	require.Len(t, elements, 1)

	e := elements[0]
	assert.Equal(t, "M001", e.ID)
	assert.Equal(t, screen.SourceObject, e.Origin)
	assert.Equal(t, "Y001", e.SourceIDOr(screen.SourceObject))
	assert.Equal(t, screen.NA, e.SourceIDOr(screen.SourceText))
	assert.Equal(t, screen.Box(10, 10, 50, 30), e.BBox)

	assert.Equal(t, 1, stats.ObjectsIn)
	assert.Equal(t, 1, stats.TextsIn)
	assert.Equal(t, 1, stats.ElementsOut)
	assert.Equal(t, 1, stats.DuplicatesRemoved)
	assert.Equal(t, 1, stats.DuplicateGroups)
	assert.Equal(t, 1, stats.Removed())
}

func TestFuse_EmptyInputs(t *testing.T) {
	elements, stats, err := Fuse(nil, nil, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, elements)
	assert.Equal(t, Stats{}, stats)
}

func TestFuse_OutputOrderObjectsThenTexts(t *testing.T) {
	objects := []screen.Detection{
		obj("Y001", screen.Box(0, 0, 10, 10), 0.5),
		obj("Y002", screen.Box(100, 0, 110, 10), 0.5),
	}
	texts := []screen.Detection{
		txt("O001", screen.Box(200, 0, 240, 10), 0.5),
		txt("O002", screen.Box(300, 0, 340, 10), 0.5),
	}

	elements, _, err := Fuse(objects, texts, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"Y001", "Y002", "O001", "O002"}, sourceIDs(elements))
	for i, e := range elements {
		assert.Equal(t, screen.FormatID("M", i+1), e.ID)
	}
	assert.Equal(t, screen.SourceText, elements[2].Origin)
}

func TestFuse_DiscardsNoise(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinArea = 50

	elements, stats, err := Fuse(
		[]screen.Detection{obj("Y001", screen.Box(0, 0, 5, 5), 0.9), obj("Y002", screen.Box(20, 20, 40, 40), 0.9)},
		[]screen.Detection{txt("O001", screen.Box(0, 0, 2, 2), 0.9)},
		cfg,
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"Y002"}, sourceIDs(elements))
	assert.Equal(t, 2, stats.DiscardedSmall)
	assert.Equal(t, 0, stats.DuplicatesRemoved)
}

func TestFuse_TieBreakOrder(t *testing.T) {
	same := screen.Box(0, 0, 20, 20)

	tests := []struct {
		name    string
		objects []screen.Detection
		texts   []screen.Detection
		want    string
	}{
		{
			name:    "larger area wins",
			objects: []screen.Detection{obj("Y001", screen.Box(0, 0, 10, 10), 0.99)},
			texts:   []screen.Detection{txt("O001", screen.Box(0, 0, 12, 12), 0.1)},
			want:    "O001",
		},
		{
			name:    "higher confidence on equal area",
			objects: []screen.Detection{obj("Y001", same, 0.4)},
			texts:   []screen.Detection{txt("O001", same, 0.6)},
			want:    "O001",
		},
		{
			name:    "object source on equal area and confidence",
			objects: []screen.Detection{obj("Y001", same, 0.5)},
			texts:   []screen.Detection{txt("O001", same, 0.5)},
			want:    "Y001",
		},
		{
			name: "earlier object on full tie",
			objects: []screen.Detection{
				obj("Y001", same, 0.5),
				obj("Y002", same, 0.5),
			},
			texts: []screen.Detection{txt("O001", same, 0.5)},
			want:  "Y001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			elements, _, err := Fuse(tt.objects, tt.texts, DefaultConfig())
			require.NoError(t, err)
			require.Len(t, elements, 1)
			assert.Equal(t, tt.want, elements[0].SourceID)
		})
	}
}

func TestFuse_ComponentResolvedAsAWhole(t *testing.T) {
	// O001 bridges Y001 and Y002; Y002 is the largest box in the component.
	objects := []screen.Detection{
		obj("Y001", screen.Box(0, 0, 30, 20), 0.9),
		obj("Y002", screen.Box(25, 0, 70, 20), 0.9),
	}
	texts := []screen.Detection{
		txt("O001", screen.Box(20, 0, 35, 20), 0.9),
	}

	elements, stats, err := Fuse(objects, texts, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"Y002"}, sourceIDs(elements))
	assert.Equal(t, 1, stats.DuplicateGroups)
	assert.Equal(t, 2, stats.DuplicatesRemoved)
}

func TestFuse_ContainmentCountsAsDuplicate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IoUThreshold = 0.9

	// Tiny IoU, full containment of the label inside the button.
	elements, _, err := Fuse(
		[]screen.Detection{obj("Y001", screen.Box(0, 0, 100, 40), 0.7)},
		[]screen.Detection{txt("O001", screen.Box(10, 10, 30, 20), 0.9)},
		cfg,
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"Y001"}, sourceIDs(elements))

	cfg.ContainmentThreshold = 1
	cfg.IoUThreshold = 1
	elements, _, err = Fuse(
		[]screen.Detection{obj("Y001", screen.Box(0, 0, 100, 40), 0.7)},
		[]screen.Detection{txt("O001", screen.Box(90, 10, 110, 20), 0.9)},
		cfg,
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"Y001", "O001"}, sourceIDs(elements))
}

func TestFuse_NoDoubleReference(t *testing.T) {
	objects, texts := crowdedScreen()

	elements, _, err := Fuse(objects, texts, DefaultConfig())
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, e := range elements {
		assert.False(t, seen[e.SourceID], "source %s referenced twice", e.SourceID)
		seen[e.SourceID] = true
	}
	assert.NoError(t, CheckInvariants(elements))
}

func TestFuse_Deterministic(t *testing.T) {
	objects, texts := crowdedScreen()

	first, firstStats, err := Fuse(objects, texts, DefaultConfig())
	require.NoError(t, err)
	second, secondStats, err := Fuse(objects, texts, DefaultConfig())
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("fusion not deterministic (-first +second):\n%s", diff)
	}
	assert.Equal(t, firstStats, secondStats)
}

func TestFuse_SurvivorsIndependentOfTextOrder(t *testing.T) {
	objects, texts := crowdedScreen()

	reversed := make([]screen.Detection, len(texts))
	for i, d := range texts {
		reversed[len(texts)-1-i] = d
	}

	a, _, err := Fuse(objects, texts, DefaultConfig())
	require.NoError(t, err)
	b, _, err := Fuse(objects, reversed, DefaultConfig())
	require.NoError(t, err)

	assert.ElementsMatch(t, sourceIDs(a), sourceIDs(b))
}

func TestFuse_ThresholdMonotonicity(t *testing.T) {
	objects, texts := crowdedScreen()

	prev := -1
	for th := 0.0; th <= 1.0001; th += 0.05 {
		cfg := DefaultConfig()
		cfg.IoUThreshold = math.Min(th, 1)
		cfg.ContainmentThreshold = 1

		elements, _, err := Fuse(objects, texts, cfg)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(elements), prev, "iou threshold %.2f", th)
		prev = len(elements)
	}
}

func TestFuse_RejectsMalformedDetections(t *testing.T) {
	tests := []struct {
		name    string
		objects []screen.Detection
		texts   []screen.Detection
	}{
		{"nan coordinate", []screen.Detection{obj("Y001", screen.Box(math.NaN(), 0, 1, 1), 0.5)}, nil},
		{"inverted box", nil, []screen.Detection{txt("O001", screen.Box(5, 5, 1, 1), 0.5)}},
		{"text in object sequence", []screen.Detection{txt("O001", screen.Box(0, 0, 5, 5), 0.5)}, nil},
		{"repeated id", []screen.Detection{
			obj("Y001", screen.Box(0, 0, 5, 5), 0.5),
			obj("Y001", screen.Box(10, 0, 15, 5), 0.5),
		}, nil},
		{"confidence above one", []screen.Detection{obj("Y001", screen.Box(0, 0, 5, 5), 1.2)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			elements, _, err := Fuse(tt.objects, tt.texts, DefaultConfig())
			assert.ErrorIs(t, err, screen.ErrUpstreamDetection)
			assert.Nil(t, elements)
		})
	}
}

func TestFuse_RejectsInvalidConfig(t *testing.T) {
	for _, cfg := range []Config{
		{IoUThreshold: -0.1, ContainmentThreshold: 0.8, MinArea: 1},
		{IoUThreshold: 0.5, ContainmentThreshold: 1.5, MinArea: 1},
		{IoUThreshold: 0.5, ContainmentThreshold: 0.8, MinArea: 0},
		{IoUThreshold: math.NaN(), ContainmentThreshold: 0.8, MinArea: 1},
	} {
		_, _, err := Fuse(nil, nil, cfg)
		assert.ErrorIs(t, err, screen.ErrConfiguration, "%+v", cfg)
	}
}

func TestCheckInvariants(t *testing.T) {
	dupID := []screen.Element{
		{ID: "M001", Origin: screen.SourceObject, SourceID: "Y001"},
		{ID: "M001", Origin: screen.SourceText, SourceID: "O001"},
	}
	assert.ErrorIs(t, CheckInvariants(dupID), screen.ErrFusionInvariant)

	dupSource := []screen.Element{
		{ID: "M001", Origin: screen.SourceObject, SourceID: "Y001"},
		{ID: "M002", Origin: screen.SourceObject, SourceID: "Y001"},
	}
	assert.ErrorIs(t, CheckInvariants(dupSource), screen.ErrFusionInvariant)

	mismatch := []screen.Element{{ID: "M001", Origin: screen.SourceText, SourceID: "Y001"}}
	assert.ErrorIs(t, CheckInvariants(mismatch), screen.ErrFusionInvariant)
}

// crowdedScreen returns a toolbar-like fixture with partial overlaps, nested
// labels and isolated boxes of distinct areas.
func crowdedScreen() ([]screen.Detection, []screen.Detection) {
	objects := screen.TagDetections(screen.SourceObject, []screen.Candidate{
		{BBox: screen.Box(10, 10, 42, 42), Confidence: 0.91},
		{BBox: screen.Box(50, 10, 83, 42), Confidence: 0.88},
		{BBox: screen.Box(90, 10, 124, 42), Confidence: 0.77},
		{BBox: screen.Box(0, 60, 400, 90), Confidence: 0.65},
		{BBox: screen.Box(300, 200, 340, 260), Confidence: 0.5},
		{BBox: screen.Box(20, 300, 61, 330), Confidence: 0.45},
	})
	texts := screen.TagDetections(screen.SourceText, []screen.Candidate{
		{BBox: screen.Box(12, 12, 40, 40), Confidence: 0.8},
		{BBox: screen.Box(70, 15, 110, 35), Confidence: 0.7},
		{BBox: screen.Box(10, 65, 120, 85), Confidence: 0.9},
		{BBox: screen.Box(130, 65, 250, 86), Confidence: 0.85},
		{BBox: screen.Box(500, 500, 580, 520), Confidence: 0.6},
		{BBox: screen.Box(30, 305, 90, 325), Confidence: 0.55},
	})
	return objects, texts
}
