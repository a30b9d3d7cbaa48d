package layout

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/screen-elements-mcp/internal/screen"
)

func el(id string, b screen.BBox) screen.Element {
	return screen.Element{ID: id, BBox: b, Origin: screen.SourceObject, Confidence: 0.9, SourceID: "Y" + id[1:]}
}

func memberIDs(g Group) []string {
	out := make([]string, len(g.Members))
	for i, m := range g.Members {
		out[i] = m.ID
	}
	return out
}

func labels(res *Result) []string {
	out := make([]string, len(res.Groups))
	for i, g := range res.Groups {
		out[i] = g.Label
	}
	return out
}

var desktop = screen.Size{Width: 800, Height: 600}

func TestGroup_AlignedRowBecomesOneHorizontalGroup(t *testing.T) {
	// Input order deliberately differs from left-to-right order.
	elements := []screen.Element{
		el("M002", screen.Box(200, 102, 240, 122)),
		el("M003", screen.Box(300, 98, 340, 118)),
		el("M001", screen.Box(100, 100, 140, 120)),
	}

	res, err := Group(elements, desktop, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, res.Groups, 1)
	g := res.Groups[0]
	assert.Equal(t, "H1", g.Label)
	assert.Equal(t, Horizontal, g.Category)
	assert.Equal(t, []string{"M001", "M002", "M003"}, memberIDs(g))

	assert.Equal(t, map[string]string{
		"M001": "H1_1",
		"M002": "H1_2",
		"M003": "H1_3",
	}, res.ElementToSlot)

	slot, ok := res.Slot("H1_2")
	require.True(t, ok)
	assert.Equal(t, "M002", slot.Element.ID)
	assert.Equal(t, 2, slot.Position)
	assert.Equal(t, "H1", slot.Group)

	_, ok = res.Slot("H1_4")
	assert.False(t, ok)

	assert.Equal(t, Summary{
		Elements:           3,
		TotalGroups:        1,
		HorizontalGroups:   1,
		GroupingEfficiency: 1,
	}, res.Summary)
}

func TestGroup_WideElementIsLongBox(t *testing.T) {
	size := screen.Size{Width: 1000, Height: 800}
	elements := []screen.Element{
		el("M001", screen.Box(100, 10, 150, 30)),
		el("M002", screen.Box(25, 0, 975, 40)), // 95% of the width
		el("M003", screen.Box(200, 10, 250, 30)),
	}

	res, err := Group(elements, size, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"L1", "H1"}, labels(res))

	long := res.Groups[0]
	assert.Equal(t, LongBox, long.Category)
	assert.Equal(t, []string{"M002"}, memberIDs(long))
	assert.Equal(t, "L1_1", res.ElementToSlot["M002"])

	// The wide element shares the row band but is never merged into it.
	assert.Equal(t, []string{"M001", "M003"}, memberIDs(res.Groups[1]))
	assert.Equal(t, 1, res.Summary.LongBoxGroups)
	assert.Equal(t, 1, res.Summary.SingletonGroups)
}

func TestGroup_TallElementIsLongBox(t *testing.T) {
	elements := []screen.Element{
		el("M001", screen.Box(0, 0, 30, 590)),
		el("M002", screen.Box(100, 10, 130, 30)),
	}
	res, err := Group(elements, desktop, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"L1", "H1"}, labels(res))
	assert.Equal(t, LongBox, res.Groups[0].Category)
}

func TestGroup_LongBoxesKeepInputOrder(t *testing.T) {
	elements := []screen.Element{
		el("M001", screen.Box(0, 500, 800, 520)),
		el("M002", screen.Box(0, 0, 800, 20)),
	}
	res, err := Group(elements, desktop, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "L1_1", res.ElementToSlot["M001"])
	assert.Equal(t, "L2_1", res.ElementToSlot["M002"])
}

func TestGroup_StackedElementsFormColumn(t *testing.T) {
	elements := []screen.Element{
		el("M001", screen.Box(48, 300, 92, 320)),
		el("M002", screen.Box(50, 100, 90, 120)),
		el("M003", screen.Box(52, 200, 88, 220)),
	}

	res, err := Group(elements, desktop, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, res.Groups, 1)
	g := res.Groups[0]
	assert.Equal(t, "V1", g.Label)
	assert.Equal(t, Vertical, g.Category)
	assert.Equal(t, []string{"M002", "M003", "M001"}, memberIDs(g))
	assert.Equal(t, 1, res.Summary.VerticalGroups)
	assert.Equal(t, 0, res.Summary.SingletonGroups)
}

func TestGroup_MixedLayout(t *testing.T) {
	elements := []screen.Element{
		el("M001", screen.Box(100, 50, 150, 70)),   // row
		el("M002", screen.Box(200, 52, 250, 72)),   // row
		el("M003", screen.Box(600, 300, 640, 320)), // alone
		el("M004", screen.Box(50, 150, 90, 170)),   // column
		el("M005", screen.Box(50, 250, 90, 270)),   // column
	}

	res, err := Group(elements, desktop, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"H1", "H2", "V1"}, labels(res))
	assert.Equal(t, []string{"M001", "M002"}, memberIDs(res.Groups[0]))
	assert.Equal(t, []string{"M003"}, memberIDs(res.Groups[1]))
	assert.Equal(t, []string{"M004", "M005"}, memberIDs(res.Groups[2]))

	s := res.Summary
	assert.Equal(t, 5, s.Elements)
	assert.Equal(t, 3, s.TotalGroups)
	assert.Equal(t, 2, s.HorizontalGroups)
	assert.Equal(t, 1, s.VerticalGroups)
	assert.Equal(t, 1, s.SingletonGroups)
	assert.InDelta(t, 0.8, s.GroupingEfficiency, 1e-9)
}

func TestGroup_OverlappingNeighboursStaySeparate(t *testing.T) {
	elements := []screen.Element{
		el("M001", screen.Box(100, 100, 200, 120)),
		el("M002", screen.Box(110, 100, 210, 120)),
	}

	res, err := Group(elements, desktop, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"H1", "H2"}, labels(res))
	assert.Equal(t, "H1_1", res.ElementToSlot["M001"])
	assert.Equal(t, "H2_1", res.ElementToSlot["M002"])
	assert.Equal(t, 2, res.Summary.SingletonGroups)
	assert.InDelta(t, 0.0, res.Summary.GroupingEfficiency, 1e-9)
}

func TestGroup_MarginalOverlapAllowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOverlap = 0.2

	elements := []screen.Element{
		el("M001", screen.Box(100, 100, 150, 120)),
		el("M002", screen.Box(145, 100, 195, 120)), // 5px of 50px
	}
	res, err := Group(elements, desktop, cfg)
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, []string{"M001", "M002"}, memberIDs(res.Groups[0]))
}

func TestGroup_RowToleranceSplitsRows(t *testing.T) {
	elements := []screen.Element{
		el("M001", screen.Box(100, 100, 140, 120)), // cy 110
		el("M002", screen.Box(200, 100, 240, 120)), // cy 110
		el("M003", screen.Box(300, 130, 340, 150)), // cy 140
		el("M004", screen.Box(400, 130, 440, 150)), // cy 140
	}

	res, err := Group(elements, desktop, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"H1", "H2"}, labels(res))
	assert.Equal(t, []string{"M001", "M002"}, memberIDs(res.Groups[0]))
	assert.Equal(t, []string{"M003", "M004"}, memberIDs(res.Groups[1]))

	cfg := DefaultConfig()
	cfg.RowTolerance = 40
	res, err = Group(elements, desktop, cfg)
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	assert.Len(t, res.Groups[0].Members, 4)
}

func TestGroup_Empty(t *testing.T) {
	res, err := Group(nil, desktop, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, res.Groups)
	assert.Empty(t, res.ElementToSlot)
	assert.Equal(t, Summary{}, res.Summary)
}

// scatter returns n pseudo-random small elements on an 800x600 screen.
func scatter(seed int64, n int) []screen.Element {
	r := rand.New(rand.NewSource(seed))
	out := make([]screen.Element, n)
	for i := range out {
		x := float64(r.Intn(760))
		y := float64(r.Intn(570))
		w := float64(8 + r.Intn(40))
		h := float64(8 + r.Intn(30))
		out[i] = el(screen.FormatID("M", i+1), screen.Box(x, y, x+w, y+h))
	}
	// A couple of chrome bars.
	out = append(out,
		el(screen.FormatID("M", n+1), screen.Box(0, 0, 800, 24)),
		el(screen.FormatID("M", n+2), screen.Box(780, 0, 800, 600)),
	)
	return out
}

func TestGroup_EveryElementInExactlyOneSlot(t *testing.T) {
	for _, seed := range []int64{1, 7, 42, 1234} {
		elements := scatter(seed, 80)
		res, err := Group(elements, desktop, DefaultConfig())
		require.NoError(t, err, "seed %d", seed)

		seen := make(map[string]int)
		for _, s := range res.Slots() {
			seen[s.Element.ID]++
			assert.Equal(t, s.ID, res.ElementToSlot[s.Element.ID])
		}
		assert.Len(t, seen, len(elements), "seed %d", seed)
		for id, n := range seen {
			assert.Equal(t, 1, n, "seed %d element %s", seed, id)
		}
		assert.Equal(t, len(elements), res.Summary.Elements)

		total := res.Summary.HorizontalGroups + res.Summary.VerticalGroups + res.Summary.LongBoxGroups
		assert.Equal(t, res.Summary.TotalGroups, total)
		assert.Equal(t, 2, res.Summary.LongBoxGroups)
	}
}

func TestGroup_Deterministic(t *testing.T) {
	elements := scatter(99, 60)

	first, err := Group(elements, desktop, DefaultConfig())
	require.NoError(t, err)
	second, err := Group(elements, desktop, DefaultConfig())
	require.NoError(t, err)

	if diff := cmp.Diff(first.Groups, second.Groups); diff != "" {
		t.Errorf("groups differ between runs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.ElementToSlot, second.ElementToSlot); diff != "" {
		t.Errorf("slot map differs between runs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Slots(), second.Slots()); diff != "" {
		t.Errorf("slots differ between runs (-first +second):\n%s", diff)
	}
}

func TestGroup_LabelsFollowCategoryOrder(t *testing.T) {
	res, err := Group(scatter(5, 50), desktop, DefaultConfig())
	require.NoError(t, err)

	rank := map[Category]int{LongBox: 0, Horizontal: 1, Vertical: 2}
	for i := 1; i < len(res.Groups); i++ {
		assert.LessOrEqual(t, rank[res.Groups[i-1].Category], rank[res.Groups[i].Category])
	}
}

func TestGroup_Errors(t *testing.T) {
	valid := []screen.Element{el("M001", screen.Box(0, 0, 10, 10))}

	tests := []struct {
		name     string
		elements []screen.Element
		size     screen.Size
		mutate   func(*Config)
		want     error
	}{
		{"zero span", valid, desktop, func(c *Config) { c.SpanThresholdX = 0 }, screen.ErrConfiguration},
		{"span above one", valid, desktop, func(c *Config) { c.SpanThresholdY = 1.5 }, screen.ErrConfiguration},
		{"zero row tolerance", valid, desktop, func(c *Config) { c.RowTolerance = 0 }, screen.ErrConfiguration},
		{"negative column tolerance", valid, desktop, func(c *Config) { c.ColumnTolerance = -1 }, screen.ErrConfiguration},
		{"overlap above one", valid, desktop, func(c *Config) { c.MaxOverlap = 2 }, screen.ErrConfiguration},
		{"empty image", valid, screen.Size{}, nil, screen.ErrConfiguration},
		{
			"duplicate ids",
			[]screen.Element{el("M001", screen.Box(0, 0, 10, 10)), el("M001", screen.Box(20, 0, 30, 10))},
			desktop, nil, screen.ErrGroupingIncomplete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			res, err := Group(tt.elements, tt.size, cfg)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestCheckComplete(t *testing.T) {
	elements := []screen.Element{
		el("M001", screen.Box(0, 0, 10, 10)),
		el("M002", screen.Box(20, 0, 30, 10)),
	}
	groups := []Group{newGroup(Horizontal, 1, []item{{el: elements[0]}})}
	res := assemble(groups, len(elements))

	err := checkComplete(res, elements)
	var incomplete *screen.GroupingIncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []string{"M002"}, incomplete.ElementIDs)
}
