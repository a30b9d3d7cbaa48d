package provenance

import (
	"log/slog"
	"sync"

	"github.com/ironsheep/screen-elements-mcp/internal/logging"
)

// Tracker holds records that receive annotations incrementally, possibly
// from concurrent labeling requests completing in any order.
//
// Tracker is safe for concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	records  Records
	warnings []MergeWarning
	logger   *slog.Logger
}

// NewTracker wraps records. The tracker works on its own copy.
func NewTracker(records Records, logger *slog.Logger) *Tracker {
	return &Tracker{
		records: records.Clone(),
		logger:  logging.OrDiscard(logger),
	}
}

// Apply merges a batch of annotations and returns the warnings it produced.
// Each warning is also logged and kept for Warnings.
func (t *Tracker) Apply(annotations map[string]Annotation) []MergeWarning {
	if len(annotations) == 0 {
		return nil
	}

	t.mu.Lock()
	merged, warnings := MergeAnnotations(t.records, annotations)
	t.records = merged
	t.warnings = append(t.warnings, warnings...)
	t.mu.Unlock()

	t.log(warnings)
	return warnings
}

// Record keeps and logs warnings raised before a merge, such as a labeler
// reply naming one slot twice.
func (t *Tracker) Record(warnings []MergeWarning) {
	if len(warnings) == 0 {
		return
	}
	t.mu.Lock()
	t.warnings = append(t.warnings, warnings...)
	t.mu.Unlock()

	t.log(warnings)
}

func (t *Tracker) log(warnings []MergeWarning) {
	for _, w := range warnings {
		t.logger.Warn("annotation merge", "kind", w.Kind.String(), "slot", w.SlotID, "name", w.Annotation.Name)
	}
}

// Snapshot returns a copy of the current records.
func (t *Tracker) Snapshot() Records {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records.Clone()
}

// Warnings returns every warning produced so far, in arrival order.
func (t *Tracker) Warnings() []MergeWarning {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]MergeWarning, len(t.warnings))
	copy(out, t.warnings)
	return out
}
