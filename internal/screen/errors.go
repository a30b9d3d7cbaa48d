package screen

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for the pipeline error classes. Typed errors below match them
// through errors.Is.
var (
	ErrConfiguration      = errors.New("configuration error")
	ErrUpstreamDetection  = errors.New("upstream detection error")
	ErrFusionInvariant    = errors.New("fusion invariant violation")
	ErrGroupingIncomplete = errors.New("grouping incomplete")
)

// ConfigError reports an out-of-range configuration value. It is raised
// before any processing starts.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Is matches ErrConfiguration.
func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// UpstreamDetectionError reports a failed detector or malformed detector
// output. No partial result accompanies it.
type UpstreamDetectionError struct {
	Source      SourceKind
	DetectionID string
	Err         error
}

func (e *UpstreamDetectionError) Error() string {
	var b strings.Builder
	b.WriteString("upstream detection error")
	if e.Source != 0 {
		fmt.Fprintf(&b, " (%s detector)", e.Source)
	}
	if e.DetectionID != "" {
		fmt.Fprintf(&b, " at %s", e.DetectionID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is matches ErrUpstreamDetection.
func (e *UpstreamDetectionError) Is(target error) bool { return target == ErrUpstreamDetection }

func (e *UpstreamDetectionError) Unwrap() error { return e.Err }

// FusionInvariantError reports an internal consistency failure after fusion.
// It indicates a defect and is never corrected silently.
type FusionInvariantError struct {
	Detail string
}

func (e *FusionInvariantError) Error() string {
	return "fusion invariant violation: " + e.Detail
}

// Is matches ErrFusionInvariant.
func (e *FusionInvariantError) Is(target error) bool { return target == ErrFusionInvariant }

// GroupingIncompleteError lists elements that did not land in exactly one
// group slot.
type GroupingIncompleteError struct {
	ElementIDs []string
	Detail     string
}

func (e *GroupingIncompleteError) Error() string {
	msg := "grouping incomplete"
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if len(e.ElementIDs) > 0 {
		msg += " [" + strings.Join(e.ElementIDs, ", ") + "]"
	}
	return msg
}

// Is matches ErrGroupingIncomplete.
func (e *GroupingIncompleteError) Is(target error) bool { return target == ErrGroupingIncomplete }
