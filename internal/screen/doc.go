// Package screen defines the shared vocabulary of the screen-element pipeline.
//
// Every later stage (fusion, layout grouping, provenance, export) speaks in
// the types declared here:
//
//   - BBox: an axis-aligned box in pixel coordinates
//   - Detection: one raw candidate region from one detector
//   - Element: a canonical, deduplicated region produced by fusion
//   - Size: the dimensions of the analyzed screen capture
//
// # Coordinate System
//
// Boxes use the standard image convention:
//   - Origin (0, 0) at the top-left corner
//   - X increases rightward, Y increases downward
//   - A box is (XMin, YMin, XMax, YMax) with XMin <= XMax and YMin <= YMax
//
// Coordinates are float64 because detector backends report sub-pixel
// values; nothing in the pipeline rounds them.
//
// # Identifiers
//
// Identifiers are source scoped and assigned in sequence:
//   - Object detections: Y001, Y002, ...
//   - Text detections:   O001, O002, ...
//   - Fused elements:    M001, M002, ...
//
// An Element references exactly one Detection. The opposite source is
// absent and is rendered as the sentinel "NA" only when serialized.
//
// # Errors
//
// The error taxonomy shared by all stages lives in errors.go. Each class has
// a sentinel for errors.Is and a typed error for errors.As.
package screen
