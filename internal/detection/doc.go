// Package detection provides the pure-Go region detectors that feed fusion.
//
// Two detectors are provided:
//
//   - ObjectDetector: icons, buttons and other widgets, found as bounding
//     boxes of connected edge components
//   - HeuristicTextDetector: text lines found by edge density and
//     orientation, used when the Tesseract engine is unavailable
//
// Both implement Detector and return untagged screen.Candidate values in
// reading order. Callers tag them with screen.TagDetections, which assigns
// the Y001... and O001... source ids in that order.
//
// # Edge Map
//
// Both detectors start from DetectEdges: a Sobel response of the grayscale
// image (github.com/anthonynsimon/bild), thresholded into a binary map.
//
// # Coordinate System
//
// Candidates are in the coordinate space of the input image:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//   - Boxes are [xmin, ymin, xmax, ymax) with exclusive max edges
//
// # Limitations
//
// The heuristics work best on flat UI rendering: solid fills, crisp borders
// and anti-aliased text. Photographic content produces many spurious
// components.
package detection
