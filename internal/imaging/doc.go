// Package imaging loads screen captures and renders the images derived from
// an analysis.
//
// # Loading
//
// ImageCache decodes PNG, JPEG and GIF captures from disk once and keeps
// a bounded number of them in memory. Inline captures (base64, optionally
// as a data URL) are decoded with DecodeBase64 and are not cached.
//
// # Renderings
//
//   - CropGroup: the padded region covering one group, the picture sent to
//     the semantic labeler
//   - Overlay: the full capture with every slot outlined in its group colour
//     and tagged with its slot id
//
// Renderings are returned as base64 PNG (Encoded) so they can be embedded in
// MCP tool results directly.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y downward. Regions are [min, max) with exclusive
// max edges.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. Rendering functions never modify
// their input image.
package imaging
