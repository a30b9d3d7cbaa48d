package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"strings"

	"github.com/ironsheep/screen-elements-mcp/internal/export"
	"github.com/ironsheep/screen-elements-mcp/internal/fusion"
	"github.com/ironsheep/screen-elements-mcp/internal/imaging"
	"github.com/ironsheep/screen-elements-mcp/internal/labeling"
	"github.com/ironsheep/screen-elements-mcp/internal/layout"
	"github.com/ironsheep/screen-elements-mcp/internal/pipeline"
	"github.com/ironsheep/screen-elements-mcp/internal/provenance"
	"github.com/ironsheep/screen-elements-mcp/internal/screen"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "screen_analyze", "screen_overlay").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool failed", "tool", params.Name, "error", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Basic Image Information
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)

	// Analysis
	case "screen_analyze":
		return s.handleScreenAnalyze(ctx, args)
	case "screen_elements":
		return s.handleScreenElements(args)
	case "screen_find_element":
		return s.handleScreenFindElement(args)

	// Labeling
	case "screen_annotate":
		return s.handleScreenAnnotate(args)
	case "screen_label":
		return s.handleScreenLabel(ctx, args)

	// Rendering
	case "screen_group_image":
		return s.handleScreenGroupImage(args)
	case "screen_overlay":
		return s.handleScreenOverlay(args)

	// Export
	case "screen_export":
		return s.handleScreenExport(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals tool arguments. Missing arguments decode as {}.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// === Basic Image Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	src, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.Describe(src)
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	src, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return screen.SizeOf(src.Image), nil
}

// === Analysis Handlers ===

type screenAnalyzeArgs struct {
	Path        string             `json:"path"`
	ImageBase64 string             `json:"image_base64"`
	Objects     []screen.Candidate `json:"objects"`
	Texts       []screen.Candidate `json:"texts"`
	Width       int                `json:"width"`
	Height      int                `json:"height"`
}

type slotResult struct {
	SlotID    string            `json:"slot_id"`
	ElementID string            `json:"element_id"`
	BBox      screen.BBox       `json:"bbox"`
	Origin    screen.SourceKind `json:"origin_source"`
	SourceID  string            `json:"source_id"`
	Name      string            `json:"name"`
}

type groupResult struct {
	Label    string          `json:"label"`
	Category layout.Category `json:"category"`
	Slots    []slotResult    `json:"slots"`
}

type analyzeResult struct {
	RunID     string            `json:"run_id"`
	Source    string            `json:"source"`
	Image     screen.Size       `json:"image"`
	Detection fusion.Stats      `json:"detection_summary"`
	Grouping  layout.Summary    `json:"grouping_summary"`
	Labeling  *labeling.Summary `json:"labeling_summary,omitempty"`
	Groups    []groupResult     `json:"groups"`
}

func (s *Server) loadImage(path, data string) (image.Image, string, error) {
	switch {
	case path != "":
		src, err := s.cache.Load(path)
		if err != nil {
			return nil, "", err
		}
		return src.Image, path, nil
	case data != "":
		src, err := imaging.DecodeBase64(data)
		if err != nil {
			return nil, "", err
		}
		return src.Image, "inline", nil
	}
	return nil, "", nil
}

func (s *Server) handleScreenAnalyze(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a screenAnalyzeArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	img, source, err := s.loadImage(a.Path, a.ImageBase64)
	if err != nil {
		return nil, err
	}

	var an *pipeline.Analysis
	if a.Objects != nil || a.Texts != nil {
		size := screen.Size{Width: a.Width, Height: a.Height}
		if img != nil {
			size = screen.SizeOf(img)
		}
		if size.Width <= 0 || size.Height <= 0 {
			return nil, fmt.Errorf("precomputed detections need an image or a positive width and height")
		}
		an, err = s.analyzer.Process(size,
			screen.TagDetections(screen.SourceObject, a.Objects),
			screen.TagDetections(screen.SourceText, a.Texts))
		if err == nil && img != nil && s.analyzer.LabelingEnabled() {
			s.analyzer.Label(ctx, img, an)
		}
	} else {
		if img == nil {
			return nil, fmt.Errorf("either path or image_base64 is required")
		}
		an, err = s.analyzer.Analyze(ctx, img)
	}
	if err != nil {
		return nil, err
	}

	sess := &session{analysis: an, image: img, source: source, path: a.Path}
	for _, path := range s.sessions.add(sess) {
		s.cache.Evict(path)
		s.logger.Debug("evicted image", "path", path, "cached", s.cache.Len())
	}
	return summarize(sess), nil
}

func summarize(sess *session) analyzeResult {
	an := sess.analysis
	records := an.Records()
	groups := make([]groupResult, len(an.Layout.Groups))
	for gi, g := range an.Layout.Groups {
		slots := make([]slotResult, len(g.Members))
		for i, m := range g.Members {
			id := g.SlotID(i)
			slots[i] = slotResult{
				SlotID:    id,
				ElementID: m.ID,
				BBox:      m.BBox,
				Origin:    m.Origin,
				SourceID:  m.SourceID,
				Name:      records[id].Name(),
			}
		}
		groups[gi] = groupResult{Label: g.Label, Category: g.Category, Slots: slots}
	}
	return analyzeResult{
		RunID:     an.RunID,
		Source:    sess.source,
		Image:     an.Size,
		Detection: an.Fusion,
		Grouping:  an.Layout.Summary,
		Labeling:  an.Labeling,
		Groups:    groups,
	}
}

type runArgs struct {
	RunID string `json:"run_id"`
}

type screenElementsArgs struct {
	RunID string `json:"run_id"`
	Group string `json:"group"`
}

// elementRecord is a slot record as returned to clients.
type elementRecord struct {
	SlotID string `json:"slotId"`
	provenance.Flat
	Click screen.Point `json:"click"`
}

func recordOf(e provenance.Entry) elementRecord {
	return elementRecord{SlotID: e.SlotID, Flat: e.Flat(), Click: e.ClickPoint()}
}

func (s *Server) handleScreenElements(args json.RawMessage) (interface{}, error) {
	var a screenElementsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	sess, err := s.sessions.get(a.RunID)
	if err != nil {
		return nil, err
	}

	records := sess.analysis.Records()
	out := make([]elementRecord, 0, len(records))
	for _, e := range records.Entries() {
		if a.Group != "" && e.Group != a.Group {
			continue
		}
		out = append(out, recordOf(e))
	}
	if a.Group != "" && len(out) == 0 {
		return nil, fmt.Errorf("unknown group: %s", a.Group)
	}
	return map[string]interface{}{
		"run_id":       sess.analysis.RunID,
		"elements":     out,
		"source_index": records.SourceIndex(),
	}, nil
}

type screenFindArgs struct {
	RunID     string `json:"run_id"`
	Name      string `json:"name"`
	SlotID    string `json:"slot_id"`
	ElementID string `json:"element_id"`
	SourceID  string `json:"source_id"`
}

func (s *Server) handleScreenFindElement(args json.RawMessage) (interface{}, error) {
	var a screenFindArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	sess, err := s.sessions.get(a.RunID)
	if err != nil {
		return nil, err
	}
	records := sess.analysis.Records()

	var (
		entry provenance.Entry
		found bool
		query string
	)
	switch {
	case a.SlotID != "":
		query = "slot_id " + a.SlotID
		entry, found = records[a.SlotID]
	case a.ElementID != "":
		query = "element_id " + a.ElementID
		entry, found = records.ByElementID(a.ElementID)
	case a.SourceID != "":
		query = "source_id " + a.SourceID
		if kind, ok := screen.KindOfID(a.SourceID); ok {
			entry, found = records.BySourceID(kind, a.SourceID)
		}
	case a.Name != "":
		query = "name " + a.Name
		entry, found = records.FindByName(a.Name)
	default:
		return nil, fmt.Errorf("one of name, slot_id, element_id or source_id is required")
	}
	if !found {
		return nil, fmt.Errorf("no element matches %s", query)
	}
	return recordOf(entry), nil
}

// === Labeling Handlers ===

type screenAnnotateArgs struct {
	RunID       string                           `json:"run_id"`
	Annotations map[string]provenance.Annotation `json:"annotations"`
}

func (s *Server) handleScreenAnnotate(args json.RawMessage) (interface{}, error) {
	var a screenAnnotateArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	sess, err := s.sessions.get(a.RunID)
	if err != nil {
		return nil, err
	}

	tracker := sess.analysis.Tracker
	before := tracker.Snapshot().Annotated()
	warnings := tracker.Apply(a.Annotations)
	after := tracker.Snapshot().Annotated()

	msgs := make([]string, len(warnings))
	for i, w := range warnings {
		msgs[i] = w.String()
	}
	return map[string]interface{}{
		"run_id":    sess.analysis.RunID,
		"applied":   after - before,
		"annotated": after,
		"warnings":  msgs,
	}, nil
}

func (s *Server) handleScreenLabel(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a runArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if !s.analyzer.LabelingEnabled() {
		return nil, fmt.Errorf("no labeling service configured")
	}
	sess, err := s.sessions.get(a.RunID)
	if err != nil {
		return nil, err
	}
	if sess.image == nil {
		return nil, fmt.Errorf("analysis %s has no image to label", sess.analysis.RunID)
	}

	s.analyzer.Label(ctx, sess.image, sess.analysis)
	return map[string]interface{}{
		"run_id":    sess.analysis.RunID,
		"summary":   sess.analysis.Labeling,
		"annotated": sess.analysis.Records().Annotated(),
	}, nil
}

// === Rendering Handlers ===

type screenGroupImageArgs struct {
	RunID    string `json:"run_id"`
	Group    string `json:"group"`
	Padding  *int   `json:"padding"`
	MaxWidth int    `json:"max_width"`
}

func (s *Server) handleScreenGroupImage(args json.RawMessage) (interface{}, error) {
	var a screenGroupImageArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	sess, err := s.sessions.get(a.RunID)
	if err != nil {
		return nil, err
	}
	if sess.image == nil {
		return nil, fmt.Errorf("analysis %s has no image", sess.analysis.RunID)
	}
	grp, ok := sess.analysis.Layout.Group(strings.TrimSpace(a.Group))
	if !ok {
		return nil, fmt.Errorf("unknown group: %s", a.Group)
	}

	cfg := s.analyzer.Config().Labeling
	if a.Padding != nil {
		if *a.Padding < 0 {
			return nil, fmt.Errorf("padding must be >= 0")
		}
		cfg.Padding = *a.Padding
	}
	if a.MaxWidth > 0 {
		cfg.MaxImageWidth = a.MaxWidth
	}

	req, err := labeling.BuildRequest(sess.image, grp, cfg)
	if err != nil {
		return nil, err
	}

	records := sess.analysis.Records()
	slots := make([]map[string]interface{}, len(req.Slots))
	for i, sl := range req.Slots {
		slots[i] = map[string]interface{}{
			"slot_id":    sl.SlotID,
			"bbox":       sl.BBox,
			"element_id": sl.ElementID,
			"origin":     sl.Origin,
			"name":       records[sl.SlotID].Name(),
		}
	}
	return map[string]interface{}{
		"group":        req.Group,
		"category":     req.Category,
		"image_base64": req.ImageBase64,
		"mime_type":    req.MimeType,
		"slots":        slots,
	}, nil
}

type screenOverlayArgs struct {
	RunID      string `json:"run_id"`
	Thickness  int    `json:"thickness"`
	HideLabels bool   `json:"hide_labels"`
}

func (s *Server) handleScreenOverlay(args json.RawMessage) (interface{}, error) {
	var a screenOverlayArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	sess, err := s.sessions.get(a.RunID)
	if err != nil {
		return nil, err
	}
	if sess.image == nil {
		return nil, fmt.Errorf("analysis %s has no image", sess.analysis.RunID)
	}

	var boxes []imaging.OverlayBox
	for gi, g := range sess.analysis.Layout.Groups {
		for i, m := range g.Members {
			boxes = append(boxes, imaging.OverlayBox{BBox: m.BBox, Label: g.SlotID(i), Group: gi})
		}
	}
	return imaging.Overlay(sess.image, boxes, imaging.OverlayOptions{
		Thickness:  a.Thickness,
		HideLabels: a.HideLabels,
	})
}

// === Export Handlers ===

type screenExportArgs struct {
	RunID      string `json:"run_id"`
	Format     string `json:"format"`
	OutputPath string `json:"output_path"`
}

func (s *Server) handleScreenExport(args json.RawMessage) (interface{}, error) {
	var a screenExportArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	format, err := export.ParseFormat(a.Format)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.get(a.RunID)
	if err != nil {
		return nil, err
	}

	report := export.Build(sess.analysis)
	if a.OutputPath != "" {
		if err := export.WriteFile(a.OutputPath, report, format); err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"run_id": report.RunID,
			"format": format,
			"path":   a.OutputPath,
		}, nil
	}

	if format == export.JSON {
		return report, nil
	}
	data, err := export.Encode(report, format)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"run_id":      report.RunID,
		"format":      format,
		"data_base64": base64.StdEncoding.EncodeToString(data),
	}, nil
}
