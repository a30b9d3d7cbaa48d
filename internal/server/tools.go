package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// runIDProperty is shared by every tool that works on a stored analysis.
var runIDProperty = map[string]interface{}{
	"type":        "string",
	"description": "Analysis run id returned by screen_analyze. Defaults to the most recent analysis.",
}

var candidatesProperty = map[string]interface{}{
	"type": "array",
	"items": map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"bbox": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "number"},
				"minItems":    4,
				"maxItems":    4,
				"description": "[xmin, ymin, xmax, ymax] in pixels",
			},
			"confidence": map[string]interface{}{
				"type":    "number",
				"minimum": 0,
				"maximum": 1,
			},
		},
		"required": []string{"bbox", "confidence"},
	},
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Basic Image Information
		{
			Name:        "image_load",
			Description: "Load a screenshot and return its dimensions, format and file size.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
				},
				"required": []string{"path"},
			},
		},

		// Analysis
		{
			Name: "screen_analyze",
			Description: "Detect the UI elements of a screenshot, fuse icon and text detections into one element list, " +
				"and group the elements into rows (H), columns (V) and full-span bars (L) with slot ids such as H1_2. " +
				"Labels the groups when a labeling service is configured. Returns a run_id for the other screen_* tools.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the screenshot",
					},
					"image_base64": map[string]interface{}{
						"type":        "string",
						"description": "Screenshot as base64 (a data: URL is accepted). Used when path is empty.",
					},
					"objects": withDescription(candidatesProperty,
						"Precomputed icon/widget detections. When objects or texts is given the built-in detectors are skipped."),
					"texts": withDescription(candidatesProperty,
						"Precomputed text-region detections."),
					"width": map[string]interface{}{
						"type":        "integer",
						"description": "Image width, required with precomputed detections when no image is given",
					},
					"height": map[string]interface{}{
						"type":        "integer",
						"description": "Image height, required with precomputed detections when no image is given",
					},
				},
			},
		},
		{
			Name:        "screen_elements",
			Description: "List the slots of an analysis with their element ids, boxes, source detection ids and annotations.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"run_id": runIDProperty,
					"group": map[string]interface{}{
						"type":        "string",
						"description": "Only list slots of this group label (e.g., H1, V2, L1)",
					},
				},
			},
		},
		{
			Name: "screen_find_element",
			Description: "Find one element by annotation name (case-insensitive), slot id, element id or source detection id, " +
				"and return its record with the point to click.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"run_id": runIDProperty,
					"name": map[string]interface{}{
						"type":        "string",
						"description": "Annotation name to match",
					},
					"slot_id": map[string]interface{}{
						"type":        "string",
						"description": "Slot id such as H1_2",
					},
					"element_id": map[string]interface{}{
						"type":        "string",
						"description": "Element id such as M007",
					},
					"source_id": map[string]interface{}{
						"type":        "string",
						"description": "Raw detection id such as Y003 or O012",
					},
				},
			},
		},

		// Labeling
		{
			Name: "screen_annotate",
			Description: "Attach semantic names to slots. Keys are slot ids. Unknown slots are reported as warnings; " +
				"a slot keeps its first annotation. Re-sending the same annotations changes nothing.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"run_id": runIDProperty,
					"annotations": map[string]interface{}{
						"type": "object",
						"additionalProperties": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"name":  map[string]interface{}{"type": "string"},
								"brief": map[string]interface{}{"type": "string"},
							},
							"required": []string{"name"},
						},
						"description": "Map of slot id to {name, brief}",
					},
				},
				"required": []string{"annotations"},
			},
		},
		{
			Name:        "screen_label",
			Description: "Run the configured labeling service over every group of an analysis and merge the results.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"run_id": runIDProperty,
				},
			},
		},

		// Rendering
		{
			Name:        "screen_group_image",
			Description: "Crop the region covering one group as base64 PNG, with each slot's box in crop coordinates. Use it to inspect and name the slots of a group.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"run_id": runIDProperty,
					"group": map[string]interface{}{
						"type":        "string",
						"description": "Group label (e.g., H1)",
					},
					"padding": map[string]interface{}{
						"type":        "integer",
						"description": "Padding in pixels around the group. Defaults to the labeling padding.",
					},
					"max_width": map[string]interface{}{
						"type":        "integer",
						"description": "Scale the crop down to at most this width",
					},
				},
				"required": []string{"group"},
			},
		},
		{
			Name:        "screen_overlay",
			Description: "Render the screenshot with every slot outlined in its group colour and tagged with its slot id, as base64 PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"run_id": runIDProperty,
					"thickness": map[string]interface{}{
						"type":        "integer",
						"description": "Outline thickness in pixels. Default 2",
						"default":     2,
					},
					"hide_labels": map[string]interface{}{
						"type":        "boolean",
						"description": "Draw outlines only",
						"default":     false,
					},
				},
			},
		},

		// Export
		{
			Name:        "screen_export",
			Description: "Export an analysis report (summaries, elements, slot records, source index) as JSON or MessagePack, inline or to a file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"run_id": runIDProperty,
					"format": map[string]interface{}{
						"type":    "string",
						"enum":    []string{"json", "msgpack"},
						"default": "json",
					},
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Write the report to this file instead of returning it",
					},
				},
			},
		},
	}
}

// withDescription returns a copy of schema carrying description.
func withDescription(schema map[string]interface{}, description string) map[string]interface{} {
	out := make(map[string]interface{}, len(schema)+1)
	for k, v := range schema {
		out[k] = v
	}
	out["description"] = description
	return out
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
