// Package server implements the MCP (Model Context Protocol) server for
// screenshot element analysis.
//
// This package provides a JSON-RPC 2.0 server that turns a screenshot into a
// list of addressable UI elements. Clients analyze an image once, then look
// elements up by slot id, detection id or semantic name and get a point to
// click.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Basic Image Information:
//   - image_load: Load image and get metadata
//   - image_dimensions: Get width and height
//
// Analysis:
//   - screen_analyze: Detect, fuse and group elements; returns a run_id
//   - screen_elements: List slot records of an analysis
//   - screen_find_element: Look up one element and its click point
//
// Labeling:
//   - screen_annotate: Merge client-supplied names into the slot records
//   - screen_label: Run the configured labeling service
//
// Rendering:
//   - screen_group_image: Crop one group for inspection
//   - screen_overlay: Draw every slot on the screenshot
//
// Export:
//   - screen_export: JSON or MessagePack report
//
// # Sessions
//
// Each screen_analyze call stores its result under a fresh run_id. The other
// screen_* tools take an optional run_id and default to the latest analysis.
// Only the most recent analyses are kept; older ones are dropped.
//
// # Image Caching
//
// Images loaded by path are cached and reused across tool calls for the
// lifetime of the server process.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// # Usage
//
//	analyzer, err := pipeline.New(objects, texts, nil, pipeline.DefaultConfig(), logger)
//	if err != nil {
//	    return err
//	}
//	return server.New(analyzer, logger).Run(ctx)
package server
