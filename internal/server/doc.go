// Package server implements the MCP (Model Context Protocol) server that
// exposes pattern spotting over JSON-RPC 2.0.
//
// A client hands the server a query image, by local path or URL and
// optionally narrowed to a region of interest, and gets back the corpus
// images that contain the same pattern together with where it was found.
// The result tools then let the client look at those matches.
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
// Search:
//   - motif_search: Rank the corpus against a query image
//   - motif_store_info: Describe the loaded descriptor store
//
// Result inspection (corpus images are addressed by result index):
//   - motif_result_crop: Cut a bounding box out of a corpus image
//   - motif_result_overlay: Draw numbered boxes on a corpus image
//   - motif_ocr_region: Read text inside a box (requires Tesseract)
//
// Query images:
//   - image_load: Load image and get metadata
//   - image_dimensions: Get width and height
//
// # Coordinates
//
// The search ROI is half-open: (x1, y1) is the first pixel inside the
// region and (x2, y2) the first pixel past it. Bounding boxes in results
// and in the result tools are inclusive on both ends.
//
// # Image Caching
//
// Query and corpus images are decoded once and kept in a bounded
// in-memory cache keyed by path or URL.
//
// # Error Handling
//
// Failures are returned as JSON-RPC error responses:
//   - code -32602 when the arguments are at fault (bad ROI, unknown index,
//     rerank without localize, unreachable URL)
//   - code -32000 for every other tool failure
//   - data carries the Go error string
//
// # Usage
//
//	srv := server.New(server.Options{Corpus: st, Search: search.DefaultOptions()})
//	if err := srv.Run(ctx); err != nil {
//	    logrus.Fatal(err)
//	}
package server
