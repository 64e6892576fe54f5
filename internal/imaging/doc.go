// Package imaging provides the image handling around a search: loading and
// caching query images, cutting query regions and result boxes, and drawing
// result boxes for display.
//
// Feature extraction does not live here; see package features.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based, with (0,0) at the
// top-left corner, X increasing rightward and Y increasing downward.
//
// Two region conventions are in use:
//   - Query regions (ROI) are half-open: (x1,y1) is inclusive and (x2,y2)
//     exclusive, matching image.Rectangle.
//   - Result boxes (localization.Box) are inclusive on all four edges,
//     matching the boxes returned by search.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. The other functions are
// stateless and never modify their input image.
//
// # Output Encoding
//
// Crops and overlays are returned as base64-encoded PNG together with their
// dimensions and MIME type, ready to embed in an MCP tool result.
//
// # Error Handling
//
// Functions return errors for invalid inputs such as:
//   - Inverted regions (x1 >= x2 or y1 >= y2)
//   - Boxes that do not overlap the image
//   - Malformed colour strings
//   - File I/O and decoding errors during image loading
package imaging
