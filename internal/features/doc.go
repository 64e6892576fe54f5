// Package features holds convolutional feature maps and the code that
// produces, crops and serializes them.
//
// A feature map is the output of feature extraction for one image: a
// height × width grid of cells, each carrying a vector of channel
// activations. Maps are stored row-major as [y][x][c] in a single float32
// slice so that a cell's channel vector is a contiguous sub-slice.
//
// # Coordinate System
//
// Cell coordinates are 0-based with (0,0) at the top-left corner. Boxes
// passed to Crop are inclusive on both ends, matching the bounding boxes
// produced by localization.
//
// # Extraction
//
// Deep-network inference is not part of this repository. The Extractor
// interface is the boundary; GridExtractor is a built-in extractor that
// derives orientation, ink and colour channels from image cells so the
// pipeline can be run end to end without a model server.
//
// # Serialization
//
// Encode and Decode implement the on-disk form of a feature map (the
// ".fmap" blob): a fixed header followed by a little-endian float32
// payload that is optionally compressed with LZ4 or Zstandard.
package features
