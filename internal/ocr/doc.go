// Package ocr transcribes located regions with Tesseract.
//
// A search returns boxes around occurrences of a motif; for text-like motifs
// (seals, signatures, notarial marks with legends) the text inside a box is
// often what the user wants next. ReadRegion cuts the box out of the corpus
// image and runs Tesseract on it via gosseract.
//
// # Prerequisites
//
// The Tesseract library and language data must be installed:
//   - Ubuntu/Debian: apt-get install libtesseract-dev tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// Historical documents usually need a matching language model, e.g. "lat"
// (tesseract-ocr-lat) for Latin charters.
//
// # Coordinates
//
// Boxes are inclusive pixel boxes as returned by search. Word boxes in the
// result are translated back into the coordinates of the source image, so
// they can be drawn with the same overlay code as search results.
package ocr
