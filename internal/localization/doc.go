// Package localization finds the rectangle of a feature map that best
// matches a query descriptor.
//
// Candidate rectangles come from a stepped area generator. Each candidate
// is scored by approximate max-pooling: the map is raised to a large
// exponent, summed over the rectangle through an integral image and taken
// back to the exponent's inverse root. The pooled vector is normalized and
// compared to the query by cosine similarity. The best rectangle over the
// sweep can optionally be shrunk greedily as long as its score does not
// drop.
//
// Boxes are in feature map cells and inclusive on both ends.
package localization
