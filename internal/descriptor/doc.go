// Package descriptor computes image descriptors from feature maps.
//
// The global descriptor is R-MAC (regional maximum activations of
// convolutions): square regions are sampled at several scales, each region
// is max-pooled per channel and L2-normalized, optionally whitened, and the
// regional vectors are summed and normalized once more. The localization
// descriptor is the plain MAC vector of a map, normalized.
//
// Every function validates the feature map before touching it and returns
// a *features.ShapeError for malformed input.
package descriptor
