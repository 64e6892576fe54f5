// Package search runs the retrieval pipeline.
//
// A query image is turned into a feature map by the Gateway, reduced to a
// global descriptor and matched against the descriptor store. The best
// candidates are then localized, reranked by the descriptor of their
// localized region and reranked once more with an average-query-expanded
// descriptor. Each stage past the initial query can be switched off through
// Options.
//
// Only localization runs in parallel. Every other stage runs on the
// calling goroutine.
package search
