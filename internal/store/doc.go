// Package store implements the descriptor store on disk and the search
// gateway over it.
//
// A store named <name> in directory <dir> consists of
//
//	<dir>/<name>.meta    JSON metadata: the extracted images and the index
//	<dir>/<name>.repr    descriptor matrix, memory mapped at query time
//	<dir>/<name>.pca     optional PCA whitening (JSON)
//
// plus one feature map blob per corpus image, named
// features/<image path without extension>.fmap, in a blobstore.Store.
//
// Stores are produced in two offline passes: Extract computes and stores
// the feature maps of an image directory, Build turns them into global
// descriptors. Build only replaces the matrix and the index part of the
// metadata, so it can be rerun after the PCA file changes or lost blobs
// are restored.
package store
