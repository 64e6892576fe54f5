package store

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/mseitzer/pattern-spotting/internal/blobstore"
	"github.com/mseitzer/pattern-spotting/internal/descriptor"
	"github.com/mseitzer/pattern-spotting/internal/features"
	"github.com/mseitzer/pattern-spotting/internal/search"
	"github.com/mseitzer/pattern-spotting/internal/similarity"
)

// Options locates a store.
type Options struct {
	Dir       string
	Name      string
	Blobs     blobstore.Store
	Extractor features.Extractor

	// ImageRoot is joined with record paths by ImagePath.
	ImageRoot string
}

// Store is a read-only descriptor store. It implements search.Gateway and
// is safe for concurrent use until Close.
type Store struct {
	opts   Options
	meta   *Meta
	images []search.Metadata
	matrix *mappedMatrix
	pca    *descriptor.PCA
}

var _ search.Gateway = (*Store)(nil)

var (
	// ErrNotBuilt is returned by Open for a store that was extracted but
	// never built.
	ErrNotBuilt = errors.New("descriptor store not built")

	// ErrWhiteningChanged is returned by Open when a PCA file was added or
	// removed since the last build.
	ErrWhiteningChanged = errors.New("whitening changed since the last build, rebuild the store")
)

// Open loads the metadata, maps the descriptor matrix and loads the
// optional PCA. It fails with a *search.DimensionMismatchError if the
// extractor (after whitening) does not produce descriptors of the stored
// dimension. Images whose feature blob has gone missing since the build are
// logged; searches that localize in them fail.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Blobs == nil || opts.Extractor == nil {
		return nil, fmt.Errorf("store %s: blob store and extractor are required", opts.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta, err := ReadMeta(opts.Dir, opts.Name)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", opts.Name, err)
	}
	if meta.Index == nil {
		return nil, fmt.Errorf("store %s: %w", opts.Name, ErrNotBuilt)
	}
	pca, err := LoadWhitening(opts.Dir, opts.Name)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", opts.Name, err)
	}
	mm, err := openMatrix(ReprPath(opts.Dir, opts.Name))
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", opts.Name, err)
	}
	s := &Store{opts: opts, meta: meta, images: meta.Index.Images, matrix: mm, pca: pca}

	if mm.m.Rows != len(s.images) {
		s.Close()
		return nil, fmt.Errorf("store %s: %d descriptors for %d images", opts.Name, mm.m.Rows, len(s.images))
	}
	if meta.Index.Whitened != (pca != nil) {
		s.Close()
		return nil, fmt.Errorf("store %s: %w", opts.Name, ErrWhiteningChanged)
	}

	dim := opts.Extractor.Channels()
	if pca != nil {
		if pca.InputDim() != dim {
			s.Close()
			return nil, &search.DimensionMismatchError{Query: dim, Store: pca.InputDim()}
		}
		dim = pca.OutputDim()
	}
	if dim != mm.m.Dim {
		s.Close()
		return nil, &search.DimensionMismatchError{Query: dim, Store: mm.m.Dim}
	}
	if err := s.checkBlobs(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// checkBlobs warns about indexed images without a feature blob.
func (s *Store) checkBlobs(ctx context.Context) error {
	var missing []string
	for _, rec := range s.images {
		ok, err := s.opts.Blobs.Exists(ctx, FeatureBlobName(rec.Image))
		if err != nil {
			return fmt.Errorf("store %s: feature map of %s: %w", s.meta.Name, rec.Image, err)
		}
		if !ok {
			missing = append(missing, rec.Image)
		}
	}
	if len(missing) > 0 {
		logrus.WithFields(logrus.Fields{
			"store":   s.meta.Name,
			"missing": len(missing),
			"first":   missing[0],
		}).Warn("feature maps missing, rebuild the store")
	}
	return nil
}

// Close unmaps the descriptor matrix. Matrices returned by Descriptors are
// invalid afterwards.
func (s *Store) Close() error {
	return s.matrix.Close()
}

// Name is the store name.
func (s *Store) Name() string { return s.meta.Name }

// Len is the number of corpus images.
func (s *Store) Len() int { return len(s.images) }

// ExtractFeatures runs the configured extractor.
func (s *Store) ExtractFeatures(ctx context.Context, img image.Image) (*features.Map, error) {
	return s.opts.Extractor.Extract(ctx, img)
}

// Descriptors returns the mapped descriptor matrix.
func (s *Store) Descriptors() *similarity.Matrix { return s.matrix.m }

// Features loads and decodes the feature map of image index.
func (s *Store) Features(ctx context.Context, index int) (*features.Map, error) {
	meta, err := s.Metadata(index)
	if err != nil {
		return nil, err
	}
	data, err := s.opts.Blobs.Get(ctx, FeatureBlobName(meta.Image))
	if err != nil {
		return nil, fmt.Errorf("feature map of %s: %w", meta.Image, err)
	}
	fm, err := features.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("feature map of %s: %w", meta.Image, err)
	}
	return fm, nil
}

// Metadata returns the record of image index.
func (s *Store) Metadata(index int) (search.Metadata, error) {
	if index < 0 || index >= len(s.images) {
		return search.Metadata{}, fmt.Errorf("feature index %d out of range [0, %d)", index, len(s.images))
	}
	return s.images[index], nil
}

// Whitening returns the store's PCA, or nil.
func (s *Store) Whitening() descriptor.Whitening {
	if s.pca == nil {
		return nil
	}
	return s.pca
}

// ImagePath resolves the image of index against the image root.
func (s *Store) ImagePath(index int) (string, error) {
	meta, err := s.Metadata(index)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.opts.ImageRoot, filepath.FromSlash(meta.Image)), nil
}
