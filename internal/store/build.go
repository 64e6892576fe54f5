package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/mseitzer/pattern-spotting/internal/blobstore"
	"github.com/mseitzer/pattern-spotting/internal/descriptor"
	"github.com/mseitzer/pattern-spotting/internal/features"
	"github.com/mseitzer/pattern-spotting/internal/search"
	"github.com/mseitzer/pattern-spotting/internal/similarity"
)

// ExtractOptions configures Extract.
type ExtractOptions struct {
	// ImageDir is walked recursively for .png, .jpg and .jpeg files.
	ImageDir    string
	Blobs       blobstore.Store
	Extractor   features.Extractor
	Dir         string
	Name        string
	Compression features.Compression
}

// ListImages returns the images below dir as sorted slash-separated
// relative paths.
func ListImages(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsImage(p) {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// IsImage reports whether p has a supported image extension.
func IsImage(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// Extract computes the feature map of every image in opts.ImageDir, stores
// it as a blob and writes the store's metadata. The descriptor matrix is
// not touched; run Build afterwards.
func Extract(ctx context.Context, opts ExtractOptions) (*Meta, error) {
	if opts.Blobs == nil || opts.Extractor == nil {
		return nil, fmt.Errorf("extract: blob store and extractor are required")
	}
	images, err := ListImages(opts.ImageDir)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	log := logrus.WithFields(logrus.Fields{
		"store":     opts.Name,
		"extractor": opts.Extractor.Name(),
		"images":    len(images),
	})
	log.Info("extracting features")

	meta := &Meta{Name: opts.Name, Extractor: opts.Extractor.Name(), Dim: opts.Extractor.Channels()}
	start := time.Now()
	for i, rel := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := imaging.Open(filepath.Join(opts.ImageDir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", rel, err)
		}
		fm, err := opts.Extractor.Extract(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", rel, err)
		}
		blob, err := features.Encode(fm, opts.Compression)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", rel, err)
		}
		if err := opts.Blobs.Put(ctx, FeatureBlobName(rel), blob); err != nil {
			return nil, fmt.Errorf("store %s: %w", rel, err)
		}

		b := img.Bounds()
		meta.Images = append(meta.Images, search.Metadata{
			Image:         rel,
			Width:         b.Dx(),
			Height:        b.Dy(),
			FeatureWidth:  fm.Width,
			FeatureHeight: fm.Height,
		})
		if (i+1)%100 == 0 {
			log.WithField("done", i+1).Info("extraction progress")
		}
	}

	if err := pruneBlobs(ctx, opts, images); err != nil {
		return nil, err
	}
	if err := WriteMeta(opts.Dir, meta); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}
	log.WithField("elapsed", time.Since(start)).Info("extraction finished")
	return meta, nil
}

// pruneBlobs deletes the feature blobs of images that a previous extraction
// recorded but that are no longer in the image directory.
func pruneBlobs(ctx context.Context, opts ExtractOptions, images []string) error {
	prev, err := ReadMeta(opts.Dir, opts.Name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}
	current := make(map[string]bool, len(images))
	for _, rel := range images {
		current[rel] = true
	}
	for _, rec := range prev.Images {
		if current[rec.Image] {
			continue
		}
		if err := opts.Blobs.Delete(ctx, FeatureBlobName(rec.Image)); err != nil {
			return fmt.Errorf("delete stale feature map of %s: %w", rec.Image, err)
		}
		logrus.WithFields(logrus.Fields{"store": opts.Name, "image": rec.Image}).Info("removed stale feature map")
	}
	return nil
}

// BuildOptions configures Build.
type BuildOptions struct {
	Dir       string
	Name      string
	Blobs     blobstore.Store
	Whitening descriptor.Whitening
}

// BuildResult summarizes a build.
type BuildResult struct {
	Rows    int
	Dim     int
	Dropped []string
}

// Build computes the global descriptor of every extracted image and writes
// the descriptor matrix. Images whose feature blob is missing are dropped
// with a warning. The extracted image list is left untouched and the rows
// are recorded in the metadata's Index, so a store can be rebuilt with or
// without whitening and picks up blobs restored since the last build.
func Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	if opts.Blobs == nil {
		return nil, fmt.Errorf("build: blob store is required")
	}
	meta, err := ReadMeta(opts.Dir, opts.Name)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	log := logrus.WithFields(logrus.Fields{
		"store":  opts.Name,
		"images": len(meta.Images),
	})
	log.Info("building descriptor store")

	dim := meta.Dim
	if opts.Whitening != nil {
		if opts.Whitening.InputDim() != dim {
			return nil, &search.DimensionMismatchError{Query: dim, Store: opts.Whitening.InputDim()}
		}
		dim = opts.Whitening.OutputDim()
	}

	kept := roaring.New()
	res := &BuildResult{Dim: dim}
	rows := make([][]float32, 0, len(meta.Images))
	for i, rec := range meta.Images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := opts.Blobs.Get(ctx, FeatureBlobName(rec.Image))
		if errors.Is(err, blobstore.ErrNotFound) {
			log.WithField("image", rec.Image).Warn("feature map missing, dropping image")
			res.Dropped = append(res.Dropped, rec.Image)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("feature map of %s: %w", rec.Image, err)
		}
		fm, err := features.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("feature map of %s: %w", rec.Image, err)
		}
		d, err := descriptor.Global(fm, opts.Whitening)
		if err != nil {
			return nil, fmt.Errorf("descriptor of %s: %w", rec.Image, err)
		}
		if len(d) != dim {
			return nil, &search.DimensionMismatchError{Query: len(d), Store: dim}
		}
		rows = append(rows, d)
		kept.Add(uint32(i))
	}

	matrix, err := similarity.NewMatrix(rows)
	if err != nil {
		return nil, err
	}
	matrix.Dim = dim

	compacted := make([]search.Metadata, 0, kept.GetCardinality())
	it := kept.Iterator()
	for it.HasNext() {
		compacted = append(compacted, meta.Images[it.Next()])
	}
	meta.Index = &Index{Dim: dim, Whitened: opts.Whitening != nil, Images: compacted}

	if err := WriteMatrix(ReprPath(opts.Dir, opts.Name), matrix); err != nil {
		return nil, fmt.Errorf("write descriptors: %w", err)
	}
	if err := WriteMeta(opts.Dir, meta); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}

	res.Rows = matrix.Rows
	log.WithFields(logrus.Fields{
		"rows":    res.Rows,
		"dim":     dim,
		"dropped": len(res.Dropped),
	}).Info("descriptor store built")
	return res, nil
}
