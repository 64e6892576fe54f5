package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
)

// ImageCache provides thread-safe caching of decoded query and corpus images.
//
// Images are keyed by a string: the file path for images read from disk, or
// the source URL for downloaded query images. Once an image is cached,
// subsequent lookups return the same image.Image without decoding again.
//
// ImageCache is safe for concurrent use by multiple goroutines.
//
// # Memory Management
//
// The cache holds at most MaxEntries images. When it is full, adding a new
// image evicts an arbitrary entry. A MaxEntries of zero disables the limit.
//
// # Example Usage
//
//	cache := imaging.NewImageCache()
//	img, err := cache.Load("/data/charters/0001.jpg")
//	if err != nil {
//	    return err
//	}
//	res, err := search.Search(ctx, gw, img, opts)
type ImageCache struct {
	// MaxEntries bounds the number of cached images.
	MaxEntries int

	mu     sync.RWMutex
	images map[string]image.Image
}

// DefaultMaxEntries is the capacity of caches created by NewImageCache.
const DefaultMaxEntries = 64

// NewImageCache creates an empty cache holding up to DefaultMaxEntries
// images.
func NewImageCache() *ImageCache {
	return &ImageCache{
		MaxEntries: DefaultMaxEntries,
		images:     make(map[string]image.Image),
	}
}

// Load retrieves an image from the cache or reads it from disk.
//
// Parameters:
//   - path: File path of a PNG, JPEG or GIF image.
//
// EXIF orientation of JPEG files is applied, so the returned image is in the
// orientation a viewer would show. Pixel coordinates of search results refer
// to this orientation.
//
// # Errors
//
//   - Returns error if the file does not exist or cannot be read
//   - Returns error if the file is not a valid PNG, JPEG, or GIF image
func (c *ImageCache) Load(path string) (image.Image, error) {
	if img, ok := c.get(path); ok {
		return img, nil
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	c.put(path, img)
	return img, nil
}

// LoadBytes decodes an in-memory image and caches it under key.
//
// It is used for query images downloaded from a URL; key is the URL.
func (c *ImageCache) LoadBytes(key string, data []byte) (image.Image, error) {
	if img, ok := c.get(key); ok {
		return img, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	c.put(key, img)
	return img, nil
}

func (c *ImageCache) get(key string) (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	img, ok := c.images[key]
	return img, ok
}

func (c *ImageCache) put(key string, img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.MaxEntries > 0 && len(c.images) >= c.MaxEntries {
		for k := range c.images {
			delete(c.images, k)
			break
		}
	}
	c.images[key] = img
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// ImageInfo describes a query image.
type ImageInfo struct {
	// Width and Height are in pixels after orientation correction.
	Width  int `json:"width"`
	Height int `json:"height"`

	// Format is "png", "jpeg", "gif" or "unknown", taken from the file
	// extension.
	Format string `json:"format"`

	// FileSizeBytes is the size of the image file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`

	// Searchable reports whether the image has a format the corpus
	// builder accepts (PNG or JPEG).
	Searchable bool `json:"searchable"`
}

// LoadImageInfo loads an image into the cache and describes it.
//
// Parameters:
//   - cache: The image cache to use for loading. Must not be nil.
//   - path: Path to the image file.
func LoadImageInfo(cache *ImageCache, path string) (*ImageInfo, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	format := "unknown"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		format = "png"
	case ".jpg", ".jpeg":
		format = "jpeg"
	case ".gif":
		format = "gif"
	}

	bounds := img.Bounds()
	return &ImageInfo{
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		Format:        format,
		FileSizeBytes: stat.Size(),
		Searchable:    format == "png" || format == "jpeg",
	}, nil
}

// DimensionsResult contains the width and height of an image.
type DimensionsResult struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// GetDimensions returns the size of an image, loading it into the cache.
func GetDimensions(cache *ImageCache, path string) (*DimensionsResult, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	return &DimensionsResult{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}
