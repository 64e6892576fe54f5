// Package blobstore stores feature-map blobs.
//
// Blobs are immutable byte strings addressed by a slash-separated name.
// Local keeps them in a directory, Minio and S3 in a bucket under an
// optional key prefix, and Memory in a map for tests.
package blobstore

import (
	"context"
	"fmt"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations return an error that satisfies errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

// Store reads and writes whole blobs.
type Store interface {
	// Get returns the content of a blob.
	Get(ctx context.Context, name string) ([]byte, error)

	// Put writes a blob, replacing any previous content.
	Put(ctx context.Context, name string, data []byte) error

	// Exists reports whether a blob is present.
	Exists(ctx context.Context, name string) (bool, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
}

// Config selects and configures a backend.
type Config struct {
	// Backend is "local" (default), "minio" or "s3".
	Backend string `yaml:"backend" json:"backend"`

	// Root is the directory of the local backend.
	Root string `yaml:"root" json:"root"`

	Bucket   string `yaml:"bucket" json:"bucket"`
	Prefix   string `yaml:"prefix" json:"prefix"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Region   string `yaml:"region" json:"region"`

	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	Secure    bool   `yaml:"secure" json:"secure"`
}

// FromConfig opens the configured backend.
func FromConfig(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		if cfg.Root == "" {
			return nil, fmt.Errorf("local blob store: root is required")
		}
		return NewLocal(cfg.Root), nil
	case "minio":
		return NewMinioFromConfig(cfg)
	case "s3":
		return NewS3FromConfig(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown blob store backend %q", cfg.Backend)
}
