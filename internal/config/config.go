// Package config loads the YAML configuration shared by all commands.
//
// JSON is a subset of YAML, so JSON configuration files load unchanged.
// Keys missing from a file keep their Default value.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mseitzer/pattern-spotting/internal/blobstore"
	"github.com/mseitzer/pattern-spotting/internal/features"
	"github.com/mseitzer/pattern-spotting/internal/localization"
	"github.com/mseitzer/pattern-spotting/internal/search"
)

// Config describes a search model and how to run it.
type Config struct {
	// Model names the feature extractor.
	Model string `yaml:"model"`

	// Features is the directory holding the store files.
	Features string `yaml:"features"`

	// Name is the store name.
	Name string `yaml:"name"`

	// Compression is used for feature blobs written by extract.
	Compression string `yaml:"compression"`

	// Database is the catalog path. Empty disables the catalog.
	Database string `yaml:"database"`

	// ImageRoot is the directory corpus image paths are relative to.
	ImageRoot string `yaml:"image_root"`

	Blobs  blobstore.Config `yaml:"blobs"`
	Search Search           `yaml:"search"`
	OCR    OCR              `yaml:"ocr"`

	RerankN int `yaml:"rerank_n"`
	MapN    int `yaml:"map_n"`

	LogLevel string `yaml:"log_level"`
}

// Search holds the pipeline settings.
type Search struct {
	TopN        int  `yaml:"top_n"`
	Localize    bool `yaml:"localize"`
	LocalizeN   int  `yaml:"localize_n"`
	Rerank      bool `yaml:"rerank"`
	AvgQE       bool `yaml:"avg_qe"`
	QENeighbors int  `yaml:"qe_neighbors"`
	Workers     int  `yaml:"workers"`

	StepSize          int     `yaml:"step_size"`
	AspectRatioFactor float64 `yaml:"aspect_ratio_factor"`
	Refine            bool    `yaml:"refine"`
}

// OCR configures Tesseract for the server's motif_ocr_region tool.
type OCR struct {
	Enabled   bool     `yaml:"enabled"`
	Languages []string `yaml:"languages"`
	Tessdata  string   `yaml:"tessdata"`
	MinSide   int      `yaml:"min_side"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	so := search.DefaultOptions()
	return &Config{
		Model:       features.GridExtractorName,
		Features:    ".",
		Name:        "corpus",
		Compression: "zstd",
		Search: Search{
			TopN:              so.TopN,
			Localize:          so.Localize,
			LocalizeN:         so.LocalizeN,
			Rerank:            so.Rerank,
			AvgQE:             so.AvgQE,
			QENeighbors:       so.QENeighbors,
			Workers:           so.Workers,
			StepSize:          so.Localization.StepSize,
			AspectRatioFactor: so.Localization.AspectRatioFactor,
			Refine:            so.Localization.Refine,
		},
		RerankN:  50,
		MapN:     10,
		LogLevel: "info",
	}
}

// Load reads a configuration file over the defaults. Relative paths in the
// file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.resolve(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a configuration over the defaults without validating it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolve(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Features = abs(c.Features)
	c.Database = abs(c.Database)
	c.ImageRoot = abs(c.ImageRoot)
	c.OCR.Tessdata = abs(c.OCR.Tessdata)
	if c.Blobs.Backend == "" || c.Blobs.Backend == "local" {
		c.Blobs.Root = abs(c.Blobs.Root)
	}
}

// Validate checks value ranges and fills derived defaults.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	if _, err := features.NewExtractor(c.Model); err != nil {
		return err
	}
	if _, err := features.ParseCompression(c.Compression); err != nil {
		return err
	}
	if c.RerankN <= 0 {
		return fmt.Errorf("rerank_n must be positive, got %d", c.RerankN)
	}
	if c.MapN <= 0 {
		return fmt.Errorf("map_n must be positive, got %d", c.MapN)
	}
	if (c.Blobs.Backend == "" || c.Blobs.Backend == "local") && c.Blobs.Root == "" {
		c.Blobs.Root = c.Features
	}
	return c.SearchOptions().Validate()
}

// SearchOptions converts the search section to pipeline options.
func (c *Config) SearchOptions() search.Options {
	s := c.Search
	return search.Options{
		TopN:        s.TopN,
		Localize:    s.Localize,
		LocalizeN:   s.LocalizeN,
		Rerank:      s.Rerank,
		AvgQE:       s.AvgQE,
		QENeighbors: s.QENeighbors,
		Workers:     s.Workers,
		Localization: localization.Options{
			StepSize:          s.StepSize,
			AspectRatioFactor: s.AspectRatioFactor,
			Exponent:          localization.AMLExp,
			Refine:            s.Refine,
		},
	}
}

// CompressionMode returns the parsed blob compression.
func (c *Config) CompressionMode() features.Compression {
	comp, _ := features.ParseCompression(c.Compression)
	return comp
}
