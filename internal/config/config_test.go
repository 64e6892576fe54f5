package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mseitzer/pattern-spotting/internal/features"
	"github.com/mseitzer/pattern-spotting/internal/localization"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ".", cfg.Blobs.Root)

	opts := cfg.SearchOptions()
	assert.True(t, opts.Localize)
	assert.True(t, opts.Rerank)
	assert.True(t, opts.AvgQE)
	assert.Equal(t, 50, opts.LocalizeN)
	assert.Equal(t, localization.DefaultOptions(), opts.Localization)
	assert.Equal(t, features.CompressionZSTD, cfg.CompressionMode())
}

func TestLoadYAML(t *testing.T) {
	p := writeConfig(t, `
model: grid
features: store
name: charters
database: catalog.db
image_root: /data/images
search:
  top_n: 20
  rerank: false
  localize_n: 100
  refine: true
ocr:
  enabled: true
  languages: [lat, deu]
  tessdata: tessdata
map_n: 5
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	dir := filepath.Dir(p)
	assert.Equal(t, filepath.Join(dir, "store"), cfg.Features)
	assert.Equal(t, filepath.Join(dir, "catalog.db"), cfg.Database)
	assert.Equal(t, "/data/images", cfg.ImageRoot)
	assert.Equal(t, cfg.Features, cfg.Blobs.Root)
	assert.Equal(t, "charters", cfg.Name)
	assert.Equal(t, 5, cfg.MapN)
	assert.Equal(t, 50, cfg.RerankN)
	assert.True(t, cfg.OCR.Enabled)
	assert.Equal(t, []string{"lat", "deu"}, cfg.OCR.Languages)
	assert.Equal(t, filepath.Join(dir, "tessdata"), cfg.OCR.Tessdata)

	opts := cfg.SearchOptions()
	assert.Equal(t, 20, opts.TopN)
	assert.False(t, opts.Rerank)
	assert.True(t, opts.Localize)
	assert.Equal(t, 100, opts.LocalizeN)
	assert.True(t, opts.Localization.Refine)
	assert.Equal(t, 3, opts.Localization.StepSize)
}

func TestLoadJSON(t *testing.T) {
	p := writeConfig(t, `{"name": "charters", "features": "/srv/store", "rerank_n": 200, "map_n": 50,
		"blobs": {"backend": "minio", "bucket": "fmaps", "endpoint": "localhost:9000"}}`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "/srv/store", cfg.Features)
	assert.Equal(t, 200, cfg.RerankN)
	assert.Equal(t, "minio", cfg.Blobs.Backend)
	assert.Equal(t, "fmaps", cfg.Blobs.Bucket)
	assert.Empty(t, cfg.Blobs.Root)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "nmae: x\n"},
		{"empty name", "name: \"\"\n"},
		{"unknown model", "model: vgg16\n"},
		{"bad compression", "compression: gzip\n"},
		{"zero map_n", "map_n: 0\n"},
		{"rerank without localize", "search:\n  localize: false\n"},
		{"bad step", "search:\n  step_size: 0\n"},
		{"malformed", "name: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "corpus", cfg.Name)
}
