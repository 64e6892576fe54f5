package descriptor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCATransform(t *testing.T) {
	p := &PCA{
		Mean:       []float32{1, 1},
		Components: [][]float32{{1, 0}, {0.6, 0.8}},
	}
	assert.Equal(t, 2, p.InputDim())
	assert.Equal(t, 2, p.OutputDim())

	got := p.Transform([]float32{3, 2})
	assert.InDelta(t, 2.0, got[0], 1e-6)
	assert.InDelta(t, 2.0, got[1], 1e-6)

	p.Whiten = true
	p.ExplainedVariance = []float32{4, 16}
	got = p.Transform([]float32{3, 2})
	assert.InDelta(t, 1.0, got[0], 1e-6)
	assert.InDelta(t, 0.5, got[1], 1e-6)
}

func TestPCAValidate(t *testing.T) {
	tests := []struct {
		name string
		pca  PCA
		ok   bool
	}{
		{"valid", PCA{Mean: []float32{0, 0}, Components: [][]float32{{1, 0}}}, true},
		{"no mean", PCA{Components: [][]float32{{1}}}, false},
		{"no components", PCA{Mean: []float32{0}}, false},
		{"ragged", PCA{Mean: []float32{0, 0}, Components: [][]float32{{1, 0}, {1}}}, false},
		{"missing variance", PCA{Mean: []float32{0}, Components: [][]float32{{1}}, Whiten: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pca.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoadPCA(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.pca")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"mean": [0.5, 0.5, 0.5],
		"components": [[1, 0, 0], [0, 1, 0]],
		"explained_variance": [2, 1],
		"whiten": true
	}`), 0o644))

	p, err := LoadPCA(path)
	require.NoError(t, err)
	assert.Equal(t, 3, p.InputDim())
	assert.Equal(t, 2, p.OutputDim())
	assert.True(t, p.Whiten)

	bad := filepath.Join(dir, "bad.pca")
	require.NoError(t, os.WriteFile(bad, []byte(`{"mean": [1], "components": [[1, 2]]}`), 0o644))
	_, err = LoadPCA(bad)
	assert.Error(t, err)

	_, err = LoadPCA(filepath.Join(dir, "missing.pca"))
	assert.Error(t, err)
}
