package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestAddGet(t *testing.T) {
	c := openTemp(t)

	require.NoError(t, c.Add(
		Image{Path: "a/1.jpg", URL: "https://example.org/1", Date: "1271"},
		Image{Path: "a/2.jpg"},
	))

	img, err := c.Get("a/1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/1", img.URL)
	assert.Equal(t, "1271", img.Date)
	assert.False(t, img.CreatedAt.IsZero())

	_, err = c.Get("a/3.jpg")
	assert.ErrorIs(t, err, ErrNotFound)

	// Re-adding updates the source fields.
	require.NoError(t, c.Add(Image{Path: "a/2.jpg", URL: "https://example.org/2"}))
	img, err = c.Get("a/2.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/2", img.URL)

	n, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestAddFolder(t *testing.T) {
	c := openTemp(t)
	root := t.TempDir()
	dir := filepath.Join(root, "charters")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "x"), 0o755))
	for _, name := range []string{"b.png", "a.JPG", "x/c.jpeg", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte{0}, 0o644))
	}

	require.NoError(t, c.Add(Image{Path: "charters/b.png", URL: "https://example.org/b"}))

	n, err := c.AddFolder(root, dir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	images, err := c.List()
	require.NoError(t, err)
	require.Len(t, images, 3)
	assert.Equal(t, "charters/a.JPG", images[0].Path)
	assert.Equal(t, "charters/b.png", images[1].Path)
	assert.Equal(t, "charters/x/c.jpeg", images[2].Path)

	// Existing entries keep their URL.
	assert.Equal(t, "https://example.org/b", images[1].URL)

	_, err = c.AddFolder(filepath.Join(root, "other"), dir)
	assert.Error(t, err)
}
