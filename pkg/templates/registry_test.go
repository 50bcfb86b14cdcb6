package templates

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadManifestAndResolve(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "ok.png"), color.RGBA{R: 255, A: 255})

	writeManifest(t, dir, "buttons.yaml", `
templates:
  - name: ok-button
    path: ok.png
    tolerance: 92
`)

	r := NewRegistry(dir)
	require.NoError(t, r.LoadManifest(filepath.Join(dir, "buttons.yaml")))

	tpl, err := r.Resolve("ok-button")
	require.NoError(t, err)
	assert.Equal(t, "ok-button", tpl.Name)
	require.NotNil(t, tpl.Img)
	assert.Equal(t, 4, tpl.Img.Bounds().Dx())

	def, ok := r.Definition("ok-button")
	require.True(t, ok)
	assert.Equal(t, 92.0, def.Tolerance)
}

func TestResolvePathDirectly(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "probe.png"), color.RGBA{G: 255, A: 255})

	r := NewRegistry(dir)
	tpl, err := r.Resolve("probe.png")
	require.NoError(t, err)
	assert.Equal(t, "probe.png", tpl.Name)
	require.NotNil(t, tpl.Img)
}

func TestResolveUnknownName(t *testing.T) {
	r := NewRegistry(t.TempDir())
	_, err := r.Resolve("missing")
	require.Error(t, err)
}

func TestManifestRejectsMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "bad.yaml", "templates:\n  - path: x.png\n")

	r := NewRegistry(dir)
	require.Error(t, r.LoadManifest(path))
}

func TestCacheHitsOnRepeatedResolve(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), color.RGBA{B: 255, A: 255})

	r := NewRegistry(dir)
	_, err := r.Resolve("a.png")
	require.NoError(t, err)
	_, err = r.Resolve("a.png")
	require.NoError(t, err)

	stats := r.CacheStats()
	assert.Equal(t, int64(1), stats.Loads)
	assert.Equal(t, int64(1), stats.Hits)

	r.Unload()
	_, err = r.Resolve("a.png")
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.CacheStats().Loads)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "one.png"), color.RGBA{A: 255})
	writePNG(t, filepath.Join(dir, "two.png"), color.RGBA{A: 255})
	writeManifest(t, dir, "a.yaml", "templates:\n  - name: one\n    path: one.png\n")
	writeManifest(t, dir, "b.yml", "templates:\n  - name: two\n    path: two.png\n    preload: true\n")
	writeManifest(t, dir, "notes.txt", "ignored")

	r := NewRegistry(dir)
	require.NoError(t, r.LoadDirectory(dir))
	assert.True(t, r.Has("one"))
	assert.True(t, r.Has("two"))
	assert.Len(t, r.List(), 2)

	require.NoError(t, r.Preload())
	assert.Equal(t, int64(1), r.CacheStats().Loads)
}
