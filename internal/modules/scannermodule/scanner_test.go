package scannermodule

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipperhq/clipper/internal/database"
)

// seedRoot builds a small library tree:
//
//	root/
//	  direct.mp4
//	  CLIPS/a.mp4  b.jpg  notes.txt  2024/summer/c.mp4  Temp/junk.mp4  .hidden/x.mp4
//	  archive/old.mp4
func seedRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	write := func(rel string) {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(rel), 0o644))
	}
	write("direct.mp4")
	write("CLIPS/a.mp4")
	write("CLIPS/b.jpg")
	write("CLIPS/notes.txt")
	write("CLIPS/2024/summer/c.mp4")
	write("CLIPS/Temp/junk.mp4")
	write("CLIPS/.hidden/x.mp4")
	write("archive/old.mp4")
	return root
}

func byName(files []FileInfo) map[string]FileInfo {
	m := make(map[string]FileInfo, len(files))
	for _, f := range files {
		m[f.Name] = f
	}
	return m
}

func TestScanCategoryRecursive(t *testing.T) {
	root := seedRoot(t)

	files, err := NewScanner(root).ScanCategory("CLIPS")
	require.NoError(t, err)

	// Non-media, excluded, and hidden folders are all skipped.
	m := byName(files)
	require.Len(t, m, 3)

	a := m["a.mp4"]
	assert.Equal(t, database.MediaTypeVideo, a.MediaType)
	assert.Equal(t, "mp4", a.Extension)
	assert.Equal(t, "CLIPS", a.Category)
	assert.Nil(t, a.Subcategory)
	assert.Equal(t, "a.mp4", a.RelativePath)
	assert.Positive(t, a.Size)

	assert.Equal(t, database.MediaTypeImage, m["b.jpg"].MediaType)

	c := m["c.mp4"]
	require.NotNil(t, c.Subcategory)
	assert.Equal(t, "2024/summer", *c.Subcategory)
	assert.Equal(t, []string{"2024", "summer"}, c.Breadcrumbs)
	assert.Equal(t, filepath.Join("2024", "summer", "c.mp4"), c.RelativePath)
}

func TestScanCategoryMissing(t *testing.T) {
	root := t.TempDir()
	_, err := NewScanner(root).ScanCategory("NOPE")
	assert.Error(t, err)
}

func TestScanRootCategory(t *testing.T) {
	root := seedRoot(t)

	// The virtual root category lists only files directly under the root.
	files, err := NewScanner(root).ScanCategory(RootCategory)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "direct.mp4", files[0].Name)
	assert.Equal(t, RootCategory, files[0].Category)
	assert.Equal(t, "direct.mp4", files[0].RelativePath)
}

func TestScanCategoryDirect(t *testing.T) {
	root := seedRoot(t)

	files, err := NewScanner(root).ScanCategoryDirect("CLIPS")
	require.NoError(t, err)
	m := byName(files)
	assert.Len(t, m, 2)
	assert.Contains(t, m, "a.mp4")
	assert.Contains(t, m, "b.jpg")
}

func TestScanSubfolders(t *testing.T) {
	root := seedRoot(t)

	listing, err := NewScanner(root).ScanSubfolders("CLIPS", 4)
	require.NoError(t, err)
	assert.Equal(t, "CLIPS", listing.Category)
	assert.Len(t, listing.Files, 2)

	// Excluded and hidden subfolders never surface.
	require.Len(t, listing.Subfolders, 1)
	sub := listing.Subfolders[0]
	assert.Equal(t, "2024", sub.Name)
	assert.True(t, sub.HasSubdirs)
	assert.Equal(t, 0, sub.FileCount)
}

func TestScanSubfoldersPreviewLimit(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "CLIPS", "many")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{"1.mp4", "2.mp4", "3.mp4"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}

	listing, err := NewScanner(root).ScanSubfolders("CLIPS", 2)
	require.NoError(t, err)
	require.Len(t, listing.Subfolders, 1)
	assert.Equal(t, 3, listing.Subfolders[0].FileCount)
	assert.Len(t, listing.Subfolders[0].Preview, 2)
}

func TestScanStructure(t *testing.T) {
	root := seedRoot(t)

	categories, err := NewScanner(root).ScanStructure()
	require.NoError(t, err)
	require.Len(t, categories, 2)

	// Case-insensitive name order.
	assert.Equal(t, "archive", categories[0].Name)
	assert.Equal(t, "CLIPS", categories[1].Name)

	clips := categories[1]
	assert.Equal(t, 2, clips.FileCount)
	assert.True(t, clips.HasSubdirs)
	assert.False(t, categories[0].HasSubdirs)
}

func TestCategoryForPath(t *testing.T) {
	root := t.TempDir()

	cat, err := categoryForPath(root, filepath.Join(root, "clip.mp4"))
	require.NoError(t, err)
	assert.Equal(t, RootCategory, cat)

	cat, err = categoryForPath(root, filepath.Join(root, "CLIPS", "deep", "clip.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "CLIPS", cat)

	_, err = categoryForPath(root, "/somewhere/else/clip.mp4")
	assert.Error(t, err)
}
