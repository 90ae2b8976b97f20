package fingerprintmodule

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradientImage produces a deterministic image with enough structure for a
// stable hash; phase shifts the pattern to produce different images.
func gradientImage(w, h, phase int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x*3 + y*7 + phase) % 256)
			img.Set(x, y, color.RGBA{R: v, G: v / 2, B: 255 - v, A: 255})
		}
	}
	return img
}

func TestComputePHashDeterministic(t *testing.T) {
	img := gradientImage(200, 150, 0)
	assert.Equal(t, ComputePHash(img), ComputePHash(img))
}

func TestComputePHashSurvivesResize(t *testing.T) {
	// The same scene at two resolutions should hash near-identically.
	big := gradientImage(320, 240, 0)
	small := imaging.Resize(big, 160, 120, imaging.Lanczos)

	d := HammingDistance(ComputePHash(big), ComputePHash(small))
	assert.LessOrEqual(t, d, DefaultThreshold)
}

func TestComputePHashDistinguishesContent(t *testing.T) {
	a := ComputePHash(gradientImage(200, 150, 0))
	b := ComputePHash(gradientImage(200, 150, 97))
	assert.NotEqual(t, a, b)
}

func TestComputePHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.png")

	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, gradientImage(120, 90, 0)))
	require.NoError(t, f.Close())

	fromFile, err := ComputePHashFile(path)
	require.NoError(t, err)
	assert.Equal(t, ComputePHash(gradientImage(120, 90, 0)), fromFile)

	_, err = ComputePHashFile(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestHammingDistance(t *testing.T) {
	assert.Equal(t, 0, HammingDistance(0xdeadbeef, 0xdeadbeef))
	assert.Equal(t, 64, HammingDistance(0, ^uint64(0)))
	assert.Equal(t, 1, HammingDistance(0b1000, 0b0000))
	// Symmetric.
	assert.Equal(t, HammingDistance(12345, 67890), HammingDistance(67890, 12345))
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 100.0, Similarity(0), 1e-9)
	assert.InDelta(t, 84.375, Similarity(10), 1e-9)
	assert.InDelta(t, 0.0, Similarity(64), 1e-9)
	// Clamped at zero past the scale.
	assert.Equal(t, 0.0, Similarity(100))
}

func TestFormatParseHash(t *testing.T) {
	for _, h := range []uint64{0, 1, 0xdeadbeefcafe1234, ^uint64(0)} {
		s := FormatHash(h)
		assert.Len(t, s, 16)
		back, err := ParseHash(s)
		require.NoError(t, err)
		assert.Equal(t, h, back)
	}

	_, err := ParseHash("not-hex")
	assert.Error(t, err)
	_, err = ParseHash("")
	assert.Error(t, err)
}

func TestUnionFindGroupsTransitively(t *testing.T) {
	uf := newUnionFind(6)
	uf.union(0, 1)
	uf.union(1, 2)
	uf.union(4, 5)

	assert.Equal(t, uf.find(0), uf.find(2))
	assert.Equal(t, uf.find(4), uf.find(5))
	assert.NotEqual(t, uf.find(0), uf.find(3))
	assert.NotEqual(t, uf.find(2), uf.find(4))

	// Merging two groups unifies all members.
	uf.union(2, 4)
	assert.Equal(t, uf.find(0), uf.find(5))
}
