// Package fingerprintmodule computes perceptual fingerprints over video
// and image frames and finds duplicates by Hamming distance, with
// transitive grouping via union-find.
package fingerprintmodule

import (
	"fmt"
	"image"
	"math"
	"math/bits"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

const hashSize = 8

// ComputePHash produces the 64-bit DCT perceptual hash of an image:
// grayscale 32x32, 2D DCT-II, top-left 8x8 block thresholded against the
// median of its AC coefficients.
func ComputePHash(img image.Image) uint64 {
	gray := imaging.Grayscale(imaging.Resize(img, 32, 32, imaging.Lanczos))

	pixels := make([][]float64, 32)
	for y := 0; y < 32; y++ {
		pixels[y] = make([]float64, 32)
		for x := 0; x < 32; x++ {
			r, _, _, _ := gray.At(x, y).RGBA()
			pixels[y][x] = float64(r >> 8)
		}
	}

	dct := dct2d(pixels)

	// Collect the low-frequency block, skipping the DC term.
	coeffs := make([]float64, 0, hashSize*hashSize-1)
	for y := 0; y < hashSize; y++ {
		for x := 0; x < hashSize; x++ {
			if x == 0 && y == 0 {
				continue
			}
			coeffs = append(coeffs, dct[y][x])
		}
	}

	sorted := append([]float64(nil), coeffs...)
	sort.Float64s(sorted)
	median := sorted[len(sorted)/2]

	var hash uint64
	bit := 0
	for y := 0; y < hashSize; y++ {
		for x := 0; x < hashSize; x++ {
			if x == 0 && y == 0 {
				continue
			}
			if dct[y][x] > median {
				hash |= 1 << uint(bit)
			}
			bit++
		}
	}
	return hash
}

// dct2d applies a 2D DCT-II over a square matrix.
func dct2d(input [][]float64) [][]float64 {
	n := len(input)
	out := make([][]float64, n)
	for u := 0; u < n; u++ {
		out[u] = make([]float64, n)
		for v := 0; v < n; v++ {
			var sum float64
			for y := 0; y < n; y++ {
				for x := 0; x < n; x++ {
					sum += input[y][x] *
						math.Cos(float64(2*y+1)*float64(u)*math.Pi/float64(2*n)) *
						math.Cos(float64(2*x+1)*float64(v)*math.Pi/float64(2*n))
				}
			}
			cu, cv := 1.0, 1.0
			if u == 0 {
				cu = 1 / math.Sqrt2
			}
			if v == 0 {
				cv = 1 / math.Sqrt2
			}
			out[u][v] = sum * cu * cv * 2 / float64(n)
		}
	}
	return out
}

// ComputePHashFile decodes an image file (first frame for animated
// formats) and hashes it.
func ComputePHashFile(path string) (uint64, error) {
	var img image.Image
	var err error
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		f, openErr := os.Open(path)
		if openErr != nil {
			return 0, openErr
		}
		defer f.Close()
		img, err = webp.Decode(f)
	} else {
		img, err = imaging.Open(path)
	}
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}
	return ComputePHash(img), nil
}

// HammingDistance counts differing bits between two hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similarity converts a Hamming distance to a percentage.
func Similarity(distance int) float64 {
	s := 100 - float64(distance)*1.5625
	if s < 0 {
		return 0
	}
	return s
}

// FormatHash renders a hash as 16 hex characters.
func FormatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

// ParseHash parses a 16-hex-character hash.
func ParseHash(s string) (uint64, error) {
	h, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid phash %q: %w", s, err)
	}
	return h, nil
}
