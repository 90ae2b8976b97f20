// Package utils provides shared helpers used across clipper's modules:
// path hashing, content hashing, HTTP range parsing, media type
// classification and a bounded worker pool.
package utils

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// PathKey returns the MD5 hex digest of an absolute path. The thumbnail
// store is keyed by this value, so a rename only needs a key update.
func PathKey(path string) string {
	sum := md5.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}

// HashFileSHA1 computes the SHA-1 digest of a file's contents, streamed
// in chunks so large media files never load fully into memory.
func HashFileSHA1(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// mixedIndexOrder is the fixed nibble permutation used to derive a short
// file identifier from a content hash: the first two hex quads, then the
// {2,4,6,10} positions forward and reversed.
var mixedIndexOrder = []int{
	0, 1, 2, 3,
	4, 5, 6, 7,
	2, 4, 6, 10,
	10, 6, 4, 2,
}

// MixedIndexID derives the 16-character rename identifier from a hex
// content hash. The input must be at least 11 hex characters.
func MixedIndexID(hexHash string) (string, error) {
	if len(hexHash) < 11 {
		return "", fmt.Errorf("hash too short for mixed-index id: %q", hexHash)
	}
	id := make([]byte, 0, len(mixedIndexOrder))
	for _, pos := range mixedIndexOrder {
		id = append(id, hexHash[pos])
	}
	return string(id), nil
}
