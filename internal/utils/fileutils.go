package utils

import (
	"os"
	"path/filepath"
	"strings"
)

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true,
	".wmv": true, ".flv": true, ".webm": true,
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// MediaTypeForPath classifies a file as "video" or "image" by extension.
// The second return is false for unrecognized files.
func MediaTypeForPath(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case videoExtensions[ext]:
		return "video", true
	case imageExtensions[ext]:
		return "image", true
	}
	return "", false
}

// IsVideoPath reports whether the path has a recognized video extension.
func IsVideoPath(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsImagePath reports whether the path has a recognized image extension.
func IsImagePath(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// EnsureDir creates a directory (and parents) if it does not exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// IsPathInside reports whether target resolves to a location inside base.
// Used as the traversal guard for streaming and local-mode serving.
func IsPathInside(base, target string) bool {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return false
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..")
}

// StemName strips the extension from a file name.
func StemName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
