package utils

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// HTTPRange represents a single byte range from a Range request header.
type HTTPRange struct {
	Start  int64
	End    int64
	Length int64
}

// ParseRangeHeader parses an HTTP Range header against a known file size.
// Only single ranges are supported, which is the common case for media
// streaming. A nil range with nil error means the header was empty.
func ParseRangeHeader(rangeHeader string, fileSize int64) (*HTTPRange, error) {
	if rangeHeader == "" {
		return nil, nil
	}

	const prefix = "bytes="
	if !strings.HasPrefix(rangeHeader, prefix) {
		return nil, fmt.Errorf("invalid range header: %s", rangeHeader)
	}
	spec := rangeHeader[len(prefix):]

	if strings.Contains(spec, ",") {
		return nil, fmt.Errorf("multiple ranges not supported")
	}

	parts := strings.Split(spec, "-")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid range format: %s", spec)
	}

	var start, end int64
	var err error

	if parts[0] != "" {
		start, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid range start: %s", parts[0])
		}
	}

	if parts[1] != "" {
		end, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid range end: %s", parts[1])
		}
	} else {
		end = fileSize - 1
	}

	// Suffix form "-N" means the last N bytes.
	if parts[0] == "" && parts[1] != "" {
		start = fileSize - end
		if start < 0 {
			start = 0
		}
		end = fileSize - 1
	}

	if start < 0 || end >= fileSize || start > end {
		return nil, fmt.Errorf("range out of bounds: %d-%d (file size: %d)", start, end, fileSize)
	}

	return &HTTPRange{Start: start, End: end, Length: end - start + 1}, nil
}

// FormatContentRange builds a Content-Range header value.
func FormatContentRange(start, end, total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", start, end, total)
}

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// GetContentType maps a file extension to its media content type.
func GetContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
