package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRangeHeader(t *testing.T) {
	const size = int64(1000)

	tests := []struct {
		name   string
		header string
		want   *HTTPRange
		ok     bool
	}{
		{"empty header", "", nil, true},
		{"full range", "bytes=0-999", &HTTPRange{Start: 0, End: 999, Length: 1000}, true},
		{"middle range", "bytes=100-199", &HTTPRange{Start: 100, End: 199, Length: 100}, true},
		{"open ended", "bytes=500-", &HTTPRange{Start: 500, End: 999, Length: 500}, true},
		{"suffix last 200", "bytes=-200", &HTTPRange{Start: 800, End: 999, Length: 200}, true},
		{"suffix larger than file", "bytes=-5000", &HTTPRange{Start: 0, End: 999, Length: 1000}, true},
		{"single byte", "bytes=0-0", &HTTPRange{Start: 0, End: 0, Length: 1}, true},
		{"missing prefix", "0-999", nil, false},
		{"multiple ranges", "bytes=0-1,5-9", nil, false},
		{"garbage start", "bytes=abc-10", nil, false},
		{"garbage end", "bytes=0-xyz", nil, false},
		{"start past end", "bytes=500-100", nil, false},
		{"end past file", "bytes=0-1000", nil, false},
		{"start past file", "bytes=1000-", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRangeHeader(tt.header, size)
			if !tt.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatContentRange(t *testing.T) {
	assert.Equal(t, "bytes 0-499/1000", FormatContentRange(0, 499, 1000))
	assert.Equal(t, "bytes 900-999/1000", FormatContentRange(900, 999, 1000))
}

func TestGetContentType(t *testing.T) {
	assert.Equal(t, "video/mp4", GetContentType("/library/clip.mp4"))
	assert.Equal(t, "video/mp4", GetContentType("/library/CLIP.MP4"))
	assert.Equal(t, "video/x-matroska", GetContentType("show.mkv"))
	assert.Equal(t, "image/jpeg", GetContentType("frame.jpeg"))
	assert.Equal(t, "image/webp", GetContentType("thumb.webp"))
	assert.Equal(t, "application/octet-stream", GetContentType("notes.txt"))
	assert.Equal(t, "application/octet-stream", GetContentType("noext"))
}
