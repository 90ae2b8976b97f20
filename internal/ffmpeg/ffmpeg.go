// Package ffmpeg wraps the external ffmpeg and ffprobe binaries behind the
// invocation contract the rest of clipper relies on: frame extraction for
// thumbnails and fingerprints, metadata probing, and cut/crop encodes.
// The binaries themselves are external dependencies; every call carries a
// timeout and failures surface the tail of stderr.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

// Overridable in tests.
var execCommand = exec.CommandContext

const (
	probeTimeout   = 10 * time.Second
	extractTimeout = 15 * time.Second

	// stderrTailLimit bounds how much subprocess stderr is attached to
	// errors returned to callers.
	stderrTailLimit = 500
)

// MediaInfo is the technical metadata extracted from a file.
type MediaInfo struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Codec    string  `json:"codec"`
	Bitrate  int64   `json:"bitrate"`
	FPS      float64 `json:"fps"`
}

// Probe runs ffprobe and returns technical metadata, or an error when the
// file has no usable video stream.
func Probe(ctx context.Context, path string) (*MediaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	data, err := ffprobe.ProbeURL(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	info := &MediaInfo{}
	if data.Format != nil {
		info.Duration = data.Format.DurationSeconds
		if data.Format.BitRate != "" {
			if br, err := strconv.ParseInt(data.Format.BitRate, 10, 64); err == nil {
				info.Bitrate = br
			}
		}
	}

	stream := data.FirstVideoStream()
	if stream == nil {
		return nil, fmt.Errorf("no video stream in %s", path)
	}
	info.Width = stream.Width
	info.Height = stream.Height
	info.Codec = stream.CodecName
	info.FPS = parseFrameRate(stream.RFrameRate)

	return info, nil
}

// parseFrameRate converts an ffprobe rational like "30000/1001" to a
// float, guarding the zero-denominator case.
func parseFrameRate(rate string) float64 {
	parts := strings.SplitN(rate, "/", 2)
	if len(parts) != 2 {
		if f, err := strconv.ParseFloat(rate, 64); err == nil {
			return f
		}
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

// ExtractFrame writes a single JPEG frame scaled to 320px wide. The
// timestamp uses ffmpeg time syntax ("00:00:01" or seconds).
func ExtractFrame(ctx context.Context, videoPath, timestamp, outPath string) error {
	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	args := []string{
		"-ss", timestamp,
		"-i", videoPath,
		"-vframes", "1",
		"-vf", "scale=320:-1",
		"-q:v", "2",
		"-y",
		outPath,
	}
	return Run(ctx, args...)
}

// Run executes ffmpeg with the given arguments.
func Run(ctx context.Context, args ...string) error {
	cmd := execCommand(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("ffmpeg timed out: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, Tail(stderr.String(), stderrTailLimit))
	}
	return nil
}

// Tail returns the last n bytes of s, trimmed.
func Tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
