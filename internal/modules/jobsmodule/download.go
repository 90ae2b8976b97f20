package jobsmodule

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/clipperhq/clipper/internal/ffmpeg"
	"github.com/clipperhq/clipper/internal/utils"
)

// urlScrubbed replaces a job's URL after a successful download.
const urlScrubbed = "[cleared after download]"

// HLSRequest downloads a section of an HLS (M3U8) stream.
type HLSRequest struct {
	URL      string `json:"url" binding:"required"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Filename string `json:"filename"`
	// Retry through an HLS-aware downloader when ffmpeg fails.
	Fallback bool `json:"fallback"`
}

// SocksRequest downloads a file through curl, optionally proxied.
type SocksRequest struct {
	URL      string `json:"url" binding:"required"`
	Filename string `json:"filename"`
	Proxy    string `json:"proxy"`
	Referer  string `json:"referer"`
}

// SocksConfig holds the process-global proxy and referer defaults. They
// persist across jobs until explicitly cleared.
type SocksConfig struct {
	mu      sync.RWMutex
	proxy   string
	referer string
}

var socksConfig SocksConfig

// SetProxy stores the default proxy; empty clears it.
func (s *SocksConfig) SetProxy(proxy string) {
	s.mu.Lock()
	s.proxy = proxy
	s.mu.Unlock()
}

// SetReferer stores the default referer; empty clears it.
func (s *SocksConfig) SetReferer(referer string) {
	s.mu.Lock()
	s.referer = referer
	s.mu.Unlock()
}

// Defaults returns the current proxy and referer.
func (s *SocksConfig) Defaults() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proxy, s.referer
}

// downloadsDir resolves <root>/DOWNLOADS, creating it on demand.
func downloadsDir(root string) (string, error) {
	dir := filepath.Join(root, "DOWNLOADS")
	if err := utils.EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// hlsDuration converts HH:MM:SS start/end into a -t duration argument.
func hlsDuration(start, end string) (string, error) {
	parse := func(s string) (time.Duration, error) {
		var h, m int
		var sec float64
		if _, err := fmt.Sscanf(s, "%d:%d:%f", &h, &m, &sec); err != nil {
			return 0, fmt.Errorf("invalid timestamp %q (want HH:MM:SS)", s)
		}
		return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
			time.Duration(sec*float64(time.Second)), nil
	}

	from, err := parse(start)
	if err != nil {
		return "", err
	}
	to, err := parse(end)
	if err != nil {
		return "", err
	}
	if to <= from {
		return "", fmt.Errorf("end %s is not after start %s", end, start)
	}
	return fmt.Sprintf("%.3f", (to - from).Seconds()), nil
}

// runHLSDownload fetches a stream section with ffmpeg stream copy,
// optionally falling back to an HLS-aware downloader with a section
// selector.
func runHLSDownload(ctx context.Context, root string, req *HLSRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	dir, err := downloadsDir(root)
	if err != nil {
		return "", err
	}

	filename := sanitizeFilename(req.Filename)
	if filename == "" {
		filename = fmt.Sprintf("download_%d.mp4", time.Now().Unix())
	}
	if filepath.Ext(filename) == "" {
		filename += ".mp4"
	}
	outPath := filepath.Join(dir, filename)

	start := req.Start
	if start == "" {
		start = "00:00:00"
	}

	var ffmpegErr error
	if req.End != "" {
		duration, err := hlsDuration(start, req.End)
		if err != nil {
			return "", err
		}
		ffmpegErr = ffmpeg.Run(ctx,
			"-ss", start,
			"-i", req.URL,
			"-t", duration,
			"-c", "copy",
			"-y", outPath,
		)
	} else {
		ffmpegErr = ffmpeg.Run(ctx,
			"-ss", start,
			"-i", req.URL,
			"-c", "copy",
			"-y", outPath,
		)
	}
	if ffmpegErr == nil {
		return outPath, nil
	}
	if !req.Fallback {
		return "", ffmpegErr
	}

	// Fallback: section-aware downloader run from the output folder.
	section := fmt.Sprintf("*%s-%s", start, req.End)
	cmd := execCommand(ctx, "yt-dlp",
		"--download-sections", section,
		"-o", filename,
		req.URL,
	)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("hls fallback failed after %v: %w: %s",
			ffmpegErr, err, ffmpeg.Tail(string(out), 500))
	}
	return outPath, nil
}

// browserHeaders are the standard headers curl sends so media hosts
// treat the download like a browser request.
var browserHeaders = []string{
	"User-Agent: Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"Accept: */*",
	"Accept-Language: en-US,en;q=0.9",
	"Connection: keep-alive",
}

// runSocksDownload fetches a file with curl through the optional proxy.
func runSocksDownload(ctx context.Context, root string, req *SocksRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	dir, err := downloadsDir(root)
	if err != nil {
		return "", err
	}

	filename := sanitizeFilename(req.Filename)
	if filename == "" {
		filename = filepath.Base(req.URL)
		filename = sanitizeFilename(filename)
		if filename == "" {
			filename = fmt.Sprintf("download_%d", time.Now().Unix())
		}
	}
	outPath := filepath.Join(dir, filename)

	defaultProxy, defaultReferer := socksConfig.Defaults()
	proxy := req.Proxy
	if proxy == "" {
		proxy = defaultProxy
	}
	referer := req.Referer
	if referer == "" {
		referer = defaultReferer
	}

	args := []string{"-L", "-f", "--retry", "2", "-o", outPath}
	for _, h := range browserHeaders {
		args = append(args, "-H", h)
	}
	if proxy != "" {
		args = append(args, "-x", proxy)
	}
	if referer != "" {
		args = append(args, "-H", "Referer: "+referer)
	}
	args = append(args, req.URL)

	cmd := execCommand(ctx, "curl", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("curl failed: %w: %s", err, ffmpeg.Tail(string(out), 500))
	}
	return outPath, nil
}
