package facemodule

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/clipperhq/clipper/internal/config"
	"github.com/clipperhq/clipper/internal/ffmpeg"
)

// Overridable in tests.
var embedderCommand = exec.CommandContext

const embedderTimeout = 60 * time.Second

// Detection is one face found in an image by the external embedder.
type Detection struct {
	Encoding   []float32 `json:"encoding"`
	Confidence float64   `json:"confidence"`
	Quality    float64   `json:"quality"`
	// Base64 JPEG crop of the face region.
	Thumbnail string `json:"thumbnail"`
}

// Embedder is the shared handle to the external face embedding process.
// The model behind it is expensive to load, so the handle initializes
// lazily on first use and is reset on root switch; the first request
// after a switch bears the reload cost.
type Embedder struct {
	mu          sync.Mutex
	cmd         string
	initialized bool
}

var (
	embedder     *Embedder
	embedderOnce sync.Once
)

// GetEmbedder returns the process-wide embedder handle.
func GetEmbedder() *Embedder {
	embedderOnce.Do(func() {
		embedder = &Embedder{}
	})
	return embedder
}

// Reset drops the initialized state. Called on root switch.
func (e *Embedder) Reset() {
	e.mu.Lock()
	e.initialized = false
	e.mu.Unlock()
}

func (e *Embedder) ensureInit() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		cmd := config.Get().FaceEmbedderCmd
		if cmd == "" {
			return "", fmt.Errorf("face embedder not configured (CLIPPER_FACE_EMBEDDER)")
		}
		e.cmd = cmd
		e.initialized = true
	}
	return e.cmd, nil
}

// Detect runs the embedder over one image file and returns every face it
// finds. The subprocess contract: invoked with the image path as its only
// argument, it writes a JSON array of detections to stdout.
func (e *Embedder) Detect(ctx context.Context, imagePath string) ([]Detection, error) {
	cmdName, err := e.ensureInit()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, embedderTimeout)
	defer cancel()

	cmd := embedderCommand(ctx, cmdName, imagePath)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("embedder failed: %s", ffmpeg.Tail(string(exitErr.Stderr), 500))
		}
		return nil, fmt.Errorf("embedder failed: %w", err)
	}

	var detections []Detection
	if err := json.Unmarshal(out, &detections); err != nil {
		return nil, fmt.Errorf("embedder output: %w", err)
	}

	valid := detections[:0]
	for _, d := range detections {
		if len(d.Encoding) == EncodingDim {
			valid = append(valid, d)
		}
	}
	return valid, nil
}
