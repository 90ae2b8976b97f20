package facemodule

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/clipperhq/clipper/internal/database"
	"github.com/clipperhq/clipper/internal/ffmpeg"
)

const (
	defaultScanFrames = 10
	maxScanFrames     = 50
	fastScanFrames    = 5
)

// frameSample is one extracted frame awaiting detection.
type frameSample struct {
	timestamp float64
	path      string
}

// sampleFrames extracts n frames evenly spread across the item. Images
// yield a single sample at 0. The caller must invoke the returned
// cleanup func.
func sampleFrames(ctx context.Context, item *database.MediaItem, n int, maxDuration float64) ([]frameSample, func(), error) {
	if item.MediaType == database.MediaTypeImage {
		return []frameSample{{timestamp: 0, path: item.Path}}, func() {}, nil
	}

	duration := 0.0
	if item.Duration != nil {
		duration = *item.Duration
	}
	if duration <= 0 {
		info, err := ffmpeg.Probe(ctx, item.Path)
		if err != nil {
			return nil, nil, err
		}
		duration = info.Duration
	}
	if duration <= 0 {
		return nil, nil, fmt.Errorf("unknown duration for %s", item.Path)
	}
	if maxDuration > 0 && duration > maxDuration {
		duration = maxDuration
	}

	var paths []string
	cleanup := func() {
		for _, p := range paths {
			os.Remove(p)
		}
	}

	samples := make([]frameSample, 0, n)
	for i := 0; i < n; i++ {
		// Avoid the very first and very last instants.
		seconds := duration * (float64(i) + 0.5) / float64(n)

		tmp, err := os.CreateTemp("", "clipper-face-*.jpg")
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		tmpPath := tmp.Name()
		tmp.Close()
		paths = append(paths, tmpPath)

		timestamp := fmt.Sprintf("%.3f", seconds)
		if err := ffmpeg.ExtractFrame(ctx, item.Path, timestamp, tmpPath); err != nil {
			// Missing frames are skipped.
			continue
		}
		samples = append(samples, frameSample{timestamp: seconds, path: tmpPath})
	}
	if len(samples) == 0 {
		cleanup()
		return nil, nil, fmt.Errorf("no frames could be extracted from %s", item.Path)
	}
	return samples, cleanup, nil
}

func clampFrameCount(n int, fast bool) int {
	if fast {
		return fastScanFrames
	}
	if n <= 0 {
		return defaultScanFrames
	}
	if n > maxScanFrames {
		return maxScanFrames
	}
	return n
}

// Candidate is one detection offered for review, with its catalog
// matches but nothing written yet.
type Candidate struct {
	Encoding       string      `json:"encoding"`
	Thumbnail      string      `json:"thumbnail"`
	Confidence     float64     `json:"confidence"`
	Quality        float64     `json:"quality"`
	FrameTimestamp float64     `json:"frame_timestamp"`
	Matches        []FaceMatch `json:"matches"`
}

// DetectFaces samples frames, runs the embedder over each, and returns
// candidates with match info. No catalog writes happen here; a
// subsequent commit call persists the approved subset.
func (e *Engine) DetectFaces(ctx context.Context, item *database.MediaItem, frames int, fast bool, maxDuration float64) ([]Candidate, error) {
	samples, cleanup, err := sampleFrames(ctx, item, clampFrameCount(frames, fast), maxDuration)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	emb := GetEmbedder()
	var candidates []Candidate
	for _, sample := range samples {
		detections, err := emb.Detect(ctx, sample.path)
		if err != nil {
			e.logger.Debug("detection failed", "path", item.Path, "timestamp", sample.timestamp, "error", err)
			continue
		}
		for _, det := range detections {
			matches, err := e.SearchSimilar(det.Encoding, e.Thresholds.ManualSearch, 5, 0)
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, Candidate{
				Encoding:       EncodeVector(det.Encoding),
				Thumbnail:      det.Thumbnail,
				Confidence:     det.Confidence,
				Quality:        det.Quality,
				FrameTimestamp: sample.timestamp,
				Matches:        matches,
			})
		}
	}
	return candidates, nil
}

// CommitCandidate is one user-approved detection to persist. FaceID 0
// means "let the assignment protocol decide".
type CommitCandidate struct {
	Encoding       string  `json:"encoding"`
	Thumbnail      string  `json:"thumbnail"`
	Confidence     float64 `json:"confidence"`
	Quality        float64 `json:"quality"`
	FrameTimestamp float64 `json:"frame_timestamp"`
	FaceID         uint32  `json:"face_id"`
	Name           string  `json:"name"`
}

// AssignResult reports where one detection landed.
type AssignResult struct {
	FaceID         uint32  `json:"face_id"`
	FaceName       string  `json:"face_name"`
	Status         string  `json:"status"`
	NewFace        bool    `json:"new_face"`
	Similarity     float64 `json:"similarity,omitempty"`
	FrameTimestamp float64 `json:"frame_timestamp"`
}

// CommitDetections persists approved candidates using the assignment
// protocol, honoring explicit face choices where the reviewer made one.
func (e *Engine) CommitDetections(item *database.MediaItem, candidates []CommitCandidate, method string) ([]AssignResult, error) {
	type resolved struct {
		det            Detection
		frameTimestamp float64
		faceID         uint32
		similarity     float64
		name           string
	}

	var toAssign []resolved
	var unmatched []resolved
	for _, cand := range candidates {
		vec, err := DecodeVector(cand.Encoding)
		if err != nil {
			return nil, err
		}
		r := resolved{
			det: Detection{
				Encoding:   vec,
				Confidence: cand.Confidence,
				Quality:    cand.Quality,
				Thumbnail:  cand.Thumbnail,
			},
			frameTimestamp: cand.FrameTimestamp,
			faceID:         cand.FaceID,
			name:           cand.Name,
		}
		if r.faceID == 0 {
			matches, err := e.SearchSimilar(vec, e.Thresholds.AutoLink, 1, 0)
			if err != nil {
				return nil, err
			}
			if len(matches) > 0 {
				r.faceID = matches[0].FaceID
				r.similarity = matches[0].BestSimilarity
			}
		}
		if r.faceID == 0 {
			unmatched = append(unmatched, r)
		} else {
			toAssign = append(toAssign, r)
		}
	}

	// All unmatched detections from one scan share a single new identity:
	// they are overwhelmingly the same person in different poses.
	var newFaceID uint32
	if len(unmatched) > 0 {
		name := unmatched[0].name
		if name == "" {
			name = fmt.Sprintf("Unknown %s", time.Now().Format("2006-01-02 15:04"))
		}
		face, err := e.CreateFace(name, nil, nil, nil, 0)
		if err != nil {
			return nil, err
		}
		newFaceID = face.ID
		for i := range unmatched {
			unmatched[i].faceID = newFaceID
		}
		toAssign = append(toAssign, unmatched...)
	}

	results := make([]AssignResult, 0, len(toAssign))
	linkedFaces := make(map[uint32]bool)
	mediaID := item.ID
	for _, r := range toAssign {
		status, _, err := e.AddEncodingToFace(r.faceID, &r.det, &mediaID, r.frameTimestamp)
		if err != nil {
			return nil, err
		}
		face, err := e.GetFace(r.faceID)
		if err != nil {
			return nil, err
		}
		results = append(results, AssignResult{
			FaceID:         r.faceID,
			FaceName:       face.Name,
			Status:         status,
			NewFace:        r.faceID == newFaceID,
			Similarity:     r.similarity,
			FrameTimestamp: r.frameTimestamp,
		})
		linkedFaces[r.faceID] = true
	}

	for faceID := range linkedFaces {
		if err := e.LinkVideoFace(item.ID, faceID, method); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// AutoScan detects and immediately commits without review.
func (e *Engine) AutoScan(ctx context.Context, item *database.MediaItem, frames int, fast bool, maxDuration float64) ([]AssignResult, error) {
	candidates, err := e.DetectFaces(ctx, item, frames, fast, maxDuration)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	commits := make([]CommitCandidate, len(candidates))
	for i, cand := range candidates {
		commits[i] = CommitCandidate{
			Encoding:       cand.Encoding,
			Thumbnail:      cand.Thumbnail,
			Confidence:     cand.Confidence,
			Quality:        cand.Quality,
			FrameTimestamp: cand.FrameTimestamp,
		}
	}
	return e.CommitDetections(item, commits, database.DetectionAutoScan)
}
