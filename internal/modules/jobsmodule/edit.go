package jobsmodule

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/clipperhq/clipper/internal/database"
	"github.com/clipperhq/clipper/internal/ffmpeg"
	"github.com/clipperhq/clipper/internal/utils"
)

// Overridable in tests.
var execCommand = exec.CommandContext

const jobTimeout = time.Hour

// EditRequest describes one cut/crop operation on a catalog item.
type EditRequest struct {
	MediaItemID uint32 `json:"media_item_id" binding:"required"`
	// cut | crop | cut_and_crop
	Operation string `json:"operation" binding:"required"`
	// ffmpeg | copy | smartcut
	Method string `json:"method"`
	// fast | balanced | high
	Quality string `json:"quality"`

	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`

	// 9:16 | 16:9 | 1:1 | custom
	CropPreset string `json:"crop_preset"`
	CropX      *int   `json:"crop_x"`
	CropY      *int   `json:"crop_y"`
	CropW      *int   `json:"crop_w"`
	CropH      *int   `json:"crop_h"`

	// same | edited
	OutputFolder string `json:"output_folder"`

	CopyTags      bool `json:"copy_tags"`
	PreserveFaces bool `json:"preserve_faces"`
}

// qualityPreset maps the named presets onto (crf, ffmpeg preset).
func qualityPreset(quality string) (int, string) {
	switch quality {
	case "fast":
		return 28, "ultrafast"
	case "high":
		return 18, "slow"
	default:
		return 23, "medium"
	}
}

// cropRect is a pixel rectangle within the source frame.
type cropRect struct {
	x, y, w, h int
}

// cropForPreset derives the centered crop rectangle for a preset, or
// applies the explicit custom rectangle.
func cropForPreset(req *EditRequest, srcW, srcH int) (*cropRect, error) {
	if srcW <= 0 || srcH <= 0 {
		return nil, fmt.Errorf("unknown source dimensions")
	}

	if req.CropPreset == "custom" {
		if req.CropX == nil || req.CropY == nil || req.CropW == nil || req.CropH == nil {
			return nil, fmt.Errorf("custom crop requires x, y, w, h")
		}
		return &cropRect{x: *req.CropX, y: *req.CropY, w: *req.CropW, h: *req.CropH}, nil
	}

	var aspectW, aspectH int
	switch req.CropPreset {
	case "9:16":
		aspectW, aspectH = 9, 16
	case "16:9":
		aspectW, aspectH = 16, 9
	case "1:1":
		aspectW, aspectH = 1, 1
	default:
		return nil, fmt.Errorf("unknown crop preset: %s", req.CropPreset)
	}

	// Largest centered rectangle with the requested aspect.
	w := srcW
	h := w * aspectH / aspectW
	if h > srcH {
		h = srcH
		w = h * aspectW / aspectH
	}
	rect := &cropRect{x: (srcW - w) / 2, y: (srcH - h) / 2, w: w, h: h}

	// Explicit offsets override the centering.
	if req.CropX != nil {
		rect.x = *req.CropX
	}
	if req.CropY != nil {
		rect.y = *req.CropY
	}
	return rect, nil
}

// editOutputPath derives the destination: same folder as the source or
// <root>/EDITED, with an operation and time-range suffix, .mp4 enforced.
func editOutputPath(root string, item *database.MediaItem, req *EditRequest) (string, error) {
	dir := filepath.Dir(item.Path)
	if req.OutputFolder == "edited" {
		dir = filepath.Join(root, "EDITED")
		if err := utils.EnsureDir(dir); err != nil {
			return "", err
		}
	}

	stem := utils.StemName(item.Name)
	suffix := req.Operation
	if req.Operation != "crop" {
		suffix = fmt.Sprintf("%s_%.0f-%.0f", req.Operation, req.StartTime, req.EndTime)
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.mp4", stem, suffix)), nil
}

// runEdit executes the encode for one edit job and returns the output
// path.
func runEdit(ctx context.Context, db *gorm.DB, root string, item *database.MediaItem, req *EditRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	outPath, err := editOutputPath(root, item, req)
	if err != nil {
		return "", err
	}

	needsCut := req.Operation == "cut" || req.Operation == "cut_and_crop"
	needsCrop := req.Operation == "crop" || req.Operation == "cut_and_crop"
	duration := req.EndTime - req.StartTime
	if needsCut && duration <= 0 {
		return "", fmt.Errorf("end_time must be after start_time")
	}

	method := req.Method
	if method == "" {
		method = "ffmpeg"
	}

	switch method {
	case "copy":
		if needsCrop {
			return "", fmt.Errorf("stream copy cannot crop")
		}
		args := []string{
			"-ss", fmt.Sprintf("%.3f", req.StartTime),
			"-i", item.Path,
			"-t", fmt.Sprintf("%.3f", duration),
			"-c", "copy",
			"-y", outPath,
		}
		if err := ffmpeg.Run(ctx, args...); err != nil {
			return "", err
		}
		return outPath, nil

	case "smartcut":
		if needsCrop {
			return "", fmt.Errorf("smartcut cannot crop")
		}
		cmd := execCommand(ctx, "smartcut", item.Path, outPath,
			"--start", fmt.Sprintf("%.3f", req.StartTime),
			"--end", fmt.Sprintf("%.3f", req.EndTime))
		if out, err := cmd.CombinedOutput(); err != nil {
			return "", fmt.Errorf("smartcut failed: %w: %s", err, ffmpeg.Tail(string(out), 500))
		}
		return outPath, nil

	case "ffmpeg":
		crf, preset := qualityPreset(req.Quality)
		args := []string{}
		if needsCut {
			// Seek before the input for speed, accurate_seek for
			// frame precision.
			args = append(args,
				"-ss", fmt.Sprintf("%.3f", req.StartTime),
				"-accurate_seek",
			)
		}
		args = append(args, "-i", item.Path)
		if needsCut {
			args = append(args, "-t", fmt.Sprintf("%.3f", duration))
		}
		if needsCrop {
			srcW, srcH := 0, 0
			if item.Width != nil && item.Height != nil {
				srcW, srcH = *item.Width, *item.Height
			} else if info, err := ffmpeg.Probe(ctx, item.Path); err == nil {
				srcW, srcH = info.Width, info.Height
				db.Model(&database.MediaItem{}).Where("id = ?", item.ID).
					Updates(map[string]interface{}{"width": srcW, "height": srcH})
			}
			rect, err := cropForPreset(req, srcW, srcH)
			if err != nil {
				return "", err
			}
			args = append(args, "-vf",
				fmt.Sprintf("crop=%d:%d:%d:%d", rect.w, rect.h, rect.x, rect.y))
		}
		args = append(args,
			"-c:v", "libx264",
			"-crf", fmt.Sprintf("%d", crf),
			"-preset", preset,
			"-c:a", "aac",
			"-y", outPath,
		)
		if err := ffmpeg.Run(ctx, args...); err != nil {
			return "", err
		}
		return outPath, nil

	default:
		return "", fmt.Errorf("unknown cut method: %s", method)
	}
}

// preserveFaces copies every face link from the source item to the new
// one, marked as carried over from an edit.
func preserveFaces(db *gorm.DB, fromID, toID uint32) (int, error) {
	var links []database.VideoFace
	if err := db.Where("media_item_id = ?", fromID).Find(&links).Error; err != nil {
		return 0, err
	}

	copied := 0
	for _, link := range links {
		var count int64
		if err := db.Model(&database.VideoFace{}).
			Where("media_item_id = ? AND face_id = ?", toID, link.FaceID).
			Count(&count).Error; err != nil {
			return copied, err
		}
		if count > 0 {
			continue
		}
		err := db.Create(&database.VideoFace{
			MediaItemID:     toID,
			FaceID:          link.FaceID,
			FirstDetectedAt: time.Now(),
			DetectionMethod: database.DetectionPreservedEdit,
			AppearanceCount: link.AppearanceCount,
		}).Error
		if err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}

// sanitizeFilename strips path separators and leading dots from a user
// supplied output name.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.TrimLeft(name, ".")
	return name
}
