package thumbnailmodule

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/clipperhq/clipper/internal/database"
	"github.com/clipperhq/clipper/internal/ffmpeg"
)

const (
	// thumbEdge is the longest edge of generated thumbnails.
	thumbEdge = 320

	jpegQuality = 85
)

// generate produces the JPEG thumbnail bytes for a media file. Videos go
// through ffmpeg frame extraction; images are decoded and resized in
// process, taking the first frame of animated formats.
func generate(ctx context.Context, path string, mediaType database.MediaType, timestamp string) ([]byte, int, int, error) {
	if mediaType == database.MediaTypeVideo {
		return generateVideoThumb(ctx, path, timestamp)
	}
	return generateImageThumb(path)
}

func generateVideoThumb(ctx context.Context, path, timestamp string) ([]byte, int, int, error) {
	tmp, err := os.CreateTemp("", "clipper-thumb-*.jpg")
	if err != nil {
		return nil, 0, 0, err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := ffmpeg.ExtractFrame(ctx, path, timestamp, tmpPath); err != nil {
		return nil, 0, 0, err
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, 0, 0, err
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// The frame is still servable even if we cannot read dimensions.
		return data, 0, 0, nil
	}
	return data, cfg.Width, cfg.Height, nil
}

func generateImageThumb(path string) ([]byte, int, int, error) {
	img, err := decodeImage(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode %s: %w", path, err)
	}

	thumb := imaging.Fit(img, thumbEdge, thumbEdge, imaging.Lanczos)
	bounds := thumb.Bounds()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, 0, 0, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), bounds.Dx(), bounds.Dy(), nil
}

// decodeImage opens an image file, handling webp explicitly and falling
// back to imaging's registered decoders (first frame for animated GIF).
func decodeImage(path string) (image.Image, error) {
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return webp.Decode(f)
	}
	return imaging.Open(path)
}

// GenerateForItem produces and caches the thumbnail for a catalog item,
// updating the item's thumbnail state. Failures mark the item failed
// without aborting the caller's batch.
func (s *Service) GenerateForItem(item *database.MediaItem, timestamp string, force bool) error {
	if !force && item.ThumbnailGenerated == database.ThumbnailOK {
		if _, ok, _ := s.cache().Get(item.Path); ok {
			return nil
		}
	}

	if timestamp == "" {
		timestamp = "00:00:01"
	}

	data, w, h, err := generate(context.Background(), item.Path, item.MediaType, timestamp)
	if err != nil {
		s.markState(item, database.ThumbnailFailed)
		return err
	}

	if err := s.cache().Put(item.Path, data, w, h); err != nil {
		s.markState(item, database.ThumbnailFailed)
		return err
	}

	s.markState(item, database.ThumbnailOK)
	return nil
}

func (s *Service) markState(item *database.MediaItem, state database.ThumbnailState) {
	item.ThumbnailGenerated = state
	item.ThumbnailUpdatedAt = time.Now().Unix()
	database.GetDB().Model(&database.MediaItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"thumbnail_generated":  state,
			"thumbnail_updated_at": item.ThumbnailUpdatedAt,
		})
}
