package jobsmodule

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipperhq/clipper/internal/database"
)

func TestQualityPreset(t *testing.T) {
	crf, preset := qualityPreset("fast")
	assert.Equal(t, 28, crf)
	assert.Equal(t, "ultrafast", preset)

	crf, preset = qualityPreset("high")
	assert.Equal(t, 18, crf)
	assert.Equal(t, "slow", preset)

	// Everything else is the balanced default.
	for _, q := range []string{"balanced", "", "nonsense"} {
		crf, preset = qualityPreset(q)
		assert.Equal(t, 23, crf)
		assert.Equal(t, "medium", preset)
	}
}

func TestCropForPresetCentered(t *testing.T) {
	// 9:16 portrait crop out of a 1920x1080 landscape source.
	rect, err := cropForPreset(&EditRequest{CropPreset: "9:16"}, 1920, 1080)
	require.NoError(t, err)
	assert.Equal(t, 607, rect.w)
	assert.Equal(t, 1080, rect.h)
	assert.Equal(t, (1920-607)/2, rect.x)
	assert.Equal(t, 0, rect.y)

	// 16:9 out of the same source is the full frame.
	rect, err = cropForPreset(&EditRequest{CropPreset: "16:9"}, 1920, 1080)
	require.NoError(t, err)
	assert.Equal(t, 1920, rect.w)
	assert.Equal(t, 1080, rect.h)

	// Square crop is bounded by the short side.
	rect, err = cropForPreset(&EditRequest{CropPreset: "1:1"}, 1920, 1080)
	require.NoError(t, err)
	assert.Equal(t, 1080, rect.w)
	assert.Equal(t, 1080, rect.h)
	assert.Equal(t, 420, rect.x)
}

func TestCropForPresetExplicitOffsets(t *testing.T) {
	x := 100
	rect, err := cropForPreset(&EditRequest{CropPreset: "1:1", CropX: &x}, 1920, 1080)
	require.NoError(t, err)
	assert.Equal(t, 100, rect.x)
	assert.Equal(t, 1080, rect.w)
}

func TestCropForPresetCustom(t *testing.T) {
	x, y, w, h := 10, 20, 300, 400
	rect, err := cropForPreset(&EditRequest{
		CropPreset: "custom", CropX: &x, CropY: &y, CropW: &w, CropH: &h,
	}, 1920, 1080)
	require.NoError(t, err)
	assert.Equal(t, &cropRect{x: 10, y: 20, w: 300, h: 400}, rect)

	// Custom without the full rectangle is refused.
	_, err = cropForPreset(&EditRequest{CropPreset: "custom", CropX: &x}, 1920, 1080)
	assert.Error(t, err)
}

func TestCropForPresetErrors(t *testing.T) {
	_, err := cropForPreset(&EditRequest{CropPreset: "4:3"}, 1920, 1080)
	assert.Error(t, err)
	_, err = cropForPreset(&EditRequest{CropPreset: "1:1"}, 0, 0)
	assert.Error(t, err)
}

func TestEditOutputPath(t *testing.T) {
	item := &database.MediaItem{
		Path: "/root/CLIPS/holiday.mp4",
		Name: "holiday.mp4",
	}

	// Same folder as the source, with the operation and range suffix.
	out, err := editOutputPath("/root", item, &EditRequest{
		Operation: "cut", StartTime: 5, EndTime: 65,
	})
	require.NoError(t, err)
	assert.Equal(t, "/root/CLIPS/holiday_cut_5-65.mp4", out)

	// Crop-only output carries no time range.
	out, err = editOutputPath("/root", item, &EditRequest{Operation: "crop"})
	require.NoError(t, err)
	assert.Equal(t, "/root/CLIPS/holiday_crop.mp4", out)

	// The edited folder lives under the root.
	root := t.TempDir()
	out, err = editOutputPath(root, item, &EditRequest{
		Operation: "cut_and_crop", StartTime: 0, EndTime: 30, OutputFolder: "edited",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "EDITED", "holiday_cut_and_crop_0-30.mp4"), out)
	assert.DirExists(t, filepath.Join(root, "EDITED"))
}
