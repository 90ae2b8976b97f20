package mediamodule

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/clipperhq/clipper/internal/database"
	"github.com/clipperhq/clipper/internal/utils"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(gdb))
	return gdb
}

// writeItem puts a real file under <root>/<category>/<name> and a matching
// catalog row.
func writeItem(t *testing.T, db *gorm.DB, root, category, name string) *database.MediaItem {
	t.Helper()
	dir := filepath.Join(root, category)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("content of "+name), 0o644))

	item := database.MediaItem{
		Path:      path,
		Name:      name,
		Category:  category,
		MediaType: database.MediaTypeVideo,
		Extension: "mp4",
		Modified:  time.Now(),
	}
	require.NoError(t, db.Create(&item).Error)
	return &item
}

func TestMovePreservesIdentity(t *testing.T) {
	db := testDB(t)
	root := t.TempDir()
	mover := NewMover(db, root)

	item := writeItem(t, db, root, "CLIPS", "a.mp4")
	originalID := item.ID

	// Attach metadata that must survive the move.
	_, err := SetItemTags(db, item.ID, []string{"beach", "sunset"})
	require.NoError(t, err)
	require.NoError(t, db.Create(&database.VideoFace{
		MediaItemID: item.ID, FaceID: 1, AppearanceCount: 2,
		FirstDetectedAt: time.Now(), DetectionMethod: database.DetectionAutoScan,
	}).Error)

	require.NoError(t, mover.Move(item, "ARCHIVE", ""))

	// The file physically moved.
	assert.NoFileExists(t, filepath.Join(root, "CLIPS", "a.mp4"))
	assert.FileExists(t, filepath.Join(root, "ARCHIVE", "a.mp4"))

	var reloaded database.MediaItem
	require.NoError(t, db.Preload("Tags").First(&reloaded, originalID).Error)
	assert.Equal(t, originalID, reloaded.ID)
	assert.Equal(t, "ARCHIVE", reloaded.Category)
	assert.Equal(t, filepath.Join(root, "ARCHIVE", "a.mp4"), reloaded.Path)
	assert.Len(t, reloaded.Tags, 2)

	var links int64
	db.Model(&database.VideoFace{}).Where("media_item_id = ?", originalID).Count(&links)
	assert.EqualValues(t, 1, links)
}

func TestMoveIntoSubfolder(t *testing.T) {
	db := testDB(t)
	root := t.TempDir()
	mover := NewMover(db, root)
	item := writeItem(t, db, root, "CLIPS", "a.mp4")

	require.NoError(t, mover.Move(item, "ARCHIVE", "2024/summer"))
	assert.FileExists(t, filepath.Join(root, "ARCHIVE", "2024", "summer", "a.mp4"))

	var reloaded database.MediaItem
	require.NoError(t, db.First(&reloaded, item.ID).Error)
	require.NotNil(t, reloaded.Subcategory)
	assert.Equal(t, "2024/summer", *reloaded.Subcategory)

	// Traversal in the subfolder is refused.
	other := writeItem(t, db, root, "CLIPS", "b.mp4")
	assert.Error(t, mover.Move(other, "ARCHIVE", "../escape"))
}

func TestMoveRejectsBadDestinations(t *testing.T) {
	db := testDB(t)
	root := t.TempDir()
	mover := NewMover(db, root)
	item := writeItem(t, db, root, "CLIPS", "a.mp4")

	// Category with a separator.
	assert.Error(t, mover.Move(item, "A/B", ""))

	// Destination occupied.
	writeItem(t, db, root, "ARCHIVE", "a.mp4")
	assert.Error(t, mover.Move(item, "ARCHIVE", ""))

	// Source missing.
	require.NoError(t, os.Remove(item.Path))
	assert.Error(t, mover.Move(item, "OTHER", ""))
}

func TestRenameInheritsExtension(t *testing.T) {
	db := testDB(t)
	root := t.TempDir()
	mover := NewMover(db, root)
	item := writeItem(t, db, root, "CLIPS", "a.mp4")

	require.NoError(t, mover.Rename(item, "better-name"))
	assert.FileExists(t, filepath.Join(root, "CLIPS", "better-name.mp4"))

	var reloaded database.MediaItem
	require.NoError(t, db.First(&reloaded, item.ID).Error)
	assert.Equal(t, "better-name.mp4", reloaded.Name)
	assert.Equal(t, "better-name", reloaded.DisplayName)
	assert.Equal(t, "CLIPS", reloaded.Category)

	assert.Error(t, mover.Rename(&reloaded, ""))
	assert.Error(t, mover.Rename(&reloaded, "a/b.mp4"))
}

func TestHashRenameDeterministic(t *testing.T) {
	db := testDB(t)
	root := t.TempDir()
	mover := NewMover(db, root)
	item := writeItem(t, db, root, "CLIPS", "original.mp4")

	id, err := mover.HashRename(item)
	require.NoError(t, err)
	require.Len(t, id, 16)
	assert.FileExists(t, filepath.Join(root, "CLIPS", id+".mp4"))

	// The id matches the content hash derivation.
	sha, err := utils.HashFileSHA1(item.Path)
	require.NoError(t, err)
	expected, err := utils.MixedIndexID(sha)
	require.NoError(t, err)
	assert.Equal(t, expected, id)

	// Renaming again is a no-op: the name already matches the content.
	var reloaded database.MediaItem
	require.NoError(t, db.First(&reloaded, item.ID).Error)
	again, err := mover.HashRename(&reloaded)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestHashRenameRefusesCollision(t *testing.T) {
	db := testDB(t)
	root := t.TempDir()
	mover := NewMover(db, root)
	item := writeItem(t, db, root, "CLIPS", "original.mp4")

	sha, err := utils.HashFileSHA1(item.Path)
	require.NoError(t, err)
	id, err := utils.MixedIndexID(sha)
	require.NoError(t, err)

	// Occupy the target name with a different file.
	require.NoError(t, os.WriteFile(filepath.Join(root, "CLIPS", id+".mp4"), []byte("other"), 0o644))

	_, err = mover.HashRename(item)
	assert.Error(t, err)
	// The original is untouched.
	assert.FileExists(t, filepath.Join(root, "CLIPS", "original.mp4"))
}

func TestRenameFolder(t *testing.T) {
	db := testDB(t)
	root := t.TempDir()
	mover := NewMover(db, root)

	a := writeItem(t, db, root, "OLD", "a.mp4")
	b := writeItem(t, db, root, "OLD", "b.mp4")
	require.NoError(t, db.Create(&database.FolderScanStatus{Category: "OLD", IsScanned: true}).Error)

	moved, err := mover.RenameFolder("OLD", "NEW")
	require.NoError(t, err)
	assert.EqualValues(t, 2, moved)

	assert.NoDirExists(t, filepath.Join(root, "OLD"))
	assert.FileExists(t, filepath.Join(root, "NEW", "a.mp4"))

	for _, id := range []uint32{a.ID, b.ID} {
		var item database.MediaItem
		require.NoError(t, db.First(&item, id).Error)
		assert.Equal(t, "NEW", item.Category)
		assert.Equal(t, filepath.Join(root, "NEW"), filepath.Dir(item.Path))
	}

	var status database.FolderScanStatus
	require.NoError(t, db.Where("category = ?", "NEW").First(&status).Error)
	assert.True(t, status.IsScanned)
}

func TestRenameFolderRewritesGroups(t *testing.T) {
	db := testDB(t)
	root := t.TempDir()
	mover := NewMover(db, root)
	writeItem(t, db, root, "CLIPS", "a.mp4")

	group, err := CreateFolderGroup(db, FolderGroupInput{
		Name: "Favorites", Folders: []string{"CLIPS", "OTHER"},
	})
	require.NoError(t, err)
	untouched, err := CreateFolderGroup(db, FolderGroupInput{
		Name: "Archive", Folders: []string{"OTHER"},
	})
	require.NoError(t, err)

	_, err = mover.RenameFolder("CLIPS", "MOVIES")
	require.NoError(t, err)

	// Sidebar groups follow the folder to its new name.
	var reloaded database.FolderGroup
	require.NoError(t, db.First(&reloaded, "id = ?", group.ID).Error)
	var folders []string
	require.NoError(t, json.Unmarshal(reloaded.Folders, &folders))
	assert.Equal(t, []string{"MOVIES", "OTHER"}, folders)

	reloaded = database.FolderGroup{}
	require.NoError(t, db.First(&reloaded, "id = ?", untouched.ID).Error)
	require.NoError(t, json.Unmarshal(reloaded.Folders, &folders))
	assert.Equal(t, []string{"OTHER"}, folders)
}

func TestRenameFolderRefusesNesting(t *testing.T) {
	db := testDB(t)
	mover := NewMover(db, t.TempDir())

	_, err := mover.RenameFolder("A/B", "C")
	assert.Error(t, err)
	_, err = mover.RenameFolder("A", "C/D")
	assert.Error(t, err)
	_, err = mover.RenameFolder("A", "")
	assert.Error(t, err)
}

func TestSoftDeleteAndPermanentDelete(t *testing.T) {
	db := testDB(t)
	root := t.TempDir()
	mover := NewMover(db, root)
	item := writeItem(t, db, root, "CLIPS", "a.mp4")

	// Permanent deletion without soft delete first is refused.
	err := mover.PermanentDelete(item)
	assert.ErrorIs(t, err, ErrNotInDeleteCategory)
	assert.FileExists(t, item.Path)

	previous, err := mover.SoftDelete(item)
	require.NoError(t, err)
	assert.Equal(t, "CLIPS", previous)
	assert.FileExists(t, filepath.Join(root, DeleteCategory, "a.mp4"))

	var reloaded database.MediaItem
	require.NoError(t, db.First(&reloaded, item.ID).Error)
	assert.Equal(t, DeleteCategory, reloaded.Category)

	// Soft deleting twice is a no-op.
	previous, err = mover.SoftDelete(&reloaded)
	require.NoError(t, err)
	assert.Equal(t, DeleteCategory, previous)

	require.NoError(t, mover.PermanentDelete(&reloaded))
	assert.NoFileExists(t, reloaded.Path)
	assert.ErrorIs(t, db.First(&database.MediaItem{}, item.ID).Error, gorm.ErrRecordNotFound)
}

func TestPermanentDeleteCascades(t *testing.T) {
	db := testDB(t)
	root := t.TempDir()
	mover := NewMover(db, root)
	item := writeItem(t, db, root, DeleteCategory, "a.mp4")

	_, err := SetItemTags(db, item.ID, []string{"keepme"})
	require.NoError(t, err)
	require.NoError(t, db.Create(&database.VideoFingerprint{
		MediaItemID: item.ID, FramePosition: 5, PHash: "00000000000000ff",
	}).Error)
	require.NoError(t, db.Create(&database.VideoFace{
		MediaItemID: item.ID, FaceID: 1, AppearanceCount: 1,
		FirstDetectedAt: time.Now(), DetectionMethod: database.DetectionAutoScan,
	}).Error)
	mediaID := item.ID
	require.NoError(t, db.Create(&database.FaceEncoding{
		FaceID: 1, MediaItemID: &mediaID, Encoding: "enc",
	}).Error)

	require.NoError(t, mover.PermanentDelete(item))

	var n int64
	db.Model(&database.VideoFingerprint{}).Where("media_item_id = ?", mediaID).Count(&n)
	assert.EqualValues(t, 0, n)
	db.Model(&database.VideoFace{}).Where("media_item_id = ?", mediaID).Count(&n)
	assert.EqualValues(t, 0, n)
	db.Table("media_item_tags").Where("media_item_id = ?", mediaID).Count(&n)
	assert.EqualValues(t, 0, n)

	// The tag itself survives; only the link goes.
	db.Model(&database.Tag{}).Count(&n)
	assert.EqualValues(t, 1, n)

	// Face encodings keep their vectors with a nulled source.
	var enc database.FaceEncoding
	require.NoError(t, db.Where("face_id = ?", 1).First(&enc).Error)
	assert.Nil(t, enc.MediaItemID)
	assert.Equal(t, "enc", enc.Encoding)
}
