package fingerprintmodule

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/clipperhq/clipper/internal/database"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(gdb))
	return NewEngine(gdb, hclog.NewNullLogger())
}

func seedItem(t *testing.T, e *Engine, path, category string, hashes map[int]uint64) *database.MediaItem {
	t.Helper()
	item := database.MediaItem{
		Path:      path,
		Name:      filepath.Base(path),
		Category:  category,
		MediaType: database.MediaTypeVideo,
		Modified:  time.Now(),
	}
	require.NoError(t, e.db.Create(&item).Error)

	for pos, h := range hashes {
		require.NoError(t, e.db.Create(&database.VideoFingerprint{
			MediaItemID:   item.ID,
			FramePosition: pos,
			PHash:         FormatHash(h),
		}).Error)
	}
	if len(hashes) > 0 {
		require.NoError(t, e.db.Model(&database.MediaItem{}).Where("id = ?", item.ID).
			Update("fingerprint_generated", true).Error)
	}
	return &item
}

func TestGenerateForImage(t *testing.T) {
	e := testEngine(t)

	dir := t.TempDir()
	imgPath := filepath.Join(dir, "photo.png")
	f, err := os.Create(imgPath)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, gradientImage(100, 80, 0)))
	require.NoError(t, f.Close())

	item := database.MediaItem{
		Path: imgPath, Name: "photo.png", Category: "PHOTOS",
		MediaType: database.MediaTypeImage, Modified: time.Now(),
	}
	require.NoError(t, e.db.Create(&item).Error)

	stored, err := e.GenerateForItem(context.Background(), &item)
	require.NoError(t, err)
	assert.Equal(t, 1, stored)

	rows, err := e.ListForItem(item.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].FramePosition)

	var reloaded database.MediaItem
	require.NoError(t, e.db.First(&reloaded, item.ID).Error)
	assert.True(t, reloaded.FingerprintGenerated)
	assert.NotNil(t, reloaded.FingerprintedAt)

	// Regeneration respects the position tolerance and adds nothing.
	stored, err = e.GenerateForItem(context.Background(), &item)
	require.NoError(t, err)
	assert.Equal(t, 0, stored)
}

func TestHasNearbyPosition(t *testing.T) {
	rows := []database.VideoFingerprint{{FramePosition: 25}}
	assert.True(t, hasNearbyPosition(rows, 24))
	assert.True(t, hasNearbyPosition(rows, 25))
	assert.True(t, hasNearbyPosition(rows, 26))
	assert.False(t, hasNearbyPosition(rows, 27))
	assert.False(t, hasNearbyPosition(nil, 25))
}

func TestDeleteForItem(t *testing.T) {
	e := testEngine(t)
	item := seedItem(t, e, "/lib/A/a.mp4", "A", map[int]uint64{5: 100, 50: 200})

	require.NoError(t, e.DeleteForItem(item.ID))

	rows, err := e.ListForItem(item.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	var reloaded database.MediaItem
	require.NoError(t, e.db.First(&reloaded, item.ID).Error)
	assert.False(t, reloaded.FingerprintGenerated)
	assert.Nil(t, reloaded.FingerprintedAt)
}

func TestCheckDuplicateUsesStoredHashes(t *testing.T) {
	e := testEngine(t)

	base := uint64(0xaaaa5555ffff0000)
	query := seedItem(t, e, "/lib/A/q.mp4", "A", map[int]uint64{5: base})
	near := seedItem(t, e, "/lib/A/near.mp4", "A", map[int]uint64{5: base ^ 0b111})
	seedItem(t, e, "/lib/A/far.mp4", "A", map[int]uint64{5: ^base})

	matches, err := e.CheckDuplicate(context.Background(), query, DefaultThreshold, "")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, near.ID, matches[0].Item.ID)
	assert.Equal(t, 3, matches[0].Distance)
	assert.InDelta(t, Similarity(3), matches[0].Similarity, 1e-9)
}

func TestCheckDuplicateMinOverFrameSets(t *testing.T) {
	e := testEngine(t)

	base := uint64(0x1234567812345678)
	query := seedItem(t, e, "/lib/A/q.mp4", "A", map[int]uint64{5: base, 50: ^base})
	// Far at position 5 but identical at position 50: min distance is 0.
	other := seedItem(t, e, "/lib/A/o.mp4", "A", map[int]uint64{5: base ^ 0xffff, 50: ^base})

	matches, err := e.CheckDuplicate(context.Background(), query, 5, "")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, other.ID, matches[0].Item.ID)
	assert.Equal(t, 0, matches[0].Distance)
}

func TestCheckDuplicateCategoryFilter(t *testing.T) {
	e := testEngine(t)

	base := uint64(0xcafebabe12345678)
	query := seedItem(t, e, "/lib/A/q.mp4", "A", map[int]uint64{5: base})
	inCat := seedItem(t, e, "/lib/A/in.mp4", "A", map[int]uint64{5: base})
	seedItem(t, e, "/lib/B/out.mp4", "B", map[int]uint64{5: base})

	matches, err := e.CheckDuplicate(context.Background(), query, DefaultThreshold, "A")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, inCat.ID, matches[0].Item.ID)
}

func TestCheckDuplicateSortedByDistance(t *testing.T) {
	e := testEngine(t)

	base := uint64(0xf0f0f0f0f0f0f0f0)
	query := seedItem(t, e, "/lib/A/q.mp4", "A", map[int]uint64{5: base})
	seedItem(t, e, "/lib/A/d4.mp4", "A", map[int]uint64{5: base ^ 0b1111})
	seedItem(t, e, "/lib/A/d1.mp4", "A", map[int]uint64{5: base ^ 0b1})
	seedItem(t, e, "/lib/A/d2.mp4", "A", map[int]uint64{5: base ^ 0b11})

	matches, err := e.CheckDuplicate(context.Background(), query, DefaultThreshold, "")
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, []int{1, 2, 4}, []int{matches[0].Distance, matches[1].Distance, matches[2].Distance})
}

func TestFindAllGroupsTransitiveClosure(t *testing.T) {
	e := testEngine(t)

	// a~b and b~c but a and c are 12 bits apart: the closure still puts
	// all three in one group at threshold 10.
	var a uint64 = 0
	b := a ^ 0x3f        // 6 bits from a
	c := b ^ (0x3f << 8) // 6 bits from b, 12 from a
	d := ^uint64(0) >> 1 // far from everything

	itemA := seedItem(t, e, "/lib/A/a.mp4", "A", map[int]uint64{5: a})
	itemB := seedItem(t, e, "/lib/A/b.mp4", "A", map[int]uint64{5: b})
	itemC := seedItem(t, e, "/lib/A/c.mp4", "A", map[int]uint64{5: c})
	seedItem(t, e, "/lib/A/d.mp4", "A", map[int]uint64{5: d})

	groups, err := e.FindAllGroups(DefaultThreshold, "")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Members, 3)

	ids := map[uint32]bool{}
	for _, m := range groups[0].Members {
		ids[m.Item.ID] = true
	}
	assert.True(t, ids[itemA.ID] && ids[itemB.ID] && ids[itemC.ID])

	// Similarity is relative to the first member.
	assert.InDelta(t, 100.0, groups[0].Members[0].Similarity, 1e-9)
	assert.InDelta(t, Similarity(6), groups[0].Members[1].Similarity, 1e-9)
	assert.InDelta(t, Similarity(12), groups[0].Members[2].Similarity, 1e-9)
}

func TestFindAllGroupsOrderedBySize(t *testing.T) {
	e := testEngine(t)

	// Pair group far from the triple group.
	var x uint64 = 0x00000000000000ff
	seedItem(t, e, "/lib/A/p1.mp4", "A", map[int]uint64{5: x})
	seedItem(t, e, "/lib/A/p2.mp4", "A", map[int]uint64{5: x ^ 1})

	y := ^uint64(0) &^ 0xff
	seedItem(t, e, "/lib/A/t1.mp4", "A", map[int]uint64{5: y})
	seedItem(t, e, "/lib/A/t2.mp4", "A", map[int]uint64{5: y ^ 1})
	seedItem(t, e, "/lib/A/t3.mp4", "A", map[int]uint64{5: y ^ 2})

	groups, err := e.FindAllGroups(DefaultThreshold, "")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0].Members, 3)
	assert.Len(t, groups[1].Members, 2)
}

func TestFindAllGroupsNoneBelowTwo(t *testing.T) {
	e := testEngine(t)
	seedItem(t, e, "/lib/A/solo.mp4", "A", map[int]uint64{5: 42})

	groups, err := e.FindAllGroups(DefaultThreshold, "")
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestStats(t *testing.T) {
	e := testEngine(t)

	seedItem(t, e, "/lib/A/a.mp4", "A", map[int]uint64{5: 1, 50: 2})
	seedItem(t, e, "/lib/A/b.mp4", "A", nil)
	seedItem(t, e, "/lib/B/c.mp4", "B", map[int]uint64{5: 3})

	global, err := e.GlobalStats()
	require.NoError(t, err)
	assert.EqualValues(t, 3, global.TotalItems)
	assert.EqualValues(t, 2, global.FingerprintedItems)
	assert.EqualValues(t, 3, global.TotalHashes)

	byFolder, err := e.StatsByFolder()
	require.NoError(t, err)
	require.Len(t, byFolder, 2)
	assert.Equal(t, "A", byFolder[0].Category)
	assert.EqualValues(t, 2, byFolder[0].TotalItems)
	assert.EqualValues(t, 1, byFolder[0].FingerprintedItems)
	assert.EqualValues(t, 2, byFolder[0].TotalHashes)
	assert.Equal(t, "B", byFolder[1].Category)
	assert.EqualValues(t, 1, byFolder[1].TotalHashes)
}
