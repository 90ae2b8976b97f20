package facemodule

import (
	"fmt"
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

func testFaceEngine(t *testing.T) *Engine {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(gdb))
	return NewEngine(gdb, hclog.NewNullLogger())
}

// axis returns a unit vector along one axis; distinct axes are orthogonal
// so their cosine similarity is exactly zero.
func axis(i int) []float32 {
	v := make([]float32, 8)
	v[i] = 1
	return v
}

func det(vec []float32, confidence, quality float64) *Detection {
	return &Detection{Encoding: vec, Confidence: confidence, Quality: quality, Thumbnail: "thumb"}
}

func seedMediaItem(t *testing.T, e *Engine, path string) *database.MediaItem {
	t.Helper()
	item := database.MediaItem{
		Path: path, Name: path, Category: "CLIPS",
		MediaType: database.MediaTypeVideo, Modified: time.Now(),
	}
	require.NoError(t, e.db.Create(&item).Error)
	return &item
}

func TestLoadThresholdsDefaultsAndOverrides(t *testing.T) {
	th := LoadThresholds()
	assert.Equal(t, 0.4, th.ManualSearch)
	assert.Equal(t, 0.8, th.AutoLink)
	assert.Equal(t, 0.3, th.Cleanup)
	assert.Equal(t, 0.5, th.Grouping)
	assert.Equal(t, 0.95, th.DuplicateEnc)

	t.Setenv("CLIPPER_FACE_MATCH_THRESHOLD", "0.55")
	t.Setenv("CLIPPER_FACE_AUTOLINK_THRESHOLD", "1.5") // out of range, ignored
	t.Setenv("CLIPPER_FACE_CLEANUP_THRESHOLD", "junk") // unparseable, ignored
	th = LoadThresholds()
	assert.Equal(t, 0.55, th.ManualSearch)
	assert.Equal(t, 0.8, th.AutoLink)
	assert.Equal(t, 0.3, th.Cleanup)
}

func TestCreateFaceWithSeedEncoding(t *testing.T) {
	e := testFaceEngine(t)

	face, err := e.CreateFace("Alice", nil, det(axis(0), 0.9, 0.8), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "Alice", face.Name)
	assert.Equal(t, 1, face.EncodingCount)

	var rows []database.FaceEncoding
	require.NoError(t, e.db.Where("face_id = ?", face.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].MediaItemID)
}

func TestAddEncodingDuplicateSkipped(t *testing.T) {
	e := testFaceEngine(t)
	face, err := e.CreateFace("Alice", nil, nil, nil, 0)
	require.NoError(t, err)

	status, encID, err := e.AddEncodingToFace(face.ID, det(axis(0), 0.9, 0.8), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "added", status)
	assert.NotZero(t, encID)

	// Byte-exact duplicate under the same face is a successful no-op.
	status, encID, err = e.AddEncodingToFace(face.ID, det(axis(0), 0.5, 0.5), nil, 10)
	require.NoError(t, err)
	assert.Equal(t, "skipped", status)
	assert.Zero(t, encID)

	reloaded, err := e.GetFace(face.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.EncodingCount)

	// The same vector under a different face is a fresh encoding.
	other, err := e.CreateFace("Bob", nil, nil, nil, 0)
	require.NoError(t, err)
	status, _, err = e.AddEncodingToFace(other.ID, det(axis(0), 0.9, 0.8), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "added", status)
}

func TestSearchSimilar(t *testing.T) {
	e := testFaceEngine(t)

	alice, err := e.CreateFace("Alice", nil, det(axis(0), 0.9, 0.9), nil, 0)
	require.NoError(t, err)
	bob, err := e.CreateFace("Bob", nil, det(axis(1), 0.9, 0.9), nil, 0)
	require.NoError(t, err)

	// Query along Alice's axis: Bob is orthogonal and falls below any
	// positive threshold.
	matches, err := e.SearchSimilar(axis(0), 0.4, 10, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, alice.ID, matches[0].FaceID)
	assert.Equal(t, "Alice", matches[0].Name)
	assert.InDelta(t, 1.0, matches[0].BestSimilarity, 1e-6)
	require.Len(t, matches[0].Encodings, 1)

	// Excluding Alice leaves nothing.
	matches, err = e.SearchSimilar(axis(0), 0.4, 10, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, matches)

	// Threshold zero includes everyone, best first.
	matches, err = e.SearchSimilar(axis(0), -1, 10, 0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, alice.ID, matches[0].FaceID)
	assert.Equal(t, bob.ID, matches[1].FaceID)

	// topK truncates.
	matches, err = e.SearchSimilar(axis(0), -1, 1, 0)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestPrimaryEncodingFallback(t *testing.T) {
	e := testFaceEngine(t)
	face, err := e.CreateFace("Alice", nil, nil, nil, 0)
	require.NoError(t, err)

	_, lowID, err := e.AddEncodingToFace(face.ID, det(axis(0), 0.9, 0.5), nil, 0)
	require.NoError(t, err)
	_, highID, err := e.AddEncodingToFace(face.ID, det(axis(1), 0.5, 0.9), nil, 0)
	require.NoError(t, err)

	// No explicit choice: highest quality wins.
	reloaded, err := e.GetFace(face.ID)
	require.NoError(t, err)
	primary, err := e.PrimaryEncoding(reloaded)
	require.NoError(t, err)
	require.NotNil(t, primary)
	assert.Equal(t, highID, primary.ID)

	// Explicit choice wins over quality.
	require.NoError(t, e.SetPrimaryEncoding(face.ID, lowID))
	reloaded, err = e.GetFace(face.ID)
	require.NoError(t, err)
	primary, err = e.PrimaryEncoding(reloaded)
	require.NoError(t, err)
	assert.Equal(t, lowID, primary.ID)

	// Choosing an encoding of another face is refused.
	other, err := e.CreateFace("Bob", nil, det(axis(2), 0.9, 0.9), nil, 0)
	require.NoError(t, err)
	var otherEnc database.FaceEncoding
	require.NoError(t, e.db.Where("face_id = ?", other.ID).First(&otherEnc).Error)
	assert.ErrorIs(t, e.SetPrimaryEncoding(face.ID, otherEnc.ID), gorm.ErrRecordNotFound)
}

func TestDeleteEncodingPromotesPrimary(t *testing.T) {
	e := testFaceEngine(t)
	face, err := e.CreateFace("Alice", nil, nil, nil, 0)
	require.NoError(t, err)

	_, firstID, err := e.AddEncodingToFace(face.ID, det(axis(0), 0.9, 0.9), nil, 0)
	require.NoError(t, err)
	_, secondID, err := e.AddEncodingToFace(face.ID, det(axis(1), 0.8, 0.8), nil, 0)
	require.NoError(t, err)
	require.NoError(t, e.SetPrimaryEncoding(face.ID, firstID))

	// Deleting the primary promotes the next best.
	require.NoError(t, e.DeleteEncoding(face.ID, firstID))
	reloaded, err := e.GetFace(face.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.PrimaryEncodingID)
	assert.Equal(t, secondID, *reloaded.PrimaryEncodingID)
	assert.Equal(t, 1, reloaded.EncodingCount)

	// Deleting the last encoding leaves an encoding-less face.
	require.NoError(t, e.DeleteEncoding(face.ID, secondID))
	reloaded, err = e.GetFace(face.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.PrimaryEncodingID)
	assert.Equal(t, 0, reloaded.EncodingCount)
}

func TestMergeConsolidatesEncodingsAndLinks(t *testing.T) {
	e := testFaceEngine(t)

	f1, err := e.CreateFace("Alice", nil, nil, nil, 0)
	require.NoError(t, err)
	f2, err := e.CreateFace("Alice?", nil, nil, nil, 0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, err := e.AddEncodingToFace(f1.ID, det(axis(i), 0.9, 0.9), nil, 0)
		require.NoError(t, err)
	}
	for i := 3; i < 5; i++ {
		_, _, err := e.AddEncodingToFace(f2.ID, det(axis(i), 0.9, 0.9), nil, 0)
		require.NoError(t, err)
	}

	v := seedMediaItem(t, e, "/lib/CLIPS/v.mp4")
	w := seedMediaItem(t, e, "/lib/CLIPS/w.mp4")

	// V is linked to both identities; W only to the source.
	require.NoError(t, e.db.Create(&database.VideoFace{
		MediaItemID: v.ID, FaceID: f1.ID, AppearanceCount: 4,
		FirstDetectedAt: time.Now(), DetectionMethod: database.DetectionAutoScan,
	}).Error)
	require.NoError(t, e.db.Create(&database.VideoFace{
		MediaItemID: v.ID, FaceID: f2.ID, AppearanceCount: 1,
		FirstDetectedAt: time.Now(), DetectionMethod: database.DetectionAutoScan,
	}).Error)
	require.NoError(t, e.db.Create(&database.VideoFace{
		MediaItemID: w.ID, FaceID: f2.ID, AppearanceCount: 2,
		FirstDetectedAt: time.Now(), DetectionMethod: database.DetectionAutoScan,
	}).Error)

	merged, err := e.Merge([]uint32{f1.ID, f2.ID}, "Alice Merged", nil)
	require.NoError(t, err)
	assert.Equal(t, f1.ID, merged.ID)
	assert.Equal(t, "Alice Merged", merged.Name)
	assert.Equal(t, 5, merged.EncodingCount)

	// Every encoding now belongs to the target.
	var encCount int64
	e.db.Model(&database.FaceEncoding{}).Where("face_id = ?", f1.ID).Count(&encCount)
	assert.EqualValues(t, 5, encCount)
	e.db.Model(&database.FaceEncoding{}).Where("face_id = ?", f2.ID).Count(&encCount)
	assert.EqualValues(t, 0, encCount)

	// Colliding links summed their appearance counts; the W link moved.
	var vLink database.VideoFace
	require.NoError(t, e.db.Where("media_item_id = ? AND face_id = ?", v.ID, f1.ID).First(&vLink).Error)
	assert.Equal(t, 5, vLink.AppearanceCount)

	var wLink database.VideoFace
	require.NoError(t, e.db.Where("media_item_id = ? AND face_id = ?", w.ID, f1.ID).First(&wLink).Error)
	assert.Equal(t, 2, wLink.AppearanceCount)

	// The source identity is gone.
	_, err = e.GetFace(f2.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var total int64
	e.db.Model(&database.VideoFace{}).Count(&total)
	assert.EqualValues(t, 2, total)
}

func TestMergeRequiresTwoFaces(t *testing.T) {
	e := testFaceEngine(t)
	_, err := e.Merge([]uint32{1}, "", nil)
	assert.Error(t, err)
}

func TestCleanupOrphansRequiresBothConditions(t *testing.T) {
	e := testFaceEngine(t)

	orphan, err := e.CreateFace("Orphan", nil, nil, nil, 0)
	require.NoError(t, err)
	withEnc, err := e.CreateFace("HasEncoding", nil, det(axis(0), 0.9, 0.9), nil, 0)
	require.NoError(t, err)
	withLink, err := e.CreateFace("HasLink", nil, nil, nil, 0)
	require.NoError(t, err)

	item := seedMediaItem(t, e, "/lib/CLIPS/v.mp4")
	require.NoError(t, e.LinkVideoFace(item.ID, withLink.ID, database.DetectionUserSelected))

	removed, err := e.CleanupOrphans()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = e.GetFace(orphan.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = e.GetFace(withEnc.ID)
	assert.NoError(t, err)
	_, err = e.GetFace(withLink.ID)
	assert.NoError(t, err)
}

func TestLinkVideoFaceUpsert(t *testing.T) {
	e := testFaceEngine(t)
	face, err := e.CreateFace("Alice", nil, nil, nil, 0)
	require.NoError(t, err)
	item := seedMediaItem(t, e, "/lib/CLIPS/v.mp4")

	require.NoError(t, e.LinkVideoFace(item.ID, face.ID, database.DetectionManualSearch))
	require.NoError(t, e.LinkVideoFace(item.ID, face.ID, database.DetectionAutoScan))

	var link database.VideoFace
	require.NoError(t, e.db.Where("media_item_id = ? AND face_id = ?", item.ID, face.ID).First(&link).Error)
	assert.Equal(t, 2, link.AppearanceCount)
	// The originating method is preserved on increment.
	assert.Equal(t, database.DetectionManualSearch, link.DetectionMethod)

	require.NoError(t, e.UnlinkVideoFace(item.ID, face.ID))
	var count int64
	e.db.Model(&database.VideoFace{}).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestCleanupViewClassifications(t *testing.T) {
	e := testFaceEngine(t)
	face, err := e.CreateFace("Alice", nil, nil, nil, 0)
	require.NoError(t, err)

	ref := []float32{1, 0}
	good := []float32{1, 0.1} // cos ~ 0.995
	mid := []float32{1, 1.7}  // cos ~ 0.507
	poor := []float32{0, 1}   // cos 0

	_, refID, err := e.AddEncodingToFace(face.ID, det(ref, 0.9, 0.9), nil, 0)
	require.NoError(t, err)
	require.NoError(t, e.SetPrimaryEncoding(face.ID, refID))
	_, _, err = e.AddEncodingToFace(face.ID, det(good, 0.9, 0.5), nil, 0)
	require.NoError(t, err)
	_, _, err = e.AddEncodingToFace(face.ID, det(mid, 0.9, 0.5), nil, 0)
	require.NoError(t, err)
	_, _, err = e.AddEncodingToFace(face.ID, det(poor, 0.9, 0.5), nil, 0)
	require.NoError(t, err)

	scored, err := e.CleanupView(face.ID, 0)
	require.NoError(t, err)
	require.Len(t, scored, 4)

	assert.Equal(t, "primary", scored[0].Classification)
	assert.Equal(t, refID, scored[0].EncodingID)
	assert.Equal(t, "good", scored[1].Classification)
	assert.Equal(t, "acceptable", scored[2].Classification)
	assert.Equal(t, "poor", scored[3].Classification)

	// Descending similarity after the primary.
	assert.GreaterOrEqual(t, scored[1].Similarity, scored[2].Similarity)
	assert.GreaterOrEqual(t, scored[2].Similarity, scored[3].Similarity)
}

func TestDuplicateAnalysisKeepsHighestQuality(t *testing.T) {
	e := testFaceEngine(t)
	face, err := e.CreateFace("Alice", nil, nil, nil, 0)
	require.NoError(t, err)

	// Two near-identical vectors with different quality, one far vector.
	_, lowID, err := e.AddEncodingToFace(face.ID, det([]float32{1, 0, 0}, 0.9, 0.4), nil, 0)
	require.NoError(t, err)
	_, highID, err := e.AddEncodingToFace(face.ID, det([]float32{1, 0.01, 0}, 0.9, 0.9), nil, 0)
	require.NoError(t, err)
	_, _, err = e.AddEncodingToFace(face.ID, det([]float32{0, 0, 1}, 0.9, 0.9), nil, 0)
	require.NoError(t, err)

	suggestions, err := e.DuplicateAnalysis(face.ID)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, lowID, suggestions[0].EncodingID)
	assert.Equal(t, highID, suggestions[0].KeepID)
	assert.GreaterOrEqual(t, suggestions[0].Similarity, e.Thresholds.DuplicateEnc)
}

func TestGroupSimilarFaces(t *testing.T) {
	e := testFaceEngine(t)

	a, err := e.CreateFace("A", nil, det([]float32{1, 0, 0}, 0.9, 0.9), nil, 0)
	require.NoError(t, err)
	b, err := e.CreateFace("B", nil, det([]float32{1, 0.2, 0}, 0.9, 0.9), nil, 0)
	require.NoError(t, err)
	_, err = e.CreateFace("C", nil, det([]float32{0, 0, 1}, 0.9, 0.9), nil, 0)
	require.NoError(t, err)

	groups, err := e.GroupSimilarFaces(0)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0], 2)
	assert.Equal(t, a.ID, groups[0][0].FaceID)
	assert.Equal(t, b.ID, groups[0][1].FaceID)
	assert.InDelta(t, 1.0, groups[0][0].Similarity, 1e-9)
	assert.Greater(t, groups[0][1].Similarity, e.Thresholds.Grouping)
}

func TestCompareMatrix(t *testing.T) {
	e := testFaceEngine(t)

	a, err := e.CreateFace("A", nil, det(axis(0), 0.9, 0.9), nil, 0)
	require.NoError(t, err)
	b, err := e.CreateFace("B", nil, det(axis(0), 0.9, 0.9), nil, 0)
	require.NoError(t, err)
	c, err := e.CreateFace("C", nil, det(axis(1), 0.9, 0.9), nil, 0)
	require.NoError(t, err)

	matrix, err := e.Compare([]uint32{a.ID, b.ID, c.ID})
	require.NoError(t, err)
	require.Len(t, matrix, 3)

	key := func(x, y uint32) string { return fmt.Sprintf("%d-%d", x, y) }
	assert.InDelta(t, 1.0, matrix[key(a.ID, b.ID)], 1e-6)
	assert.InDelta(t, 0.0, matrix[key(a.ID, c.ID)], 1e-6)
	assert.InDelta(t, 0.0, matrix[key(b.ID, c.ID)], 1e-6)
}

func TestCommitDetectionsAssignmentProtocol(t *testing.T) {
	e := testFaceEngine(t)

	known, err := e.CreateFace("Known", nil, det(axis(0), 0.9, 0.9), nil, 0)
	require.NoError(t, err)
	item := seedMediaItem(t, e, "/lib/CLIPS/v.mp4")

	candidates := []CommitCandidate{
		{Encoding: EncodeVector(axis(0)), Confidence: 0.9, Quality: 0.8, FrameTimestamp: 1.5},
		{Encoding: EncodeVector(axis(3)), Confidence: 0.9, Quality: 0.8, FrameTimestamp: 3.0},
		{Encoding: EncodeVector(axis(4)), Confidence: 0.9, Quality: 0.8, FrameTimestamp: 4.5},
	}

	results, err := e.CommitDetections(item, candidates, database.DetectionAutoScan)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byFace := map[uint32][]AssignResult{}
	for _, r := range results {
		byFace[r.FaceID] = append(byFace[r.FaceID], r)
	}
	// The matched detection went to the existing identity; both unmatched
	// detections share a single new one.
	require.Contains(t, byFace, known.ID)
	require.Len(t, byFace, 2)
	for faceID, rs := range byFace {
		if faceID == known.ID {
			require.Len(t, rs, 1)
			assert.False(t, rs[0].NewFace)
		} else {
			require.Len(t, rs, 2)
			assert.True(t, rs[0].NewFace)
			assert.True(t, rs[1].NewFace)
		}
	}

	// One video link per distinct face.
	var links []database.VideoFace
	require.NoError(t, e.db.Where("media_item_id = ?", item.ID).Find(&links).Error)
	assert.Len(t, links, 2)
	for _, link := range links {
		assert.Equal(t, database.DetectionAutoScan, link.DetectionMethod)
		assert.Equal(t, 1, link.AppearanceCount)
	}
}

func TestCommitDetectionsHonorsExplicitChoice(t *testing.T) {
	e := testFaceEngine(t)

	chosen, err := e.CreateFace("Chosen", nil, nil, nil, 0)
	require.NoError(t, err)
	// A near-identical identity exists, but the reviewer picked another.
	_, err = e.CreateFace("Lookalike", nil, det(axis(0), 0.9, 0.9), nil, 0)
	require.NoError(t, err)
	item := seedMediaItem(t, e, "/lib/CLIPS/v.mp4")

	results, err := e.CommitDetections(item, []CommitCandidate{
		{Encoding: EncodeVector(axis(0)), FaceID: chosen.ID, Confidence: 0.9, Quality: 0.8},
	}, database.DetectionUserSelected)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chosen.ID, results[0].FaceID)
	assert.False(t, results[0].NewFace)
}

func TestCatalogAndStats(t *testing.T) {
	e := testFaceEngine(t)

	actor := database.Actor{Name: "Jordan Lee"}
	require.NoError(t, e.db.Create(&actor).Error)
	face, err := e.CreateFace("Jordan", &actor.ID, det(axis(0), 0.9, 0.9), nil, 0)
	require.NoError(t, err)
	item := seedMediaItem(t, e, "/lib/CLIPS/v.mp4")
	require.NoError(t, e.LinkVideoFace(item.ID, face.ID, database.DetectionAutoScan))

	entries, err := e.Catalog("", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Jordan Lee", entries[0].ActorName)
	assert.EqualValues(t, 1, entries[0].VideoCount)
	assert.Equal(t, "thumb", entries[0].Thumbnail)

	entries, err = e.Catalog("nomatch", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	stats, err := e.Stats()
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats["faces"])
	assert.EqualValues(t, 1, stats["encodings"])
	assert.EqualValues(t, 1, stats["video_links"])
	assert.EqualValues(t, 1, stats["faces_with_actor"])
}
