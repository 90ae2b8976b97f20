package fingerprintmodule

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/clipperhq/clipper/internal/database"
	"github.com/clipperhq/clipper/internal/ffmpeg"
)

// framePositions are the sampled positions (percent of duration) for
// video fingerprints. Images get a single hash at position 0.
var framePositions = []int{5, 25, 50, 75, 95}

// DefaultThreshold is the Hamming distance at or below which two items
// are considered similar.
const DefaultThreshold = 10

// Engine computes and queries fingerprints against the catalog.
type Engine struct {
	db     *gorm.DB
	logger hclog.Logger
}

// NewEngine creates a fingerprint engine over the given catalog handle.
func NewEngine(db *gorm.DB, logger hclog.Logger) *Engine {
	return &Engine{db: db, logger: logger}
}

// GenerateForItem samples, hashes and stores the fingerprints for one
// item. Missing frames are skipped; a single successful hash is enough
// for the item to participate in duplicate detection.
func (e *Engine) GenerateForItem(ctx context.Context, item *database.MediaItem) (int, error) {
	hashes, err := e.computeHashes(ctx, item)
	if err != nil {
		return 0, err
	}
	if len(hashes) == 0 {
		return 0, fmt.Errorf("no frames could be hashed for %s", item.Path)
	}

	stored := 0
	err = e.db.Transaction(func(tx *gorm.DB) error {
		var existing []database.VideoFingerprint
		if err := tx.Where("media_item_id = ?", item.ID).Find(&existing).Error; err != nil {
			return err
		}

		for pos, hash := range hashes {
			if hasNearbyPosition(existing, pos) {
				continue
			}
			row := database.VideoFingerprint{
				MediaItemID:   item.ID,
				FramePosition: pos,
				PHash:         FormatHash(hash),
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			existing = append(existing, row)
			stored++
		}

		now := time.Now()
		return tx.Model(&database.MediaItem{}).Where("id = ?", item.ID).
			Updates(map[string]interface{}{
				"fingerprint_generated": true,
				"fingerprinted_at":      now,
			}).Error
	})
	if err != nil {
		return 0, err
	}

	e.logger.Debug("fingerprinted item", "id", item.ID, "hashes", stored)
	return stored, nil
}

// hasNearbyPosition enforces the ±1% insert tolerance.
func hasNearbyPosition(rows []database.VideoFingerprint, pos int) bool {
	for _, r := range rows {
		if r.FramePosition >= pos-1 && r.FramePosition <= pos+1 {
			return true
		}
	}
	return false
}

// computeHashes produces position→hash for an item without touching the
// store. Used both for generation and for transient query fingerprints.
func (e *Engine) computeHashes(ctx context.Context, item *database.MediaItem) (map[int]uint64, error) {
	if item.MediaType == database.MediaTypeImage {
		hash, err := ComputePHashFile(item.Path)
		if err != nil {
			return nil, err
		}
		return map[int]uint64{0: hash}, nil
	}

	duration := 0.0
	if item.Duration != nil {
		duration = *item.Duration
	}
	if duration <= 0 {
		if info, err := ffmpeg.Probe(ctx, item.Path); err == nil {
			duration = info.Duration
		}
	}
	if duration <= 0 {
		return nil, fmt.Errorf("unknown duration for %s", item.Path)
	}

	hashes := make(map[int]uint64)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for _, pos := range framePositions {
		pos := pos
		g.Go(func() error {
			seconds := duration * float64(pos) / 100
			hash, err := e.hashFrameAt(gctx, item.Path, seconds)
			if err != nil {
				// Missing frames are skipped, not failures.
				e.logger.Debug("frame hash failed", "path", item.Path, "position", pos, "error", err)
				return nil
			}
			mu.Lock()
			hashes[pos] = hash
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hashes, nil
}

// hashFrameAt extracts one frame to a temp JPEG and hashes it. The temp
// file is removed on every exit path.
func (e *Engine) hashFrameAt(ctx context.Context, videoPath string, seconds float64) (uint64, error) {
	tmp, err := os.CreateTemp("", "clipper-fp-*.jpg")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	timestamp := fmt.Sprintf("%.3f", seconds)
	if err := ffmpeg.ExtractFrame(ctx, videoPath, timestamp, tmpPath); err != nil {
		return 0, err
	}
	return ComputePHashFile(tmpPath)
}

// DeleteForItem removes an item's fingerprints and clears its flags.
func (e *Engine) DeleteForItem(itemID uint32) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("media_item_id = ?", itemID).
			Delete(&database.VideoFingerprint{}).Error; err != nil {
			return err
		}
		return tx.Model(&database.MediaItem{}).Where("id = ?", itemID).
			Updates(map[string]interface{}{
				"fingerprint_generated": false,
				"fingerprinted_at":      nil,
			}).Error
	})
}

// ListForItem returns an item's stored fingerprints.
func (e *Engine) ListForItem(itemID uint32) ([]database.VideoFingerprint, error) {
	var rows []database.VideoFingerprint
	err := e.db.Where("media_item_id = ?", itemID).
		Order("frame_position").Find(&rows).Error
	return rows, err
}

// DuplicateMatch is one candidate similar to the query item.
type DuplicateMatch struct {
	Item       database.MediaItem `json:"item"`
	Distance   int                `json:"distance"`
	Similarity float64            `json:"similarity"`
}

// CheckDuplicate fingerprints the query item transiently and reports all
// library items within the threshold, sorted by ascending distance. The
// query item need not be pre-fingerprinted.
func (e *Engine) CheckDuplicate(ctx context.Context, item *database.MediaItem, threshold int, category string) ([]DuplicateMatch, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	queryHashes, err := e.queryHashSet(ctx, item)
	if err != nil {
		return nil, err
	}

	candidates, err := e.loadFingerprintSets(category, item.ID)
	if err != nil {
		return nil, err
	}

	var matches []DuplicateMatch
	for _, cand := range candidates {
		dist, ok := minDistance(queryHashes, cand.hashes)
		if !ok || dist > threshold {
			continue
		}
		matches = append(matches, DuplicateMatch{
			Item:       cand.item,
			Distance:   dist,
			Similarity: Similarity(dist),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	return matches, nil
}

// queryHashSet prefers stored fingerprints and computes transient ones
// otherwise.
func (e *Engine) queryHashSet(ctx context.Context, item *database.MediaItem) ([]uint64, error) {
	stored, err := e.ListForItem(item.ID)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		out := make([]uint64, 0, len(stored))
		for _, row := range stored {
			if h, err := ParseHash(row.PHash); err == nil {
				out = append(out, h)
			}
		}
		return out, nil
	}

	computed, err := e.computeHashes(ctx, item)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, 0, len(computed))
	for _, h := range computed {
		out = append(out, h)
	}
	return out, nil
}

type fingerprintSet struct {
	item   database.MediaItem
	hashes []uint64
}

// loadFingerprintSets pulls every fingerprinted item (optionally within a
// category) with its hashes, excluding one id.
func (e *Engine) loadFingerprintSets(category string, excludeID uint32) ([]fingerprintSet, error) {
	q := e.db.Where("fingerprint_generated = ?", true)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}

	var items []database.MediaItem
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	ids := make([]uint32, len(items))
	byID := make(map[uint32]*fingerprintSet, len(items))
	sets := make([]fingerprintSet, len(items))
	for i, item := range items {
		ids[i] = item.ID
		sets[i] = fingerprintSet{item: item}
		byID[item.ID] = &sets[i]
	}

	var rows []database.VideoFingerprint
	if err := e.db.Where("media_item_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		if set, ok := byID[row.MediaItemID]; ok {
			if h, err := ParseHash(row.PHash); err == nil {
				set.hashes = append(set.hashes, h)
			}
		}
	}

	// Items with no parseable hashes cannot participate.
	out := sets[:0]
	for _, s := range sets {
		if len(s.hashes) > 0 {
			out = append(out, s)
		}
	}
	return out, nil
}

// minDistance is the minimum Hamming distance across all frame pairs.
func minDistance(a, b []uint64) (int, bool) {
	if len(a) == 0 || len(b) == 0 {
		return 0, false
	}
	min := 65
	for _, ha := range a {
		for _, hb := range b {
			if d := HammingDistance(ha, hb); d < min {
				min = d
			}
		}
	}
	return min, true
}

// GroupMember is one item of a duplicate group with its similarity to
// the group's first member.
type GroupMember struct {
	Item       database.MediaItem `json:"item"`
	Similarity float64            `json:"similarity"`
}

// DuplicateGroup is a transitively-closed set of similar items.
type DuplicateGroup struct {
	Members []GroupMember `json:"members"`
}

// FindAllGroups builds library-wide duplicate groups: pairwise min
// distance, union-find closure, groups of size >= 2 ordered by size.
func (e *Engine) FindAllGroups(threshold int, category string) ([]DuplicateGroup, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	sets, err := e.loadFingerprintSets(category, 0)
	if err != nil {
		return nil, err
	}
	if len(sets) < 2 {
		return nil, nil
	}

	uf := newUnionFind(len(sets))
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			if d, ok := minDistance(sets[i].hashes, sets[j].hashes); ok && d <= threshold {
				uf.union(i, j)
			}
		}
	}

	byRoot := make(map[int][]int)
	for i := range sets {
		root := uf.find(i)
		byRoot[root] = append(byRoot[root], i)
	}

	var groups []DuplicateGroup
	for _, idxs := range byRoot {
		if len(idxs) < 2 {
			continue
		}
		sort.Ints(idxs)
		first := sets[idxs[0]]
		group := DuplicateGroup{}
		for _, idx := range idxs {
			sim := 100.0
			if idx != idxs[0] {
				if d, ok := minDistance(first.hashes, sets[idx].hashes); ok {
					sim = Similarity(d)
				}
			}
			group.Members = append(group.Members, GroupMember{Item: sets[idx].item, Similarity: sim})
		}
		groups = append(groups, group)
	}

	sort.Slice(groups, func(i, j int) bool { return len(groups[i].Members) > len(groups[j].Members) })
	return groups, nil
}

// Stats summarizes fingerprint coverage, optionally per category.
type Stats struct {
	Category           string `json:"category,omitempty"`
	TotalItems         int64  `json:"total_items"`
	FingerprintedItems int64  `json:"fingerprinted_items"`
	TotalHashes        int64  `json:"total_hashes"`
}

// GlobalStats reports coverage across the library.
func (e *Engine) GlobalStats() (*Stats, error) {
	s := &Stats{}
	if err := e.db.Model(&database.MediaItem{}).Count(&s.TotalItems).Error; err != nil {
		return nil, err
	}
	if err := e.db.Model(&database.MediaItem{}).
		Where("fingerprint_generated = ?", true).Count(&s.FingerprintedItems).Error; err != nil {
		return nil, err
	}
	if err := e.db.Model(&database.VideoFingerprint{}).Count(&s.TotalHashes).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// StatsByFolder reports coverage per category.
func (e *Engine) StatsByFolder() ([]Stats, error) {
	var categories []string
	if err := e.db.Model(&database.MediaItem{}).
		Distinct("category").Order("category").Pluck("category", &categories).Error; err != nil {
		return nil, err
	}

	out := make([]Stats, 0, len(categories))
	for _, cat := range categories {
		s := Stats{Category: cat}
		if err := e.db.Model(&database.MediaItem{}).
			Where("category = ?", cat).Count(&s.TotalItems).Error; err != nil {
			return nil, err
		}
		if err := e.db.Model(&database.MediaItem{}).
			Where("category = ? AND fingerprint_generated = ?", cat, true).
			Count(&s.FingerprintedItems).Error; err != nil {
			return nil, err
		}
		if err := e.db.Model(&database.VideoFingerprint{}).
			Joins("JOIN media_items ON media_items.id = video_fingerprints.media_item_id").
			Where("media_items.category = ?", cat).
			Count(&s.TotalHashes).Error; err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
