package scannermodule

import (
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/clipperhq/clipper/internal/database"
	"github.com/clipperhq/clipper/internal/events"
	"github.com/clipperhq/clipper/internal/logger"
	"github.com/clipperhq/clipper/internal/utils"
)

// ThumbnailGenerator is the slice of the thumbnail service the reconciler
// needs for smart refresh; the thumbnail module injects itself at Init.
type ThumbnailGenerator interface {
	GenerateForItem(item *database.MediaItem, timestamp string, force bool) error
}

var thumbGen ThumbnailGenerator

// SetThumbnailGenerator injects the thumbnail service.
func SetThumbnailGenerator(g ThumbnailGenerator) {
	thumbGen = g
}

// ScanResult summarizes one reconciliation pass over a category.
type ScanResult struct {
	Category            string  `json:"category"`
	VideosFound         int     `json:"videos_found"`
	ImagesFound         int     `json:"images_found"`
	Added               int     `json:"added"`
	Updated             int     `json:"updated"`
	Deleted             int     `json:"deleted"`
	ThumbnailsGenerated int     `json:"thumbnails_generated"`
	Duration            float64 `json:"duration"`
}

// Reconciler diffs disk state against the catalog for one root. After any
// reconcile, the catalog set for a category equals the disk set.
type Reconciler struct {
	db   *gorm.DB
	root string
}

// NewReconciler creates a reconciler over the active catalog handle.
func NewReconciler(db *gorm.DB, root string) *Reconciler {
	return &Reconciler{db: db, root: root}
}

// ScanFolder performs the fast reconcile for one category: prune rows
// whose file vanished, upsert arrivals, stamp scan status. Thumbnails and
// metadata are left for on-demand generation.
func (r *Reconciler) ScanFolder(category string) (*ScanResult, error) {
	start := time.Now()
	events.Publish(events.Event{
		Type: events.EventScanStarted, Source: "scanner",
		Data: map[string]string{"category": category},
	})

	files, err := NewScanner(r.root).ScanCategory(category)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{Category: category}
	for _, f := range files {
		if f.MediaType == database.MediaTypeVideo {
			result.VideosFound++
		} else {
			result.ImagesFound++
		}
	}

	err = r.db.Transaction(func(tx *gorm.DB) error {
		var existing []database.MediaItem
		if err := tx.Where("category = ?", category).Find(&existing).Error; err != nil {
			return err
		}

		diskPaths := make(map[string]*FileInfo, len(files))
		for i := range files {
			diskPaths[files[i].Path] = &files[i]
		}

		byPath := make(map[string]*database.MediaItem, len(existing))
		var stale []uint32
		for i := range existing {
			item := &existing[i]
			if _, onDisk := diskPaths[item.Path]; onDisk {
				byPath[item.Path] = item
			} else {
				stale = append(stale, item.ID)
			}
		}

		deleted, err := bulkDeleteItems(tx, stale)
		if err != nil {
			return err
		}
		result.Deleted = int(deleted)

		now := time.Now().Unix()
		for _, f := range files {
			if item, ok := byPath[f.Path]; ok {
				if err := updateMutableFields(tx, item, &f, now); err != nil {
					return err
				}
				result.Updated++
				continue
			}
			if err := insertItem(tx, f, now); err != nil {
				return err
			}
			result.Added++
		}

		return upsertScanStatus(tx, category, result.VideosFound+result.ImagesFound, time.Since(start))
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", category, err)
	}

	result.Duration = time.Since(start).Seconds()
	events.Publish(events.Event{
		Type: events.EventScanCompleted, Source: "scanner", Data: result,
	})
	return result, nil
}

// SmartRefresh is ScanFolder plus a bounded thumbnail pass for items
// without a good thumbnail. Remaining items are generated on demand.
func (r *Reconciler) SmartRefresh(category string, budget time.Duration) (*ScanResult, error) {
	result, err := r.ScanFolder(category)
	if err != nil {
		return nil, err
	}
	if thumbGen == nil {
		return result, nil
	}

	deadline := time.Now().Add(budget)
	var pending []database.MediaItem
	if err := r.db.Where("category = ? AND thumbnail_generated <> ?", category, database.ThumbnailOK).
		Find(&pending).Error; err != nil {
		return result, err
	}

	for i := range pending {
		if time.Now().After(deadline) {
			logger.Info("Thumbnail budget exhausted for %s, %d items left for on-demand", category, len(pending)-i)
			break
		}
		if err := thumbGen.GenerateForItem(&pending[i], "00:00:01", false); err != nil {
			logger.Debug("Thumbnail generation failed for %s: %v", pending[i].Path, err)
			continue
		}
		result.ThumbnailsGenerated++
	}
	return result, nil
}

// ScanSingle upserts one file, used after edits and downloads land. The
// thumbnail is generated immediately when a generator is wired.
func (r *Reconciler) ScanSingle(path string, forceThumb bool) (*database.MediaItem, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	category, err := categoryForPath(r.root, path)
	if err != nil {
		return nil, err
	}

	fi, ok := NewScanner(r.root).classify(path, category, info)
	if !ok {
		return nil, fmt.Errorf("not a recognized media file: %s", path)
	}

	now := time.Now().Unix()
	var item database.MediaItem
	err = r.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("path = ?", path).First(&item).Error
		switch {
		case err == nil:
			return updateMutableFields(tx, &item, &fi, now)
		case err == gorm.ErrRecordNotFound:
			if err := insertItem(tx, fi, now); err != nil {
				return err
			}
			return tx.Where("path = ?", path).First(&item).Error
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	if forceThumb && thumbGen != nil {
		if err := thumbGen.GenerateForItem(&item, "00:00:01", true); err != nil {
			logger.Warn("Forced thumbnail for %s failed: %v", path, err)
		}
	}
	return &item, nil
}

// PruneRoot deletes every catalog row whose file no longer exists.
func (r *Reconciler) PruneRoot() (int64, error) {
	var items []database.MediaItem
	if err := r.db.Select("id", "path").Find(&items).Error; err != nil {
		return 0, err
	}

	var stale []uint32
	for _, item := range items {
		if _, err := os.Stat(item.Path); os.IsNotExist(err) {
			stale = append(stale, item.ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	var deleted int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = bulkDeleteItems(tx, stale)
		return err
	})
	return deleted, err
}

// bulkDeleteItems removes items and their dependent rows in chunked
// DELETE-IN statements. Face encodings keep their rows with a nulled
// source; everything else cascades.
func bulkDeleteItems(tx *gorm.DB, ids []uint32) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	const chunk = 500
	var total int64
	for from := 0; from < len(ids); from += chunk {
		to := from + chunk
		if to > len(ids) {
			to = len(ids)
		}
		batch := ids[from:to]

		if err := tx.Exec("DELETE FROM media_item_tags WHERE media_item_id IN ?", batch).Error; err != nil {
			return total, err
		}
		if err := tx.Exec("DELETE FROM media_item_actors WHERE media_item_id IN ?", batch).Error; err != nil {
			return total, err
		}
		if err := tx.Where("media_item_id IN ?", batch).Delete(&database.VideoFingerprint{}).Error; err != nil {
			return total, err
		}
		if err := tx.Where("media_item_id IN ?", batch).Delete(&database.VideoFace{}).Error; err != nil {
			return total, err
		}
		if err := tx.Model(&database.FaceEncoding{}).Where("media_item_id IN ?", batch).
			Update("media_item_id", nil).Error; err != nil {
			return total, err
		}

		res := tx.Where("id IN ?", batch).Delete(&database.MediaItem{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

// updateMutableFields refreshes the reconciler-owned fields only;
// editorial metadata is never overwritten by a rescan.
func updateMutableFields(tx *gorm.DB, item *database.MediaItem, f *FileInfo, nowEpoch int64) error {
	return tx.Model(item).Updates(map[string]interface{}{
		"name":                 f.Name,
		"size":                 f.Size,
		"modified":             f.Modified,
		"extension":            f.Extension,
		"media_type":           f.MediaType,
		"subcategory":          f.Subcategory,
		"relative_path":        f.RelativePath,
		"thumbnail_updated_at": nowEpoch,
	}).Error
}

func insertItem(tx *gorm.DB, f FileInfo, nowEpoch int64) error {
	item := database.MediaItem{
		Path:               f.Path,
		Name:               f.Name,
		DisplayName:        utils.StemName(f.Name),
		Category:           f.Category,
		Subcategory:        f.Subcategory,
		RelativePath:       f.RelativePath,
		Size:               f.Size,
		Modified:           f.Modified,
		Extension:          f.Extension,
		MediaType:          f.MediaType,
		ThumbnailGenerated: database.ThumbnailNone,
		ThumbnailUpdatedAt: nowEpoch,
	}
	if err := tx.Create(&item).Error; err != nil {
		return err
	}
	return tx.Model(&item).Update("thumbnail_url", fmt.Sprintf("/api/thumbnails/%d", item.ID)).Error
}

func upsertScanStatus(tx *gorm.DB, category string, count int, took time.Duration) error {
	now := time.Now()
	var status database.FolderScanStatus
	err := tx.Where("category = ?", category).First(&status).Error
	if err == gorm.ErrRecordNotFound {
		return tx.Create(&database.FolderScanStatus{
			Category:     category,
			LastScanned:  &now,
			VideoCount:   count,
			ScanDuration: took.Seconds(),
			IsScanned:    true,
		}).Error
	}
	if err != nil {
		return err
	}
	return tx.Model(&status).Updates(map[string]interface{}{
		"last_scanned":  now,
		"video_count":   count,
		"scan_duration": took.Seconds(),
		"is_scanned":    true,
	}).Error
}
