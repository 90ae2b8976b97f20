package mediamodule

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/clipperhq/clipper/internal/database"
	"github.com/clipperhq/clipper/internal/events"
	"github.com/clipperhq/clipper/internal/logger"
	"github.com/clipperhq/clipper/internal/modules/scannermodule"
	"github.com/clipperhq/clipper/internal/modules/thumbnailmodule"
	"github.com/clipperhq/clipper/internal/utils"
)

// DeleteCategory is the soft-delete holding folder under the root.
const DeleteCategory = "DELETE"

// Mover is the single entry point for any change to a media item's
// on-disk location or name. Filesystem first, then thumbnail rekey, then
// the catalog row; a DB failure after a successful rename triggers a
// compensating reverse rename.
type Mover struct {
	db   *gorm.DB
	root string
}

// NewMover creates a move coordinator over the active root.
func NewMover(db *gorm.DB, root string) *Mover {
	return &Mover{db: db, root: root}
}

// destinationDir resolves the directory for a category, creating it
// unless the category is the virtual root.
func (m *Mover) destinationDir(category string) (string, error) {
	if strings.ContainsRune(category, os.PathSeparator) || strings.Contains(category, "/") {
		return "", fmt.Errorf("category name must not contain path separators: %s", category)
	}
	if category == scannermodule.RootCategory {
		return m.root, nil
	}
	dir := filepath.Join(m.root, category)
	if err := utils.EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// relocate performs the rename-rehash-commit sequence shared by every
// move flavor.
func (m *Mover) relocate(item *database.MediaItem, dstPath, category string, subcategory *string, displayName string) error {
	if _, err := os.Stat(item.Path); err != nil {
		return fmt.Errorf("source missing: %w", err)
	}
	if _, err := os.Stat(dstPath); err == nil {
		return fmt.Errorf("destination already exists: %s", dstPath)
	}

	oldPath := item.Path
	if err := os.Rename(oldPath, dstPath); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	if _, err := thumbnailmodule.GetService().Rehash(oldPath, dstPath); err != nil {
		logger.Debug("Thumbnail rehash %s -> %s failed: %v", oldPath, dstPath, err)
	}

	info, err := os.Stat(dstPath)
	if err != nil {
		return fmt.Errorf("stat destination: %w", err)
	}

	categoryDir := filepath.Join(m.root, category)
	if category == scannermodule.RootCategory {
		categoryDir = m.root
	}
	rel, _ := filepath.Rel(categoryDir, dstPath)

	updates := map[string]interface{}{
		"path":          dstPath,
		"name":          info.Name(),
		"category":      category,
		"subcategory":   subcategory,
		"relative_path": rel,
		"size":          info.Size(),
		"modified":      info.ModTime(),
		"extension":     strings.TrimPrefix(strings.ToLower(filepath.Ext(dstPath)), "."),
	}
	if displayName != "" {
		updates["display_name"] = displayName
	}

	if err := m.db.Model(&database.MediaItem{}).Where("id = ?", item.ID).
		Updates(updates).Error; err != nil {
		// Compensate: put the file back where the catalog thinks it is.
		if revErr := os.Rename(dstPath, oldPath); revErr != nil {
			logger.Error("Compensating rename %s -> %s failed: %v", dstPath, oldPath, revErr)
		} else {
			_, _ = thumbnailmodule.GetService().Rehash(dstPath, oldPath)
		}
		return fmt.Errorf("catalog update: %w", err)
	}

	item.Path = dstPath
	item.Category = category
	events.Publish(events.Event{
		Type: events.EventMediaMoved, Source: "media",
		Data: map[string]interface{}{"id": item.ID, "from": oldPath, "to": dstPath},
	})
	return nil
}

// Move relocates an item into another category (optionally a subfolder
// of it), keeping the filename.
func (m *Mover) Move(item *database.MediaItem, category string, subfolder string) error {
	dir, err := m.destinationDir(category)
	if err != nil {
		return err
	}
	var subcategory *string
	if subfolder != "" {
		if strings.Contains(subfolder, "..") {
			return fmt.Errorf("invalid subfolder: %s", subfolder)
		}
		dir = filepath.Join(dir, subfolder)
		if err := utils.EnsureDir(dir); err != nil {
			return err
		}
		sub := filepath.ToSlash(subfolder)
		subcategory = &sub
	}
	return m.relocate(item, filepath.Join(dir, item.Name), category, subcategory, "")
}

// Rename changes an item's filename in place. A new name without an
// extension inherits the source's.
func (m *Mover) Rename(item *database.MediaItem, newName string) error {
	if newName == "" || strings.ContainsAny(newName, "/\\") {
		return fmt.Errorf("invalid name: %q", newName)
	}
	if filepath.Ext(newName) == "" && item.Extension != "" {
		newName += "." + item.Extension
	}
	dstPath := filepath.Join(filepath.Dir(item.Path), newName)
	return m.relocate(item, dstPath, item.Category, item.Subcategory, utils.StemName(newName))
}

// HashRename renames an item to a deterministic 16-character identifier
// derived from its content hash. Collisions are refused.
func (m *Mover) HashRename(item *database.MediaItem) (string, error) {
	sha, err := utils.HashFileSHA1(item.Path)
	if err != nil {
		return "", err
	}
	id, err := utils.MixedIndexID(sha)
	if err != nil {
		return "", err
	}

	newName := id
	if item.Extension != "" {
		newName += "." + item.Extension
	}
	dstPath := filepath.Join(filepath.Dir(item.Path), newName)
	if dstPath == item.Path {
		return id, nil
	}
	if _, err := os.Stat(dstPath); err == nil {
		return "", fmt.Errorf("hash-name collision: %s", newName)
	}
	if err := m.relocate(item, dstPath, item.Category, item.Subcategory, id); err != nil {
		return "", err
	}
	return id, nil
}

// RenameFolder renames a top-level category and rewrites every item it
// contains. Subdirectories are refused.
func (m *Mover) RenameFolder(oldName, newName string) (int64, error) {
	if oldName == scannermodule.RootCategory || newName == "" {
		return 0, fmt.Errorf("invalid folder rename: %q -> %q", oldName, newName)
	}
	if strings.ContainsAny(oldName, "/\\") || strings.ContainsAny(newName, "/\\") {
		return 0, fmt.Errorf("only top-level folders can be renamed")
	}

	oldDir := filepath.Join(m.root, oldName)
	newDir := filepath.Join(m.root, newName)
	if _, err := os.Stat(newDir); err == nil {
		return 0, fmt.Errorf("destination folder already exists: %s", newName)
	}
	if err := os.Rename(oldDir, newDir); err != nil {
		return 0, fmt.Errorf("rename folder: %w", err)
	}

	var items []database.MediaItem
	if err := m.db.Where("category = ?", oldName).Find(&items).Error; err != nil {
		_ = os.Rename(newDir, oldDir)
		return 0, err
	}

	err := m.db.Transaction(func(tx *gorm.DB) error {
		for i := range items {
			oldPath := items[i].Path
			rel, err := filepath.Rel(oldDir, oldPath)
			if err != nil {
				return err
			}
			newPath := filepath.Join(newDir, rel)
			if err := tx.Model(&database.MediaItem{}).Where("id = ?", items[i].ID).
				Updates(map[string]interface{}{
					"path":     newPath,
					"category": newName,
				}).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&database.FolderScanStatus{}).
			Where("category = ?", oldName).
			Update("category", newName).Error; err != nil {
			return err
		}
		return renameGroupFolders(tx, oldName, newName)
	})
	if err != nil {
		if revErr := os.Rename(newDir, oldDir); revErr != nil {
			logger.Error("Compensating folder rename %s -> %s failed: %v", newName, oldName, revErr)
		}
		return 0, fmt.Errorf("catalog update: %w", err)
	}

	for i := range items {
		rel, err := filepath.Rel(oldDir, items[i].Path)
		if err != nil {
			continue
		}
		_, _ = thumbnailmodule.GetService().Rehash(items[i].Path, filepath.Join(newDir, rel))
	}
	return int64(len(items)), nil
}

// SoftDelete moves an item into the DELETE holding category. The
// original category is returned for undo.
func (m *Mover) SoftDelete(item *database.MediaItem) (string, error) {
	previous := item.Category
	if previous == DeleteCategory {
		return previous, nil
	}
	if err := m.Move(item, DeleteCategory, ""); err != nil {
		return "", err
	}
	return previous, nil
}

// PermanentDelete removes the file and its catalog row. Only items
// already in the DELETE category qualify; the interlock forces the
// two-step flow.
func (m *Mover) PermanentDelete(item *database.MediaItem) error {
	if item.Category != DeleteCategory {
		return ErrNotInDeleteCategory
	}

	if err := os.Remove(item.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}

	err := m.db.Transaction(func(tx *gorm.DB) error {
		_, err := deleteItemRows(tx, item.ID)
		return err
	})
	if err != nil {
		return err
	}

	events.Publish(events.Event{
		Type: events.EventMediaDeleted, Source: "media",
		Data: map[string]interface{}{"id": item.ID, "path": item.Path},
	})
	return nil
}

// ErrNotInDeleteCategory guards permanent deletion.
var ErrNotInDeleteCategory = fmt.Errorf("item must be soft-deleted first")

// deleteItemRows cascades one item's dependent rows the same way bulk
// reconciliation does: join rows and child rows go, face encodings keep
// their vectors with a nulled source.
func deleteItemRows(tx *gorm.DB, id uint32) (int64, error) {
	if err := tx.Exec("DELETE FROM media_item_tags WHERE media_item_id = ?", id).Error; err != nil {
		return 0, err
	}
	if err := tx.Exec("DELETE FROM media_item_actors WHERE media_item_id = ?", id).Error; err != nil {
		return 0, err
	}
	if err := tx.Where("media_item_id = ?", id).Delete(&database.VideoFingerprint{}).Error; err != nil {
		return 0, err
	}
	if err := tx.Where("media_item_id = ?", id).Delete(&database.VideoFace{}).Error; err != nil {
		return 0, err
	}
	if err := tx.Model(&database.FaceEncoding{}).Where("media_item_id = ?", id).
		Update("media_item_id", nil).Error; err != nil {
		return 0, err
	}
	res := tx.Delete(&database.MediaItem{}, id)
	return res.RowsAffected, res.Error
}

// stampUpdated bumps the row's updated_at without touching content.
func stampUpdated(tx *gorm.DB, id uint32) error {
	return tx.Model(&database.MediaItem{}).Where("id = ?", id).
		Update("updated_at", time.Now()).Error
}
