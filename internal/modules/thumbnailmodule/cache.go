// Package thumbnailmodule implements the content-addressed thumbnail
// store: JPEG rows keyed by the MD5 of the owning file's absolute path,
// generated on demand and rehashed on rename so thumbnails survive moves.
package thumbnailmodule

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/clipperhq/clipper/internal/database"
	"github.com/clipperhq/clipper/internal/utils"
)

// Thumbnail is one cached JPEG in thumbnails.db.
type Thumbnail struct {
	ID        uint32    `gorm:"primaryKey" json:"id"`
	PathHash  string    `gorm:"uniqueIndex;not null" json:"path_hash"`
	Data      []byte    `gorm:"not null" json:"-"`
	Size      int       `json:"size"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CreatedAt time.Time `json:"created_at"`
}

// Cache is the thumbnail store for one root. A root switch closes the
// handle and opens a new store under the new root.
type Cache struct {
	mu sync.RWMutex
	db *gorm.DB
}

// OpenCache opens (or creates) the thumbnail store at path.
func OpenCache(path string) (*Cache, error) {
	db, err := database.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open thumbnail store: %w", err)
	}
	if err := db.AutoMigrate(&Thumbnail{}); err != nil {
		return nil, fmt.Errorf("migrate thumbnail store: %w", err)
	}
	return &Cache{db: db}, nil
}

// Get returns the cached JPEG for a path, or ok=false on a miss.
func (c *Cache) Get(path string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, false, fmt.Errorf("thumbnail cache closed")
	}

	var row Thumbnail
	err := c.db.Where("path_hash = ?", utils.PathKey(path)).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return row.Data, true, nil
}

// Put stores (or replaces) the JPEG for a path.
func (c *Cache) Put(path string, jpegData []byte, width, height int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return fmt.Errorf("thumbnail cache closed")
	}

	key := utils.PathKey(path)
	row := Thumbnail{
		PathHash: key,
		Data:     jpegData,
		Size:     len(jpegData),
		Width:    width,
		Height:   height,
	}

	return c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("path_hash = ?", key).Delete(&Thumbnail{}).Error; err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
}

// Rehash moves a row from the old path key to the new one. Missing rows
// are not an error; the next request regenerates.
func (c *Cache) Rehash(oldPath, newPath string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return false, fmt.Errorf("thumbnail cache closed")
	}

	res := c.db.Model(&Thumbnail{}).
		Where("path_hash = ?", utils.PathKey(oldPath)).
		Update("path_hash", utils.PathKey(newPath))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Cleanup deletes rows whose key matches none of the given paths.
func (c *Cache) Cleanup(validPaths []string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return 0, fmt.Errorf("thumbnail cache closed")
	}

	valid := make(map[string]bool, len(validPaths))
	for _, p := range validPaths {
		valid[utils.PathKey(p)] = true
	}

	var hashes []string
	if err := c.db.Model(&Thumbnail{}).Pluck("path_hash", &hashes).Error; err != nil {
		return 0, err
	}

	var stale []string
	for _, h := range hashes {
		if !valid[h] {
			stale = append(stale, h)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	res := c.db.Where("path_hash IN ?", stale).Delete(&Thumbnail{})
	return res.RowsAffected, res.Error
}

// Stats returns the row count and total stored bytes.
func (c *Cache) Stats() (int64, int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return 0, 0, fmt.Errorf("thumbnail cache closed")
	}

	var count int64
	if err := c.db.Model(&Thumbnail{}).Count(&count).Error; err != nil {
		return 0, 0, err
	}
	var totalBytes int64
	if err := c.db.Model(&Thumbnail{}).Select("COALESCE(SUM(size), 0)").Scan(&totalBytes).Error; err != nil {
		return 0, 0, err
	}
	return count, totalBytes, nil
}

// Close disposes the store handle.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	c.db = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
