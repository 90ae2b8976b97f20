package thumbnailmodule

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/clipperhq/clipper/internal/database"
	"github.com/clipperhq/clipper/internal/logger"
	"github.com/clipperhq/clipper/internal/modules/modulemanager"
	"github.com/clipperhq/clipper/internal/modules/rootmodule"
	"github.com/clipperhq/clipper/internal/modules/scannermodule"
)

func init() {
	Register()
}

const (
	ModuleID   = "system.thumbnails"
	ModuleName = "Thumbnail Cache"
)

// Service is the thumbnail subsystem: one open cache per active root.
type Service struct {
	mu sync.RWMutex
	c  *Cache
}

var (
	service     *Service
	serviceOnce sync.Once
)

// GetService returns the process-wide thumbnail service.
func GetService() *Service {
	serviceOnce.Do(func() {
		service = &Service{}
	})
	return service
}

func (s *Service) cache() *Cache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.c
}

// Rehash re-keys a cached thumbnail after a move or rename. Reports
// whether a cached entry existed for the old path.
func (s *Service) Rehash(oldPath, newPath string) (bool, error) {
	c := s.cache()
	if c == nil {
		return false, fmt.Errorf("thumbnail cache unavailable")
	}
	return c.Rehash(oldPath, newPath)
}

// Cleanup drops cached thumbnails whose path is no longer in the catalog.
func (s *Service) Cleanup(validPaths []string) (int64, error) {
	c := s.cache()
	if c == nil {
		return 0, fmt.Errorf("thumbnail cache unavailable")
	}
	return c.Cleanup(validPaths)
}

func (s *Service) openForRoot(root string) error {
	c, err := OpenCache(database.ThumbnailPath(root))
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.c
	s.c = c
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Module wires the thumbnail service into the module system.
type Module struct {
	service *Service
}

// Register registers the thumbnail module with the module system.
func Register() {
	modulemanager.Register(&Module{})
}

func (m *Module) ID() string   { return ModuleID }
func (m *Module) Name() string { return ModuleName }
func (m *Module) Core() bool   { return true }

// Migrate is a no-op: the thumbnail store lives in its own database,
// migrated when the cache opens.
func (m *Module) Migrate(db *gorm.DB) error { return nil }

func (m *Module) Init() error {
	m.service = GetService()
	root := rootmodule.GetManager().CurrentPath()
	if root == "" {
		return fmt.Errorf("no active root for thumbnail cache")
	}
	if err := m.service.openForRoot(root); err != nil {
		return err
	}
	scannermodule.SetThumbnailGenerator(m.service)
	return nil
}

// OnRootSwitch re-points the cache at the new root's thumbnail store.
func (m *Module) OnRootSwitch(newRoot string) error {
	return m.service.openForRoot(newRoot)
}

// Shutdown closes the cache.
func (m *Module) Shutdown(ctx context.Context) error {
	if c := m.service.cache(); c != nil {
		return c.Close()
	}
	return nil
}

// RegisterRoutes wires the thumbnail API.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/thumbnails")
	{
		api.GET("/stats", m.stats)
		api.GET("/:id", m.serveThumbnail)
		api.POST("/generate/:id", m.generateThumbnail)
		api.POST("/preview/:id", m.previewFrame)
	}
}

func itemFromParam(c *gin.Context) (*database.MediaItem, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return nil, false
	}
	var item database.MediaItem
	if err := database.GetDB().First(&item, uint32(id)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "media item not found"})
		return nil, false
	}
	return &item, true
}

// serveThumbnail delivers the cached JPEG with ETag validation, generating
// on a miss. Scan-only scans defer thumbnails to this path.
func (m *Module) serveThumbnail(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}

	etag := fmt.Sprintf("\"%d-%d\"", item.ID, item.Modified.Unix())
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}

	cache := m.service.cache()
	if cache == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "thumbnail cache unavailable"})
		return
	}

	data, found, err := cache.Get(item.Path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		if err := m.service.GenerateForItem(item, "00:00:01", false); err != nil {
			logger.Debug("On-demand thumbnail for %s failed: %v", item.Path, err)
			c.JSON(http.StatusNotFound, gin.H{"error": "thumbnail unavailable"})
			return
		}
		data, _, err = cache.Get(item.Path)
		if err != nil || data == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "thumbnail unavailable"})
			return
		}
	}

	c.Header("ETag", etag)
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "image/jpeg", data)
}

func (m *Module) generateThumbnail(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}

	timestamp := c.DefaultQuery("time", "00:00:01")
	if err := m.service.GenerateForItem(item, timestamp, true); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":               "generated",
		"id":                   item.ID,
		"thumbnail_updated_at": item.ThumbnailUpdatedAt,
	})
}

// previewFrame extracts a frame at an arbitrary timestamp without caching,
// used by the editor for scrubbing.
func (m *Module) previewFrame(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}

	timestamp := c.DefaultQuery("time", "00:00:01")
	data, _, _, err := generate(c.Request.Context(), item.Path, item.MediaType, timestamp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

func (m *Module) stats(c *gin.Context) {
	cache := m.service.cache()
	if cache == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "thumbnail cache unavailable"})
		return
	}
	count, totalBytes, err := cache.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count, "total_bytes": totalBytes})
}
