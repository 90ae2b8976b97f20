package fingerprintmodule

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/clipperhq/clipper/internal/database"
	"github.com/clipperhq/clipper/internal/modules/modulemanager"
)

func init() {
	Register()
}

const (
	ModuleID   = "system.fingerprints"
	ModuleName = "Duplicate Detection"
)

// Module wires the fingerprint engine into the module system.
type Module struct {
	logger hclog.Logger
}

// Register registers the fingerprint module with the module system.
func Register() {
	modulemanager.Register(&Module{})
}

func (m *Module) ID() string   { return ModuleID }
func (m *Module) Name() string { return ModuleName }
func (m *Module) Core() bool   { return false }

func (m *Module) Migrate(db *gorm.DB) error { return nil }

func (m *Module) Init() error {
	m.logger = hclog.New(&hclog.LoggerOptions{
		Name:  "fingerprints",
		Level: hclog.Info,
	})
	return nil
}

func (m *Module) engine() *Engine {
	return NewEngine(database.GetDB(), m.logger)
}

// RegisterRoutes wires the fingerprint API.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	videos := router.Group("/api/videos")
	{
		videos.POST("/:id/fingerprint", m.generateFingerprint)
		videos.DELETE("/:id/fingerprint", m.deleteFingerprint)
		videos.GET("/:id/fingerprints", m.listFingerprints)
		videos.GET("/:id/check-duplicate", m.checkDuplicate)
	}

	fp := router.Group("/api/fingerprints")
	{
		fp.GET("/find-all-duplicates", m.findAllDuplicates)
		fp.GET("/stats", m.stats)
		fp.GET("/stats/by-folder", m.statsByFolder)
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

func thresholdQuery(c *gin.Context) int {
	threshold := DefaultThreshold
	if raw := c.Query("threshold"); raw != "" {
		if t, err := strconv.Atoi(raw); err == nil && t > 0 && t <= 64 {
			threshold = t
		}
	}
	return threshold
}

func (m *Module) generateFingerprint(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}

	count, err := m.engine().GenerateForItem(c.Request.Context(), item)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "fingerprinted",
		"id":           item.ID,
		"hashes_added": count,
	})
}

func (m *Module) deleteFingerprint(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}
	if err := m.engine().DeleteForItem(item.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": item.ID})
}

func (m *Module) listFingerprints(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}
	rows, err := m.engine().ListForItem(item.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": item.ID, "fingerprints": rows})
}

func (m *Module) checkDuplicate(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}

	matches, err := m.engine().CheckDuplicate(
		c.Request.Context(), item, thresholdQuery(c), c.Query("folder"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         item.ID,
		"matches":    matches,
		"duplicates": len(matches) > 0,
	})
}

func (m *Module) findAllDuplicates(c *gin.Context) {
	groups, err := m.engine().FindAllGroups(thresholdQuery(c), c.Query("folder"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups, "group_count": len(groups)})
}

func (m *Module) stats(c *gin.Context) {
	s, err := m.engine().GlobalStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (m *Module) statsByFolder(c *gin.Context) {
	stats, err := m.engine().StatsByFolder()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"folders": stats})
}
