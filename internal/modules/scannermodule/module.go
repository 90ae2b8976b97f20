// Package scannermodule walks the active root and reconciles disk state
// with the catalog: prune rows for vanished files, upsert arrivals, and
// track per-category scan status. User-assigned metadata survives every
// rescan untouched.
package scannermodule

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/clipperhq/clipper/internal/config"
	"github.com/clipperhq/clipper/internal/database"
	"github.com/clipperhq/clipper/internal/logger"
	"github.com/clipperhq/clipper/internal/modules/modulemanager"
	"github.com/clipperhq/clipper/internal/modules/rootmodule"
)

func init() {
	Register()
}

const (
	ModuleID   = "system.scanner"
	ModuleName = "Scanner"

	// smartRefreshBudget bounds the inline thumbnail pass per invocation.
	smartRefreshBudget = 30 * time.Second
)

// Module implements scanning and reconciliation.
type Module struct {
	watcher *Watcher
}

// Register registers the scanner module with the module system.
func Register() {
	modulemanager.Register(&Module{})
}

func (m *Module) ID() string   { return ModuleID }
func (m *Module) Name() string { return ModuleName }
func (m *Module) Core() bool   { return true }

func (m *Module) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&database.MediaItem{}, &database.FolderScanStatus{})
}

func (m *Module) Init() error {
	if config.Get().Watch {
		m.startWatcher(rootmodule.GetManager().CurrentPath())
	}
	return nil
}

func (m *Module) startWatcher(root string) {
	if root == "" {
		return
	}
	w, err := NewWatcher(root)
	if err != nil {
		logger.Warn("Filesystem watcher unavailable: %v", err)
		return
	}
	m.watcher = w
	logger.Info("Watching root for changes: %s", root)
}

// OnRootSwitch restarts the watcher over the new root.
func (m *Module) OnRootSwitch(newRoot string) error {
	if m.watcher != nil {
		_ = m.watcher.Close()
		m.watcher = nil
	}
	if config.Get().Watch {
		m.startWatcher(newRoot)
	}
	return nil
}

// Shutdown stops the watcher.
func (m *Module) Shutdown(ctx context.Context) error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

func (m *Module) reconciler() *Reconciler {
	return NewReconciler(database.GetDB(), rootmodule.GetManager().CurrentPath())
}

// RegisterRoutes wires the scan API.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/scan")
	{
		api.GET("", m.scanAll)
		api.POST("/folder/:name", m.scanFolderFull)
		api.POST("/folder/:name/scan-only", m.scanFolderOnly)
		api.POST("/folder/:name/smart-refresh", m.smartRefresh)
		api.POST("/video/single", m.scanSingle)
		api.GET("/structure", m.structure)
		api.GET("/subfolders", m.subfolders)
		api.GET("/status", m.status)
	}
}

func (m *Module) scanAll(c *gin.Context) {
	scanner := NewScanner(rootmodule.GetManager().CurrentPath())
	categories, err := scanner.ScanStructure()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rec := m.reconciler()
	results := make([]*ScanResult, 0, len(categories))
	for _, cat := range categories {
		result, err := rec.ScanFolder(cat.Name)
		if err != nil {
			logger.Error("Scan of %s failed: %v", cat.Name, err)
			continue
		}
		results = append(results, result)
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "categories": len(results)})
}

func (m *Module) scanFolderOnly(c *gin.Context) {
	result, err := m.reconciler().ScanFolder(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (m *Module) smartRefresh(c *gin.Context) {
	result, err := m.reconciler().SmartRefresh(c.Param("name"), smartRefreshBudget)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// scanFolderFull is smart refresh with a generous thumbnail budget.
func (m *Module) scanFolderFull(c *gin.Context) {
	result, err := m.reconciler().SmartRefresh(c.Param("name"), 5*time.Minute)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (m *Module) scanSingle(c *gin.Context) {
	var req struct {
		Path           string `json:"path" binding:"required"`
		ForceThumbnail bool   `json:"force_thumbnail"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}

	item, err := m.reconciler().ScanSingle(req.Path, req.ForceThumbnail)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, item)
}

func (m *Module) structure(c *gin.Context) {
	categories, err := NewScanner(rootmodule.GetManager().CurrentPath()).ScanStructure()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (m *Module) subfolders(c *gin.Context) {
	category := c.Query("category")
	if category == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category is required"})
		return
	}
	listing, err := NewScanner(rootmodule.GetManager().CurrentPath()).ScanSubfolders(category, 4)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (m *Module) status(c *gin.Context) {
	var statuses []database.FolderScanStatus
	if err := database.GetDB().Order("category").Find(&statuses).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"folders": statuses})
}
