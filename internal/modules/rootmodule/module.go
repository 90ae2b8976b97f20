package rootmodule

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/disk"
	"gorm.io/gorm"

	"github.com/clipperhq/clipper/internal/modules/modulemanager"
)

func init() {
	Register()
}

const (
	ModuleID   = "system.roots"
	ModuleName = "Root Manager"
)

// Module exposes the root manager over HTTP.
type Module struct {
	manager *Manager
}

// Register registers the root module with the module system.
func Register() {
	modulemanager.Register(&Module{})
}

func (m *Module) ID() string   { return ModuleID }
func (m *Module) Name() string { return ModuleName }
func (m *Module) Core() bool   { return true }

func (m *Module) Migrate(db *gorm.DB) error { return nil }

func (m *Module) Init() error {
	m.manager = GetManager()
	return nil
}

// RegisterRoutes wires the roots API.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/roots")
	{
		api.GET("", m.listRoots)
		api.POST("/select", m.selectRoot)
	}
}

type rootStatus struct {
	Root
	TotalBytes uint64 `json:"total_bytes,omitempty"`
	FreeBytes  uint64 `json:"free_bytes,omitempty"`
}

func (m *Module) listRoots(c *gin.Context) {
	roots := m.manager.List()
	out := make([]rootStatus, 0, len(roots))
	for _, r := range roots {
		rs := rootStatus{Root: r}
		if usage, err := disk.Usage(r.Path); err == nil {
			rs.TotalBytes = usage.Total
			rs.FreeBytes = usage.Free
		}
		out = append(out, rs)
	}
	c.JSON(http.StatusOK, gin.H{
		"roots":   out,
		"healthy": m.manager.Healthy(),
	})
}

func (m *Module) selectRoot(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	if err := m.manager.Select(req.Name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	current, _ := m.manager.Current()
	c.JSON(http.StatusOK, gin.H{
		"active": current.Name,
		"path":   current.Path,
	})
}
