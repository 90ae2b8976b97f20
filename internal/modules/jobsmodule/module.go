package jobsmodule

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/clipperhq/clipper/internal/database"
	"github.com/clipperhq/clipper/internal/modules/mediamodule"
	"github.com/clipperhq/clipper/internal/modules/modulemanager"
	"github.com/clipperhq/clipper/internal/modules/rootmodule"
	"github.com/clipperhq/clipper/internal/modules/scannermodule"
	"github.com/clipperhq/clipper/internal/utils"
)

func init() {
	Register()
}

const (
	ModuleID   = "system.jobs"
	ModuleName = "Job Runner"

	jobWorkers = 4
)

// Module runs background jobs over a bounded worker pool.
type Module struct {
	registry *Registry
	pool     *utils.WorkerPool
	logger   hclog.Logger
}

// Register registers the jobs module with the module system.
func Register() {
	modulemanager.Register(&Module{})
}

func (m *Module) ID() string   { return ModuleID }
func (m *Module) Name() string { return ModuleName }
func (m *Module) Core() bool   { return false }

func (m *Module) Migrate(db *gorm.DB) error { return nil }

func (m *Module) Init() error {
	m.registry = NewRegistry()
	m.pool = utils.NewWorkerPool(jobWorkers)
	m.pool.Start()
	m.logger = hclog.New(&hclog.LoggerOptions{
		Name:  "jobs",
		Level: hclog.Info,
	})
	return nil
}

// Shutdown drains the pool; queued jobs finish, new submissions stop.
func (m *Module) Shutdown(ctx context.Context) error {
	m.pool.Stop()
	return nil
}

// RegisterRoutes wires the editor and download APIs.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	editor := router.Group("/api/editor")
	{
		editor.POST("/process", m.processEdit)
		editor.GET("/jobs", m.listJobs(KindEdit))
		editor.GET("/jobs/:id", m.getJob(KindEdit))
		editor.DELETE("/jobs/:id", m.removeJob(KindEdit))
		editor.POST("/jobs/:id/preserve-faces", m.jobPreserveFaces)
		editor.POST("/jobs/:id/copy-metadata", m.jobCopyMetadata)
		editor.POST("/clear-completed", m.clearCompleted(KindEdit))
	}

	downloads := router.Group("/api/downloads")
	{
		downloads.POST("", m.startHLSDownload)
		downloads.GET("", m.listJobs(KindHLSDownload))
		downloads.GET("/:id", m.getJob(KindHLSDownload))
		downloads.DELETE("/:id", m.removeJob(KindHLSDownload))
		downloads.POST("/clear-completed", m.clearCompleted(KindHLSDownload))
	}

	socks := router.Group("/api/socks-downloads")
	{
		socks.POST("", m.startSocksDownload)
		socks.GET("", m.listJobs(KindSocksDownload))
		socks.GET("/:id", m.getJob(KindSocksDownload))
		socks.DELETE("/:id", m.removeJob(KindSocksDownload))
		socks.POST("/clear-completed", m.clearCompleted(KindSocksDownload))
	}

	cfg := router.Group("/api/socks-config")
	{
		cfg.GET("", m.getSocksConfig)
		cfg.POST("/proxy", m.setSocksProxy)
		cfg.DELETE("/proxy", m.clearSocksProxy)
		cfg.POST("/referer", m.setSocksReferer)
		cfg.DELETE("/referer", m.clearSocksReferer)
	}
}

func jobIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return 0, false
	}
	return id, true
}

func (m *Module) submit(job *Job, run func() (string, error)) bool {
	return m.pool.Submit(func() {
		m.registry.MarkProcessing(job.ID)
		outPath, err := run()
		if err != nil {
			m.logger.Warn("job failed", "id", job.ID, "kind", job.Kind, "error", err)
			m.registry.MarkFailed(job.ID, err.Error())
			return
		}
		m.registry.MarkCompleted(job.ID, outPath)
	})
}

func (m *Module) processEdit(c *gin.Context) {
	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := database.GetDB()
	var item database.MediaItem
	if err := db.First(&item, req.MediaItemID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "media item not found"})
		return
	}

	root := rootmodule.GetManager().CurrentPath()
	job := m.registry.Create(KindEdit, map[string]interface{}{
		"source_id": item.ID,
		"operation": req.Operation,
	})
	m.registry.Update(job.ID, func(j *Job) { j.SourcePath = item.Path })

	ok := m.submit(job, func() (string, error) {
		outPath, err := runEdit(context.Background(), db, root, &item, &req)
		if err != nil {
			return "", err
		}

		// Import the output so it gets a catalog row and thumbnail.
		newItem, err := scannermodule.NewReconciler(db, root).ScanSingle(outPath, true)
		if err != nil {
			m.logger.Warn("edit output import failed", "path", outPath, "error", err)
			return outPath, nil
		}
		m.registry.Update(job.ID, func(j *Job) {
			j.Params["output_id"] = newItem.ID
		})

		if req.CopyTags {
			if _, err := mediamodule.CopyItemTags(db, item.ID, newItem.ID); err != nil {
				m.logger.Warn("tag copy failed", "job", job.ID, "error", err)
			}
		}
		if req.PreserveFaces {
			if _, err := preserveFaces(db, item.ID, newItem.ID); err != nil {
				m.logger.Warn("face preserve failed", "job", job.ID, "error", err)
			}
		}
		return outPath, nil
	})
	if !ok {
		m.registry.MarkFailed(job.ID, "job queue full")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job queue full"})
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// outputItem resolves the catalog row an edit job produced.
func (m *Module) outputItem(c *gin.Context) (*Job, *database.MediaItem, *database.MediaItem, bool) {
	id, ok := jobIDParam(c)
	if !ok {
		return nil, nil, nil, false
	}
	job, found := m.registry.Get(id)
	if !found || job.Kind != KindEdit {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return nil, nil, nil, false
	}
	if job.Status != StatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "job has not completed"})
		return nil, nil, nil, false
	}

	db := database.GetDB()
	var src, dst database.MediaItem
	if err := db.Where("path = ?", job.SourcePath).First(&src).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "source item no longer in catalog"})
		return nil, nil, nil, false
	}
	if err := db.Where("path = ?", job.OutputPath).First(&dst).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "output item not in catalog"})
		return nil, nil, nil, false
	}
	return job, &src, &dst, true
}

func (m *Module) jobPreserveFaces(c *gin.Context) {
	job, src, dst, ok := m.outputItem(c)
	if !ok {
		return
	}
	copied, err := preserveFaces(database.GetDB(), src.ID, dst.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": job.ID, "faces_copied": copied})
}

func (m *Module) jobCopyMetadata(c *gin.Context) {
	job, src, dst, ok := m.outputItem(c)
	if !ok {
		return
	}
	db := database.GetDB()
	copied, err := mediamodule.CopyItemTags(db, src.ID, dst.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	err = db.Model(&database.MediaItem{}).Where("id = ?", dst.ID).
		Updates(map[string]interface{}{
			"description": src.Description,
			"series":      src.Series,
			"season":      src.Season,
			"episode":     src.Episode,
			"year":        src.Year,
			"channel":     src.Channel,
		}).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": job.ID, "tags_copied": copied})
}

func (m *Module) startHLSDownload(c *gin.Context) {
	var req HLSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	root := rootmodule.GetManager().CurrentPath()
	job := m.registry.Create(KindHLSDownload, nil)
	m.registry.Update(job.ID, func(j *Job) { j.URL = req.URL })

	ok := m.submit(job, func() (string, error) {
		outPath, err := runHLSDownload(context.Background(), root, &req)
		if err != nil {
			return "", err
		}
		m.registry.Update(job.ID, func(j *Job) { j.URL = urlScrubbed })
		m.importDownload(outPath)
		return outPath, nil
	})
	if !ok {
		m.registry.MarkFailed(job.ID, "job queue full")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job queue full"})
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (m *Module) startSocksDownload(c *gin.Context) {
	var req SocksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	root := rootmodule.GetManager().CurrentPath()
	job := m.registry.Create(KindSocksDownload, nil)
	m.registry.Update(job.ID, func(j *Job) { j.URL = req.URL })

	ok := m.submit(job, func() (string, error) {
		outPath, err := runSocksDownload(context.Background(), root, &req)
		if err != nil {
			return "", err
		}
		m.registry.Update(job.ID, func(j *Job) { j.URL = urlScrubbed })
		m.importDownload(outPath)
		return outPath, nil
	})
	if !ok {
		m.registry.MarkFailed(job.ID, "job queue full")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job queue full"})
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// importDownload registers a finished download in the catalog;
// non-media output (archives, partial files) is simply left on disk.
func (m *Module) importDownload(path string) {
	if !utils.IsVideoPath(path) && !utils.IsImagePath(path) {
		return
	}
	root := rootmodule.GetManager().CurrentPath()
	if _, err := scannermodule.NewReconciler(database.GetDB(), root).ScanSingle(path, true); err != nil {
		m.logger.Debug("download import failed", "path", path, "error", err)
	}
}

func (m *Module) listJobs(kind JobKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"jobs": m.registry.List(kind)})
	}
}

func (m *Module) getJob(kind JobKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := jobIDParam(c)
		if !ok {
			return
		}
		job, found := m.registry.Get(id)
		if !found || job.Kind != kind {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

func (m *Module) removeJob(kind JobKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := jobIDParam(c)
		if !ok {
			return
		}
		job, found := m.registry.Get(id)
		if !found || job.Kind != kind {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		m.registry.Remove(id)
		c.JSON(http.StatusOK, gin.H{"status": "removed", "id": id})
	}
}

func (m *Module) clearCompleted(kind JobKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		removed := m.registry.ClearCompleted(kind)
		c.JSON(http.StatusOK, gin.H{"removed": removed})
	}
}

type socksValueRequest struct {
	Value string `json:"value" binding:"required"`
}

func (m *Module) getSocksConfig(c *gin.Context) {
	proxy, referer := socksConfig.Defaults()
	c.JSON(http.StatusOK, gin.H{"proxy": proxy, "referer": referer})
}

func (m *Module) setSocksProxy(c *gin.Context) {
	var req socksValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	socksConfig.SetProxy(req.Value)
	c.JSON(http.StatusOK, gin.H{"status": "set"})
}

func (m *Module) clearSocksProxy(c *gin.Context) {
	socksConfig.SetProxy("")
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (m *Module) setSocksReferer(c *gin.Context) {
	var req socksValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	socksConfig.SetReferer(req.Value)
	c.JSON(http.StatusOK, gin.H{"status": "set"})
}

func (m *Module) clearSocksReferer(c *gin.Context) {
	socksConfig.SetReferer("")
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}
