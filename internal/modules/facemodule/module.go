// Package facemodule is the face identity catalog: embedding ingestion,
// cosine search, merge and cleanup tooling, and video linkage. The
// embedding model itself lives behind an external subprocess contract.
package facemodule

import (
	"net/http"
	"os"
	"path/filepath"
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
	ModuleID   = "system.faces"
	ModuleName = "Face Engine"
)

// Module wires the face engine into the module system.
type Module struct {
	logger hclog.Logger
}

// Register registers the face module with the module system.
func Register() {
	modulemanager.Register(&Module{})
}

func (m *Module) ID() string   { return ModuleID }
func (m *Module) Name() string { return ModuleName }
func (m *Module) Core() bool   { return false }

func (m *Module) Migrate(db *gorm.DB) error { return nil }

func (m *Module) Init() error {
	m.logger = hclog.New(&hclog.LoggerOptions{
		Name:  "faces",
		Level: hclog.Info,
	})
	return nil
}

// OnRootSwitch resets the embedder handle; the first detection after the
// switch reinitializes it.
func (m *Module) OnRootSwitch(newRoot string) error {
	GetEmbedder().Reset()
	return nil
}

func (m *Module) engine() *Engine {
	return NewEngine(database.GetDB(), m.logger)
}

// RegisterRoutes wires the face API.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	faces := router.Group("/api/faces")
	{
		faces.POST("/search", m.searchByImage)
		faces.GET("/search", m.searchByName)
		faces.POST("/create", m.createFace)
		faces.GET("/catalog", m.catalog)
		faces.GET("/stats", m.stats)
		faces.POST("/merge", m.merge)
		faces.POST("/compare", m.compare)
		faces.GET("/group/similar", m.groupSimilar)
		faces.POST("/cleanup-orphans", m.cleanupOrphans)

		faces.GET("/:id", m.getFace)
		faces.PUT("/:id", m.updateFace)
		faces.DELETE("/:id", m.deleteFace)
		faces.POST("/:id/add-encoding", m.addEncoding)
		faces.GET("/:id/encodings", m.listEncodings)
		faces.DELETE("/:id/encodings/:encodingId", m.deleteEncoding)
		faces.GET("/:id/cleanup/encodings", m.cleanupEncodings)
		faces.GET("/:id/best-encoding", m.bestEncoding)
		faces.GET("/:id/duplicate-analysis", m.duplicateAnalysis)
		faces.PUT("/:id/primary-encoding/:encodingId", m.setPrimaryEncoding)
		faces.GET("/:id/videos", m.faceVideos)
		faces.GET("/:id/images", m.faceImages)
	}

	videos := router.Group("/api/videos")
	{
		videos.POST("/:id/detect-faces", m.detectFaces)
		videos.POST("/:id/add-detected-faces", m.addDetectedFaces)
		videos.POST("/:id/auto-scan-faces", m.autoScanFaces)
		videos.POST("/:id/faces/:faceId", m.linkFace)
		videos.DELETE("/:id/faces/:faceId", m.unlinkFace)
	}
}

func paramID(c *gin.Context, name string) (uint32, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint32(id), true
}

func faceFromParam(c *gin.Context, e *Engine) (*database.Face, bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return nil, false
	}
	face, err := e.GetFace(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "face not found"})
		return nil, false
	}
	return face, true
}

func itemFromParam(c *gin.Context) (*database.MediaItem, bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return nil, false
	}
	var item database.MediaItem
	if err := database.GetDB().First(&item, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "media item not found"})
		return nil, false
	}
	return &item, true
}

// searchByImage accepts an uploaded face crop, embeds it, and returns
// catalog matches plus the computed encoding for a later commit.
func (m *Module) searchByImage(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}

	tmp, err := os.CreateTemp("", "clipper-search-*"+filepath.Ext(file.Filename))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := c.SaveUploadedFile(file, tmpPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	detections, err := GetEmbedder().Detect(c.Request.Context(), tmpPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(detections) == 0 {
		c.JSON(http.StatusOK, gin.H{"matches": []FaceMatch{}, "detected": false})
		return
	}

	// Best detection by confidence.
	best := detections[0]
	for _, d := range detections[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}

	e := m.engine()
	threshold := e.Thresholds.ManualSearch
	if raw := c.Query("threshold"); raw != "" {
		if t, err := strconv.ParseFloat(raw, 64); err == nil && t > 0 && t <= 1 {
			threshold = t
		}
	}
	matches, err := e.SearchSimilar(best.Encoding, threshold, 10, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"detected":   true,
		"matches":    matches,
		"encoding":   EncodeVector(best.Encoding),
		"thumbnail":  best.Thumbnail,
		"confidence": best.Confidence,
		"quality":    best.Quality,
	})
}

func (m *Module) searchByName(c *gin.Context) {
	var actorID uint32
	if raw := c.Query("actor_id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 32); err == nil {
			actorID = uint32(id)
		}
	}
	entries, err := m.engine().Catalog(c.Query("q"), actorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"faces": entries})
}

type createFaceRequest struct {
	Name           string  `json:"name" binding:"required"`
	ActorID        *uint32 `json:"actor_id"`
	Encoding       string  `json:"encoding"`
	Thumbnail      string  `json:"thumbnail"`
	Confidence     float64 `json:"confidence"`
	Quality        float64 `json:"quality"`
	MediaItemID    *uint32 `json:"media_item_id"`
	FrameTimestamp float64 `json:"frame_timestamp"`
}

func (m *Module) createFace(c *gin.Context) {
	var req createFaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var seed *Detection
	if req.Encoding != "" {
		vec, err := DecodeVector(req.Encoding)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		seed = &Detection{
			Encoding:   vec,
			Confidence: req.Confidence,
			Quality:    req.Quality,
			Thumbnail:  req.Thumbnail,
		}
	}

	face, err := m.engine().CreateFace(req.Name, req.ActorID, seed, req.MediaItemID, req.FrameTimestamp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, face)
}

func (m *Module) getFace(c *gin.Context) {
	face, ok := faceFromParam(c, m.engine())
	if !ok {
		return
	}
	c.JSON(http.StatusOK, face)
}

type updateFaceRequest struct {
	Name    *string `json:"name"`
	ActorID *uint32 `json:"actor_id"`
}

func (m *Module) updateFace(c *gin.Context) {
	e := m.engine()
	face, ok := faceFromParam(c, e)
	if !ok {
		return
	}
	var req updateFaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil && *req.Name != "" {
		updates["name"] = *req.Name
	}
	if req.ActorID != nil {
		updates["actor_id"] = *req.ActorID
	}
	if len(updates) > 0 {
		if err := database.GetDB().Model(&database.Face{}).
			Where("id = ?", face.ID).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	updated, _ := e.GetFace(face.ID)
	c.JSON(http.StatusOK, updated)
}

func (m *Module) deleteFace(c *gin.Context) {
	e := m.engine()
	face, ok := faceFromParam(c, e)
	if !ok {
		return
	}
	if err := e.DeleteFace(face.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": face.ID})
}

type addEncodingRequest struct {
	Encoding       string  `json:"encoding" binding:"required"`
	Thumbnail      string  `json:"thumbnail"`
	Confidence     float64 `json:"confidence"`
	Quality        float64 `json:"quality"`
	MediaItemID    *uint32 `json:"media_item_id"`
	FrameTimestamp float64 `json:"frame_timestamp"`
}

func (m *Module) addEncoding(c *gin.Context) {
	e := m.engine()
	face, ok := faceFromParam(c, e)
	if !ok {
		return
	}
	var req addEncodingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	vec, err := DecodeVector(req.Encoding)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	det := &Detection{
		Encoding:   vec,
		Confidence: req.Confidence,
		Quality:    req.Quality,
		Thumbnail:  req.Thumbnail,
	}
	status, encID, err := e.AddEncodingToFace(face.ID, det, req.MediaItemID, req.FrameTimestamp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "encoding_id": encID})
}

func (m *Module) listEncodings(c *gin.Context) {
	face, ok := faceFromParam(c, m.engine())
	if !ok {
		return
	}
	var rows []database.FaceEncoding
	if err := database.GetDB().Where("face_id = ?", face.ID).
		Order("quality_score DESC").Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type encodingView struct {
		ID             uint32  `json:"id"`
		MediaItemID    *uint32 `json:"media_item_id"`
		FrameTimestamp float64 `json:"frame_timestamp"`
		Confidence     float64 `json:"confidence"`
		QualityScore   float64 `json:"quality_score"`
		Thumbnail      string  `json:"thumbnail"`
		IsPrimary      bool    `json:"is_primary"`
	}
	views := make([]encodingView, len(rows))
	for i, row := range rows {
		views[i] = encodingView{
			ID:             row.ID,
			MediaItemID:    row.MediaItemID,
			FrameTimestamp: row.FrameTimestamp,
			Confidence:     row.Confidence,
			QualityScore:   row.QualityScore,
			Thumbnail:      row.Thumbnail,
			IsPrimary:      face.PrimaryEncodingID != nil && *face.PrimaryEncodingID == row.ID,
		}
	}
	c.JSON(http.StatusOK, gin.H{"face_id": face.ID, "encodings": views})
}

func (m *Module) deleteEncoding(c *gin.Context) {
	e := m.engine()
	face, ok := faceFromParam(c, e)
	if !ok {
		return
	}
	encID, ok := paramID(c, "encodingId")
	if !ok {
		return
	}
	if err := e.DeleteEncoding(face.ID, encID); err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "encoding not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "encoding_id": encID})
}

func (m *Module) cleanupEncodings(c *gin.Context) {
	e := m.engine()
	face, ok := faceFromParam(c, e)
	if !ok {
		return
	}
	threshold := 0.0
	if raw := c.Query("threshold"); raw != "" {
		if t, err := strconv.ParseFloat(raw, 64); err == nil {
			threshold = t
		}
	}
	scored, err := e.CleanupView(face.ID, threshold)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"face_id": face.ID, "encodings": scored})
}

func (m *Module) bestEncoding(c *gin.Context) {
	e := m.engine()
	face, ok := faceFromParam(c, e)
	if !ok {
		return
	}
	primary, err := e.PrimaryEncoding(face)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if primary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "face has no encodings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"encoding_id":   primary.ID,
		"quality_score": primary.QualityScore,
		"confidence":    primary.Confidence,
		"thumbnail":     primary.Thumbnail,
		"user_chosen":   face.PrimaryEncodingID != nil && *face.PrimaryEncodingID == primary.ID,
	})
}

func (m *Module) duplicateAnalysis(c *gin.Context) {
	e := m.engine()
	face, ok := faceFromParam(c, e)
	if !ok {
		return
	}
	suggestions, err := e.DuplicateAnalysis(face.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"face_id": face.ID, "suggestions": suggestions})
}

func (m *Module) setPrimaryEncoding(c *gin.Context) {
	e := m.engine()
	face, ok := faceFromParam(c, e)
	if !ok {
		return
	}
	encID, ok := paramID(c, "encodingId")
	if !ok {
		return
	}
	if err := e.SetPrimaryEncoding(face.ID, encID); err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "encoding not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "primary_encoding_id": encID})
}

func (m *Module) faceVideos(c *gin.Context) {
	e := m.engine()
	face, ok := faceFromParam(c, e)
	if !ok {
		return
	}
	items, err := e.MediaForFace(face.ID, database.MediaTypeVideo)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"face_id": face.ID, "videos": items})
}

func (m *Module) faceImages(c *gin.Context) {
	e := m.engine()
	face, ok := faceFromParam(c, e)
	if !ok {
		return
	}
	items, err := e.MediaForFace(face.ID, database.MediaTypeImage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"face_id": face.ID, "images": items})
}

func (m *Module) catalog(c *gin.Context) {
	m.searchByName(c)
}

func (m *Module) stats(c *gin.Context) {
	stats, err := m.engine().Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

type mergeRequest struct {
	FaceIDs []uint32 `json:"face_ids" binding:"required"`
	Name    string   `json:"name"`
	ActorID *uint32  `json:"actor_id"`
}

func (m *Module) merge(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	face, err := m.engine().Merge(req.FaceIDs, req.Name, req.ActorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, face)
}

type compareRequest struct {
	FaceIDs []uint32 `json:"face_ids" binding:"required"`
}

func (m *Module) compare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	matrix, err := m.engine().Compare(req.FaceIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"similarities": matrix})
}

func (m *Module) groupSimilar(c *gin.Context) {
	threshold := 0.0
	if raw := c.Query("threshold"); raw != "" {
		if t, err := strconv.ParseFloat(raw, 64); err == nil {
			threshold = t
		}
	}
	groups, err := m.engine().GroupSimilarFaces(threshold)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups, "group_count": len(groups)})
}

func (m *Module) cleanupOrphans(c *gin.Context) {
	deleted, err := m.engine().CleanupOrphans()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

type detectRequest struct {
	Frames      int     `json:"frames"`
	Fast        bool    `json:"fast"`
	MaxDuration float64 `json:"max_duration"`
}

func (m *Module) detectFaces(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}
	var req detectRequest
	_ = c.ShouldBindJSON(&req)

	candidates, err := m.engine().DetectFaces(
		c.Request.Context(), item, req.Frames, req.Fast, req.MaxDuration)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": item.ID, "candidates": candidates})
}

type commitRequest struct {
	Detections []CommitCandidate `json:"detections" binding:"required"`
}

func (m *Module) addDetectedFaces(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}
	var req commitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	results, err := m.engine().CommitDetections(item, req.Detections, database.DetectionUserSelected)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": item.ID, "results": results})
}

func (m *Module) autoScanFaces(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}
	var req detectRequest
	_ = c.ShouldBindJSON(&req)

	results, err := m.engine().AutoScan(
		c.Request.Context(), item, req.Frames, req.Fast, req.MaxDuration)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": item.ID, "results": results})
}

func (m *Module) linkFace(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}
	faceID, ok := paramID(c, "faceId")
	if !ok {
		return
	}
	e := m.engine()
	if _, err := e.GetFace(faceID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "face not found"})
		return
	}
	if err := e.LinkVideoFace(item.ID, faceID, database.DetectionUserSelected); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "linked", "id": item.ID, "face_id": faceID})
}

func (m *Module) unlinkFace(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}
	faceID, ok := paramID(c, "faceId")
	if !ok {
		return
	}
	if err := m.engine().UnlinkVideoFace(item.ID, faceID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unlinked", "id": item.ID, "face_id": faceID})
}
