// Package mediamodule is the catalog surface: media CRUD and listing,
// the move/rename coordinator, search, and the tag/actor/folder-group
// APIs.
package mediamodule

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/clipperhq/clipper/internal/database"
	"github.com/clipperhq/clipper/internal/ffmpeg"
	"github.com/clipperhq/clipper/internal/logger"
	"github.com/clipperhq/clipper/internal/modules/modulemanager"
	"github.com/clipperhq/clipper/internal/modules/rootmodule"
)

func init() {
	Register()
}

const (
	ModuleID   = "system.media"
	ModuleName = "Media Catalog"

	defaultPageSize = 50
	maxPageSize     = 200
)

// Module wires the media catalog into the module system.
type Module struct{}

// Register registers the media module with the module system.
func Register() {
	modulemanager.Register(&Module{})
}

func (m *Module) ID() string   { return ModuleID }
func (m *Module) Name() string { return ModuleName }
func (m *Module) Core() bool   { return true }

func (m *Module) Migrate(db *gorm.DB) error { return nil }
func (m *Module) Init() error               { return nil }

func (m *Module) mover() *Mover {
	return NewMover(database.GetDB(), rootmodule.GetManager().CurrentPath())
}

// RegisterRoutes wires the catalog API.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	videos := router.Group("/api/videos")
	{
		videos.GET("/page", m.page)
		videos.POST("/bulk-update", m.bulkUpdate)
		videos.POST("/parse-metadata", m.parseMetadata)

		videos.GET("/:id", m.getItem)
		videos.PUT("/:id", m.updateItem)
		videos.POST("/:id/update", m.updateItem)
		videos.POST("/:id/move", m.moveItem)
		videos.POST("/:id/rename", m.renameItem)
		videos.POST("/:id/hash-rename", m.hashRenameItem)
		videos.POST("/:id/delete", m.softDeleteItem)
		videos.POST("/:id/delete-permanent", m.permanentDeleteItem)
		videos.POST("/:id/toggle-final", m.toggleFinal)

		videos.POST("/:id/tags", m.setItemTags)
		videos.DELETE("/:id/tags/:tagId", m.removeItemTag)
		videos.POST("/:id/actors", m.linkItemActor)
		videos.DELETE("/:id/actors/:actorId", m.unlinkItemActor)
	}

	router.GET("/api/search", m.search)
	router.GET("/api/suggestions", m.suggestions)
	router.POST("/api/folders/rename", m.renameFolder)

	tags := router.Group("/api/tags")
	{
		tags.GET("", m.listTags)
		tags.POST("", m.createTag)
		tags.DELETE("/:id", m.deleteTag)
		tags.POST("/cleanup-unused", m.cleanupUnusedTags)
		tags.POST("/regenerate-colors", m.regenerateTagColors)
	}

	actors := router.Group("/api/actors")
	{
		actors.GET("", m.listActors)
		actors.POST("", m.createActor)
		actors.PUT("/:id", m.updateActor)
		actors.DELETE("/:id", m.deleteActor)
	}

	groups := router.Group("/api/folder-groups")
	{
		groups.GET("", m.listFolderGroups)
		groups.POST("", m.createFolderGroup)
		groups.PUT("/:id", m.updateFolderGroup)
		groups.DELETE("/:id", m.deleteFolderGroup)
	}

	router.GET("/videos/:category", m.listCategory)
	router.GET("/videos/:category/:subcategory", m.listCategory)
}

func paramID(c *gin.Context, name string) (uint32, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint32(id), true
}

func itemFromParam(c *gin.Context) (*database.MediaItem, bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return nil, false
	}
	var item database.MediaItem
	if err := database.GetDB().Preload("Tags").Preload("Actors").
		First(&item, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "media item not found"})
		return nil, false
	}
	return &item, true
}

func (m *Module) page(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(defaultPageSize)))
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	db := database.GetDB()
	q := db.Model(&database.MediaItem{}).Where("category <> ?", DeleteCategory)
	if mt := c.Query("media_type"); mt != "" {
		q = q.Where("media_type = ?", mt)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var items []database.MediaItem
	if err := q.Preload("Tags").Preload("Actors").
		Order("modified DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	results, err := attachFaceSummaries(db, items)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": results,
		"page":  page,
		"size":  size,
		"total": total,
	})
}

func (m *Module) getItem(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}
	results, err := attachFaceSummaries(database.GetDB(), []database.MediaItem{*item})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, results[0])
}

// editableFields are the item columns user updates may touch. Everything
// else belongs to the reconciler or the move coordinator.
var editableFields = map[string]bool{
	"display_name": true,
	"description":  true,
	"series":       true,
	"season":       true,
	"episode":      true,
	"year":         true,
	"channel":      true,
	"rating":       true,
	"favorite":     true,
	"is_final":     true,
}

func filterEditable(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		if editableFields[k] {
			out[k] = v
		}
	}
	return out
}

func (m *Module) updateItem(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}

	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := database.GetDB()
	updates := filterEditable(body)
	if len(updates) > 0 {
		if err := db.Model(&database.MediaItem{}).Where("id = ?", item.ID).
			Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	if rawTags, ok := body["tags"].([]interface{}); ok {
		names := make([]string, 0, len(rawTags))
		for _, t := range rawTags {
			if s, ok := t.(string); ok {
				names = append(names, s)
			}
		}
		if _, err := SetItemTags(db, item.ID, names); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	var updated database.MediaItem
	if err := db.Preload("Tags").Preload("Actors").First(&updated, item.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, updated)
}

type moveRequest struct {
	Category  string `json:"category" binding:"required"`
	Subfolder string `json:"subfolder"`
}

func (m *Module) moveItem(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := m.mover().Move(item, req.Category, req.Subfolder); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "moved", "id": item.ID, "path": item.Path})
}

type renameRequest struct {
	Name string `json:"name" binding:"required"`
}

func (m *Module) renameItem(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := m.mover().Rename(item, req.Name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "renamed", "id": item.ID, "path": item.Path})
}

func (m *Module) hashRenameItem(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}
	id, err := m.mover().HashRename(item)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "renamed", "id": item.ID, "hash_name": id, "path": item.Path})
}

func (m *Module) softDeleteItem(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}
	previous, err := m.mover().SoftDelete(item)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            "deleted",
		"id":                item.ID,
		"previous_category": previous,
	})
}

func (m *Module) permanentDeleteItem(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}
	if err := m.mover().PermanentDelete(item); err != nil {
		if err == ErrNotInDeleteCategory {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "permanently deleted", "id": item.ID})
}

func (m *Module) toggleFinal(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}
	newValue := !item.IsFinal
	if err := database.GetDB().Model(&database.MediaItem{}).
		Where("id = ?", item.ID).Update("is_final", newValue).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": item.ID, "is_final": newValue})
}

type bulkUpdateRequest struct {
	IDs     []uint32               `json:"ids" binding:"required"`
	Updates map[string]interface{} `json:"updates" binding:"required"`
}

func (m *Module) bulkUpdate(c *gin.Context) {
	var req bulkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updates := filterEditable(req.Updates)
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no editable fields in updates"})
		return
	}

	res := database.GetDB().Model(&database.MediaItem{}).
		Where("id IN ?", req.IDs).Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": res.RowsAffected})
}

type parseMetadataRequest struct {
	IDs      []uint32 `json:"ids"`
	Category string   `json:"category"`
}

// parseMetadata probes technical metadata for the requested items,
// committing per item so large batches never hold the write path.
func (m *Module) parseMetadata(c *gin.Context) {
	var req parseMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := database.GetDB()
	q := db.Where("media_type = ?", database.MediaTypeVideo)
	switch {
	case len(req.IDs) > 0:
		q = q.Where("id IN ?", req.IDs)
	case req.Category != "":
		q = q.Where("category = ?", req.Category)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids or category required"})
		return
	}

	var items []database.MediaItem
	if err := q.Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	parsed, failed := 0, 0
	for i := range items {
		info, err := ffmpeg.Probe(context.Background(), items[i].Path)
		if err != nil {
			logger.Debug("Metadata probe failed for %s: %v", items[i].Path, err)
			failed++
			continue
		}
		err = db.Model(&database.MediaItem{}).Where("id = ?", items[i].ID).
			Updates(map[string]interface{}{
				"duration": info.Duration,
				"width":    info.Width,
				"height":   info.Height,
				"codec":    info.Codec,
				"bitrate":  info.Bitrate,
				"fps":      info.FPS,
			}).Error
		if err != nil {
			failed++
			continue
		}
		parsed++
	}
	c.JSON(http.StatusOK, gin.H{"parsed": parsed, "failed": failed, "total": len(items)})
}

func (m *Module) search(c *gin.Context) {
	params := SearchParams{
		Query:       c.Query("q"),
		Category:    c.Query("category"),
		Subcategory: c.Query("subcategory"),
		MediaType:   c.Query("media_type"),
	}
	if raw := c.Query("tags"); raw != "" {
		params.Tags = strings.Split(raw, ",")
	}
	if raw := c.Query("duration_min"); raw != "" {
		params.DurationMin, _ = strconv.ParseFloat(raw, 64)
	}
	if raw := c.Query("duration_max"); raw != "" {
		params.DurationMax, _ = strconv.ParseFloat(raw, 64)
	}
	if raw := c.Query("limit"); raw != "" {
		params.Limit, _ = strconv.Atoi(raw)
	}

	results, err := Search(database.GetDB(), params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

func (m *Module) suggestions(c *gin.Context) {
	field := c.DefaultQuery("field", "channel")
	out, err := Suggestions(database.GetDB(), field)
	if err != nil {
		if err == ErrUnknownSuggestionField {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"field": field, "suggestions": out})
}

type renameFolderRequest struct {
	OldName string `json:"old_name" binding:"required"`
	NewName string `json:"new_name" binding:"required"`
}

func (m *Module) renameFolder(c *gin.Context) {
	var req renameFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := m.mover().RenameFolder(req.OldName, req.NewName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "renamed", "items_updated": updated})
}

// listCategory serves the per-folder catalog listing the UI browses.
func (m *Module) listCategory(c *gin.Context) {
	category := c.Param("category")
	q := database.GetDB().Model(&database.MediaItem{}).
		Preload("Tags").Preload("Actors").
		Where("category = ?", category)
	if sub := c.Param("subcategory"); sub != "" {
		q = q.Where("subcategory = ?", sub)
	}
	if mt := c.Query("media_type"); mt != "" {
		q = q.Where("media_type = ?", mt)
	}

	var items []database.MediaItem
	if err := q.Order("modified DESC").Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	results, err := attachFaceSummaries(database.GetDB(), items)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": category, "items": results, "count": len(results)})
}

type tagNamesRequest struct {
	Tags    []string `json:"tags" binding:"required"`
	Replace bool     `json:"replace"`
}

func (m *Module) setItemTags(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}
	var req tagNamesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		tags []database.Tag
		err  error
	)
	if req.Replace {
		tags, err = SetItemTags(database.GetDB(), item.ID, req.Tags)
	} else {
		tags, err = AddItemTags(database.GetDB(), item.ID, req.Tags)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": item.ID, "tags": tags})
}

func (m *Module) removeItemTag(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}
	tagID, ok := paramID(c, "tagId")
	if !ok {
		return
	}
	if err := RemoveItemTag(database.GetDB(), item.ID, tagID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed", "id": item.ID, "tag_id": tagID})
}

type actorLinkRequest struct {
	ActorID uint32 `json:"actor_id"`
	Name    string `json:"name"`
}

func (m *Module) linkItemActor(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}
	var req actorLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := database.GetDB()
	actorID := req.ActorID
	if actorID == 0 {
		if req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "actor_id or name required"})
			return
		}
		actor, err := GetOrCreateActor(db, req.Name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		actorID = actor.ID
	}

	if err := LinkActor(db, item.ID, actorID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "linked", "id": item.ID, "actor_id": actorID})
}

func (m *Module) unlinkItemActor(c *gin.Context) {
	item, ok := itemFromParam(c)
	if !ok {
		return
	}
	actorID, ok := paramID(c, "actorId")
	if !ok {
		return
	}
	if err := UnlinkActor(database.GetDB(), item.ID, actorID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unlinked", "id": item.ID, "actor_id": actorID})
}

func (m *Module) listTags(c *gin.Context) {
	tags, err := ListTags(database.GetDB())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

type createTagRequest struct {
	Name string `json:"name" binding:"required"`
}

func (m *Module) createTag(c *gin.Context) {
	var req createTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tag, err := GetOrCreateTag(database.GetDB(), req.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, tag)
}

func (m *Module) deleteTag(c *gin.Context) {
	tagID, ok := paramID(c, "id")
	if !ok {
		return
	}
	db := database.GetDB()
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM media_item_tags WHERE tag_id = ?", tagID).Error; err != nil {
			return err
		}
		return tx.Delete(&database.Tag{}, tagID).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "tag_id": tagID})
}

func (m *Module) cleanupUnusedTags(c *gin.Context) {
	deleted, err := DeleteUnusedTags(database.GetDB())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (m *Module) regenerateTagColors(c *gin.Context) {
	updated, err := RegenerateTagColors(database.GetDB())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (m *Module) listActors(c *gin.Context) {
	var actors []database.Actor
	q := database.GetDB().Order("name")
	if search := c.Query("q"); search != "" {
		q = q.Where("name LIKE ?", "%"+NormalizeActorName(search)+"%")
	}
	if err := q.Find(&actors).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"actors": actors})
}

type actorRequest struct {
	Name  string `json:"name" binding:"required"`
	Notes string `json:"notes"`
}

func (m *Module) createActor(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor, err := GetOrCreateActor(database.GetDB(), req.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if req.Notes != "" {
		if err := database.GetDB().Model(actor).Update("notes", req.Notes).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusCreated, actor)
}

func (m *Module) updateActor(c *gin.Context) {
	actorID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := database.GetDB()
	var actor database.Actor
	if err := db.First(&actor, actorID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "actor not found"})
		return
	}
	updates := map[string]interface{}{"notes": req.Notes}
	if req.Name != "" {
		updates["name"] = NormalizeActorName(req.Name)
	}
	if err := db.Model(&actor).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, actor)
}

func (m *Module) deleteActor(c *gin.Context) {
	actorID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := DeleteActor(database.GetDB(), actorID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "actor_id": actorID})
}

func (m *Module) listFolderGroups(c *gin.Context) {
	groups, err := ListFolderGroups(database.GetDB())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (m *Module) createFolderGroup(c *gin.Context) {
	var in FolderGroupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	group, err := CreateFolderGroup(database.GetDB(), in)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (m *Module) updateFolderGroup(c *gin.Context) {
	var in FolderGroupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	group, err := UpdateFolderGroup(database.GetDB(), c.Param("id"), in)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, group)
}

func (m *Module) deleteFolderGroup(c *gin.Context) {
	if err := DeleteFolderGroup(database.GetDB(), c.Param("id")); err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
