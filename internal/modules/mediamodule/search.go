package mediamodule

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/clipperhq/clipper/internal/database"
)

// SearchParams are the catalog search filters. Every filter is optional;
// the DELETE category is excluded unless requested explicitly.
type SearchParams struct {
	Query       string
	Tags        []string
	Category    string
	Subcategory string
	DurationMin float64
	DurationMax float64
	MediaType   string
	Limit       int
}

// FaceSummary is the per-item face digest attached to search results.
type FaceSummary struct {
	FaceID    uint32 `json:"face_id"`
	Name      string `json:"name"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// SearchResult is one catalog item with its relations loaded.
type SearchResult struct {
	database.MediaItem
	Faces []FaceSummary `json:"faces"`
}

// Search runs the catalog query. Text matches case-insensitive substrings
// across names, description, series, episode, channel, tag and actor
// names; an all-digit query additionally matches year exactly. Tags are
// an AND-intersection.
func Search(db *gorm.DB, p SearchParams) ([]SearchResult, error) {
	q := db.Model(&database.MediaItem{}).
		Preload("Tags").Preload("Actors")

	if p.Category != "" {
		q = q.Where("category = ?", p.Category)
	} else {
		q = q.Where("category <> ?", DeleteCategory)
	}
	if p.Subcategory != "" {
		q = q.Where("subcategory = ?", p.Subcategory)
	}
	if p.MediaType != "" {
		q = q.Where("media_type = ?", p.MediaType)
	}
	if p.DurationMin > 0 {
		q = q.Where("duration >= ?", p.DurationMin)
	}
	if p.DurationMax > 0 {
		q = q.Where("duration <= ?", p.DurationMax)
	}

	if text := strings.TrimSpace(p.Query); text != "" {
		like := "%" + strings.ToLower(text) + "%"
		clause := `LOWER(name) LIKE ? OR LOWER(display_name) LIKE ? OR LOWER(description) LIKE ?
			OR LOWER(COALESCE(series, '')) LIKE ? OR LOWER(COALESCE(episode, '')) LIKE ?
			OR LOWER(COALESCE(channel, '')) LIKE ?
			OR id IN (SELECT media_item_id FROM media_item_tags
				JOIN tags ON tags.id = media_item_tags.tag_id WHERE LOWER(tags.name) LIKE ?)
			OR id IN (SELECT media_item_id FROM media_item_actors
				JOIN actors ON actors.id = media_item_actors.actor_id WHERE LOWER(actors.name) LIKE ?)`
		args := []interface{}{like, like, like, like, like, like, like, like}

		if isAllDigits(text) {
			clause += " OR year = ?"
			args = append(args, text)
		}
		q = q.Where("("+clause+")", args...)
	}

	// AND-intersection: one EXISTS per requested tag.
	for _, tag := range p.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		q = q.Where(`id IN (SELECT media_item_id FROM media_item_tags
			JOIN tags ON tags.id = media_item_tags.tag_id WHERE tags.name = ?)`, tag)
	}

	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}

	var items []database.MediaItem
	if err := q.Order("modified DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return attachFaceSummaries(db, items)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// attachFaceSummaries loads the face digest for a batch of items in two
// queries: one join over the links, one thumbnail pass per distinct face.
func attachFaceSummaries(db *gorm.DB, items []database.MediaItem) ([]SearchResult, error) {
	results := make([]SearchResult, len(items))
	if len(items) == 0 {
		return results, nil
	}

	ids := make([]uint32, len(items))
	index := make(map[uint32]int, len(items))
	for i, item := range items {
		results[i] = SearchResult{MediaItem: item, Faces: []FaceSummary{}}
		ids[i] = item.ID
		index[item.ID] = i
	}

	type linkRow struct {
		MediaItemID       uint32
		FaceID            uint32
		Name              string
		PrimaryEncodingID *uint32
	}
	var links []linkRow
	err := db.Table("video_faces").
		Select("video_faces.media_item_id, video_faces.face_id, faces.name, faces.primary_encoding_id").
		Joins("JOIN faces ON faces.id = video_faces.face_id").
		Where("video_faces.media_item_id IN ?", ids).
		Scan(&links).Error
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return results, nil
	}

	faceIDs := make([]uint32, 0, len(links))
	seen := make(map[uint32]bool)
	for _, l := range links {
		if !seen[l.FaceID] {
			seen[l.FaceID] = true
			faceIDs = append(faceIDs, l.FaceID)
		}
	}

	// Best thumbnail per face: highest quality encoding wins.
	type thumbRow struct {
		FaceID    uint32
		Thumbnail string
	}
	var thumbs []thumbRow
	err = db.Table("face_encodings").
		Select("face_id, thumbnail").
		Where("face_id IN ? AND thumbnail <> ''", faceIDs).
		Order("quality_score ASC").
		Scan(&thumbs).Error
	if err != nil {
		return nil, err
	}
	bestThumb := make(map[uint32]string, len(faceIDs))
	for _, t := range thumbs {
		// Ascending order: later rows have higher quality and overwrite.
		bestThumb[t.FaceID] = t.Thumbnail
	}

	for _, l := range links {
		i, ok := index[l.MediaItemID]
		if !ok {
			continue
		}
		results[i].Faces = append(results[i].Faces, FaceSummary{
			FaceID:    l.FaceID,
			Name:      l.Name,
			Thumbnail: bestThumb[l.FaceID],
		})
	}
	return results, nil
}

// Suggestion is one distinct field value with its usage count.
type Suggestion struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// Suggestions lists distinct non-empty values of channel, series or year
// with usage counts, ordered by count descending.
func Suggestions(db *gorm.DB, field string) ([]Suggestion, error) {
	column := ""
	switch field {
	case "channel":
		column = "channel"
	case "series":
		column = "series"
	case "year":
		column = "year"
	default:
		return nil, ErrUnknownSuggestionField
	}

	var out []Suggestion
	err := db.Model(&database.MediaItem{}).
		Select(column+" AS value, COUNT(*) AS count").
		Where(column+" IS NOT NULL AND "+column+" <> ''").
		Where("category <> ?", DeleteCategory).
		Group(column).
		Order("count DESC").
		Scan(&out).Error
	return out, err
}

// ErrUnknownSuggestionField rejects suggestion fields outside the
// supported set.
var ErrUnknownSuggestionField = errors.New("suggestion field must be channel, series or year")
