package mediamodule

import (
	"fmt"
	"hash/fnv"
	"strings"

	"gorm.io/gorm"

	"github.com/clipperhq/clipper/internal/database"
)

// tagPalette is the fixed color set; a tag's color is a deterministic
// function of its name so the same tag looks the same everywhere.
var tagPalette = []string{
	"#e74c3c", "#e67e22", "#f1c40f", "#2ecc71", "#1abc9c",
	"#3498db", "#9b59b6", "#e84393", "#fd79a8", "#00b894",
	"#0984e3", "#6c5ce7", "#fdcb6e", "#d63031", "#00cec9",
}

// TagColor picks the deterministic palette color for a tag name.
func TagColor(name string) string {
	h := fnv.New32a()
	h.Write([]byte(name))
	return tagPalette[h.Sum32()%uint32(len(tagPalette))]
}

// NormalizeTagName lowercases and trims a tag name.
func NormalizeTagName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// GetOrCreateTag finds a tag by normalized name, creating it on demand.
func GetOrCreateTag(tx *gorm.DB, name string) (*database.Tag, error) {
	name = NormalizeTagName(name)
	if name == "" {
		return nil, fmt.Errorf("empty tag name")
	}

	var tag database.Tag
	err := tx.Where("name = ?", name).First(&tag).Error
	switch err {
	case nil:
		return &tag, nil
	case gorm.ErrRecordNotFound:
		tag = database.Tag{Name: name, Color: TagColor(name)}
		if err := tx.Create(&tag).Error; err != nil {
			return nil, err
		}
		return &tag, nil
	default:
		return nil, err
	}
}

// SetItemTags replaces an item's tag set with the given names.
func SetItemTags(db *gorm.DB, itemID uint32, names []string) ([]database.Tag, error) {
	var tags []database.Tag
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM media_item_tags WHERE media_item_id = ?", itemID).Error; err != nil {
			return err
		}
		seen := make(map[string]bool)
		for _, name := range names {
			name = NormalizeTagName(name)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			tag, err := GetOrCreateTag(tx, name)
			if err != nil {
				return err
			}
			if err := tx.Exec("INSERT INTO media_item_tags (media_item_id, tag_id) VALUES (?, ?)",
				itemID, tag.ID).Error; err != nil {
				return err
			}
			tags = append(tags, *tag)
		}
		return stampUpdated(tx, itemID)
	})
	return tags, err
}

// AddItemTags appends tags to an item, skipping ones it already carries.
func AddItemTags(db *gorm.DB, itemID uint32, names []string) ([]database.Tag, error) {
	var tags []database.Tag
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, name := range names {
			tag, err := GetOrCreateTag(tx, name)
			if err != nil {
				return err
			}
			var count int64
			if err := tx.Table("media_item_tags").
				Where("media_item_id = ? AND tag_id = ?", itemID, tag.ID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				if err := tx.Exec("INSERT INTO media_item_tags (media_item_id, tag_id) VALUES (?, ?)",
					itemID, tag.ID).Error; err != nil {
					return err
				}
			}
			tags = append(tags, *tag)
		}
		return stampUpdated(tx, itemID)
	})
	return tags, err
}

// RemoveItemTag unlinks one tag from an item.
func RemoveItemTag(db *gorm.DB, itemID, tagID uint32) error {
	return db.Exec("DELETE FROM media_item_tags WHERE media_item_id = ? AND tag_id = ?",
		itemID, tagID).Error
}

// TagWithCount is a tag plus its usage count.
type TagWithCount struct {
	database.Tag
	UsageCount int64 `json:"usage_count"`
}

// ListTags returns all tags with usage counts, alphabetical.
func ListTags(db *gorm.DB) ([]TagWithCount, error) {
	var tags []database.Tag
	if err := db.Order("name").Find(&tags).Error; err != nil {
		return nil, err
	}
	out := make([]TagWithCount, len(tags))
	for i, tag := range tags {
		out[i] = TagWithCount{Tag: tag}
		if err := db.Table("media_item_tags").
			Where("tag_id = ?", tag.ID).
			Count(&out[i].UsageCount).Error; err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DeleteUnusedTags bulk-removes tags with zero links.
func DeleteUnusedTags(db *gorm.DB) (int64, error) {
	res := db.Exec(`DELETE FROM tags WHERE NOT EXISTS
		(SELECT 1 FROM media_item_tags WHERE media_item_tags.tag_id = tags.id)`)
	return res.RowsAffected, res.Error
}

// RegenerateTagColors rewrites every tag's color from the palette.
func RegenerateTagColors(db *gorm.DB) (int, error) {
	var tags []database.Tag
	if err := db.Find(&tags).Error; err != nil {
		return 0, err
	}
	for _, tag := range tags {
		if err := db.Model(&database.Tag{}).Where("id = ?", tag.ID).
			Update("color", TagColor(tag.Name)).Error; err != nil {
			return 0, err
		}
	}
	return len(tags), nil
}

// CopyItemTags duplicates the tag links from one item to another, used
// after an edit job imports its output.
func CopyItemTags(db *gorm.DB, fromID, toID uint32) (int64, error) {
	res := db.Exec(`INSERT INTO media_item_tags (media_item_id, tag_id)
		SELECT ?, tag_id FROM media_item_tags
		WHERE media_item_id = ?
		AND tag_id NOT IN (SELECT tag_id FROM media_item_tags WHERE media_item_id = ?)`,
		toID, fromID, toID)
	return res.RowsAffected, res.Error
}
