package mediamodule

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/clipperhq/clipper/internal/database"
)

// NormalizeActorName trims and title-cases an actor name.
func NormalizeActorName(name string) string {
	fields := strings.Fields(name)
	for i, f := range fields {
		runes := []rune(strings.ToLower(f))
		if len(runes) > 0 {
			runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
		}
		fields[i] = string(runes)
	}
	return strings.Join(fields, " ")
}

// GetOrCreateActor finds an actor by normalized name, creating on demand.
func GetOrCreateActor(tx *gorm.DB, name string) (*database.Actor, error) {
	name = NormalizeActorName(name)
	if name == "" {
		return nil, fmt.Errorf("empty actor name")
	}

	var actor database.Actor
	err := tx.Where("name = ?", name).First(&actor).Error
	switch err {
	case nil:
		return &actor, nil
	case gorm.ErrRecordNotFound:
		actor = database.Actor{Name: name}
		if err := tx.Create(&actor).Error; err != nil {
			return nil, err
		}
		return &actor, nil
	default:
		return nil, err
	}
}

// LinkActor attaches an actor to an item, maintaining the denormalized
// video_count. Already-linked pairs are a no-op.
func LinkActor(db *gorm.DB, itemID, actorID uint32) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Table("media_item_actors").
			Where("media_item_id = ? AND actor_id = ?", itemID, actorID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if err := tx.Exec("INSERT INTO media_item_actors (media_item_id, actor_id) VALUES (?, ?)",
			itemID, actorID).Error; err != nil {
			return err
		}
		return tx.Model(&database.Actor{}).Where("id = ?", actorID).
			UpdateColumn("video_count", gorm.Expr("video_count + 1")).Error
	})
}

// UnlinkActor detaches an actor from an item.
func UnlinkActor(db *gorm.DB, itemID, actorID uint32) error {
	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Exec("DELETE FROM media_item_actors WHERE media_item_id = ? AND actor_id = ?",
			itemID, actorID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return tx.Model(&database.Actor{}).
			Where("id = ? AND video_count > 0", actorID).
			UpdateColumn("video_count", gorm.Expr("video_count - 1")).Error
	})
}

// DeleteActor removes an actor and its links.
func DeleteActor(db *gorm.DB, actorID uint32) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM media_item_actors WHERE actor_id = ?", actorID).Error; err != nil {
			return err
		}
		if err := tx.Model(&database.Face{}).Where("actor_id = ?", actorID).
			Update("actor_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&database.Actor{}, actorID).Error
	})
}

// RecountActorVideos rebuilds the denormalized counter from the links.
func RecountActorVideos(db *gorm.DB, actorID uint32) error {
	var count int64
	if err := db.Table("media_item_actors").
		Where("actor_id = ?", actorID).Count(&count).Error; err != nil {
		return err
	}
	return db.Model(&database.Actor{}).Where("id = ?", actorID).
		Update("video_count", count).Error
}
