package mediamodule

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/clipperhq/clipper/internal/database"
)

// FolderGroupInput is the mutable shape of a sidebar folder group.
type FolderGroupInput struct {
	Name     string   `json:"name"`
	Folders  []string `json:"folders"`
	Icon     string   `json:"icon"`
	Color    string   `json:"color"`
	Position *int     `json:"position"`
}

// CreateFolderGroup stores a new group with a fresh UUID, appended after
// the current groups unless a position is given.
func CreateFolderGroup(db *gorm.DB, in FolderGroupInput) (*database.FolderGroup, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("group name required")
	}

	folders, err := json.Marshal(in.Folders)
	if err != nil {
		return nil, err
	}

	position := 0
	if in.Position != nil {
		position = *in.Position
	} else {
		var max int
		db.Model(&database.FolderGroup{}).
			Select("COALESCE(MAX(position), -1)").Scan(&max)
		position = max + 1
	}

	group := &database.FolderGroup{
		ID:       uuid.NewString(),
		Name:     in.Name,
		Folders:  datatypes.JSON(folders),
		Icon:     in.Icon,
		Color:    in.Color,
		Position: position,
	}
	if err := db.Create(group).Error; err != nil {
		return nil, err
	}
	return group, nil
}

// UpdateFolderGroup rewrites a group's mutable fields. System groups keep
// their name.
func UpdateFolderGroup(db *gorm.DB, id string, in FolderGroupInput) (*database.FolderGroup, error) {
	var group database.FolderGroup
	if err := db.First(&group, "id = ?", id).Error; err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Name != "" && !group.IsSystem {
		updates["name"] = in.Name
	}
	if in.Folders != nil {
		folders, err := json.Marshal(in.Folders)
		if err != nil {
			return nil, err
		}
		updates["folders"] = datatypes.JSON(folders)
	}
	if in.Icon != "" {
		updates["icon"] = in.Icon
	}
	if in.Color != "" {
		updates["color"] = in.Color
	}
	if in.Position != nil {
		updates["position"] = *in.Position
	}

	if len(updates) > 0 {
		if err := db.Model(&group).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return &group, nil
}

// renameGroupFolders rewrites folder list entries after a category rename
// so sidebar groups keep pointing at the renamed folder.
func renameGroupFolders(tx *gorm.DB, oldName, newName string) error {
	var groups []database.FolderGroup
	if err := tx.Find(&groups).Error; err != nil {
		return err
	}
	for i := range groups {
		if len(groups[i].Folders) == 0 {
			continue
		}
		var folders []string
		if err := json.Unmarshal(groups[i].Folders, &folders); err != nil {
			continue
		}
		changed := false
		for j, name := range folders {
			if name == oldName {
				folders[j] = newName
				changed = true
			}
		}
		if !changed {
			continue
		}
		raw, err := json.Marshal(folders)
		if err != nil {
			return err
		}
		if err := tx.Model(&database.FolderGroup{}).Where("id = ?", groups[i].ID).
			Update("folders", datatypes.JSON(raw)).Error; err != nil {
			return err
		}
	}
	return nil
}

// ListFolderGroups returns all groups ordered by position.
func ListFolderGroups(db *gorm.DB) ([]database.FolderGroup, error) {
	var groups []database.FolderGroup
	err := db.Order("position").Find(&groups).Error
	return groups, err
}

// DeleteFolderGroup removes a group. System groups are refused.
func DeleteFolderGroup(db *gorm.DB, id string) error {
	var group database.FolderGroup
	if err := db.First(&group, "id = ?", id).Error; err != nil {
		return err
	}
	if group.IsSystem {
		return fmt.Errorf("system group cannot be deleted")
	}
	return db.Delete(&group).Error
}
