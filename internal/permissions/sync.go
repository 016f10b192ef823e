package permissions

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/admingate/admingate/internal/models"
	"github.com/admingate/admingate/internal/resources"
)

// SyncResources persists one Permission row per (resource, action) for every
// registered resource, then attaches the full set to the administrators group
// and the view subset to the read-only group. Safe to run on every start-up.
func SyncResources(ctx context.Context, db *gorm.DB, registry *resources.Registry) error {
	if db == nil {
		return errors.New("permission: db is required")
	}
	if registry == nil {
		return errors.New("permission: registry is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx := db.WithContext(ctx)
	for _, desc := range registry.All() {
		for _, action := range Actions {
			record := models.Permission{
				BaseModel:   models.BaseModel{ID: desc.Name() + ":" + string(action)},
				Resource:    desc.Name(),
				Action:      string(action),
				Description: fmt.Sprintf("Can %s %s", action, desc.Name()),
			}

			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"description"}),
			}).Create(&record).Error; err != nil {
				return fmt.Errorf("permission: sync %s %s: %w", desc.Name(), action, err)
			}
		}
	}

	if err := attachGroupGrants(tx, "administrators", Actions); err != nil {
		return err
	}
	return attachGroupGrants(tx, "read-only", []Action{ActionView})
}

func attachGroupGrants(tx *gorm.DB, groupID string, actions []Action) error {
	var group models.Group
	if err := tx.First(&group, "id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil // seed groups are optional
		}
		return fmt.Errorf("permission: load group %s: %w", groupID, err)
	}

	actionSet := make([]string, 0, len(actions))
	for _, action := range actions {
		actionSet = append(actionSet, string(action))
	}

	var perms []models.Permission
	if err := tx.Where("action IN ?", actionSet).Find(&perms).Error; err != nil {
		return fmt.Errorf("permission: load grants for group %s: %w", groupID, err)
	}

	if len(perms) == 0 {
		return nil
	}
	if err := tx.Model(&group).Association("Permissions").Replace(perms); err != nil {
		return fmt.Errorf("permission: attach grants to group %s: %w", groupID, err)
	}
	return nil
}
