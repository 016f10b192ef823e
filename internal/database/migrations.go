package database

import (
	"gorm.io/gorm"

	"github.com/admingate/admingate/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.Permission{},
		&models.AccessToken{},
		&models.AuditLog{},
	)
}

// Well-known group identifiers created by SeedData.
const (
	AdministratorsGroupID = "administrators"
	ReadOnlyGroupID       = "read-only"
)

// SeedData populates the default permission groups. Group membership of
// individual permissions is maintained by permissions.SyncResources once the
// resource registry is known.
func SeedData(db *gorm.DB) error {
	groups := []models.Group{
		{
			BaseModel:   models.BaseModel{ID: AdministratorsGroupID},
			Name:        "Administrators",
			Description: "Full access to every registered resource",
		},
		{
			BaseModel:   models.BaseModel{ID: ReadOnlyGroupID},
			Name:        "Read Only",
			Description: "View access to every registered resource",
		},
	}

	for _, group := range groups {
		if err := db.Where(models.Group{BaseModel: models.BaseModel{ID: group.ID}}).
			Attrs(group).
			FirstOrCreate(&models.Group{}).Error; err != nil {
			return err
		}
	}

	return nil
}
