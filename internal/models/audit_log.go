package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audit record kinds.
const (
	AuditKindCreate = "create"
	AuditKindChange = "change"
	AuditKindDelete = "delete"
)

// AuditLog is an append-only record of a mutation, attributed to the token
// (and its owning user) that performed it. Rows are written inside the same
// transaction as the mutation they document and are never updated.
type AuditLog struct {
	ID      string  `gorm:"primaryKey;type:uuid" json:"id"`
	TokenID *string `gorm:"type:uuid;index" json:"token_id"`
	UserID  *string `gorm:"type:uuid;index" json:"user_id"`

	Resource string `gorm:"not null;index:idx_audit_resource_object" json:"resource"`
	ObjectID string `gorm:"index:idx_audit_resource_object" json:"object_id"`
	// ObjectRepr keeps a human-readable description of the object so the
	// record stays meaningful after the object is deleted.
	ObjectRepr string `gorm:"size:200" json:"object_repr"`

	Kind     string         `gorm:"not null;index" json:"kind"`
	Message  string         `json:"message"`
	Metadata datatypes.JSON `json:"metadata"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
