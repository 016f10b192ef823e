package models

import (
	"time"
)

// AccessToken authenticates remote callers of the command endpoint.
//
// The presented credential is split into a public identifier, used for an
// indexed equality lookup, and a private secret that is only ever stored as a
// salted Argon2id hash. The plaintext secret is surfaced exactly once, at
// generation time.
//
// Permissions come from the token's direct grants and its groups, never from
// the owning user; UserID exists solely so audit records can be attributed.
type AccessToken struct {
	BaseModel

	Name       string `gorm:"not null" json:"name"`
	Identifier string `gorm:"uniqueIndex;not null" json:"identifier"`
	SecretHash string `gorm:"not null" json:"-"`
	Salt       []byte `gorm:"not null" json:"-"`

	UserID *string `gorm:"type:uuid;index" json:"user_id"`
	User   *User   `gorm:"foreignKey:UserID" json:"user,omitempty"`

	IsActive bool `gorm:"default:true;index" json:"is_active"`

	// ExpiresAt nil means the token never expires.
	ExpiresAt  *time.Time `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`

	Groups      []Group      `gorm:"many2many:token_groups;" json:"groups,omitempty"`
	Permissions []Permission `gorm:"many2many:token_permissions;" json:"permissions,omitempty"`
}

// IsExpired reports whether the token has passed its expiry. Tokens without
// an expiry never expire.
func (t *AccessToken) IsExpired(now time.Time) bool {
	if t.ExpiresAt == nil {
		return false
	}
	return now.After(*t.ExpiresAt)
}

// IsValid reports whether the token is active and not expired.
func (t *AccessToken) IsValid(now time.Time) bool {
	return t.IsActive && !t.IsExpired(now)
}
