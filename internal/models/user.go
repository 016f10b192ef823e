package models

// User is the owner a token is attributed to in audit records. Ownership is
// audit attribution only and never a permission source; grants always come
// from the token itself or its groups.
type User struct {
	BaseModel

	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex" json:"email"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	Tokens []AccessToken `gorm:"foreignKey:UserID" json:"-"`
}
