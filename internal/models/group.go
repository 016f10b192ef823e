package models

// Group bundles permissions for assignment to access tokens.
type Group struct {
	BaseModel

	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `json:"description"`

	Permissions []Permission  `gorm:"many2many:group_permissions;" json:"permissions,omitempty"`
	Tokens      []AccessToken `gorm:"many2many:token_groups;" json:"tokens,omitempty"`
}
