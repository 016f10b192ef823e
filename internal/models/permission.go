package models

// Permission is a typed (resource, action) grant. Action is one of
// view/add/change/delete.
type Permission struct {
	BaseModel

	Resource    string `gorm:"not null;uniqueIndex:idx_perm_resource_action" json:"resource"`
	Action      string `gorm:"not null;uniqueIndex:idx_perm_resource_action" json:"action"`
	Description string `json:"description"`

	Groups []Group       `gorm:"many2many:group_permissions;" json:"groups,omitempty"`
	Tokens []AccessToken `gorm:"many2many:token_permissions;" json:"tokens,omitempty"`
}
