package models

import "time"

// UserRole distinguishes ordinary authors from privileged operators.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// UserModel represents a registered author. Credential management lives in
// the external auth service; this row only anchors ownership and roles.
type UserModel struct {
	Base
	Username      string     `json:"username"        gorm:"uniqueIndex;not null"`
	Name          string     `json:"name"`
	Avatar        string     `json:"avatar"`
	Mail          string     `json:"mail"`
	Role          UserRole   `json:"role"            gorm:"type:varchar(16);default:'user';index"`
	LastLoginTime *time.Time `json:"last_login_time"`
	LastLoginIP   string     `json:"last_login_ip"`
}

func (UserModel) TableName() string { return "users" }

// IsAdmin reports whether the user holds the privileged role.
func (u UserModel) IsAdmin() bool { return u.Role == RoleAdmin }
