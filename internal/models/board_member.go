package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Board membership roles.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// BoardMember relates a user to a board with a role. The composite unique
// index is the storage-level backstop against double admission when two
// invitation acceptances race.
type BoardMember struct {
	ID       string    `gorm:"primaryKey;type:uuid" json:"id"`
	BoardID  string    `gorm:"type:uuid;not null;uniqueIndex:idx_board_user;index" json:"board_id"`
	UserID   string    `gorm:"type:uuid;not null;uniqueIndex:idx_board_user;index" json:"user_id"`
	Role     string    `gorm:"not null;default:member" json:"role"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// BeforeCreate ensures UUID identifiers are generated automatically.
func (m *BoardMember) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// IsAdmin reports whether the membership grants administrative rights.
func (m *BoardMember) IsAdmin() bool {
	return m.Role == RoleOwner || m.Role == RoleAdmin
}

// ValidRole reports whether role is one of the known membership roles.
func ValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}
