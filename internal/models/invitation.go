package models

import "time"

// Invitation is a single-use, time-limited token granting member role on a
// board. Consumed invitations are kept for audit rather than deleted; expiry
// is implicit by comparing ExpiresAt against the current time.
type Invitation struct {
	BaseModel

	BoardID   string     `gorm:"type:uuid;not null;index" json:"board_id"`
	Token     string     `gorm:"uniqueIndex;not null" json:"-"`
	CreatedBy string     `gorm:"type:uuid;not null" json:"created_by"`
	ExpiresAt time.Time  `gorm:"index;not null" json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
}

// Usable reports whether the invitation can still be consumed at now.
func (i *Invitation) Usable(now time.Time) bool {
	return i.UsedAt == nil && i.ExpiresAt.After(now)
}
