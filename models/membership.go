package models

import "time"

// Membership roles. Role is set once at creation and never updated in place.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Membership is the authoritative record of one user's relationship to one
// community. At most one row exists per (community_id, user_id) pair; the
// unique index backs the application-level duplicate check.
type Membership struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CommunityID uint      `gorm:"not null;index;uniqueIndex:uk_community_user" json:"community_id"`
	UserID      uint      `gorm:"not null;index;uniqueIndex:uk_community_user" json:"user_id"`
	Role        string    `gorm:"size:16;not null;default:'member'" json:"role"`
	JoinedAt    time.Time `gorm:"not null" json:"joined_at"`
}
