package models

import "time"

// Community represents a named, joinable group ("subfapp") that scopes posts.
// MemberCount is a denormalized display counter; the membership table is the
// source of truth and Recount is the corrective path when the two diverge.
type Community struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:64;not null;uniqueIndex" json:"name"`
	Slug        string    `gorm:"size:80;not null;uniqueIndex" json:"slug"`
	Description string    `gorm:"type:text" json:"description"`
	ImageURL    string    `gorm:"size:512" json:"image_url"`
	BannerURL   string    `gorm:"size:512" json:"banner_url"`
	// No column default here: gorm omits zero-value fields that carry a
	// default tag on insert, which would silently store private
	// communities as public. Callers always set the value explicitly.
	IsPublic    bool      `gorm:"not null" json:"is_public"`
	MemberCount int64     `gorm:"not null;default:0" json:"member_count"`
	CreatorID   uint      `gorm:"index;not null" json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
