package models

import "time"

// Post is a content item scoped to exactly one community. AuthorName and
// CommunityName are point-in-time denormalized copies taken at creation and
// may drift from the live records; they are deliberately never reconciled.
type Post struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CommunityID   uint      `gorm:"index;not null" json:"community_id"`
	CommunityName string    `gorm:"size:64;not null" json:"community_name"`
	AuthorID      uint      `gorm:"index;not null" json:"author_id"`
	AuthorName    string    `gorm:"size:64;not null" json:"author_name"`
	Title         string    `gorm:"size:200;not null" json:"title"`
	Body          string    `gorm:"type:text" json:"body"`
	Images        string    `gorm:"type:text" json:"images"` // JSON array of stored image URLs
	Votes         int64     `gorm:"not null;default:0" json:"votes"`
	CommentCount  int64     `gorm:"not null;default:0" json:"comment_count"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
