package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/subfapp/subfapp/models"
	"github.com/subfapp/subfapp/utils"
)

// StatsController reports site totals and counter health. The divergence
// report compares each community's stored member_count against the actual
// ledger cardinality without repairing anything; Recount is the repair path.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

type counterDivergence struct {
	CommunityID uint   `json:"community_id"`
	Slug        string `json:"slug"`
	Stored      int64  `json:"stored"`
	Actual      int64  `json:"actual"`
}

// GetStats returns site totals plus communities whose denormalized counter
// disagrees with the membership ledger.
func (s *StatsController) GetStats(ctx *gin.Context) {
	var users, communities, memberships, posts int64
	if err := s.db.Model(&models.User{}).Count(&users).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to load stats")
		return
	}
	s.db.Model(&models.Community{}).Count(&communities)
	s.db.Model(&models.Membership{}).Count(&memberships)
	s.db.Model(&models.Post{}).Count(&posts)

	var diverged []counterDivergence
	err := s.db.Model(&models.Community{}).
		Select("communities.id AS community_id, communities.slug, communities.member_count AS stored, COUNT(memberships.id) AS actual").
		Joins("LEFT JOIN memberships ON memberships.community_id = communities.id").
		Group("communities.id, communities.slug, communities.member_count").
		Having("communities.member_count != COUNT(memberships.id)").
		Scan(&diverged).Error
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50041, "failed to check counters")
		return
	}

	utils.Success(ctx, gin.H{
		"users":             users,
		"communities":       communities,
		"memberships":       memberships,
		"posts":             posts,
		"counter_divergent": diverged,
	})
}
