package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/subfapp/subfapp/community"
	"github.com/subfapp/subfapp/models"
	"github.com/subfapp/subfapp/utils"
)

// CommunityController exposes community creation, membership, and the counter
// recount path over HTTP. All policy lives in the community package; this
// layer only translates identities and typed errors.
type CommunityController struct {
	db     *gorm.DB
	ledger *community.Ledger
}

// NewCommunityController creates a new CommunityController instance.
func NewCommunityController(db *gorm.DB) *CommunityController {
	return &CommunityController{db: db, ledger: community.NewLedger(db)}
}

// CreateCommunity registers a new community. The caller becomes its first
// member with the admin role and member_count starts at 1.
func (cc *CommunityController) CreateCommunity(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		Name        string `json:"name" binding:"required,min=2,max=64"`
		Description string `json:"description"`
		IsPublic    *bool  `json:"is_public"`
		ImageURL    string `json:"image_url"`
		BannerURL   string `json:"banner_url"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid request payload")
		return
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	c, err := cc.ledger.CreateCommunity(&models.Community{
		Name:        strings.TrimSpace(req.Name),
		Description: utils.Sanitize(req.Description),
		IsPublic:    isPublic,
		ImageURL:    strings.TrimSpace(req.ImageURL),
		BannerURL:   strings.TrimSpace(req.BannerURL),
		CreatorID:   userID,
	})
	if err != nil {
		if errors.Is(err, community.ErrSlugTaken) {
			utils.Error(ctx, http.StatusConflict, 40910, "a community with this name already exists")
			return
		}
		if errors.Is(err, community.ErrInvalidName) {
			utils.Error(ctx, http.StatusBadRequest, 40013, "community name must contain letters or digits")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to create community")
		return
	}

	// An attached image must outlive the upload TTL.
	utils.KeepUpload(c.ImageURL)
	utils.KeepUpload(c.BannerURL)
	utils.InvalidateByPrefix("cache:communities:list:")
	utils.Sugar.Infof("community created id=%d slug=%s creator=%d", c.ID, c.Slug, userID)
	utils.Success(ctx, gin.H{"community": c})
}

// ListCommunities returns communities ordered by member count.
func (cc *CommunityController) ListCommunities(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	cacheKey := fmt.Sprintf("cache:communities:list:page=%d:size=%d", page, pageSize)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	var list []models.Community
	var total int64
	if err := cc.db.Model(&models.Community{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50011, "failed to count communities")
		return
	}
	if err := cc.db.Order("member_count DESC, id ASC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&list).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50012, "failed to list communities")
		return
	}

	payload := gin.H{
		"items": list,
		"pagination": gin.H{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	}
	utils.CacheSetJSON(cacheKey, utils.JSONResponse{Code: 0, Message: "success", Data: payload}, 10*time.Minute)
	utils.Success(ctx, payload)
}

// GetCommunity resolves a community by slug. Membership of the current caller
// is included so clients can render join/leave state without a second round trip.
func (cc *CommunityController) GetCommunity(ctx *gin.Context) {
	c, ok := cc.resolve(ctx)
	if !ok {
		return
	}
	isMember := false
	if userID := currentUserID(ctx); userID != 0 {
		isMember, _ = cc.ledger.IsMember(c.ID, userID)
	}
	utils.Success(ctx, gin.H{"community": c, "is_member": isMember})
}

// JoinCommunity adds the caller to the community's membership ledger.
func (cc *CommunityController) JoinCommunity(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	c, ok := cc.resolve(ctx)
	if !ok {
		return
	}

	m, err := cc.ledger.Join(c.ID, userID)
	if err != nil {
		switch {
		case errors.Is(err, community.ErrAlreadyMember):
			// Callers may treat this as already-in-desired-state.
			utils.Error(ctx, http.StatusConflict, 40911, "already a member")
		case errors.Is(err, community.ErrCommunityNotFound):
			utils.Error(ctx, http.StatusNotFound, 40420, "community not found")
		default:
			utils.Error(ctx, http.StatusInternalServerError, 50013, "failed to join community")
		}
		return
	}

	utils.InvalidateByPrefix("cache:communities:list:")
	utils.Success(ctx, gin.H{"membership": m})
}

// LeaveCommunity removes the caller from the membership ledger.
func (cc *CommunityController) LeaveCommunity(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	c, ok := cc.resolve(ctx)
	if !ok {
		return
	}

	if err := cc.ledger.Leave(c.ID, userID); err != nil {
		if errors.Is(err, community.ErrNotAMember) {
			utils.Error(ctx, http.StatusConflict, 40912, "not a member")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50014, "failed to leave community")
		return
	}

	utils.InvalidateByPrefix("cache:communities:list:")
	utils.Success(ctx, gin.H{"status": "left"})
}

// RecountMembers recomputes the denormalized member counter from the ledger.
// Creator only; reports the divergence it repaired.
func (cc *CommunityController) RecountMembers(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	c, ok := cc.resolve(ctx)
	if !ok {
		return
	}
	if c.CreatorID != userID {
		utils.Error(ctx, http.StatusForbidden, 40310, "only the creator may recount")
		return
	}

	stored := c.MemberCount
	actual, err := cc.ledger.Recount(c.ID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50015, "failed to recount members")
		return
	}
	if stored != actual {
		utils.Sugar.Warnf("member counter divergence repaired community=%d stored=%d actual=%d", c.ID, stored, actual)
		utils.InvalidateByPrefix("cache:communities:list:")
	}
	utils.Success(ctx, gin.H{
		"member_count": actual,
		"was_stored":   stored,
		"diverged":     stored != actual,
	})
}

// UpdateBanner lets the creator change the banner and cover images, the only
// structural community mutation after creation.
func (cc *CommunityController) UpdateBanner(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	c, ok := cc.resolve(ctx)
	if !ok {
		return
	}
	if c.CreatorID != userID {
		utils.Error(ctx, http.StatusForbidden, 40311, "only the creator may update images")
		return
	}

	var req struct {
		BannerURL *string `json:"banner_url"`
		ImageURL  *string `json:"image_url"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil || (req.BannerURL == nil && req.ImageURL == nil) {
		utils.Error(ctx, http.StatusBadRequest, 40011, "banner_url or image_url required")
		return
	}

	updates := map[string]interface{}{}
	if req.BannerURL != nil {
		updates["banner_url"] = strings.TrimSpace(*req.BannerURL)
		utils.KeepUpload(updates["banner_url"].(string))
	}
	if req.ImageURL != nil {
		updates["image_url"] = strings.TrimSpace(*req.ImageURL)
		utils.KeepUpload(updates["image_url"].(string))
	}
	if err := cc.db.Model(&models.Community{}).Where("id = ?", c.ID).Updates(updates).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50016, "failed to update community")
		return
	}
	utils.InvalidateByPrefix("cache:communities:list:")
	utils.Success(ctx, gin.H{"status": "updated"})
}

// resolve loads the community named by the :slug route param, answering 404
// with the CommunityNotFound code when it does not exist.
func (cc *CommunityController) resolve(ctx *gin.Context) (*models.Community, bool) {
	slug := strings.TrimSpace(ctx.Param("slug"))
	if slug == "" {
		utils.Error(ctx, http.StatusBadRequest, 40012, "missing community slug")
		return nil, false
	}
	c, err := cc.ledger.FindBySlug(slug)
	if err != nil {
		if errors.Is(err, community.ErrCommunityNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40420, "community not found")
			return nil, false
		}
		utils.Error(ctx, http.StatusInternalServerError, 50017, "failed to load community")
		return nil, false
	}
	return c, true
}
