package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/subfapp/subfapp/community"
	"github.com/subfapp/subfapp/config"
	"github.com/subfapp/subfapp/models"
	"github.com/subfapp/subfapp/utils"
)

// PostController manages post creation and listing. Every read and write goes
// through the visibility gate of the owning community.
type PostController struct {
	db     *gorm.DB
	ledger *community.Ledger
	gate   *community.Gate
}

// NewPostController creates a new PostController instance.
func NewPostController(db *gorm.DB) *PostController {
	ledger := community.NewLedger(db)
	return &PostController{db: db, ledger: ledger, gate: community.NewGate(ledger)}
}

// CreatePost creates a post inside the community named by :slug. Posting
// requires membership even in public communities.
func (p *PostController) CreatePost(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	c, ok := p.resolveCommunity(ctx)
	if !ok {
		return
	}
	if !p.gate.CanCreatePost(c, userID) {
		utils.Error(ctx, http.StatusForbidden, 40320, "membership required to post")
		return
	}

	var req struct {
		Title  string   `json:"title" binding:"required,min=1,max=200"`
		Body   string   `json:"body"`
		Images []string `json:"images"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	title := utils.Sanitize(strings.TrimSpace(req.Title))
	if title == "" {
		utils.Error(ctx, http.StatusBadRequest, 40021, "title cannot be empty")
		return
	}

	if req.Images == nil {
		req.Images = []string{}
	}
	cfg := config.Get()
	if len(req.Images) > cfg.UploadMaxImages {
		utils.Error(ctx, http.StatusBadRequest, 40022, fmt.Sprintf("at most %d images per post", cfg.UploadMaxImages))
		return
	}
	imagesJSON, err := json.Marshal(req.Images)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40023, "invalid images list")
		return
	}

	var author models.User
	if err := p.db.First(&author, userID).Error; err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	// Author and community names are denormalized display copies taken now;
	// they are never reconciled with later renames.
	post := models.Post{
		CommunityID:   c.ID,
		CommunityName: c.Name,
		AuthorID:      author.ID,
		AuthorName:    author.Username,
		Title:         title,
		Body:          utils.Sanitize(req.Body),
		Images:        string(imagesJSON),
	}
	if err := p.db.Create(&post).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to create post")
		return
	}
	for _, img := range req.Images {
		utils.KeepUpload(img)
	}

	utils.InvalidateByPrefix("cache:posts:community:" + fmt.Sprint(c.ID) + ":")
	utils.Success(ctx, gin.H{"post": post})
}

// ListCommunityPosts returns the posts of one community, newest first. The
// visibility gate is evaluated on every request: private communities answer
// 403 to strangers and anonymous callers.
func (p *PostController) ListCommunityPosts(ctx *gin.Context) {
	c, ok := p.resolveCommunity(ctx)
	if !ok {
		return
	}
	userID := currentUserID(ctx)
	if !p.gate.CanViewPosts(c, userID) {
		utils.Error(ctx, http.StatusForbidden, 40321, "membership required to view posts")
		return
	}

	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	// Cache only the public path: member-gated listings depend on the caller.
	cacheKey := ""
	if c.IsPublic {
		cacheKey = fmt.Sprintf("cache:posts:community:%d:page=%d:size=%d", c.ID, page, pageSize)
		if b, ok := utils.CacheGetBytes(cacheKey); ok {
			ctx.Data(http.StatusOK, "application/json", b)
			return
		}
	}

	var posts []models.Post
	var total int64
	query := p.db.Model(&models.Post{}).Where("community_id = ?", c.ID)
	if err := query.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to count posts")
		return
	}
	if err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to list posts")
		return
	}

	payload := gin.H{
		"items": posts,
		"pagination": gin.H{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	}
	if cacheKey != "" {
		utils.CacheSetJSON(cacheKey, utils.JSONResponse{Code: 0, Message: "success", Data: payload}, 10*time.Minute)
	}
	utils.Success(ctx, payload)
}

// GetPost returns a single post, applying the owning community's gate.
func (p *PostController) GetPost(ctx *gin.Context) {
	// Parse before querying: a raw path string in First would be inlined
	// as SQL.
	id, err := strconv.ParseUint(strings.TrimSpace(ctx.Param("id")), 10, 64)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40025, "invalid post id")
		return
	}
	var post models.Post
	if err := p.db.First(&post, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40421, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to get post")
		return
	}

	c, err := p.ledger.FindByID(post.CommunityID)
	if err != nil {
		// Community gone but the post row survived: treat as not found.
		utils.Error(ctx, http.StatusNotFound, 40420, "community not found")
		return
	}
	if !p.gate.CanViewPosts(c, currentUserID(ctx)) {
		utils.Error(ctx, http.StatusForbidden, 40321, "membership required to view posts")
		return
	}
	utils.Success(ctx, gin.H{"post": post})
}

// ListUserPosts returns one author's posts from public communities only;
// private-community posts stay behind their gate even on profile pages.
func (p *PostController) ListUserPosts(ctx *gin.Context) {
	authorID := strings.TrimSpace(ctx.Param("id"))
	if authorID == "" {
		utils.Error(ctx, http.StatusBadRequest, 40024, "missing user id")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	var posts []models.Post
	var total int64
	query := p.db.Model(&models.Post{}).
		Where("author_id = ?", authorID).
		Where("community_id IN (?)", p.db.Model(&models.Community{}).Select("id").Where("is_public = ?", true))
	if err := query.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to count posts")
		return
	}
	if err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to list posts")
		return
	}

	utils.Success(ctx, gin.H{
		"items": posts,
		"pagination": gin.H{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	})
}

func (p *PostController) resolveCommunity(ctx *gin.Context) (*models.Community, bool) {
	slug := strings.TrimSpace(ctx.Param("slug"))
	if slug == "" {
		utils.Error(ctx, http.StatusBadRequest, 40012, "missing community slug")
		return nil, false
	}
	c, err := p.ledger.FindBySlug(slug)
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
