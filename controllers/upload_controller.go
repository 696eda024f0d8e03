package controllers

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/subfapp/subfapp/config"
	"github.com/subfapp/subfapp/models"
	"github.com/subfapp/subfapp/utils"
)

// UploadController implements the two image-upload contracts: a multipart
// file endpoint and a base64 data-URL endpoint. Both return a stored relative
// URL and record the file for timed cleanup until something attaches it.
type UploadController struct {
	db *gorm.DB
}

// NewUploadController creates a new UploadController instance.
func NewUploadController(db *gorm.DB) *UploadController {
	return &UploadController{db: db}
}

// UploadFile accepts a multipart form file and stores it under a dated
// uploads directory.
func (u *UploadController) UploadFile(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	file, header, err := ctx.Request.FormFile("file")
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "no file uploaded")
		return
	}
	defer file.Close()

	maxSize := int64(config.Get().UploadMaxSizeMB) << 20
	if header.Size > 0 && header.Size > maxSize {
		utils.Error(ctx, http.StatusBadRequest, 40031, fmt.Sprintf("file size exceeds %dMB", config.Get().UploadMaxSizeMB))
		return
	}

	now := time.Now()
	baseDir := filepath.Join(".", "static", "uploads", now.Format("2006"), now.Format("01"), now.Format("02"))
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to create upload directory")
		return
	}

	// Keep only the extension of the client name; the stored name is random.
	ext := strings.ToLower(filepath.Ext(filepath.Base(header.Filename)))
	safeName := uuid.NewString() + ext
	dstPath := filepath.Join(baseDir, safeName)

	out, err := os.Create(dstPath)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to save file")
		return
	}
	defer out.Close()

	// The Content-Length header is advisory; enforce the cap while copying.
	written, err := io.Copy(out, &io.LimitedReader{R: file, N: maxSize + 1})
	if err != nil || written > maxSize {
		_ = out.Close()
		_ = os.Remove(dstPath)
		if written > maxSize {
			utils.Error(ctx, http.StatusBadRequest, 40031, fmt.Sprintf("file size exceeds %dMB", config.Get().UploadMaxSizeMB))
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to write file")
		return
	}

	url := fmt.Sprintf("/static/uploads/%s/%s/%s/%s", now.Format("2006"), now.Format("01"), now.Format("02"), safeName)
	u.recordUpload(userID, dstPath, url)
	utils.Success(ctx, gin.H{"url": url})
}

var dataURLRe = regexp.MustCompile(`^data:image/(png|jpe?g|gif|webp);base64,`)
var dirNameRe = regexp.MustCompile(`^[a-z0-9-]{1,64}$`)

// UploadImage accepts a base64 data-URL payload, the contract used by
// clients that resize images before upload.
func (u *UploadController) UploadImage(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		Image     string `json:"image" binding:"required"`
		FileName  string `json:"file_name" binding:"required"`
		Directory string `json:"directory" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40032, "image, file_name and directory are required")
		return
	}

	m := dataURLRe.FindString(req.Image)
	if m == "" {
		utils.Error(ctx, http.StatusBadRequest, 40033, "invalid image format")
		return
	}
	if !dirNameRe.MatchString(req.Directory) {
		utils.Error(ctx, http.StatusBadRequest, 40034, "invalid directory name")
		return
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(req.Image, m))
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40035, "invalid base64 payload")
		return
	}
	maxSize := config.Get().UploadMaxSizeMB << 20
	if len(raw) > maxSize {
		utils.Error(ctx, http.StatusBadRequest, 40031, fmt.Sprintf("file size exceeds %dMB", config.Get().UploadMaxSizeMB))
		return
	}

	targetDir := filepath.Join(".", "static", "images", req.Directory)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to create upload directory")
		return
	}

	ext := extForDataURL(m)
	base := strings.TrimSuffix(filepath.Base(req.FileName), filepath.Ext(req.FileName))
	safeBase := sanitizeFileName(base)
	safeName := fmt.Sprintf("%s-%s%s", safeBase, uuid.NewString()[:8], ext)
	dstPath := filepath.Join(targetDir, safeName)

	if err := os.WriteFile(dstPath, raw, 0o644); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to save file")
		return
	}

	url := fmt.Sprintf("/static/images/%s/%s", req.Directory, safeName)
	u.recordUpload(userID, dstPath, url)
	utils.Success(ctx, gin.H{"image_url": url})
}

// recordUpload registers a stored file for timed cleanup. Best-effort: an
// upload never fails because the bookkeeping row could not be written.
func (u *UploadController) recordUpload(userID uint, path, url string) {
	ttl := time.Duration(config.Get().UploadTTLMinutes) * time.Minute
	absPath, _ := filepath.Abs(path)
	if err := u.db.Create(&models.UploadedFile{
		UserID:   userID,
		FilePath: absPath,
		URL:      url,
		ExpireAt: time.Now().Add(ttl),
	}).Error; err != nil {
		utils.Sugar.Warnf("failed to record upload %s: %v", url, err)
	}
}

var unsafeFileRe = regexp.MustCompile(`[^a-z0-9-]+`)

func sanitizeFileName(name string) string {
	s := unsafeFileRe.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "image"
	}
	return s
}

func extForDataURL(prefix string) string {
	switch {
	case strings.Contains(prefix, "png"):
		return ".png"
	case strings.Contains(prefix, "gif"):
		return ".gif"
	case strings.Contains(prefix, "webp"):
		return ".webp"
	default:
		return ".jpg"
	}
}
