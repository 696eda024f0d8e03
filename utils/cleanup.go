package utils

import (
	"os"
	"time"

	"github.com/subfapp/subfapp/config"
	"github.com/subfapp/subfapp/models"
)

// StartUploadCleaner launches a background goroutine that periodically deletes
// expired uploaded files recorded in the database. Uploads that were attached
// to a post or community before expiry are expected to have had their record
// removed by the attaching handler. Best-effort; failures are logged.
func StartUploadCleaner(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		for {
			// Sleep first to avoid racing immediately at startup
			time.Sleep(interval)
			if !config.Get().UploadCleanupEnabled {
				continue
			}
			db := config.DB()
			if db == nil {
				continue
			}
			var items []models.UploadedFile
			if err := db.Where("expire_at <= ?", time.Now()).Limit(100).Find(&items).Error; err != nil {
				Sugar.Warnf("upload cleaner query failed: %v", err)
				continue
			}
			for _, it := range items {
				if it.FilePath != "" {
					_ = os.Remove(it.FilePath)
				}
				// Remove row regardless of file deletion outcome
				if err := db.Delete(&models.UploadedFile{}, it.ID).Error; err != nil {
					Sugar.Warnf("upload cleaner delete row failed: %v", err)
				}
			}
			if len(items) > 0 {
				Sugar.Infof("upload cleaner removed %d expired files", len(items))
			}
		}
	}()
}

// KeepUpload drops the cleanup record for a stored URL once the file has been
// attached to a post or community and must outlive the upload TTL.
func KeepUpload(url string) {
	if url == "" {
		return
	}
	db := config.DB()
	if db == nil {
		return
	}
	_ = db.Where("url = ?", url).Delete(&models.UploadedFile{}).Error
}
