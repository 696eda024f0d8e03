package main

import (
	"time"

	"github.com/subfapp/subfapp/config"
	"github.com/subfapp/subfapp/models"
	"github.com/subfapp/subfapp/routes"
	"github.com/subfapp/subfapp/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
		&models.User{},
		&models.Community{},
		&models.Membership{},
		&models.Post{},
		&models.UploadedFile{},
		&models.PageView{},
	)

	r := routes.SetupRouter(db)

	// Start background cleanup for expired uploads (best-effort)
	utils.StartUploadCleaner(5 * time.Minute)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
