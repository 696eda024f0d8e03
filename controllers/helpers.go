package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/subfapp/subfapp/middleware"
)

// getUserID extracts the authenticated user id from the gin context. The
// second return is false for anonymous requests.
func getUserID(ctx *gin.Context) (uint, bool) {
	v, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	switch id := v.(type) {
	case uint:
		return id, true
	case int:
		return uint(id), true
	case float64:
		return uint(id), true
	default:
		return 0, false
	}
}

// currentUserID is getUserID for gates that treat anonymous as id 0.
func currentUserID(ctx *gin.Context) uint {
	id, _ := getUserID(ctx)
	return id
}

// parsePagination normalizes page/page_size query values.
func parsePagination(pageStr, sizeStr string) (int, int) {
	page, pageSize := 1, 10
	if n, err := strconv.Atoi(pageStr); err == nil && n > 0 {
		page = n
	}
	if n, err := strconv.Atoi(sizeStr); err == nil && n > 0 && n <= 100 {
		pageSize = n
	}
	return page, pageSize
}
