package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/subfapp/subfapp/config"
	"github.com/subfapp/subfapp/middleware"
	"github.com/subfapp/subfapp/models"
	"github.com/subfapp/subfapp/utils"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "test-secret-0123456789")
	cfg := config.Load()
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.User{}, &models.Community{}, &models.Membership{}, &models.Post{}, &models.UploadedFile{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestRouter(db *gorm.DB) *gin.Engine {
	r := gin.New()
	ac := NewAuthController(db)
	cc := NewCommunityController(db)
	pc := NewPostController(db)

	api := r.Group("/api/v1")
	api.GET("/communities/:slug", middleware.AuthOptional(), cc.GetCommunity)
	api.GET("/communities/:slug/posts", middleware.AuthOptional(), pc.ListCommunityPosts)
	api.GET("/posts/:id", middleware.AuthOptional(), pc.GetPost)
	api.GET("/users/:id", ac.GetUserPublic)
	api.POST("/communities", middleware.AuthRequired(), cc.CreateCommunity)
	api.POST("/communities/:slug/join", middleware.AuthRequired(), cc.JoinCommunity)
	api.POST("/communities/:slug/leave", middleware.AuthRequired(), cc.LeaveCommunity)
	api.POST("/communities/:slug/recount", middleware.AuthRequired(), cc.RecountMembers)
	api.POST("/communities/:slug/posts", middleware.AuthRequired(), pc.CreatePost)
	return r
}

func newTestUser(t *testing.T, db *gorm.DB, username string) (models.User, string) {
	t.Helper()
	user := models.User{Username: username, PasswordHash: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, err := utils.GenerateToken(user.ID, user.Username, time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return user, token
}

func doJSON(r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateCommunityEndpoint(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, token := newTestUser(t, db, "alice")

	w := doJSON(r, http.MethodPost, "/api/v1/communities", token, gin.H{
		"name": "Rust Fans", "description": "all things rust", "is_public": false,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var c models.Community
	if err := db.Where("slug = ?", "rust-fans").First(&c).Error; err != nil {
		t.Fatalf("community not persisted: %v", err)
	}
	if c.MemberCount != 1 {
		t.Fatalf("member_count = %d, want 1", c.MemberCount)
	}
	// The privacy flag must survive the write path; a column default would
	// swallow the explicit false.
	if c.IsPublic {
		t.Fatal("community created with is_public=false persisted as public")
	}

	// Same slug again conflicts.
	w = doJSON(r, http.MethodPost, "/api/v1/communities", token, gin.H{"name": "rust   fans"})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate slug status = %d, want 409", w.Code)
	}

	// Anonymous creation is rejected.
	w = doJSON(r, http.MethodPost, "/api/v1/communities", "", gin.H{"name": "nope"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous create status = %d, want 401", w.Code)
	}
}

func TestJoinLeaveEndpoints(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, creator := newTestUser(t, db, "alice")
	_, joiner := newTestUser(t, db, "bob")

	doJSON(r, http.MethodPost, "/api/v1/communities", creator, gin.H{"name": "gophers"})

	if w := doJSON(r, http.MethodPost, "/api/v1/communities/gophers/join", joiner, nil); w.Code != http.StatusOK {
		t.Fatalf("join status = %d, body = %s", w.Code, w.Body.String())
	}
	// Second join conflicts but leaves a single record behind.
	if w := doJSON(r, http.MethodPost, "/api/v1/communities/gophers/join", joiner, nil); w.Code != http.StatusConflict {
		t.Fatalf("second join status = %d, want 409", w.Code)
	}
	var rows int64
	db.Model(&models.Membership{}).Count(&rows)
	if rows != 2 { // creator + bob
		t.Fatalf("membership rows = %d, want 2", rows)
	}

	if w := doJSON(r, http.MethodPost, "/api/v1/communities/gophers/leave", joiner, nil); w.Code != http.StatusOK {
		t.Fatalf("leave status = %d", w.Code)
	}
	if w := doJSON(r, http.MethodPost, "/api/v1/communities/gophers/leave", joiner, nil); w.Code != http.StatusConflict {
		t.Fatalf("second leave status = %d, want 409", w.Code)
	}

	if w := doJSON(r, http.MethodPost, "/api/v1/communities/missing/join", joiner, nil); w.Code != http.StatusNotFound {
		t.Fatalf("join missing community status = %d, want 404", w.Code)
	}
}

func TestPrivatePostVisibilityOverHTTP(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, creator := newTestUser(t, db, "alice")
	_, stranger := newTestUser(t, db, "bob")

	doJSON(r, http.MethodPost, "/api/v1/communities", creator, gin.H{"name": "inner circle", "is_public": false})

	// Members can both post and read.
	w := doJSON(r, http.MethodPost, "/api/v1/communities/inner-circle/posts", creator, gin.H{
		"title": "hello", "body": "first post",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("member post status = %d, body = %s", w.Code, w.Body.String())
	}

	// Anonymous and non-member reads are forbidden, not errors.
	if w := doJSON(r, http.MethodGet, "/api/v1/communities/inner-circle/posts", "", nil); w.Code != http.StatusForbidden {
		t.Fatalf("anonymous list status = %d, want 403", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/api/v1/communities/inner-circle/posts", stranger, nil); w.Code != http.StatusForbidden {
		t.Fatalf("stranger list status = %d, want 403", w.Code)
	}
	// Strangers cannot post into a private community either.
	if w := doJSON(r, http.MethodPost, "/api/v1/communities/inner-circle/posts", stranger, gin.H{"title": "hi"}); w.Code != http.StatusForbidden {
		t.Fatalf("stranger post status = %d, want 403", w.Code)
	}

	// Joining flips both decisions.
	doJSON(r, http.MethodPost, "/api/v1/communities/inner-circle/join", stranger, nil)
	if w := doJSON(r, http.MethodGet, "/api/v1/communities/inner-circle/posts", stranger, nil); w.Code != http.StatusOK {
		t.Fatalf("member list status = %d, want 200", w.Code)
	}
	if w := doJSON(r, http.MethodPost, "/api/v1/communities/inner-circle/posts", stranger, gin.H{"title": "me too"}); w.Code != http.StatusOK {
		t.Fatalf("member post status = %d, want 200", w.Code)
	}
}

func TestPublicCommunityPostingStillNeedsMembership(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, creator := newTestUser(t, db, "alice")
	_, stranger := newTestUser(t, db, "bob")

	doJSON(r, http.MethodPost, "/api/v1/communities", creator, gin.H{"name": "open space", "is_public": true})

	// Anyone may read a public community.
	if w := doJSON(r, http.MethodGet, "/api/v1/communities/open-space/posts", "", nil); w.Code != http.StatusOK {
		t.Fatalf("anonymous list status = %d, want 200", w.Code)
	}
	// Writing still requires joining first.
	if w := doJSON(r, http.MethodPost, "/api/v1/communities/open-space/posts", stranger, gin.H{"title": "hi"}); w.Code != http.StatusForbidden {
		t.Fatalf("non-member post status = %d, want 403", w.Code)
	}
}

func TestRecountEndpoint(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, creator := newTestUser(t, db, "alice")
	_, other := newTestUser(t, db, "bob")

	doJSON(r, http.MethodPost, "/api/v1/communities", creator, gin.H{"name": "gophers"})
	doJSON(r, http.MethodPost, "/api/v1/communities/gophers/join", other, nil)

	// Corrupt the counter out of band.
	if err := db.Model(&models.Community{}).Where("slug = ?", "gophers").
		UpdateColumn("member_count", 40).Error; err != nil {
		t.Fatalf("corrupt counter: %v", err)
	}

	// Only the creator may trigger the repair.
	if w := doJSON(r, http.MethodPost, "/api/v1/communities/gophers/recount", other, nil); w.Code != http.StatusForbidden {
		t.Fatalf("non-creator recount status = %d, want 403", w.Code)
	}

	w := doJSON(r, http.MethodPost, "/api/v1/communities/gophers/recount", creator, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("recount status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			MemberCount int64 `json:"member_count"`
			WasStored   int64 `json:"was_stored"`
			Diverged    bool  `json:"diverged"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Data.Diverged || resp.Data.MemberCount != 2 || resp.Data.WasStored != 40 {
		t.Fatalf("unexpected recount payload: %+v", resp.Data)
	}

	var c models.Community
	db.Where("slug = ?", "gophers").First(&c)
	if c.MemberCount != 2 {
		t.Fatalf("stored member_count = %d, want 2 after recount", c.MemberCount)
	}
}

func TestGetCommunityIncludesMembershipFlag(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, creator := newTestUser(t, db, "alice")

	doJSON(r, http.MethodPost, "/api/v1/communities", creator, gin.H{"name": "gophers"})

	for _, tc := range []struct {
		token string
		want  bool
	}{
		{creator, true},
		{"", false},
	} {
		w := doJSON(r, http.MethodGet, "/api/v1/communities/gophers", tc.token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("get status = %d", w.Code)
		}
		var resp struct {
			Data struct {
				IsMember bool `json:"is_member"`
			} `json:"data"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Data.IsMember != tc.want {
			t.Fatalf("is_member = %v, want %v (token=%q)", resp.Data.IsMember, tc.want, tc.token)
		}
	}
}

func TestPostImageLimit(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, creator := newTestUser(t, db, "alice")

	doJSON(r, http.MethodPost, "/api/v1/communities", creator, gin.H{"name": "gophers"})

	images := make([]string, config.Get().UploadMaxImages+1)
	for i := range images {
		images[i] = fmt.Sprintf("/static/uploads/img-%d.png", i)
	}
	w := doJSON(r, http.MethodPost, "/api/v1/communities/gophers/posts", creator, gin.H{
		"title": "too many", "images": images,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for image overflow", w.Code)
	}
}

func TestGetPostAppliesCommunityGate(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, creator := newTestUser(t, db, "alice")
	_, stranger := newTestUser(t, db, "bob")

	doJSON(r, http.MethodPost, "/api/v1/communities", creator, gin.H{"name": "inner circle", "is_public": false})
	doJSON(r, http.MethodPost, "/api/v1/communities/inner-circle/posts", creator, gin.H{
		"title": "hidden", "body": "swordfish",
	})

	var post models.Post
	if err := db.First(&post).Error; err != nil {
		t.Fatalf("post not persisted: %v", err)
	}
	path := fmt.Sprintf("/api/v1/posts/%d", post.ID)

	if w := doJSON(r, http.MethodGet, path, "", nil); w.Code != http.StatusForbidden {
		t.Fatalf("anonymous get status = %d, want 403", w.Code)
	}
	if w := doJSON(r, http.MethodGet, path, stranger, nil); w.Code != http.StatusForbidden {
		t.Fatalf("stranger get status = %d, want 403", w.Code)
	}
	if w := doJSON(r, http.MethodGet, path, creator, nil); w.Code != http.StatusOK {
		t.Fatalf("member get status = %d, want 200", w.Code)
	}
}

func TestIDParamsMustBeNumeric(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, creator := newTestUser(t, db, "alice")

	doJSON(r, http.MethodPost, "/api/v1/communities", creator, gin.H{"name": "inner circle", "is_public": false})
	doJSON(r, http.MethodPost, "/api/v1/communities/inner-circle/posts", creator, gin.H{
		"title": "hidden", "body": "swordfish",
	})

	// Non-numeric ids must be rejected before they reach the database;
	// passed through raw they would be inlined as SQL and turn the gate
	// into a boolean oracle.
	crafted := url.PathEscape("1 AND (SELECT count(*) FROM posts WHERE body LIKE 'sword%') = 1")
	for _, id := range []string{"abc", crafted} {
		if w := doJSON(r, http.MethodGet, "/api/v1/posts/"+id, "", nil); w.Code != http.StatusBadRequest {
			t.Fatalf("posts id %q status = %d, want 400", id, w.Code)
		}
		if w := doJSON(r, http.MethodGet, "/api/v1/users/"+id, "", nil); w.Code != http.StatusBadRequest {
			t.Fatalf("users id %q status = %d, want 400", id, w.Code)
		}
	}
}

func TestCreateCommunityRejectsSymbolOnlyName(t *testing.T) {
	db := newTestDB(t)
	r := newTestRouter(db)
	_, token := newTestUser(t, db, "alice")

	w := doJSON(r, http.MethodPost, "/api/v1/communities", token, gin.H{"name": "!!!"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("symbol-only name status = %d, want 400", w.Code)
	}
	var rows int64
	db.Model(&models.Community{}).Count(&rows)
	if rows != 0 {
		t.Fatalf("community rows = %d, want 0", rows)
	}
}
