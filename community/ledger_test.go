package community

import (
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/subfapp/subfapp/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	// One connection keeps the in-memory database alive and shared.
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.User{}, &models.Community{}, &models.Membership{}, &models.Post{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func createCommunity(t *testing.T, l *Ledger, name string, creatorID uint, public bool) *models.Community {
	t.Helper()
	c, err := l.CreateCommunity(&models.Community{
		Name:      name,
		IsPublic:  public,
		CreatorID: creatorID,
	})
	if err != nil {
		t.Fatalf("create community %q: %v", name, err)
	}
	return c
}

func memberCount(t *testing.T, db *gorm.DB, id uint) int64 {
	t.Helper()
	var c models.Community
	if err := db.First(&c, id).Error; err != nil {
		t.Fatalf("reload community %d: %v", id, err)
	}
	return c.MemberCount
}

func TestCreateCommunitySeedsCreatorMembership(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)

	c := createCommunity(t, l, "Rust Fans", 1, false)
	if c.Slug != "rust-fans" {
		t.Fatalf("slug = %q, want rust-fans", c.Slug)
	}
	if got := memberCount(t, db, c.ID); got != 1 {
		t.Fatalf("member_count = %d, want 1", got)
	}

	var m models.Membership
	if err := db.Where("community_id = ? AND user_id = ?", c.ID, uint(1)).First(&m).Error; err != nil {
		t.Fatalf("creator membership missing: %v", err)
	}
	if m.Role != models.RoleAdmin {
		t.Fatalf("creator role = %q, want admin", m.Role)
	}
}

func TestCreateCommunityRejectsSlugCollision(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)

	createCommunity(t, l, "My Cool Group!!", 1, true)
	_, err := l.CreateCommunity(&models.Community{Name: "my -- cool group", CreatorID: 2})
	if !errors.Is(err, ErrSlugTaken) {
		t.Fatalf("err = %v, want ErrSlugTaken", err)
	}
}

func TestCreateCommunityPersistsPrivacyFlag(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)

	createCommunity(t, l, "inner circle", 1, false)
	// Evaluate against the reloaded row, not the in-memory struct: the
	// insert must write the explicit false.
	got, err := l.FindBySlug("inner-circle")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.IsPublic {
		t.Fatal("private community persisted as public")
	}
	if NewGate(l).CanViewPosts(got, 0) {
		t.Fatal("anonymous can view reloaded private community")
	}
}

func TestCreateCommunityRejectsEmptySlug(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)

	_, err := l.CreateCommunity(&models.Community{Name: "!!", CreatorID: 1})
	if !errors.Is(err, ErrInvalidName) {
		t.Fatalf("err = %v, want ErrInvalidName", err)
	}
}

func TestJoinAndLeaveRoundTrip(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	c := createCommunity(t, l, "gophers", 1, true)

	before := memberCount(t, db, c.ID)

	m, err := l.Join(c.ID, 2)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if m.Role != models.RoleMember {
		t.Fatalf("joined role = %q, want member", m.Role)
	}
	if ok, _ := l.IsMember(c.ID, 2); !ok {
		t.Fatal("IsMember false after join")
	}
	if got := memberCount(t, db, c.ID); got != before+1 {
		t.Fatalf("member_count = %d, want %d", got, before+1)
	}

	if err := l.Leave(c.ID, 2); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if ok, _ := l.IsMember(c.ID, 2); ok {
		t.Fatal("IsMember true after leave")
	}
	if got := memberCount(t, db, c.ID); got != before {
		t.Fatalf("member_count = %d, want %d after leave", got, before)
	}
}

func TestJoinTwiceFailsAndKeepsSingleRecord(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	c := createCommunity(t, l, "gophers", 1, true)

	if _, err := l.Join(c.ID, 2); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if _, err := l.Join(c.ID, 2); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("second join err = %v, want ErrAlreadyMember", err)
	}

	var rows int64
	db.Model(&models.Membership{}).Where("community_id = ? AND user_id = ?", c.ID, uint(2)).Count(&rows)
	if rows != 1 {
		t.Fatalf("membership rows = %d, want 1", rows)
	}
	// A failed join must not bump the counter.
	if got := memberCount(t, db, c.ID); got != 2 {
		t.Fatalf("member_count = %d, want 2", got)
	}
}

func TestJoinUnknownCommunity(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)

	if _, err := l.Join(999, 1); !errors.Is(err, ErrCommunityNotFound) {
		t.Fatalf("err = %v, want ErrCommunityNotFound", err)
	}
}

func TestLeaveWithoutMembership(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	c := createCommunity(t, l, "gophers", 1, true)

	if err := l.Leave(c.ID, 42); !errors.Is(err, ErrNotAMember) {
		t.Fatalf("err = %v, want ErrNotAMember", err)
	}
	if got := memberCount(t, db, c.ID); got != 1 {
		t.Fatalf("member_count = %d, want 1 after failed leave", got)
	}
}

func TestIsMemberNeverFailsForUnknownIDs(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)

	for _, pair := range [][2]uint{{0, 0}, {0, 5}, {5, 0}, {999, 999}} {
		ok, err := l.IsMember(pair[0], pair[1])
		if err != nil {
			t.Fatalf("IsMember(%d,%d) err = %v", pair[0], pair[1], err)
		}
		if ok {
			t.Fatalf("IsMember(%d,%d) = true, want false", pair[0], pair[1])
		}
	}
}

func TestDecrementClampsAtZero(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	c := createCommunity(t, l, "gophers", 1, true)

	// Simulate a counter that already drifted to zero.
	if err := db.Model(&models.Community{}).Where("id = ?", c.ID).
		UpdateColumn("member_count", 0).Error; err != nil {
		t.Fatalf("force counter: %v", err)
	}
	if err := l.Leave(c.ID, 1); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if got := memberCount(t, db, c.ID); got != 0 {
		t.Fatalf("member_count = %d, want clamp at 0", got)
	}
}

func TestRecountRepairsDivergence(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	c := createCommunity(t, l, "gophers", 1, true)
	for _, uid := range []uint{2, 3, 4} {
		if _, err := l.Join(c.ID, uid); err != nil {
			t.Fatalf("join %d: %v", uid, err)
		}
	}

	// Corrupt the stored counter out of band.
	if err := db.Model(&models.Community{}).Where("id = ?", c.ID).
		UpdateColumn("member_count", 99).Error; err != nil {
		t.Fatalf("corrupt counter: %v", err)
	}

	actual, err := l.Recount(c.ID)
	if err != nil {
		t.Fatalf("recount: %v", err)
	}
	if actual != 4 {
		t.Fatalf("recount = %d, want 4", actual)
	}
	if got := memberCount(t, db, c.ID); got != 4 {
		t.Fatalf("stored member_count = %d, want 4 after recount", got)
	}
}

func TestRecountUnknownCommunity(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	if _, err := l.Recount(12345); !errors.Is(err, ErrCommunityNotFound) {
		t.Fatalf("err = %v, want ErrCommunityNotFound", err)
	}
}

func TestFindBySlug(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	created := createCommunity(t, l, "Rust Fans", 1, false)

	got, err := l.FindBySlug("rust-fans")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("found id %d, want %d", got.ID, created.ID)
	}

	if _, err := l.FindBySlug("nope"); !errors.Is(err, ErrCommunityNotFound) {
		t.Fatalf("err = %v, want ErrCommunityNotFound", err)
	}
}
