package community

import "testing"

func TestCanViewPostsPublicCommunity(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	g := NewGate(l)
	c := createCommunity(t, l, "open space", 1, true)

	// Public communities are readable by members, strangers, and anonymous.
	for _, uid := range []uint{0, 1, 42} {
		if !g.CanViewPosts(c, uid) {
			t.Errorf("CanViewPosts(public, %d) = false, want true", uid)
		}
	}
}

func TestCanViewPostsPrivateCommunity(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	g := NewGate(l)
	c := createCommunity(t, l, "inner circle", 1, false)

	if g.CanViewPosts(c, 0) {
		t.Error("anonymous can view private community")
	}
	if g.CanViewPosts(c, 2) {
		t.Error("non-member can view private community")
	}
	if !g.CanViewPosts(c, 1) {
		t.Error("creator cannot view own private community")
	}

	if _, err := l.Join(c.ID, 2); err != nil {
		t.Fatalf("join: %v", err)
	}
	if !g.CanViewPosts(c, 2) {
		t.Error("member cannot view private community after join")
	}
}

func TestCanCreatePostRequiresMembershipEvenWhenPublic(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	g := NewGate(l)
	c := createCommunity(t, l, "open space", 1, true)

	if g.CanCreatePost(c, 0) {
		t.Error("anonymous can post")
	}
	if g.CanCreatePost(c, 2) {
		t.Error("non-member can post into public community")
	}
	if !g.CanCreatePost(c, 1) {
		t.Error("creator cannot post")
	}

	if _, err := l.Join(c.ID, 2); err != nil {
		t.Fatalf("join: %v", err)
	}
	if !g.CanCreatePost(c, 2) {
		t.Error("member cannot post after join")
	}
	if err := l.Leave(c.ID, 2); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if g.CanCreatePost(c, 2) {
		t.Error("user can still post after leaving")
	}
}

func TestGateHandlesNilCommunity(t *testing.T) {
	g := NewGate(NewLedger(newTestDB(t)))
	if g.CanViewPosts(nil, 1) || g.CanCreatePost(nil, 1) {
		t.Error("nil community must deny")
	}
}

// End-to-end: private community lifecycle from creation through an
// outsider joining and gaining both read and write access.
func TestPrivateCommunityScenario(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	g := NewGate(l)

	c := createCommunity(t, l, "Rust Fans", 1, false)
	if got := memberCount(t, db, c.ID); got != 1 {
		t.Fatalf("member_count = %d, want 1", got)
	}
	if m, _ := l.IsMember(c.ID, 1); !m {
		t.Fatal("creator is not a member")
	}

	const b = uint(2)
	if g.CanViewPosts(c, b) {
		t.Fatal("outsider can view private community")
	}
	if _, err := l.Join(c.ID, b); err != nil {
		t.Fatalf("join: %v", err)
	}
	if !g.CanViewPosts(c, b) {
		t.Fatal("member cannot view after join")
	}
	if got := memberCount(t, db, c.ID); got != 2 {
		t.Fatalf("member_count = %d, want 2", got)
	}
	if !g.CanCreatePost(c, b) {
		t.Fatal("member cannot post after join")
	}
}
