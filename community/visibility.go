package community

import "github.com/subfapp/subfapp/models"

// Gate decides post-read and post-write eligibility. It is a stateless
// predicate layer over the ledger: decisions are evaluated fresh from current
// membership state on every call and never cached, because membership can
// change between requests and there is no invalidation channel to callers.
//
// A userID of 0 means no authenticated identity.
type Gate struct {
	ledger *Ledger
}

// NewGate returns a Gate consulting the given ledger.
func NewGate(l *Ledger) *Gate {
	return &Gate{ledger: l}
}

// CanViewPosts reports whether posts of a community may be listed for the
// given user. Public communities are readable by anyone, including anonymous
// callers. Private communities require membership. Never errors; a failed
// membership lookup denies.
func (g *Gate) CanViewPosts(c *models.Community, userID uint) bool {
	if c == nil {
		return false
	}
	if c.IsPublic {
		return true
	}
	if userID == 0 {
		return false
	}
	ok, err := g.ledger.IsMember(c.ID, userID)
	return err == nil && ok
}

// CanCreatePost reports whether the given user may post into the community.
// Membership is required even for public communities: the view bypass for
// public communities does not extend to writing. Anonymous callers can never
// post.
func (g *Gate) CanCreatePost(c *models.Community, userID uint) bool {
	if c == nil || userID == 0 {
		return false
	}
	ok, err := g.ledger.IsMember(c.ID, userID)
	return err == nil && ok
}
