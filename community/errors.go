package community

import "errors"

// Typed policy errors returned by ledger mutations. Lookups never return
// these; they report false/zero instead.
var (
	// ErrAlreadyMember is returned by Join when a membership record for the
	// (community, user) pair already exists.
	ErrAlreadyMember = errors.New("already a member of this community")
	// ErrNotAMember is returned by Leave when no membership record exists.
	ErrNotAMember = errors.New("not a member of this community")
	// ErrCommunityNotFound is returned when a referenced community id or slug
	// resolves to nothing.
	ErrCommunityNotFound = errors.New("community not found")
	// ErrSlugTaken is returned at creation when the derived slug collides
	// with an existing community.
	ErrSlugTaken = errors.New("community slug already taken")
	// ErrInvalidName is returned at creation when the name slugifies to
	// nothing (only symbols or whitespace).
	ErrInvalidName = errors.New("community name yields an empty slug")
)
