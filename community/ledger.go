package community

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/subfapp/subfapp/models"
)

// Ledger is the authoritative record of community membership. Membership rows
// are the unit of truth; Community.MemberCount is a denormalized counter that
// the ledger adjusts inside the same transaction as every membership
// mutation, so the divergence window of paired non-transactional writes is
// closed. Recount remains as the corrective path for counters that drifted
// before such a transaction existed (or were edited out of band).
type Ledger struct {
	db *gorm.DB
}

// NewLedger returns a Ledger backed by the given database handle.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// CreateCommunity derives the slug from the community name, inserts the
// community together with the creator's admin membership, and initializes
// MemberCount to 1. The whole operation is one transaction: a community can
// never be observed without its creator as first member.
func (l *Ledger) CreateCommunity(c *models.Community) (*models.Community, error) {
	c.Slug = Slugify(c.Name)
	if c.Slug == "" {
		return nil, ErrInvalidName
	}
	err := l.db.Transaction(func(tx *gorm.DB) error {
		var clash int64
		if err := tx.Model(&models.Community{}).Where("slug = ?", c.Slug).Count(&clash).Error; err != nil {
			return err
		}
		if clash > 0 {
			return ErrSlugTaken
		}
		c.MemberCount = 1
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		_, err := CreateWithCreator(tx, c.ID, c.CreatorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CreateWithCreator inserts the creator's admin membership inside the
// community-creation transaction. It is not reachable through Join.
func CreateWithCreator(tx *gorm.DB, communityID, userID uint) (*models.Membership, error) {
	m := &models.Membership{
		CommunityID: communityID,
		UserID:      userID,
		Role:        models.RoleAdmin,
		JoinedAt:    time.Now(),
	}
	if err := tx.Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// Join adds a member-role record for the pair and increments the community
// counter in the same transaction. Fails with ErrAlreadyMember when a record
// exists and ErrCommunityNotFound when the community does not.
func (l *Ledger) Join(communityID, userID uint) (*models.Membership, error) {
	m := &models.Membership{
		CommunityID: communityID,
		UserID:      userID,
		Role:        models.RoleMember,
		JoinedAt:    time.Now(),
	}
	err := l.db.Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Membership{}).
			Where("community_id = ? AND user_id = ?", communityID, userID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyMember
		}
		res := tx.Model(&models.Community{}).
			Where("id = ?", communityID).
			UpdateColumn("member_count", gorm.Expr("member_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCommunityNotFound
		}
		return tx.Create(m).Error
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Leave deletes the unique matching record and decrements the counter,
// clamped at zero. Fails with ErrNotAMember when no record exists.
func (l *Ledger) Leave(communityID, userID uint) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("community_id = ? AND user_id = ?", communityID, userID).
			Delete(&models.Membership{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotAMember
		}
		// Guarded decrement: a counter already at 0 stays at 0.
		return tx.Model(&models.Community{}).
			Where("id = ? AND member_count > 0", communityID).
			UpdateColumn("member_count", gorm.Expr("member_count - 1")).Error
	})
}

// IsMember reports whether a membership record exists for the pair. It never
// fails for unknown users or communities; those simply report false.
func (l *Ledger) IsMember(communityID, userID uint) (bool, error) {
	if communityID == 0 || userID == 0 {
		return false, nil
	}
	var count int64
	err := l.db.Model(&models.Membership{}).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Count(&count).Error
	return count > 0, err
}

// Members returns the membership records of a community ordered by join time.
func (l *Ledger) Members(communityID uint) ([]models.Membership, error) {
	var list []models.Membership
	err := l.db.Where("community_id = ?", communityID).
		Order("joined_at asc").Find(&list).Error
	return list, err
}

// Recount counts the actual membership records of a community, overwrites the
// stored counter with the result, and returns the true cardinality. It is the
// corrective path for counter divergence and safe to run at any time.
func (l *Ledger) Recount(communityID uint) (int64, error) {
	var actual int64
	err := l.db.Transaction(func(tx *gorm.DB) error {
		// RowsAffected cannot distinguish "missing" from "already correct"
		// (MySQL reports 0 for no-op updates), so check existence first.
		var exists int64
		if err := tx.Model(&models.Community{}).Where("id = ?", communityID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return ErrCommunityNotFound
		}
		if err := tx.Model(&models.Membership{}).
			Where("community_id = ?", communityID).
			Count(&actual).Error; err != nil {
			return err
		}
		return tx.Model(&models.Community{}).
			Where("id = ?", communityID).
			UpdateColumn("member_count", actual).Error
	})
	if err != nil {
		return 0, err
	}
	return actual, nil
}

// FindBySlug resolves a community by its slug, translating gorm's not-found
// into the typed ErrCommunityNotFound callers are expected to handle.
func (l *Ledger) FindBySlug(slug string) (*models.Community, error) {
	var c models.Community
	if err := l.db.Where("slug = ?", slug).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommunityNotFound
		}
		return nil, err
	}
	return &c, nil
}

// FindByID resolves a community by id with the same error translation.
func (l *Ledger) FindByID(id uint) (*models.Community, error) {
	var c models.Community
	if err := l.db.First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommunityNotFound
		}
		return nil, err
	}
	return &c, nil
}
