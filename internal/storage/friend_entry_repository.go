package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"friendsync/internal/models"
)

// FriendEntryRepository defines the interface for the denormalized
// friendship entries. The pair-writing methods insert or delete both
// halves in one statement; callers that combine them with other writes
// (e.g. accepting a request) must run them inside a transaction via
// TxManager so the whole operation commits atomically.
type FriendEntryRepository interface {
	// CreatePair writes both halves of the friendship between a and b.
	CreatePair(ctx context.Context, identityA, identityB string, since time.Time) error
	// DeletePair removes both halves. Rows that are already absent are
	// treated as already-satisfied, not an error.
	DeletePair(ctx context.Context, identityA, identityB string) error
	Exists(ctx context.Context, ownerID, friendID string) (bool, error)
	ListFriendIDs(ctx context.Context, ownerID string) ([]string, error)
}

type gormFriendEntryRepository struct {
	db *gorm.DB
}

// NewGormFriendEntryRepository creates a new GORM-based FriendEntryRepository.
func NewGormFriendEntryRepository(db *gorm.DB) FriendEntryRepository {
	return &gormFriendEntryRepository{db: db}
}

// CreatePair inserts both symmetric entries in a single multi-row insert.
func (r *gormFriendEntryRepository) CreatePair(ctx context.Context, identityA, identityB string, since time.Time) error {
	entries := models.FriendshipPair(identityA, identityB, since)
	return r.db.WithContext(ctx).Create(&entries).Error
}

// DeletePair removes both symmetric entries in a single statement.
func (r *gormFriendEntryRepository) DeletePair(ctx context.Context, identityA, identityB string) error {
	return r.db.WithContext(ctx).
		Where("(owner_id = ? AND friend_id = ?) OR (owner_id = ? AND friend_id = ?)", identityA, identityB, identityB, identityA).
		Delete(&models.FriendEntry{}).Error
}

// Exists 检查 owner 的好友集合中是否包含 friend。
func (r *gormFriendEntryRepository) Exists(ctx context.Context, ownerID, friendID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.FriendEntry{}).
		Where("owner_id = ? AND friend_id = ?", ownerID, friendID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListFriendIDs retrieves the identities of everyone in the owner's friend set.
func (r *gormFriendEntryRepository) ListFriendIDs(ctx context.Context, ownerID string) ([]string, error) {
	var friendIDs []string
	err := r.db.WithContext(ctx).Model(&models.FriendEntry{}).
		Where("owner_id = ?", ownerID).
		Pluck("friend_id", &friendIDs).Error
	if err != nil {
		return nil, err
	}
	return friendIDs, nil
}
