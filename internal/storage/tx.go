package storage

import (
	"context"

	"gorm.io/gorm"
)

// TxStores bundles transaction-bound repositories. All writes issued
// through a TxStores instance belong to the same atomic commit.
type TxStores struct {
	Users    UserRepository
	Requests FriendRequestRepository
	Entries  FriendEntryRepository
}

// TxManager runs a set of document writes as one all-or-nothing commit.
// This is the sole mechanism keeping the two halves of a friendship pair
// (and a request plus its resulting pair) consistent; there is no
// background reconciliation.
type TxManager interface {
	Atomically(ctx context.Context, fn func(tx *TxStores) error) error
}

type gormTxManager struct {
	db *gorm.DB
}

// NewGormTxManager creates a TxManager backed by a gorm transaction.
func NewGormTxManager(db *gorm.DB) TxManager {
	return &gormTxManager{db: db}
}

func (m *gormTxManager) Atomically(ctx context.Context, fn func(tx *TxStores) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&TxStores{
			Users:    NewGormUserRepository(tx),
			Requests: NewGormFriendRequestRepository(tx),
			Entries:  NewGormFriendEntryRepository(tx),
		})
	})
}
