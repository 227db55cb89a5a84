package models

import "time"

// FriendEntry is one half of a friendship: a denormalized entry written
// under the owner's own record. A friendship between A and B is exactly
// the pair (A owns B, B owns A); the two rows are only ever created or
// deleted together inside one transaction.
type FriendEntry struct {
	OwnerID     string    `gorm:"type:uuid;primaryKey" json:"ownerId"`
	FriendID    string    `gorm:"type:uuid;primaryKey" json:"friendId"`
	FriendSince time.Time `gorm:"not null" json:"friendSince"`
}

// TableName 指定 FriendEntry 模型的表名。
func (FriendEntry) TableName() string {
	return "friend_entries"
}

// FriendshipPair 返回 a 和 b 之间好友关系的两条对称记录。
func FriendshipPair(a, b string, since time.Time) []FriendEntry {
	return []FriendEntry{
		{OwnerID: a, FriendID: b, FriendSince: since},
		{OwnerID: b, FriendID: a, FriendSince: since},
	}
}
