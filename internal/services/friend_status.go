package services

import "friendsync/internal/models"

// StatusKind 标识目标用户与当前用户的关系类别。
type StatusKind string

const (
	StatusNotLoggedIn     StatusKind = "notLoggedIn"
	StatusSelf            StatusKind = "isSelf"
	StatusFriends         StatusKind = "friends"
	StatusRequestSent     StatusKind = "requestSent"
	StatusRequestReceived StatusKind = "requestReceived"
	StatusNotFriends      StatusKind = "notFriends"
)

// FriendshipStatus is a tagged value: Request is populated only for
// StatusRequestReceived, carrying the pending request awaiting the
// caller's response. Values compare structurally.
type FriendshipStatus struct {
	Kind    StatusKind            `json:"kind"`
	Request *models.FriendRequest `json:"request,omitempty"`
}

// RelationshipCaches is the locally cached view a session holds: the
// friend set plus the pending requests indexed by counterparty.
type RelationshipCaches struct {
	SelfID           string
	FriendIDs        map[string]struct{}
	SentByReceiver   map[string]models.FriendRequest
	ReceivedBySender map[string]models.FriendRequest
}

// ResolveFriendshipStatus computes the relationship status of target from
// the cached sets alone; it never queries the store. Categories are
// evaluated in priority order: isSelf, friends, requestSent,
// requestReceived, notFriends.
func ResolveFriendshipStatus(target string, caches RelationshipCaches) FriendshipStatus {
	if caches.SelfID == "" {
		return FriendshipStatus{Kind: StatusNotLoggedIn}
	}
	if target == caches.SelfID {
		return FriendshipStatus{Kind: StatusSelf}
	}
	if _, ok := caches.FriendIDs[target]; ok {
		return FriendshipStatus{Kind: StatusFriends}
	}
	if _, ok := caches.SentByReceiver[target]; ok {
		return FriendshipStatus{Kind: StatusRequestSent}
	}
	if request, ok := caches.ReceivedBySender[target]; ok {
		return FriendshipStatus{Kind: StatusRequestReceived, Request: &request}
	}
	return FriendshipStatus{Kind: StatusNotFriends}
}
