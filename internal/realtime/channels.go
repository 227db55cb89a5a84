// Package realtime provides the change-notification layer behind the
// snapshot subscriptions: every committed mutation publishes an
// invalidation signal on per-identity, per-category Redis channels, and
// subscribers re-run the full query on each signal so that every delivery
// replaces the previous result set in full.
package realtime

const channelPrefix = "friendsync:"

// FriendsChannel 是 identity 的好友集合变更通知频道。
func FriendsChannel(identity string) string {
	return channelPrefix + "friends:" + identity
}

// ReceivedRequestsChannel 是 identity 收到的待处理请求变更通知频道。
func ReceivedRequestsChannel(identity string) string {
	return channelPrefix + "requests:in:" + identity
}

// SentRequestsChannel 是 identity 发出的待处理请求变更通知频道。
func SentRequestsChannel(identity string) string {
	return channelPrefix + "requests:out:" + identity
}
