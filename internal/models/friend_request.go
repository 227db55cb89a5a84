package models

// FriendRequestStatus 定义好友请求的状态
type FriendRequestStatus string

const (
	FriendRequestStatusPending  FriendRequestStatus = "pending"
	FriendRequestStatusAccepted FriendRequestStatus = "accepted"
	FriendRequestStatusDeclined FriendRequestStatus = "declined"
)

// FriendRequest 代表一个好友请求记录。
// 生命周期：pending -> accepted / declined；发送者在 pending 状态下
// 撤回请求时直接删除记录而不做状态转换。
// 约束：任意一对用户之间同一时刻最多存在一条 pending 请求，
// 由写入前的存在性检查保证（不是数据库约束）。
type FriendRequest struct {
	BaseModel
	SenderID   string              `gorm:"type:uuid;not null;index:idx_friend_request_sender" json:"senderId"`
	ReceiverID string              `gorm:"type:uuid;not null;index:idx_friend_request_receiver" json:"receiverId"`
	Status     FriendRequestStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
}

// TableName 指定 FriendRequest 模型的表名。
func (FriendRequest) TableName() string {
	return "friend_requests"
}

// IsPending reports whether the request is still awaiting a response.
func (r *FriendRequest) IsPending() bool {
	return r.Status == FriendRequestStatusPending
}

// Involves reports whether the given identity is the sender or the receiver.
func (r *FriendRequest) Involves(identity string) bool {
	return r.SenderID == identity || r.ReceiverID == identity
}
