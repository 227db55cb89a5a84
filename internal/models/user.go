package models

import "time"

// User 代表系统中的用户资料。
// 本服务只读取用户资料（资料编辑由其他流程负责），唯一的例外是
// friend_entries 表中的去范式化好友条目。
type User struct {
	BaseModel
	DisplayName  string     `gorm:"type:varchar(100);not null;index" json:"displayName"`
	Email        string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"type:varchar(255);not null" json:"-"` // 不暴露密码哈希
	AvatarURL    string     `gorm:"type:varchar(255)" json:"avatarUrl,omitempty"`
	LastActiveAt *time.Time `json:"lastActiveAt,omitempty"`
}

// TableName 指定 User 模型的表名。
func (User) TableName() string {
	return "users"
}

// UserSummary holds minimal public information about a user.
// Used for friends lists, pending-request enrichment and search results.
type UserSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Summary 返回用户的公开摘要信息。
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		AvatarURL:   u.AvatarURL,
	}
}
