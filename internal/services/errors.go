package services

import "errors"

// 业务错误。状态机前置条件的违反同步返回给调用方，从不自动重试；
// 存储层失败用 fmt.Errorf("...: %w", err) 包装后向上传播。
var (
	ErrSelfRequest             = errors.New("不能添加自己为好友")
	ErrRequestAlreadyExists    = errors.New("已存在待处理的好友请求")
	ErrAlreadyFriends          = errors.New("你们已经是好友了")
	ErrRequestNotPending       = errors.New("该好友请求不是待处理状态")
	ErrNotAuthorized           = errors.New("无权操作此好友请求")
	ErrInvalidRequestReference = errors.New("好友请求不存在")
	ErrNotSignedIn             = errors.New("用户未登录")
	ErrFriendshipNotFound      = errors.New("好友关系不存在")
	ErrRecipientNotFound       = errors.New("接收用户不存在")
	ErrUserAlreadyExists       = errors.New("该邮箱已被注册")
	ErrInvalidCredentials      = errors.New("邮箱或密码错误")
)
