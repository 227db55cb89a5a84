package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"friendsync/internal/models"
	"friendsync/internal/realtime"
	"friendsync/internal/storage"
)

// FriendService implements the friend-relationship state machine:
// none -> pending(sent)/pending(received) -> friends or none.
// Every operation that must keep the two halves of a friendship pair
// consistent issues its writes through one atomic commit.
type FriendService interface {
	SendFriendRequest(ctx context.Context, senderID, receiverID string) (*models.FriendRequest, error)
	RespondToFriendRequest(ctx context.Context, callerID, requestID string, accept bool) error
	CancelFriendRequest(ctx context.Context, callerID, requestID string) error
	RemoveFriend(ctx context.Context, callerID, friendID string) error
}

type friendService struct {
	users     storage.UserRepository
	requests  storage.FriendRequestRepository
	entries   storage.FriendEntryRepository
	tx        storage.TxManager
	publisher realtime.ChangePublisher
	notifier  NotificationService
}

// NewFriendService creates a new FriendService instance.
func NewFriendService(
	users storage.UserRepository,
	requests storage.FriendRequestRepository,
	entries storage.FriendEntryRepository,
	tx storage.TxManager,
	publisher realtime.ChangePublisher,
	notifier NotificationService,
) FriendService {
	return &friendService{
		users:     users,
		requests:  requests,
		entries:   entries,
		tx:        tx,
		publisher: publisher,
		notifier:  notifier,
	}
}

// SendFriendRequest validates the request and creates it in pending state.
// The already-friends and duplicate-request checks are advisory reads
// before a separate write: two concurrent calls between the same pair can
// both pass them and both create pending requests. The race is narrow and
// accepted; moving the checks into a conditional write would close it.
func (s *friendService) SendFriendRequest(ctx context.Context, senderID, receiverID string) (*models.FriendRequest, error) {
	if senderID == receiverID {
		return nil, ErrSelfRequest
	}

	// 1. 检查接收用户是否存在
	if _, err := s.users.GetByID(ctx, receiverID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("检查接收用户时出错: %w", err)
	}

	// 2. 检查是否已经是好友
	areFriends, err := s.entries.Exists(ctx, senderID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("检查好友关系时出错: %w", err)
	}
	if areFriends {
		return nil, ErrAlreadyFriends
	}

	// 3. 检查双向是否已有待处理请求
	existing, err := s.requests.FindPendingBetween(ctx, senderID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("检查现有请求时出错: %w", err)
	}
	if existing != nil {
		return nil, ErrRequestAlreadyExists
	}

	// 4. 创建 pending 请求
	request := &models.FriendRequest{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.FriendRequestStatusPending,
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, fmt.Errorf("创建好友请求失败: %w", err)
	}

	s.publishChanges(ctx,
		realtime.SentRequestsChannel(senderID),
		realtime.ReceivedRequestsChannel(receiverID),
	)

	// 5. 通知接收方。通知失败不回滚请求。
	if err := s.notifier.FriendRequestSent(ctx, request); err != nil {
		log.Printf("警告: 好友请求通知发送失败 (%s -> %s): %v", senderID, receiverID, err)
	}

	return request, nil
}

// RespondToFriendRequest processes the receiver's accept or decline.
// On accept, the status update and both halves of the friendship pair are
// written in one atomic commit; a partially applied accept is never
// observable.
func (s *friendService) RespondToFriendRequest(ctx context.Context, callerID, requestID string, accept bool) error {
	var request *models.FriendRequest
	txErr := s.tx.Atomically(ctx, func(tx *storage.TxStores) error {
		var err error
		request, err = tx.Requests.GetByID(ctx, requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidRequestReference
			}
			return fmt.Errorf("检索好友请求失败: %w", err)
		}

		if request.ReceiverID != callerID {
			return ErrNotAuthorized
		}
		if !request.IsPending() {
			return ErrRequestNotPending
		}

		if !accept {
			if err := tx.Requests.UpdateStatus(ctx, requestID, models.FriendRequestStatusDeclined); err != nil {
				return fmt.Errorf("更新好友请求状态失败: %w", err)
			}
			return nil
		}

		if err := tx.Requests.UpdateStatus(ctx, requestID, models.FriendRequestStatusAccepted); err != nil {
			return fmt.Errorf("更新好友请求状态失败: %w", err)
		}
		if err := tx.Entries.CreatePair(ctx, request.SenderID, request.ReceiverID, time.Now()); err != nil {
			return fmt.Errorf("创建好友关系失败: %w", err)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}

	channels := []string{
		realtime.SentRequestsChannel(request.SenderID),
		realtime.ReceivedRequestsChannel(request.ReceiverID),
	}
	if accept {
		channels = append(channels,
			realtime.FriendsChannel(request.SenderID),
			realtime.FriendsChannel(request.ReceiverID),
		)
	}
	s.publishChanges(ctx, channels...)
	return nil
}

// CancelFriendRequest deletes a still-pending request. Only the sender may
// cancel; the record is removed rather than transitioned.
func (s *friendService) CancelFriendRequest(ctx context.Context, callerID, requestID string) error {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidRequestReference
		}
		return fmt.Errorf("检索好友请求失败: %w", err)
	}

	if request.SenderID != callerID {
		return ErrNotAuthorized
	}
	if !request.IsPending() {
		return ErrRequestNotPending
	}

	// 上面的状态检查只是提前拦截：读和删之间接收方可能并发接受了
	// 请求。条件删除保证不会误删已完成的请求记录。
	deleted, err := s.requests.DeletePending(ctx, requestID)
	if err != nil {
		return fmt.Errorf("删除好友请求失败: %w", err)
	}
	if !deleted {
		return ErrRequestNotPending
	}

	s.publishChanges(ctx,
		realtime.SentRequestsChannel(request.SenderID),
		realtime.ReceivedRequestsChannel(request.ReceiverID),
	)
	return nil
}

// RemoveFriend deletes both halves of the friendship pair in one atomic
// commit. Entries that are already absent count as satisfied, so a repeated
// removal is a no-op rather than an error.
func (s *friendService) RemoveFriend(ctx context.Context, callerID, friendID string) error {
	txErr := s.tx.Atomically(ctx, func(tx *storage.TxStores) error {
		if err := tx.Entries.DeletePair(ctx, callerID, friendID); err != nil {
			return fmt.Errorf("删除好友关系失败: %w", err)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}

	s.publishChanges(ctx,
		realtime.FriendsChannel(callerID),
		realtime.FriendsChannel(friendID),
	)
	return nil
}

// publishChanges 发布变更通知；失败只记录日志，订阅方会在下一次变更时追上。
func (s *friendService) publishChanges(ctx context.Context, channels ...string) {
	if err := s.publisher.PublishChange(ctx, channels...); err != nil {
		log.Printf("警告: 发布变更通知失败: %v", err)
	}
}
