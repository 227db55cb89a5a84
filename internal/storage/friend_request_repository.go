package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"friendsync/internal/models"
)

// FriendRequestRepository defines the interface for friend request data operations.
type FriendRequestRepository interface {
	Create(ctx context.Context, request *models.FriendRequest) error
	GetByID(ctx context.Context, requestID string) (*models.FriendRequest, error)
	// FindPendingBetween returns the pending request between two identities
	// in either direction, or nil when none exists.
	FindPendingBetween(ctx context.Context, identityA, identityB string) (*models.FriendRequest, error)
	UpdateStatus(ctx context.Context, requestID string, status models.FriendRequestStatus) error
	// DeletePending removes the request only while it is still pending.
	// It reports whether a row was deleted; false means the request was
	// missing or had already been transitioned concurrently.
	DeletePending(ctx context.Context, requestID string) (bool, error)
	ListPendingForReceiver(ctx context.Context, receiverID string) ([]models.FriendRequest, error)
	ListPendingForSender(ctx context.Context, senderID string) ([]models.FriendRequest, error)
}

type gormFriendRequestRepository struct {
	db *gorm.DB
}

// NewGormFriendRequestRepository creates a new GORM-based FriendRequestRepository.
func NewGormFriendRequestRepository(db *gorm.DB) FriendRequestRepository {
	return &gormFriendRequestRepository{db: db}
}

func (r *gormFriendRequestRepository) Create(ctx context.Context, request *models.FriendRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *gormFriendRequestRepository) GetByID(ctx context.Context, requestID string) (*models.FriendRequest, error) {
	var request models.FriendRequest
	err := r.db.WithContext(ctx).Where("id = ?", requestID).First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// FindPendingBetween checks for an existing pending request between two
// identities, in either direction.
func (r *gormFriendRequestRepository) FindPendingBetween(ctx context.Context, identityA, identityB string) (*models.FriendRequest, error) {
	var request models.FriendRequest
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", identityA, identityB, identityB, identityA).
		Where("status = ?", models.FriendRequestStatusPending).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // 没有待处理请求，对调用方来说不是错误
		}
		return nil, err
	}
	return &request, nil
}

func (r *gormFriendRequestRepository) UpdateStatus(ctx context.Context, requestID string, status models.FriendRequestStatus) error {
	return r.db.WithContext(ctx).Model(&models.FriendRequest{}).
		Where("id = ?", requestID).
		Update("status", status).Error
}

func (r *gormFriendRequestRepository) DeletePending(ctx context.Context, requestID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", requestID, models.FriendRequestStatusPending).
		Delete(&models.FriendRequest{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *gormFriendRequestRepository) ListPendingForReceiver(ctx context.Context, receiverID string) ([]models.FriendRequest, error) {
	var requests []models.FriendRequest
	err := r.db.WithContext(ctx).
		Where("receiver_id = ? AND status = ?", receiverID, models.FriendRequestStatusPending).
		Order("created_at DESC").
		Find(&requests).Error
	return requests, err
}

func (r *gormFriendRequestRepository) ListPendingForSender(ctx context.Context, senderID string) ([]models.FriendRequest, error) {
	var requests []models.FriendRequest
	err := r.db.WithContext(ctx).
		Where("sender_id = ? AND status = ?", senderID, models.FriendRequestStatusPending).
		Order("created_at DESC").
		Find(&requests).Error
	return requests, err
}
