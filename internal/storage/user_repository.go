package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"friendsync/internal/models"
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	TouchLastActive(ctx context.Context, id string) error
	// SearchByNamePrefix performs a case-insensitive prefix match against
	// the display name, ordered by display name, at most limit rows.
	SearchByNamePrefix(ctx context.Context, prefix string, limit int) ([]models.UserSummary, error)
	// FindByExactEmail performs a case-insensitive exact match against the
	// email field, at most limit rows.
	FindByExactEmail(ctx context.Context, email string, limit int) ([]models.UserSummary, error)
	// GetSummariesByIDs fetches public summaries for at most MaxKeysPerQuery
	// identities in one query. Missing identities are silently absent from
	// the result.
	GetSummariesByIDs(ctx context.Context, ids []string) ([]models.UserSummary, error)
}

// gormUserRepository implements UserRepository using GORM.
type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GORM-based UserRepository.
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

// Create creates a new user record in the database.
func (r *gormUserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID retrieves a user by their identity.
func (r *gormUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err // Handles gorm.ErrRecordNotFound as well
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email (case-insensitive).
func (r *gormUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(email)).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// TouchLastActive updates the user's last-active timestamp.
func (r *gormUserRepository) TouchLastActive(ctx context.Context, id string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("last_active_at", &now).Error
}

var summaryColumns = []string{"id", "display_name", "email", "avatar_url"}

// SearchByNamePrefix 在 display_name 字段上做大小写不敏感的前缀匹配。
func (r *gormUserRepository) SearchByNamePrefix(ctx context.Context, prefix string, limit int) ([]models.UserSummary, error) {
	var summaries []models.UserSummary
	pattern := strings.ToLower(prefix) + "%"
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select(summaryColumns).
		Where("LOWER(display_name) LIKE ?", pattern).
		Order("LOWER(display_name)").
		Limit(limit).
		Find(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// FindByExactEmail 在 email 字段上做大小写不敏感的精确匹配。
func (r *gormUserRepository) FindByExactEmail(ctx context.Context, email string, limit int) ([]models.UserSummary, error) {
	var summaries []models.UserSummary
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select(summaryColumns).
		Where("LOWER(email) = ?", strings.ToLower(email)).
		Limit(limit).
		Find(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// GetSummariesByIDs retrieves public summaries for a list of identities.
func (r *gormUserRepository) GetSummariesByIDs(ctx context.Context, ids []string) ([]models.UserSummary, error) {
	var summaries []models.UserSummary
	if len(ids) == 0 {
		return summaries, nil
	}
	if len(ids) > MaxKeysPerQuery {
		return nil, fmt.Errorf("getSummariesByIDs: %d keys exceeds the fan-out limit of %d", len(ids), MaxKeysPerQuery)
	}

	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select(summaryColumns).
		Where("id IN ?", ids).
		Find(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}
