package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"friendsync/internal/auth"
	"friendsync/internal/config"
	"friendsync/internal/models"
	"friendsync/internal/storage"
)

// AuthService 是当前身份提供方：注册、登录并签发身份令牌。
// 本服务的其余部分只消费它产出的 identity。
type AuthService interface {
	Register(ctx context.Context, displayName, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, *models.User, error)
}

type authService struct {
	users storage.UserRepository
	cfg   config.AuthConfig
}

// NewAuthService creates a new AuthService instance.
func NewAuthService(users storage.UserRepository, cfg config.AuthConfig) AuthService {
	return &authService{users: users, cfg: cfg}
}

// Register creates a new user profile with a hashed password.
func (s *authService) Register(ctx context.Context, displayName, email, password string) (*models.User, error) {
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("检查邮箱是否已注册时出错: %w", err)
	}
	if existing != nil {
		return nil, ErrUserAlreadyExists
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("密码哈希失败: %w", err)
	}

	user := &models.User{
		DisplayName:  displayName,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}
	return user, nil
}

// Login verifies the credentials and returns a signed identity token.
func (s *authService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("查询用户失败: %w", err)
	}

	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}

	if err := s.users.TouchLastActive(ctx, user.ID); err != nil {
		// 最后活跃时间非关键，失败不阻断登录。
		log.Printf("警告: 更新用户 %s 最后活跃时间失败: %v", user.ID, err)
	}

	token, err := auth.GenerateToken(user.ID, user.DisplayName, s.cfg)
	if err != nil {
		return "", nil, fmt.Errorf("签发身份令牌失败: %w", err)
	}
	return token, user, nil
}
