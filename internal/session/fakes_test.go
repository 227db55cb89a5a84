package session

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"friendsync/internal/models"
	"friendsync/internal/realtime"
)

// 会话测试使用的内存仓储与可手动触发信号的订阅端。

type stubUserRepository struct {
	mu         sync.Mutex
	summaries  map[string]models.UserSummary
	byName     []models.UserSummary
	byEmail    []models.UserSummary
	summaryErr error
}

func newStubUserRepository() *stubUserRepository {
	return &stubUserRepository{summaries: make(map[string]models.UserSummary)}
}

func (s *stubUserRepository) add(id, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[id] = models.UserSummary{ID: id, DisplayName: displayName}
}

func (s *stubUserRepository) Create(ctx context.Context, user *models.User) error { return nil }

func (s *stubUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepository) TouchLastActive(ctx context.Context, id string) error { return nil }

func (s *stubUserRepository) SearchByNamePrefix(ctx context.Context, prefix string, limit int) ([]models.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byName, nil
}

func (s *stubUserRepository) FindByExactEmail(ctx context.Context, email string, limit int) ([]models.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byEmail, nil
}

func (s *stubUserRepository) GetSummariesByIDs(ctx context.Context, ids []string) ([]models.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summaryErr != nil {
		return nil, s.summaryErr
	}
	var out []models.UserSummary
	for _, id := range ids {
		if summary, ok := s.summaries[id]; ok {
			out = append(out, summary)
		}
	}
	return out, nil
}

func (s *stubUserRepository) setSummaryErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaryErr = err
}

type stubRequestRepository struct {
	mu       sync.Mutex
	received []models.FriendRequest
	sent     []models.FriendRequest
	listErr  error
}

func (s *stubRequestRepository) Create(ctx context.Context, request *models.FriendRequest) error {
	return nil
}

func (s *stubRequestRepository) GetByID(ctx context.Context, requestID string) (*models.FriendRequest, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRequestRepository) FindPendingBetween(ctx context.Context, identityA, identityB string) (*models.FriendRequest, error) {
	return nil, nil
}

func (s *stubRequestRepository) UpdateStatus(ctx context.Context, requestID string, status models.FriendRequestStatus) error {
	return nil
}

func (s *stubRequestRepository) DeletePending(ctx context.Context, requestID string) (bool, error) {
	return false, nil
}

func (s *stubRequestRepository) ListPendingForReceiver(ctx context.Context, receiverID string) ([]models.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]models.FriendRequest(nil), s.received...), nil
}

func (s *stubRequestRepository) ListPendingForSender(ctx context.Context, senderID string) ([]models.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]models.FriendRequest(nil), s.sent...), nil
}

func (s *stubRequestRepository) setPending(received, sent []models.FriendRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = received
	s.sent = sent
}

type stubEntryRepository struct {
	mu      sync.Mutex
	friends []string
	listErr error
}

func (s *stubEntryRepository) CreatePair(ctx context.Context, identityA, identityB string, since time.Time) error {
	return nil
}

func (s *stubEntryRepository) DeletePair(ctx context.Context, identityA, identityB string) error {
	return nil
}

func (s *stubEntryRepository) Exists(ctx context.Context, ownerID, friendID string) (bool, error) {
	return false, nil
}

func (s *stubEntryRepository) ListFriendIDs(ctx context.Context, ownerID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]string(nil), s.friends...), nil
}

func (s *stubEntryRepository) setFriends(friends []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friends = friends
	s.listErr = err
}

type stubSubscription struct {
	signals chan struct{}
	once    sync.Once
}

func (s *stubSubscription) Signals() <-chan struct{} { return s.signals }

func (s *stubSubscription) Close() error {
	s.once.Do(func() { close(s.signals) })
	return nil
}

// stubSubscriber 按频道名登记订阅，测试通过 signal 手动触发变更。
type stubSubscriber struct {
	mu            sync.Mutex
	subscriptions map[string]*stubSubscription
	failChannels  map[string]error
}

func newStubSubscriber() *stubSubscriber {
	return &stubSubscriber{
		subscriptions: make(map[string]*stubSubscription),
		failChannels:  make(map[string]error),
	}
}

func (s *stubSubscriber) Subscribe(ctx context.Context, channel string) (realtime.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failChannels[channel]; ok {
		return nil, err
	}
	sub := &stubSubscription{signals: make(chan struct{}, 1)}
	s.subscriptions[channel] = sub
	return sub, nil
}

func (s *stubSubscriber) signal(channel string) {
	s.mu.Lock()
	sub := s.subscriptions[channel]
	s.mu.Unlock()
	if sub == nil {
		return
	}
	select {
	case sub.signals <- struct{}{}:
	default:
	}
}
