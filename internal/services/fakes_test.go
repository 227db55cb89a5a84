package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"friendsync/internal/models"
	"friendsync/internal/storage"
)

// 内存版仓储实现，供服务层测试使用。

type fakeUserRepository struct {
	mu        sync.Mutex
	users     map[string]*models.User
	summaries map[string]models.UserSummary

	byName   []models.UserSummary
	nameErr  error
	byEmail  []models.UserSummary
	emailErr error

	nameCalls    int
	emailCalls   int
	summaryCalls [][]string
	summaryErr   func(ids []string) error

	// onNameSearch, when set, runs before SearchByNamePrefix returns. Tests
	// use it to hold a query in flight.
	onNameSearch func(prefix string)
}

func newFakeUserRepository() *fakeUserRepository {
	return &fakeUserRepository{
		users:     make(map[string]*models.User),
		summaries: make(map[string]models.UserSummary),
	}
}

func (f *fakeUserRepository) addUser(id, displayName, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = &models.User{BaseModel: models.BaseModel{ID: id}, DisplayName: displayName, Email: email}
	f.summaries[id] = models.UserSummary{ID: id, DisplayName: displayName, Email: email}
}

func (f *fakeUserRepository) Create(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	f.summaries[user.ID] = user.Summary()
	return nil
}

func (f *fakeUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (f *fakeUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepository) TouchLastActive(ctx context.Context, id string) error {
	return nil
}

func (f *fakeUserRepository) SearchByNamePrefix(ctx context.Context, prefix string, limit int) ([]models.UserSummary, error) {
	f.mu.Lock()
	f.nameCalls++
	hook := f.onNameSearch
	results, err := f.byName, f.nameErr
	f.mu.Unlock()
	if hook != nil {
		hook(prefix)
	}
	return results, err
}

func (f *fakeUserRepository) FindByExactEmail(ctx context.Context, email string, limit int) ([]models.UserSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emailCalls++
	return f.byEmail, f.emailErr
}

func (f *fakeUserRepository) GetSummariesByIDs(ctx context.Context, ids []string) ([]models.UserSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaryCalls = append(f.summaryCalls, append([]string(nil), ids...))
	if f.summaryErr != nil {
		if err := f.summaryErr(ids); err != nil {
			return nil, err
		}
	}
	var out []models.UserSummary
	for _, id := range ids {
		if s, ok := f.summaries[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeUserRepository) searchCalls() (name, email int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nameCalls, f.emailCalls
}

type fakeFriendRequestRepository struct {
	mu       sync.Mutex
	requests map[string]models.FriendRequest
	nextID   int
	afterGet func(requestID string) // 在 GetByID 返回后、锁外执行，用于模拟并发写
}

func newFakeFriendRequestRepository() *fakeFriendRequestRepository {
	return &fakeFriendRequestRepository{requests: make(map[string]models.FriendRequest)}
}

func (f *fakeFriendRequestRepository) Create(ctx context.Context, request *models.FriendRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if request.ID == "" {
		f.nextID++
		request.ID = fmt.Sprintf("req-%d", f.nextID)
	}
	request.CreatedAt = time.Now()
	f.requests[request.ID] = *request
	return nil
}

func (f *fakeFriendRequestRepository) GetByID(ctx context.Context, requestID string) (*models.FriendRequest, error) {
	f.mu.Lock()
	request, ok := f.requests[requestID]
	hook := f.afterGet
	f.mu.Unlock()
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if hook != nil {
		hook(requestID)
	}
	return &request, nil
}

func (f *fakeFriendRequestRepository) FindPendingBetween(ctx context.Context, identityA, identityB string) (*models.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, request := range f.requests {
		if !request.IsPending() {
			continue
		}
		if (request.SenderID == identityA && request.ReceiverID == identityB) ||
			(request.SenderID == identityB && request.ReceiverID == identityA) {
			r := request
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeFriendRequestRepository) UpdateStatus(ctx context.Context, requestID string, status models.FriendRequestStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	request, ok := f.requests[requestID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	request.Status = status
	f.requests[requestID] = request
	return nil
}

func (f *fakeFriendRequestRepository) DeletePending(ctx context.Context, requestID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	request, ok := f.requests[requestID]
	if !ok || !request.IsPending() {
		return false, nil
	}
	delete(f.requests, requestID)
	return true, nil
}

func (f *fakeFriendRequestRepository) ListPendingForReceiver(ctx context.Context, receiverID string) ([]models.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.FriendRequest
	for _, request := range f.requests {
		if request.ReceiverID == receiverID && request.IsPending() {
			out = append(out, request)
		}
	}
	return out, nil
}

func (f *fakeFriendRequestRepository) ListPendingForSender(ctx context.Context, senderID string) ([]models.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.FriendRequest
	for _, request := range f.requests {
		if request.SenderID == senderID && request.IsPending() {
			out = append(out, request)
		}
	}
	return out, nil
}

func (f *fakeFriendRequestRepository) snapshot() map[string]models.FriendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := make(map[string]models.FriendRequest, len(f.requests))
	for id, request := range f.requests {
		snap[id] = request
	}
	return snap
}

func (f *fakeFriendRequestRepository) restore(snap map[string]models.FriendRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = snap
}

type pairKey struct{ owner, friend string }

type fakeFriendEntryRepository struct {
	mu        sync.Mutex
	entries   map[pairKey]time.Time
	createErr error
}

func newFakeFriendEntryRepository() *fakeFriendEntryRepository {
	return &fakeFriendEntryRepository{entries: make(map[pairKey]time.Time)}
}

func (f *fakeFriendEntryRepository) CreatePair(ctx context.Context, identityA, identityB string, since time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.entries[pairKey{identityA, identityB}] = since
	f.entries[pairKey{identityB, identityA}] = since
	return nil
}

func (f *fakeFriendEntryRepository) DeletePair(ctx context.Context, identityA, identityB string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, pairKey{identityA, identityB})
	delete(f.entries, pairKey{identityB, identityA})
	return nil
}

func (f *fakeFriendEntryRepository) Exists(ctx context.Context, ownerID, friendID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[pairKey{ownerID, friendID}]
	return ok, nil
}

func (f *fakeFriendEntryRepository) ListFriendIDs(ctx context.Context, ownerID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for key := range f.entries {
		if key.owner == ownerID {
			out = append(out, key.friend)
		}
	}
	return out, nil
}

func (f *fakeFriendEntryRepository) snapshot() map[pairKey]time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := make(map[pairKey]time.Time, len(f.entries))
	for key, since := range f.entries {
		snap[key] = since
	}
	return snap
}

func (f *fakeFriendEntryRepository) restore(snap map[pairKey]time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = snap
}

// fakeTxManager 在回调失败时回滚仓储状态，模拟事务语义。
type fakeTxManager struct {
	users    storage.UserRepository
	requests *fakeFriendRequestRepository
	entries  *fakeFriendEntryRepository
}

func (m *fakeTxManager) Atomically(ctx context.Context, fn func(tx *storage.TxStores) error) error {
	requestSnap := m.requests.snapshot()
	entrySnap := m.entries.snapshot()
	err := fn(&storage.TxStores{Users: m.users, Requests: m.requests, Entries: m.entries})
	if err != nil {
		m.requests.restore(requestSnap)
		m.entries.restore(entrySnap)
	}
	return err
}

type fakeChangePublisher struct {
	mu       sync.Mutex
	channels []string
	err      error
}

func (f *fakeChangePublisher) PublishChange(ctx context.Context, channels ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channels...)
	return f.err
}

func (f *fakeChangePublisher) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.channels...)
}

type fakeNotificationService struct {
	mu   sync.Mutex
	sent []*models.FriendRequest
	err  error
}

func (f *fakeNotificationService) FriendRequestSent(ctx context.Context, request *models.FriendRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, request)
	return f.err
}

func (f *fakeNotificationService) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
