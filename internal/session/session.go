// Package session owns the per-identity real-time state: the three
// subscription-fed caches (friends, received requests, sent requests), the
// search results, and the published view consumed by the UI layer. All
// cache mutations are serialized through one run loop per session, so no
// component ever mutates the caches from outside.
package session

import (
	"context"
	"sync"

	"friendsync/internal/config"
	"friendsync/internal/models"
	"friendsync/internal/realtime"
	"friendsync/internal/services"
	"friendsync/internal/storage"
)

// PublishedState is the denormalized view state pushed to the UI layer.
// Loading and LastError form a consistent pair: Loading is false whenever
// an error or a successful result has been published.
type PublishedState struct {
	Friends          []models.UserSummary   `json:"friends"`
	ReceivedRequests []models.FriendRequest `json:"receivedRequests"`
	SentRequests     []models.FriendRequest `json:"sentRequests"`
	SearchResults    []models.UserSummary   `json:"searchResults"`
	Loading          bool                   `json:"loading"`
	LastError        string                 `json:"lastError,omitempty"`
}

type category int

const (
	categoryFriends category = iota
	categoryReceived
	categorySent
	categorySearch
	categoryLoading
)

// delivery is one unit of work for the session run loop. For the three
// subscription categories a delivery always carries the full replacement
// result set, never a diff. loadErr marks a failed subscription or query
// (fail closed: the category's cache is cleared); resolveErr marks a
// partial detail-resolution failure (the id cache is still replaced but
// the published list is cleared).
type delivery struct {
	category   category
	friendIDs  []string
	friends    []models.UserSummary
	requests   []models.FriendRequest
	results    []models.UserSummary
	searchGen  uint64
	loadErr    error
	resolveErr error
}

// Deps carries the collaborators a session needs.
type Deps struct {
	Users      storage.UserRepository
	Requests   storage.FriendRequestRepository
	Entries    storage.FriendEntryRepository
	Subscriber realtime.ChangeSubscriber
	Resolver   *services.UserResolver
	Sync       config.SyncConfig
}

// Session is the explicitly-owned per-identity coordinator. Construct one
// per signed-in identity and Close it on sign-out; never share a session
// across identities.
type Session struct {
	identity  string
	search    *services.SearchCoordinator
	listeners *listenerSet

	mu               sync.RWMutex
	state            PublishedState
	friendIDs        map[string]struct{}
	sentByReceiver   map[string]models.FriendRequest
	receivedBySender map[string]models.FriendRequest
	searchGen        uint64

	deliveries chan delivery
	updates    chan PublishedState
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once
}

// New creates a session for the given identity. Start must be called
// before the session delivers any state.
func New(identity string, deps Deps) *Session {
	s := &Session{
		identity:         identity,
		friendIDs:        make(map[string]struct{}),
		sentByReceiver:   make(map[string]models.FriendRequest),
		receivedBySender: make(map[string]models.FriendRequest),
		deliveries:       make(chan delivery, 32),
		updates:          make(chan PublishedState, 16),
		done:             make(chan struct{}),
	}
	s.state = PublishedState{
		Friends:          []models.UserSummary{},
		ReceivedRequests: []models.FriendRequest{},
		SentRequests:     []models.FriendRequest{},
		SearchResults:    []models.UserSummary{},
		Loading:          true,
	}
	s.search = services.NewSearchCoordinator(
		deps.Users,
		identity,
		deps.Sync.SearchDebounce,
		deps.Sync.SearchNameLimit,
		deps.Sync.SearchEmailLimit,
		func() {
			// 只有查询真正触发时才翻起 loading；被抑制的重复触发
			// 不会有任何投递，也就不能留下悬空的 loading。
			s.enqueue(delivery{category: categoryLoading})
		},
		func(gen uint64, results []models.UserSummary, err error) {
			s.enqueue(delivery{category: categorySearch, searchGen: gen, results: results, loadErr: err})
		},
	)
	s.listeners = newListenerSet(identity, deps, s.enqueue)
	return s
}

// Start opens the three subscriptions and begins processing deliveries.
func (s *Session) Start(parent context.Context) {
	s.ctx, s.cancel = context.WithCancel(parent)
	go s.run()
	s.listeners.start(s.ctx)
}

// Close tears the session down: all three subscriptions are cancelled
// synchronously, in-flight searches are invalidated, and the updates
// channel is closed. Close blocks until the run loop has exited, so a
// replacement session for another identity can only observe a fully
// stopped predecessor.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.listeners.close()
		s.search.Close()
		s.cancel()
		<-s.done
	})
}

// Identity returns the identity this session serves.
func (s *Session) Identity() string {
	return s.identity
}

// Updates returns the stream of published-state snapshots. The channel is
// closed when the session closes. A slow consumer loses intermediate
// snapshots, never the newest one.
func (s *Session) Updates() <-chan PublishedState {
	return s.updates
}

// Snapshot returns a copy of the current published state.
func (s *Session) Snapshot() PublishedState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SearchUsers registers free-text search input. Fire-and-forget: the
// loading flag flips when the debounced query actually fires, and results
// arrive through the published state.
func (s *Session) SearchUsers(query string) {
	s.search.Search(s.ctx, query)
}

// FriendshipStatus computes the relationship status of target from the
// locally cached sets. It never touches the store.
func (s *Session) FriendshipStatus(target string) services.FriendshipStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return services.ResolveFriendshipStatus(target, services.RelationshipCaches{
		SelfID:           s.identity,
		FriendIDs:        s.friendIDs,
		SentByReceiver:   s.sentByReceiver,
		ReceivedBySender: s.receivedBySender,
	})
}

func (s *Session) enqueue(d delivery) {
	select {
	case s.deliveries <- d:
	case <-s.ctx.Done():
	}
}

func (s *Session) run() {
	defer close(s.done)
	defer close(s.updates)
	for {
		select {
		case <-s.ctx.Done():
			return
		case d := <-s.deliveries:
			s.apply(d)
		}
	}
}

// apply mutates the caches and published state for one delivery, then
// pushes a fresh snapshot. Deliveries for a category are applied in
// arrival order; each one fully replaces that category's cached set.
func (s *Session) apply(d delivery) {
	s.mu.Lock()
	switch d.category {
	case categoryLoading:
		s.state.Loading = true
		s.state.LastError = "" // 新一轮查询开始，上一轮的错误不再适用

	case categoryFriends:
		if d.loadErr != nil {
			s.friendIDs = make(map[string]struct{})
			s.state.Friends = []models.UserSummary{}
			s.failed(d.loadErr)
			break
		}
		s.friendIDs = make(map[string]struct{}, len(d.friendIDs))
		for _, id := range d.friendIDs {
			s.friendIDs[id] = struct{}{}
		}
		if d.resolveErr != nil {
			// 详情批量获取部分失败：对外发布的列表整体清空。
			s.state.Friends = []models.UserSummary{}
			s.failed(d.resolveErr)
			break
		}
		s.state.Friends = d.friends
		s.succeeded()

	case categoryReceived:
		if d.loadErr != nil {
			s.receivedBySender = make(map[string]models.FriendRequest)
			s.state.ReceivedRequests = []models.FriendRequest{}
			s.failed(d.loadErr)
			break
		}
		s.receivedBySender = make(map[string]models.FriendRequest, len(d.requests))
		for _, r := range d.requests {
			s.receivedBySender[r.SenderID] = r
		}
		s.state.ReceivedRequests = d.requests
		s.succeeded()

	case categorySent:
		if d.loadErr != nil {
			s.sentByReceiver = make(map[string]models.FriendRequest)
			s.state.SentRequests = []models.FriendRequest{}
			s.failed(d.loadErr)
			break
		}
		s.sentByReceiver = make(map[string]models.FriendRequest, len(d.requests))
		for _, r := range d.requests {
			s.sentByReceiver[r.ReceiverID] = r
		}
		s.state.SentRequests = d.requests
		s.succeeded()

	case categorySearch:
		if d.searchGen <= s.searchGen {
			// 协调器的陈旧检查和回调之间存在窗口，被取代的查询
			// 仍可能迟到。按代际序号做最终裁决，旧代际直接丢弃。
			s.mu.Unlock()
			return
		}
		s.searchGen = d.searchGen
		// 搜索与好友详情策略不同：单路子查询失败时保留存活结果。
		s.state.SearchResults = d.results
		if s.state.SearchResults == nil {
			s.state.SearchResults = []models.UserSummary{}
		}
		if d.loadErr != nil {
			s.failed(d.loadErr)
		} else {
			s.succeeded()
		}
	}
	snapshot := s.state
	s.mu.Unlock()

	s.publish(snapshot)
}

// failed 和 succeeded 维持 loading/错误对的一致性：
// 任何结果或错误发布后 loading 必须为 false。
func (s *Session) failed(err error) {
	s.state.LastError = err.Error()
	s.state.Loading = false
}

func (s *Session) succeeded() {
	s.state.LastError = ""
	s.state.Loading = false
}

// publish pushes a snapshot, dropping the oldest buffered one when the
// consumer lags.
func (s *Session) publish(snapshot PublishedState) {
	for {
		select {
		case s.updates <- snapshot:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}
