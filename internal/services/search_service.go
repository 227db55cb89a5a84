package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"friendsync/internal/models"
	"friendsync/internal/storage"
)

// SearchResultHandler receives the outcome of a fired search together
// with the query's generation token. Generations increase strictly
// monotonically; the consumer must drop any delivery whose generation is
// not newer than the last one it applied, since the check inside deliver
// and the handler call are not one atomic step.
type SearchResultHandler func(generation uint64, results []models.UserSummary, err error)

// SearchCoordinator debounces free-text input and issues parallel
// name-prefix and exact-email queries. Only the newest query's results are
// ever surfaced: every fire (and every clear) advances a generation token,
// and stale deliveries are dropped both here and at the consumer.
type SearchCoordinator struct {
	users      storage.UserRepository
	selfID     string
	window     time.Duration
	nameLimit  int
	emailLimit int
	onFire     func()
	handler    SearchResultHandler

	mu         sync.Mutex
	timer      *time.Timer
	lastFired  string
	generation uint64
	closed     bool
}

// NewSearchCoordinator creates a new SearchCoordinator for the given
// identity. onFire runs when a query actually fires (after the debounce
// window and the duplicate check); a suppressed fire never signals, so
// consumers can safely tie a loading state to it. Both callbacks are
// invoked from coordinator goroutines.
func NewSearchCoordinator(users storage.UserRepository, selfID string, window time.Duration, nameLimit, emailLimit int, onFire func(), handler SearchResultHandler) *SearchCoordinator {
	return &SearchCoordinator{
		users:      users,
		selfID:     selfID,
		window:     window,
		nameLimit:  nameLimit,
		emailLimit: emailLimit,
		onFire:     onFire,
		handler:    handler,
	}
}

// Search registers new input. The trailing edge of the debounce window
// fires the query; input arriving earlier restarts the window. An empty
// trimmed query clears the results immediately and invalidates whatever
// is still in flight.
func (c *SearchCoordinator) Search(ctx context.Context, query string) {
	q := strings.TrimSpace(query)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	if q == "" {
		c.lastFired = ""
		c.generation++ // 废弃在途查询的结果
		gen := c.generation
		go c.handler(gen, []models.UserSummary{}, nil)
		return
	}

	c.timer = time.AfterFunc(c.window, func() {
		c.fire(ctx, q)
	})
}

// Close stops the coordinator. Pending timers are cancelled and in-flight
// results are never delivered.
func (c *SearchCoordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *SearchCoordinator) fire(ctx context.Context, query string) {
	c.mu.Lock()
	if c.closed || query == c.lastFired {
		// 与上一次已触发的查询相同，抑制重复。被抑制的触发不发出
		// onFire 信号，也不会有任何投递。
		c.mu.Unlock()
		return
	}
	c.lastFired = query
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	if c.onFire != nil {
		c.onFire()
	}

	var (
		wg       sync.WaitGroup
		byName   []models.UserSummary
		byEmail  []models.UserSummary
		nameErr  error
		emailErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		byName, nameErr = c.users.SearchByNamePrefix(ctx, query, c.nameLimit)
	}()
	go func() {
		defer wg.Done()
		byEmail, emailErr = c.users.FindByExactEmail(ctx, query, c.emailLimit)
	}()
	wg.Wait()

	if nameErr != nil && emailErr != nil {
		// 两路子查询都失败：返回一个代表性错误和空结果集。
		c.deliver(gen, []models.UserSummary{}, fmt.Errorf("搜索用户失败: %w", nameErr))
		return
	}

	// 只有一路失败时，保留存活子查询的结果，同时上报该错误。
	// 注意这与好友详情解析器的整体清空策略不一致，属于沿袭下来的行为。
	var partialErr error
	if nameErr != nil {
		partialErr = fmt.Errorf("按名称搜索用户失败: %w", nameErr)
	} else if emailErr != nil {
		partialErr = fmt.Errorf("按邮箱搜索用户失败: %w", emailErr)
	}

	merged := make(map[string]models.UserSummary, len(byName)+len(byEmail))
	for _, s := range byName {
		merged[s.ID] = s
	}
	for _, s := range byEmail {
		merged[s.ID] = s
	}
	delete(merged, c.selfID) // 调用者自己永远不出现在搜索结果中

	c.deliver(gen, sortSummaries(merged), partialErr)
}

// deliver hands results to the handler unless a newer generation has
// already superseded this query. The check and the handler call are two
// steps, so a newer delivery can still slip between them; the handler
// compares generation tokens before applying anything.
func (c *SearchCoordinator) deliver(gen uint64, results []models.UserSummary, err error) {
	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.handler(gen, results, err)
}
