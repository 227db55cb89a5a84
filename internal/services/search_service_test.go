package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"friendsync/internal/models"
)

const testWindow = 20 * time.Millisecond

type searchOutcome struct {
	gen     uint64
	results []models.UserSummary
	err     error
}

type searchFixture struct {
	users       *fakeUserRepository
	coordinator *SearchCoordinator
	outcomes    chan searchOutcome
	fires       int32
}

func newSearchFixture(t *testing.T, selfID string) *searchFixture {
	t.Helper()
	f := &searchFixture{
		users:    newFakeUserRepository(),
		outcomes: make(chan searchOutcome, 16),
	}
	f.coordinator = NewSearchCoordinator(f.users, selfID, testWindow, 10, 1,
		func() {
			atomic.AddInt32(&f.fires, 1)
		},
		func(gen uint64, results []models.UserSummary, err error) {
			f.outcomes <- searchOutcome{gen: gen, results: results, err: err}
		})
	t.Cleanup(f.coordinator.Close)
	return f
}

func (f *searchFixture) fireCount() int32 {
	return atomic.LoadInt32(&f.fires)
}

func (f *searchFixture) waitOutcome(t *testing.T) searchOutcome {
	t.Helper()
	select {
	case outcome := <-f.outcomes:
		return outcome
	case <-time.After(2 * time.Second):
		t.Fatal("等待搜索结果超时")
		return searchOutcome{}
	}
}

func (f *searchFixture) assertNoOutcome(t *testing.T) {
	t.Helper()
	select {
	case outcome := <-f.outcomes:
		t.Fatalf("不应收到搜索结果: %+v", outcome)
	case <-time.After(4 * testWindow):
	}
}

func TestSearchMergesAndSorts(t *testing.T) {
	f := newSearchFixture(t, "me")
	f.users.byName = []models.UserSummary{
		{ID: "carol", DisplayName: "Carol"},
		{ID: "bob", DisplayName: "Bob"},
	}
	f.users.byEmail = []models.UserSummary{
		{ID: "bob", DisplayName: "Bob"}, // 与名称结果重叠，按 identity 去重
	}

	f.coordinator.Search(context.Background(), "bo")

	outcome := f.waitOutcome(t)
	require.NoError(t, outcome.err)
	require.Len(t, outcome.results, 2)
	assert.Equal(t, "Bob", outcome.results[0].DisplayName)
	assert.Equal(t, "Carol", outcome.results[1].DisplayName)
}

func TestSearchExcludesSelf(t *testing.T) {
	f := newSearchFixture(t, "me")
	f.users.byName = []models.UserSummary{
		{ID: "me", DisplayName: "Me"},
		{ID: "bob", DisplayName: "Bob"},
	}

	f.coordinator.Search(context.Background(), "m")

	outcome := f.waitOutcome(t)
	require.NoError(t, outcome.err)
	require.Len(t, outcome.results, 1)
	assert.Equal(t, "bob", outcome.results[0].ID)
}

func TestSearchDebouncesRapidInput(t *testing.T) {
	f := newSearchFixture(t, "me")
	f.users.byName = []models.UserSummary{{ID: "bob", DisplayName: "Bob"}}

	// 窗口内的连续输入重置计时，只有最后一次触发查询。
	f.coordinator.Search(context.Background(), "b")
	f.coordinator.Search(context.Background(), "bo")
	f.coordinator.Search(context.Background(), "bob")

	f.waitOutcome(t)
	f.assertNoOutcome(t)

	nameCalls, emailCalls := f.users.searchCalls()
	assert.Equal(t, 1, nameCalls)
	assert.Equal(t, 1, emailCalls)
}

func TestSearchEmptyQueryClearsImmediately(t *testing.T) {
	f := newSearchFixture(t, "me")

	f.coordinator.Search(context.Background(), "   ")

	outcome := f.waitOutcome(t)
	require.NoError(t, outcome.err)
	assert.Empty(t, outcome.results)

	nameCalls, emailCalls := f.users.searchCalls()
	assert.Zero(t, nameCalls)
	assert.Zero(t, emailCalls)
}

func TestSearchSuppressesDuplicateQuery(t *testing.T) {
	f := newSearchFixture(t, "me")
	f.users.byName = []models.UserSummary{{ID: "bob", DisplayName: "Bob"}}

	f.coordinator.Search(context.Background(), "bob")
	f.waitOutcome(t)

	// 与上一次已触发的查询相同，不再重复执行。被抑制的触发也不发出
	// onFire 信号，否则会话侧的 loading 标志会悬空。
	f.coordinator.Search(context.Background(), "bob")
	f.assertNoOutcome(t)

	nameCalls, _ := f.users.searchCalls()
	assert.Equal(t, 1, nameCalls)
	assert.Equal(t, int32(1), f.fireCount())
}

func TestSearchSignalsEachDistinctFire(t *testing.T) {
	f := newSearchFixture(t, "me")
	f.users.byName = []models.UserSummary{{ID: "bob", DisplayName: "Bob"}}

	f.coordinator.Search(context.Background(), "b")
	first := f.waitOutcome(t)
	f.coordinator.Search(context.Background(), "bo")
	second := f.waitOutcome(t)

	assert.Equal(t, int32(2), f.fireCount())
	// 每次触发和清空都推进代际序号，消费方据此丢弃迟到的旧投递。
	assert.Greater(t, second.gen, first.gen)

	f.coordinator.Search(context.Background(), "")
	cleared := f.waitOutcome(t)
	assert.Greater(t, cleared.gen, second.gen)
	assert.Equal(t, int32(2), f.fireCount(), "清空不算一次触发")
}

func TestSearchBothQueriesFail(t *testing.T) {
	f := newSearchFixture(t, "me")
	f.users.nameErr = errors.New("name query failed")
	f.users.emailErr = errors.New("email query failed")

	f.coordinator.Search(context.Background(), "bob")

	outcome := f.waitOutcome(t)
	require.Error(t, outcome.err)
	assert.Empty(t, outcome.results)
}

func TestSearchSingleFailureKeepsPartialResults(t *testing.T) {
	f := newSearchFixture(t, "me")
	f.users.nameErr = errors.New("name query failed")
	f.users.byEmail = []models.UserSummary{{ID: "bob", DisplayName: "Bob"}}

	f.coordinator.Search(context.Background(), "bob@example.com")

	// 单路子查询失败：保留存活子查询的结果，同时上报错误。
	outcome := f.waitOutcome(t)
	require.Error(t, outcome.err)
	require.Len(t, outcome.results, 1)
	assert.Equal(t, "bob", outcome.results[0].ID)
}

func TestSearchStaleResultsDropped(t *testing.T) {
	f := newSearchFixture(t, "me")
	gate := make(chan struct{})
	f.users.byName = []models.UserSummary{{ID: "old", DisplayName: "Old"}}
	f.users.onNameSearch = func(prefix string) {
		if prefix == "first" {
			<-gate
		}
	}

	f.coordinator.Search(context.Background(), "first")
	require.Eventually(t, func() bool {
		nameCalls, _ := f.users.searchCalls()
		return nameCalls == 1
	}, 2*time.Second, time.Millisecond, "第一次查询应已触发")

	// 第一次查询仍在途时换新的查询，旧结果必须被丢弃。
	f.users.mu.Lock()
	f.users.byName = []models.UserSummary{{ID: "new", DisplayName: "New"}}
	f.users.mu.Unlock()
	f.coordinator.Search(context.Background(), "second")

	outcome := f.waitOutcome(t)
	require.NoError(t, outcome.err)
	require.Len(t, outcome.results, 1)
	assert.Equal(t, "new", outcome.results[0].ID)

	close(gate)
	f.assertNoOutcome(t)
}

func TestSearchCloseDropsPendingWork(t *testing.T) {
	f := newSearchFixture(t, "me")
	f.users.byName = []models.UserSummary{{ID: "bob", DisplayName: "Bob"}}

	f.coordinator.Search(context.Background(), "bob")
	f.coordinator.Close()

	f.assertNoOutcome(t)
}
