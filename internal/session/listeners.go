package session

import (
	"context"
	"fmt"
	"log"
	"sync"

	"friendsync/internal/realtime"
	"friendsync/internal/services"
	"friendsync/internal/storage"
)

// listenerSet operates the three live subscriptions for one identity:
// accepted friends, inbound pending requests, outbound pending requests.
// Each listener runs independently: one category failing never disables
// the other two. close cancels all three and waits, so no two generations
// of a subscription can overlap.
type listenerSet struct {
	identity   string
	subscriber realtime.ChangeSubscriber
	requests   storage.FriendRequestRepository
	entries    storage.FriendEntryRepository
	resolver   *services.UserResolver
	deliver    func(delivery)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newListenerSet(identity string, deps Deps, deliver func(delivery)) *listenerSet {
	return &listenerSet{
		identity:   identity,
		subscriber: deps.Subscriber,
		requests:   deps.Requests,
		entries:    deps.Entries,
		resolver:   deps.Resolver,
		deliver:    deliver,
	}
}

func (l *listenerSet) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	l.cancel = cancel
	l.wg.Add(3)
	go l.runFriends(ctx)
	go l.runReceived(ctx)
	go l.runSent(ctx)
}

// close 同步撤销全部订阅；返回时三个监听 goroutine 都已退出。
func (l *listenerSet) close() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

// listen drives one subscription: an initial full load, then a reload on
// every change signal. Every load delivers the complete current result
// set; the session replaces its cache wholesale on each delivery.
func (l *listenerSet) listen(ctx context.Context, channel string, load func(context.Context), fail func(error)) {
	defer l.wg.Done()

	sub, err := l.subscriber.Subscribe(ctx, channel)
	if err != nil {
		fail(fmt.Errorf("订阅 %s 失败: %w", channel, err))
		return
	}
	defer sub.Close()

	load(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Signals():
			if !ok {
				if ctx.Err() == nil {
					log.Printf("警告: 订阅 %s 意外中断", channel)
					fail(fmt.Errorf("订阅 %s 意外中断", channel))
				}
				return
			}
			load(ctx)
		}
	}
}

func (l *listenerSet) runFriends(ctx context.Context) {
	fail := func(err error) {
		l.deliver(delivery{category: categoryFriends, loadErr: err})
	}
	load := func(ctx context.Context) {
		ids, err := l.entries.ListFriendIDs(ctx, l.identity)
		if err != nil {
			fail(fmt.Errorf("加载好友列表失败: %w", err))
			return
		}
		summaries, resolveErr := l.resolver.Resolve(ctx, ids)
		l.deliver(delivery{
			category:   categoryFriends,
			friendIDs:  ids,
			friends:    summaries,
			resolveErr: resolveErr,
		})
	}
	l.listen(ctx, realtime.FriendsChannel(l.identity), load, fail)
}

func (l *listenerSet) runReceived(ctx context.Context) {
	fail := func(err error) {
		l.deliver(delivery{category: categoryReceived, loadErr: err})
	}
	load := func(ctx context.Context) {
		requests, err := l.requests.ListPendingForReceiver(ctx, l.identity)
		if err != nil {
			fail(fmt.Errorf("加载收到的好友请求失败: %w", err))
			return
		}
		l.deliver(delivery{category: categoryReceived, requests: requests})
	}
	l.listen(ctx, realtime.ReceivedRequestsChannel(l.identity), load, fail)
}

func (l *listenerSet) runSent(ctx context.Context) {
	fail := func(err error) {
		l.deliver(delivery{category: categorySent, loadErr: err})
	}
	load := func(ctx context.Context) {
		requests, err := l.requests.ListPendingForSender(ctx, l.identity)
		if err != nil {
			fail(fmt.Errorf("加载发出的好友请求失败: %w", err))
			return
		}
		l.deliver(delivery{category: categorySent, requests: requests})
	}
	l.listen(ctx, realtime.SentRequestsChannel(l.identity), load, fail)
}
