package realtime

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
)

// Subscription is one live change stream for a single channel. Signals
// are coalesced: a slow consumer sees at least one signal for any burst
// of changes, which is sufficient because every signal triggers a full
// re-query. The signal channel is closed when the subscription ends,
// whether through Close or through a connection failure.
type Subscription interface {
	Signals() <-chan struct{}
	Close() error
}

// ChangeSubscriber opens change streams. Each call returns an independent
// subscription with its own lifecycle.
type ChangeSubscriber interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

type redisChangeSubscriber struct {
	client *redis.Client
}

// NewRedisChangeSubscriber creates a ChangeSubscriber backed by Redis pub/sub.
func NewRedisChangeSubscriber(client *redis.Client) ChangeSubscriber {
	return &redisChangeSubscriber{client: client}
}

type redisSubscription struct {
	pubsub  *redis.PubSub
	signals chan struct{}
}

func (s *redisChangeSubscriber) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := s.client.Subscribe(ctx, channel)
	// 确认订阅已建立，避免错过紧随其后的变更通知。
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &redisSubscription{
		pubsub:  pubsub,
		signals: make(chan struct{}, 1),
	}

	go func() {
		defer close(sub.signals)
		for range pubsub.Channel() {
			select {
			case sub.signals <- struct{}{}:
			default:
				// 已有待处理信号，合并本次通知。
			}
		}
		log.Printf("变更订阅已结束: %s", channel)
	}()

	return sub, nil
}

func (s *redisSubscription) Signals() <-chan struct{} {
	return s.signals
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}
