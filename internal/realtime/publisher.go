package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ChangePublisher announces that the result set behind one or more
// channels has changed. The payload carries no data; subscribers re-query
// and treat the fresh result set as authoritative.
type ChangePublisher interface {
	PublishChange(ctx context.Context, channels ...string) error
}

type redisChangePublisher struct {
	client *redis.Client
}

// NewRedisChangePublisher creates a ChangePublisher backed by Redis pub/sub.
func NewRedisChangePublisher(client *redis.Client) ChangePublisher {
	return &redisChangePublisher{client: client}
}

// PublishChange publishes an invalidation signal to each channel. The
// first failure is returned after attempting the remaining channels.
func (p *redisChangePublisher) PublishChange(ctx context.Context, channels ...string) error {
	var firstErr error
	for _, ch := range channels {
		if err := p.client.Publish(ctx, ch, "sync").Err(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("发布变更通知到 %s 失败: %w", ch, err)
		}
	}
	return firstErr
}
