package bulk_operation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go-bulkops/internal/config"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher forwards progress events to a Redis pub/sub channel.
type RedisPublisher struct {
	log     *zap.Logger
	rdb     *goredis.Client
	channel string
}

// NewRedisPublisher returns nil, nil when REDIS_ADDR is not configured.
func NewRedisPublisher(cfg *config.Config, log *zap.Logger) (*RedisPublisher, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, nil
	}
	ch := strings.TrimSpace(cfg.RedisChannel)
	if ch == "" {
		ch = "bulk-operations"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisPublisher{
		log:     log.Named("redis_publisher"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, ev ProgressEvent) {
	if p == nil || p.rdb == nil {
		return
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("marshal progress event", zap.Error(err))
		return
	}
	if err := p.rdb.Publish(ctx, p.channel, raw).Err(); err != nil {
		p.log.Warn("redis publish failed", zap.String("operation_id", ev.OperationID), zap.Error(err))
	}
}

func (p *RedisPublisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
