package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"rbot_go/internal/domain"
)

// redisClient is the subset of *redis.Client the publisher uses.
type redisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisPublisher keeps the latest book under "book:{market}" with a TTL and
// publishes every trade on the "trades:{market}" channel. Book writes are
// throttled per market.
type RedisPublisher struct {
	client   redisClient
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	lastBook map[string]time.Time
	now      func() time.Time
}

// NewRedisPublisher connects to redisURL and verifies it with a PING.
func NewRedisPublisher(ctx context.Context, redisURL string, ttl, interval time.Duration) (*RedisPublisher, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, &domain.ConfigError{Field: "publish.redis_url", Err: err}
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, domain.NewNetworkError("redis ping", opt.Addr, err)
	}
	return newRedisPublisher(client, ttl, interval), nil
}

func newRedisPublisher(client redisClient, ttl, interval time.Duration) *RedisPublisher {
	return &RedisPublisher{
		client:   client,
		ttl:      ttl,
		interval: interval,
		logger:   slog.Default().With("module", "redis_publisher"),
		lastBook: make(map[string]time.Time),
		now:      time.Now,
	}
}

func BookKey(market string) string { return "book:" + market }

func TradeChannel(market string) string { return "trades:" + market }

func (p *RedisPublisher) PublishTrades(ctx context.Context, market string, trades []domain.Trade) error {
	channel := TradeChannel(market)
	for _, msg := range tradeMessages(market, trades) {
		b, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("json marshal failed: %w", err)
		}
		if err := p.client.Publish(ctx, channel, b).Err(); err != nil {
			return fmt.Errorf("redis PUBLISH failed: %w", err)
		}
	}
	return nil
}

func (p *RedisPublisher) PublishBoard(ctx context.Context, market string, board *domain.BoardTransfer) error {
	now := p.now()
	p.mu.Lock()
	if last, ok := p.lastBook[market]; ok && now.Sub(last) < p.interval {
		p.mu.Unlock()
		return nil
	}
	p.lastBook[market] = now
	p.mu.Unlock()

	b, err := json.Marshal(bookMessage(market, board))
	if err != nil {
		return fmt.Errorf("json marshal failed: %w", err)
	}
	if err := p.client.Set(ctx, BookKey(market), b, p.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	p.logger.Debug("Book published", "market", market, "bytes", len(b))
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
