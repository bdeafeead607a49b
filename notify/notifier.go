package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/coterm/config"
)

// channelPrefix namespaces nudge channels so a shared Redis instance
// can serve other tenants.
const channelPrefix = "coterm:messages:"

// Publisher fires a pub/sub nudge after a message insert. It implements
// store.Notifier.
type Publisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewPublisher connects to Redis and verifies the connection with a ping.
func NewPublisher(cfg config.RedisConfig, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Publisher{
		client: client,
		logger: logger.With(zap.String("component", "notify")),
	}, nil
}

// Notify publishes a wake-up on the channel's nudge topic. The payload is
// the channel name itself; subscribers only need to know something arrived,
// the store remains the source of truth.
func (p *Publisher) Notify(ctx context.Context, channel string) error {
	if err := p.client.Publish(ctx, channelPrefix+channel, channel).Err(); err != nil {
		return fmt.Errorf("publish nudge: %w", err)
	}
	return nil
}

// Subscribe delivers nudges for one channel until ctx is cancelled. Dropped
// nudges are fine: the subscriber always falls back to its poll interval.
func (p *Publisher) Subscribe(ctx context.Context, channel string) (<-chan string, error) {
	sub := p.client.Subscribe(ctx, channelPrefix+channel)

	// Wait for the subscription to settle so callers cannot miss nudges
	// sent immediately after Subscribe returns.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe nudge: %w", err)
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				default:
					// Full buffer. The poll loop covers the gap.
				}
			}
		}
	}()
	return out, nil
}

// Close releases the underlying client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
