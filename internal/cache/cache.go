// Package cache keeps the latest price per symbol in Redis and fans price
// changes out over Redis pub/sub, so several tracker instances can share one
// upstream poller.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/portfolio-tracker/internal/config"
	"github.com/rickgao/portfolio-tracker/internal/model"
	"github.com/rickgao/portfolio-tracker/internal/queue"
)

const (
	keyPrefix     = "quote:"
	channelPrefix = "prices."
)

// Connect creates a Redis client and verifies it with a ping.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Stats is a snapshot of cache writer counters.
type Stats struct {
	Cached  int64 `json:"cached"`
	Errors  int64 `json:"errors"`
	Dropped int64 `json:"dropped"`
	Queued  int   `json:"queued"`
}

// PriceCache stores the latest PriceUpdate per symbol.
type PriceCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger

	writeTimeout time.Duration

	// Updates from OnPrice wait here for the writer goroutine.
	input *queue.Deque[model.PriceUpdate]
	wg    sync.WaitGroup

	cached  atomic.Int64
	errors  atomic.Int64
	dropped atomic.Int64
}

// New creates a PriceCache. A zero ttl keeps entries forever.
func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *PriceCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &PriceCache{
		client:       client,
		ttl:          ttl,
		logger:       logger,
		writeTimeout: 2 * time.Second,
		input:        queue.New[model.PriceUpdate](256),
	}
}

// Start begins writing updates queued by OnPrice.
func (c *PriceCache) Start(_ context.Context) error {
	c.wg.Add(1)
	go c.writeLoop()

	c.logger.Info("price cache started", "ttl", c.ttl)
	return nil
}

// Stop writes what is still queued and shuts the writer down. Updates
// arriving after Stop are dropped.
func (c *PriceCache) Stop(ctx context.Context) error {
	c.input.Close()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("price cache stopped")
		return nil
	case <-ctx.Done():
		c.logger.Warn("price cache stop timed out", "queued", c.input.Len())
		return ctx.Err()
	}
}

// Stats returns current counters.
func (c *PriceCache) Stats() Stats {
	return Stats{
		Cached:  c.cached.Load(),
		Errors:  c.errors.Load(),
		Dropped: c.dropped.Load(),
		Queued:  c.input.Len(),
	}
}

// Put stores update as the latest price for its symbol and publishes it.
func (c *PriceCache) Put(ctx context.Context, update model.PriceUpdate) error {
	symbol := model.NormalizeSymbol(update.Symbol)
	update.Symbol = symbol

	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal price update: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, keyPrefix+symbol, payload, c.ttl)
	pipe.Publish(ctx, channelPrefix+symbol, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache price %s: %w", symbol, err)
	}
	return nil
}

// OnPrice queues update for the writer goroutine and never waits on Redis.
// It satisfies portfolio.Observer.
func (c *PriceCache) OnPrice(update model.PriceUpdate) {
	if !c.input.PushBack(update) {
		c.dropped.Add(1)
		c.logger.Debug("price cache closed, dropping update", "symbol", update.Symbol)
	}
}

// writeLoop stores queued updates until the queue is closed and empty.
func (c *PriceCache) writeLoop() {
	defer c.wg.Done()

	for {
		update, ok := c.input.Receive()
		if !ok {
			return
		}
		c.write(update)
	}
}

func (c *PriceCache) write(update model.PriceUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()

	if err := c.Put(ctx, update); err != nil {
		c.errors.Add(1)
		c.logger.Warn("failed to cache price", "symbol", update.Symbol, "err", err)
		return
	}
	c.cached.Add(1)
}

// Latest returns the cached updates for symbols. Symbols with no cached price
// are absent from the result.
func (c *PriceCache) Latest(ctx context.Context, symbols []string) (map[string]model.PriceUpdate, error) {
	out := make(map[string]model.PriceUpdate, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = keyPrefix + model.NormalizeSymbol(sym)
	}

	results, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget prices: %w", err)
	}

	for _, val := range results {
		payload, ok := val.(string)
		if !ok || payload == "" {
			continue
		}
		var u model.PriceUpdate
		if err := json.Unmarshal([]byte(payload), &u); err != nil {
			c.logger.Warn("skipping malformed cached price", "err", err)
			continue
		}
		out[u.Symbol] = u
	}
	return out, nil
}

// Listen delivers every published price update to fn until ctx is done.
// It returns nil when ctx is cancelled.
func (c *PriceCache) Listen(ctx context.Context, fn func(model.PriceUpdate)) error {
	pubsub := c.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	// Wait for the subscription to be confirmed so no publish is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("subscribe prices: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var u model.PriceUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
				c.logger.Warn("skipping malformed price message",
					"channel", msg.Channel,
					"err", err,
				)
				continue
			}
			if u.Symbol == "" {
				u.Symbol = strings.TrimPrefix(msg.Channel, channelPrefix)
			}
			fn(u)
		}
	}
}
