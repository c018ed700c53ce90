package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/warp/allocation-engine/generic"
)

// QuoteStore keeps issued quotes until they are committed or expire.
// Take returns and removes a quote in one step, so of two callers taking
// the same quote only one gets it. Unknown or expired quotes yield
// generic.ErrNotFound.
type QuoteStore interface {
	Put(ctx context.Context, q Quote, ttl time.Duration) error
	Take(ctx context.Context, id generic.QuoteID) (Quote, error)
}

// =============================================================================
// MEMORY
// =============================================================================

type memoryQuote struct {
	quote     Quote
	expiresAt time.Time
}

type MemoryQuoteStore struct {
	mu     sync.Mutex
	quotes map[generic.QuoteID]memoryQuote
	Now    func() time.Time
}

func NewMemoryQuoteStore() *MemoryQuoteStore {
	return &MemoryQuoteStore{quotes: make(map[generic.QuoteID]memoryQuote), Now: time.Now}
}

func (s *MemoryQuoteStore) Put(_ context.Context, q Quote, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.ID] = memoryQuote{quote: q, expiresAt: s.Now().Add(ttl)}
	return nil
}

func (s *MemoryQuoteStore) Take(_ context.Context, id generic.QuoteID) (Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mq, ok := s.quotes[id]
	if !ok {
		return Quote{}, fmt.Errorf("%w: quote %s", generic.ErrNotFound, id)
	}
	delete(s.quotes, id)
	if !s.Now().Before(mq.expiresAt) {
		return Quote{}, fmt.Errorf("%w: quote %s expired", generic.ErrNotFound, id)
	}
	return mq.quote, nil
}

// =============================================================================
// REDIS - Shared across server instances, expiry handled by Redis
// =============================================================================

const quoteKeyPrefix = "allocation-engine:quote:"

type RedisQuoteStore struct {
	client *redis.Client
}

func NewRedisQuoteStore(client *redis.Client) *RedisQuoteStore {
	return &RedisQuoteStore{client: client}
}

func quoteKey(id generic.QuoteID) string { return quoteKeyPrefix + string(id) }

func (s *RedisQuoteStore) Put(ctx context.Context, q Quote, ttl time.Duration) error {
	body, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal quote %s: %w", q.ID, err)
	}
	if err := s.client.Set(ctx, quoteKey(q.ID), body, ttl).Err(); err != nil {
		return fmt.Errorf("store quote %s: %w", q.ID, err)
	}
	return nil
}

// Take uses GETDEL, so the read and the delete are one command.
func (s *RedisQuoteStore) Take(ctx context.Context, id generic.QuoteID) (Quote, error) {
	body, err := s.client.GetDel(ctx, quoteKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Quote{}, fmt.Errorf("%w: quote %s", generic.ErrNotFound, id)
	}
	if err != nil {
		return Quote{}, fmt.Errorf("load quote %s: %w", id, err)
	}
	var q Quote
	if err := json.Unmarshal(body, &q); err != nil {
		return Quote{}, fmt.Errorf("decode quote %s: %w", id, err)
	}
	return q, nil
}

// RedisOptions configures NewRedisClient.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings with a short timeout.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return client, nil
}
