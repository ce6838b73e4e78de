package predict

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
)

// Cache stores successful predictions keyed by symbol. Implementations are
// safe for concurrent use; a backend failure reads as a miss.
type Cache interface {
	Get(ctx context.Context, symbol string) (signal.Prediction, bool)
	Set(ctx context.Context, symbol string, p signal.Prediction, ttl time.Duration)
}

var (
	_ Cache = (*MemoryCache)(nil)
	_ Cache = (*RedisCache)(nil)
)

type memoryEntry struct {
	p       signal.Prediction
	expires time.Time
}

// MemoryCache is a process-local TTL map.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache builds an empty cache; now may be nil for wall-clock time.
func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{entries: make(map[string]memoryEntry), now: now}
}

func (m *MemoryCache) Get(_ context.Context, symbol string) (signal.Prediction, bool) {
	key := strings.ToLower(symbol)
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return signal.Prediction{}, false
	}
	if !m.now().Before(e.expires) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur.expires.Equal(e.expires) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return signal.Prediction{}, false
	}
	return e.p, true
}

func (m *MemoryCache) Set(_ context.Context, symbol string, p signal.Prediction, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[strings.ToLower(symbol)] = memoryEntry{p: p, expires: m.now().Add(ttl)}
}

const redisKeyPrefix = "tradepulse:prediction:"

// RedisCache shares predictions across processes with SET ... EX.
type RedisCache struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedisCache(client *redis.Client, log zerolog.Logger) *RedisCache {
	return &RedisCache{client: client, log: log.With().Str("component", "prediction_cache").Logger()}
}

func (r *RedisCache) Get(ctx context.Context, symbol string) (signal.Prediction, bool) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+strings.ToLower(symbol)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn().Err(err).Str("symbol", symbol).Msg("prediction cache read failed")
		}
		return signal.Prediction{}, false
	}
	var p signal.Prediction
	if err := json.Unmarshal(raw, &p); err != nil {
		r.log.Warn().Err(err).Str("symbol", symbol).Msg("discarding undecodable cached prediction")
		return signal.Prediction{}, false
	}
	return p, true
}

func (r *RedisCache) Set(ctx context.Context, symbol string, p signal.Prediction, ttl time.Duration) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, redisKeyPrefix+strings.ToLower(symbol), raw, ttl).Err(); err != nil {
		r.log.Warn().Err(err).Str("symbol", symbol).Msg("prediction cache write failed")
	}
}
