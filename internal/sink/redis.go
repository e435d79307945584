package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turnwire/turnwire/pkg/types"
)

const (
	// defaultKeyPrefix namespaces the per-session event lists.
	defaultKeyPrefix = "turn"

	// defaultTTL keeps mirrored lists for a day; every write refreshes it.
	defaultTTL = 24 * time.Hour
)

// Redis mirrors envelopes into per-session Redis lists: each write LPUSHes
// the marshalled envelope onto "turn:{sessionId}:events" and refreshes the
// list's TTL so abandoned sessions age out on their own.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis sink from config. The connection is lazy; the
// first Write surfaces any connectivity problem.
func NewRedis(cfg types.RedisSinkConfig) *Redis {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	ttl := defaultTTL
	if cfg.TTLHours > 0 {
		ttl = time.Duration(cfg.TTLHours) * time.Hour
	}
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *Redis) Name() string { return "redis" }

// Write pushes the envelope onto the session's list and refreshes its TTL.
// Envelopes without a session id go under the "-" key so nothing is lost.
func (s *Redis) Write(ctx context.Context, env types.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}

	key := s.key(env.SessionID)
	pipe := s.client.Pipeline()
	pipe.LPush(ctx, key, payload)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirroring to %s: %w", key, err)
	}
	return nil
}

func (s *Redis) Close() error {
	return s.client.Close()
}

func (s *Redis) key(sessionID string) string {
	if sessionID == "" {
		sessionID = "-"
	}
	return fmt.Sprintf("%s:%s:events", s.prefix, sessionID)
}
