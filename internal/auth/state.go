package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const statePrefix = "oauth:state:"

// ErrUnknownState indicates a missing, expired or already used OAuth state.
var ErrUnknownState = errors.New("oauth state unknown or expired")

// StateStore keeps the PKCE verifier for an in-flight authorization request.
type StateStore interface {
	Save(ctx context.Context, state, verifier string, ttl time.Duration) error
	Consume(ctx context.Context, state string) (string, error)
}

// RedisStateStore stores states in Redis. Consume is single-use.
type RedisStateStore struct {
	client redis.Cmdable
}

// NewRedisStateStore constructs a RedisStateStore.
func NewRedisStateStore(client redis.Cmdable) *RedisStateStore {
	return &RedisStateStore{client: client}
}

// Save records verifier under state until ttl elapses.
func (s *RedisStateStore) Save(ctx context.Context, state, verifier string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, statePrefix+state, verifier, ttl).Result()
	if err != nil {
		return fmt.Errorf("save oauth state: %w", err)
	}
	if !ok {
		return fmt.Errorf("save oauth state: state already exists")
	}
	return nil
}

// Consume returns and deletes the verifier stored for state.
func (s *RedisStateStore) Consume(ctx context.Context, state string) (string, error) {
	if state == "" {
		return "", ErrUnknownState
	}
	verifier, err := s.client.GetDel(ctx, statePrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrUnknownState
	}
	if err != nil {
		return "", fmt.Errorf("consume oauth state: %w", err)
	}
	return verifier, nil
}

var _ StateStore = (*RedisStateStore)(nil)
