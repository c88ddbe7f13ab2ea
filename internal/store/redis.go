package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ykvlv/redeem-bot/internal/domain"
)

const stateKeyPrefix = "redeem-bot:state:"

// RedisStates keeps conversation states in Redis. TakeState uses GETDEL
// (Redis >= 6.2) so read-and-clear is a single server-side command.
type RedisStates struct {
	client *redis.Client
	ttl    time.Duration
}

var _ StateStore = (*RedisStates)(nil)

// OpenRedisStates creates a Redis client and pings it to validate the connection.
// A zero ttl keeps pending states until they are consumed.
func OpenRedisStates(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStates, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty redis addr")
	}
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &RedisStates{client: c, ttl: ttl}, nil
}

func stateKey(userID int64) string {
	return stateKeyPrefix + strconv.FormatInt(userID, 10)
}

// SetState stores the pending expectation; ExpectNone deletes the key.
func (s *RedisStates) SetState(ctx context.Context, userID int64, e domain.Expectation) error {
	if e == domain.ExpectNone {
		return s.client.Del(ctx, stateKey(userID)).Err()
	}
	return s.client.Set(ctx, stateKey(userID), e.Tag(), s.ttl).Err()
}

// TakeState reads and deletes the pending expectation with GETDEL.
func (s *RedisStates) TakeState(ctx context.Context, userID int64) (domain.Expectation, error) {
	tag, err := s.client.GetDel(ctx, stateKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.ExpectNone, nil
	}
	if err != nil {
		return domain.ExpectNone, err
	}
	return domain.ParseExpectation(tag), nil
}

// Close closes the Redis client.
func (s *RedisStates) Close() error {
	return s.client.Close()
}

// withStates routes conversation states to a separate store.
type withStates struct {
	Repo
	states *RedisStates
}

// WithRedisStates returns a Repo that keeps users and keys in r and
// conversation states in s. Close closes both.
func WithRedisStates(r Repo, s *RedisStates) Repo {
	return &withStates{Repo: r, states: s}
}

func (w *withStates) SetState(ctx context.Context, userID int64, e domain.Expectation) error {
	return w.states.SetState(ctx, userID, e)
}

func (w *withStates) TakeState(ctx context.Context, userID int64) (domain.Expectation, error) {
	return w.states.TakeState(ctx, userID)
}

func (w *withStates) Close() error {
	return errors.Join(w.states.Close(), w.Repo.Close())
}
