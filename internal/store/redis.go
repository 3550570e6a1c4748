package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const DefaultStateKey = "arena:state"

// RedisStore keeps State as one JSON document. SET is atomic, so readers never see a partial write.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore connects to redisURL (redis:// or rediss://) and pings it.
func NewRedisStore(ctx context.Context, redisURL, key string) (*RedisStore, error) {
	opts, err := RedisOptions(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStoreFromClient(rdb, key), nil
}

// RedisOptions parses a connection URL, including ACL user, db, TLS and query options.
func RedisOptions(redisURL string) (*redis.Options, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, errors.New("REDIS_URL required for redis store")
	}
	opts, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}

func NewRedisStoreFromClient(rdb *redis.Client, key string) *RedisStore {
	if strings.TrimSpace(key) == "" {
		key = DefaultStateKey
	}
	return &RedisStore{rdb: rdb, key: key}
}

func (s *RedisStore) keyRevision() string { return s.key + ":rev" }

func (s *RedisStore) Load(ctx context.Context) (*State, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Empty(), nil
	}
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return st.normalize(), nil
}

// Save overwrites the document and bumps the revision counter in one MULTI block.
func (s *RedisStore) Save(ctx context.Context, st *State) error {
	if st == nil {
		return ErrNilState
	}
	raw, err := json.Marshal(st.normalize())
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.key, raw, 0)
	pipe.Incr(ctx, s.keyRevision())
	_, err = pipe.Exec(ctx)
	return err
}

// Revision returns how many saves have been committed.
func (s *RedisStore) Revision(ctx context.Context) (int64, error) {
	n, err := s.rdb.Get(ctx, s.keyRevision()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
