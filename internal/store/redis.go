package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/reel-cli/internal/model"
)

const (
	redisKeyPrefix  = "reel:"
	redisMaxRetries = 10
)

// RedisStore implements Registry on Redis. Each run is a JSON string key and
// a sorted set indexes IDs by creation time. Update uses WATCH/MULTI so
// writers on different replicas never interleave on one run.
type RedisStore struct {
	client *redis.Client
	prefix string
	locks  *keyedMutex
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "redis: ping %s", cfg.Addr)
	}
	return NewRedisWithClient(client, cfg.Prefix), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = redisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, locks: newKeyedMutex()}
}

func (s *RedisStore) runKey(id string) string { return s.prefix + "run:" + id }

func (s *RedisStore) indexKey() string { return s.prefix + "runs" }

func (s *RedisStore) Migrate(context.Context) error { return nil }

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Put(ctx context.Context, run *model.RunState) error {
	if run == nil || run.ID == "" {
		return eris.New("redis: run id is required")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "redis: marshal run")
	}
	ok, err := s.client.SetNX(ctx, s.runKey(run.ID), data, 0).Result()
	if err != nil {
		return eris.Wrapf(err, "redis: put %s", run.ID)
	}
	if !ok {
		return eris.Wrapf(ErrExists, "redis: put %s", run.ID)
	}
	err = s.client.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(run.CreatedAt.UnixNano()),
		Member: run.ID,
	}).Err()
	return eris.Wrapf(err, "redis: index %s", run.ID)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.RunState, error) {
	run, err := s.load(ctx, s.client, id)
	if err != nil {
		return nil, eris.Wrapf(err, "redis: get run %s", id)
	}
	return run, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, c getter, id string) (*model.RunState, error) {
	data, err := c.Get(ctx, s.runKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var run model.RunState
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, eris.Wrap(err, "decode run state")
	}
	return &run, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, fn Mutator) (*model.RunState, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	key := s.runKey(id)
	var next *model.RunState
	txf := func(tx *redis.Tx) error {
		run, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		updated, err := applyMutator(run, fn)
		if err != nil {
			return err
		}
		data, err := json.Marshal(updated)
		if err != nil {
			return eris.Wrap(err, "redis: marshal run")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			next = updated
		}
		return err
	}

	for range redisMaxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, eris.Wrapf(err, "redis: update run %s", id)
			}
			return nil, err
		}
		return next, nil
	}
	return nil, eris.Errorf("redis: update run %s: too much contention", id)
}

func (s *RedisStore) List(ctx context.Context, filter RunFilter) ([]*model.RunState, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, eris.Wrap(err, "redis: list runs")
	}
	out := make([]*model.RunState, 0, len(ids))
	for _, id := range ids {
		run, err := s.load(ctx, s.client, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "redis: load run %s", id)
		}
		if matches(run, filter) {
			out = append(out, run)
		}
	}
	return page(out, filter), nil
}

func (s *RedisStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	runs, err := s.List(ctx, RunFilter{})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, run := range runs {
		if !expired(run, cutoff) {
			continue
		}
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, s.runKey(run.ID))
		pipe.ZRem(ctx, s.indexKey(), run.ID)
		if _, err := pipe.Exec(ctx); err != nil {
			return n, eris.Wrapf(err, "redis: delete run %s", run.ID)
		}
		n++
	}
	return n, nil
}
