package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adwhq/adwflow/types"
	"github.com/adwhq/adwflow/workflow"
)

// RedisConfig configures the Redis-backed run store.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// RedisRunStore keeps run snapshots in Redis so status survives process
// restarts and multiple engine processes can share history. Snapshots are
// stored as JSON values with a per-workflow index set.
type RedisRunStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisRunStore connects to Redis and verifies the connection.
func NewRedisRunStore(cfg RedisConfig) (*RedisRunStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "adwflow:"
	}
	return &RedisRunStore{client: client, prefix: prefix, ttl: cfg.TTL}, nil
}

// NewRedisRunStoreFromClient wraps an existing client. Used by tests.
func NewRedisRunStoreFromClient(client *redis.Client, prefix string) *RedisRunStore {
	if prefix == "" {
		prefix = "adwflow:"
	}
	return &RedisRunStore{client: client, prefix: prefix}
}

func (s *RedisRunStore) runKey(id string) string {
	return s.prefix + "run:" + id
}

func (s *RedisRunStore) indexKey(workflowName string) string {
	return s.prefix + "runs:" + workflowName
}

func (s *RedisRunStore) SaveRun(ctx context.Context, run *workflow.Run) error {
	if run == nil || run.ID == "" {
		return types.NewError(types.ErrInvalidInput, "run has no id")
	}
	raw, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.runKey(run.ID), raw, s.ttl)
	pipe.SAdd(ctx, s.indexKey(run.Workflow), run.ID)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.indexKey(run.Workflow), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *RedisRunStore) GetRun(ctx context.Context, id string) (*workflow.Run, error) {
	raw, err := s.client.Get(ctx, s.runKey(id)).Bytes()
	if err == redis.Nil {
		return nil, types.NewError(types.ErrNotFound, "run "+id+" not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	var run workflow.Run
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &run, nil
}

func (s *RedisRunStore) ListRuns(ctx context.Context, workflowName string) ([]*workflow.Run, error) {
	var ids []string
	var err error
	if workflowName != "" {
		ids, err = s.client.SMembers(ctx, s.indexKey(workflowName)).Result()
		if err != nil {
			return nil, fmt.Errorf("list runs for %s: %w", workflowName, err)
		}
	} else {
		keys, err := s.client.Keys(ctx, s.prefix+"run:*").Result()
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		for _, key := range keys {
			ids = append(ids, key[len(s.prefix+"run:"):])
		}
	}

	out := make([]*workflow.Run, 0, len(ids))
	for _, id := range ids {
		run, err := s.GetRun(ctx, id)
		if types.HasCode(err, types.ErrNotFound) {
			continue // expired between index read and get
		}
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func (s *RedisRunStore) Close() error {
	return s.client.Close()
}
