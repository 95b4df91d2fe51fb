package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zpam/spamlearn/pkg/model"
)

// RedisOptions configures a RedisStore
type RedisOptions struct {
	URL         string
	KeyPrefix   string
	DatabaseNum int
	// TTL expires stored models; zero keeps them forever
	TTL time.Duration
}

// RedisStore keeps each model as a JSON blob plus a metadata hash:
//
//	<prefix>:model:<name>  encoded snapshot
//	<prefix>:meta:<name>   model_id, trained_at, features, documents
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects and pings the server
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	opt, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	opt.DB = opts.DatabaseNum
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "spamlearn"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: opts.TTL}, nil
}

func (s *RedisStore) modelKey(name string) string {
	return fmt.Sprintf("%s:model:%s", s.prefix, name)
}

func (s *RedisStore) metaKey(name string) string {
	return fmt.Sprintf("%s:meta:%s", s.prefix, name)
}

// Save writes the blob and metadata in one transaction
func (s *RedisStore) Save(ctx context.Context, name string, snap *model.Snapshot) error {
	if err := validName(name); err != nil {
		return err
	}
	data, err := model.Marshal(snap)
	if err != nil {
		return err
	}

	info := infoOf(name, snap)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.modelKey(name), data, s.ttl)
		pipe.Del(ctx, s.metaKey(name))
		pipe.HSet(ctx, s.metaKey(name),
			"model_id", info.ModelID,
			"trained_at", info.TrainedAt.Format(time.RFC3339Nano),
			"features", info.Features,
			"documents", info.Documents,
		)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.metaKey(name), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save model %s: %w", name, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, name string) (*model.Snapshot, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.modelKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", name, err)
	}
	return model.Unmarshal(data)
}

// List reads the metadata hashes only
func (s *RedisStore) List(ctx context.Context) ([]ModelInfo, error) {
	metaPrefix := s.prefix + ":meta:"
	var infos []ModelInfo

	iter := s.client.Scan(ctx, 0, metaPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		if len(fields) == 0 {
			continue
		}
		info := ModelInfo{
			Name:    strings.TrimPrefix(key, metaPrefix),
			ModelID: fields["model_id"],
		}
		info.TrainedAt, _ = time.Parse(time.RFC3339Nano, fields["trained_at"])
		info.Features, _ = strconv.Atoi(fields["features"])
		info.Documents, _ = strconv.Atoi(fields["documents"])
		infos = append(infos, info)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning models: %w", err)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Delete removes a model and its metadata
func (s *RedisStore) Delete(ctx context.Context, name string) error {
	return s.client.Del(ctx, s.modelKey(name), s.metaKey(name)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
