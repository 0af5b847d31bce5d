// Package redis stores window datasets in Redis so several API replicas can
// serve the same regenerated data.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"

	"github.com/nicktill/clusterwatch/pkg/series"
	"github.com/nicktill/clusterwatch/pkg/storage"
)

const defaultPrefix = "clusterwatch"

// Config for the Redis repository
type Config struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces every key (default "clusterwatch")
	Prefix string
}

// Storage implements storage.Repository on Redis.
// Datasets are zstd blobs under <prefix>:ds:<entity>:<range>; the entity
// index is the set <prefix>:entities.
type Storage struct {
	client *redis.Client
	codec  *storage.Codec
	prefix string
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return newWithClient(client, cfg.Prefix)
}

func newWithClient(client *redis.Client, prefix string) (*Storage, error) {
	if prefix == "" {
		prefix = defaultPrefix
	}
	codec, err := storage.NewCodec()
	if err != nil {
		client.Close()
		return nil, err
	}
	return &Storage{client: client, codec: codec, prefix: prefix}, nil
}

// Load fetches and decodes one dataset
func (s *Storage) Load(ctx context.Context, entityID string, tr series.TimeRange) (*storage.Dataset, error) {
	data, err := s.client.Get(ctx, s.datasetKey(entityID, tr)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	d, err := s.codec.Decode(data)
	if err != nil {
		return nil, err
	}
	if d.EntityID != entityID {
		return nil, storage.ErrNotFound
	}
	return d, nil
}

// ReplaceAll deletes every range key of the entity and writes the new set
// inside one MULTI/EXEC block.
func (s *Storage) ReplaceAll(ctx context.Context, entityID string, datasets []storage.Dataset) error {
	if err := storage.ValidateReplace(entityID, datasets); err != nil {
		return err
	}

	// Encode before opening the transaction so a codec failure writes nothing
	encoded := make(map[string][]byte, len(datasets))
	for i := range datasets {
		data, err := s.codec.Encode(&datasets[i])
		if err != nil {
			return err
		}
		encoded[s.datasetKey(entityID, datasets[i].TimeRange)] = data
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.rangeKeys(entityID)...)
		for key, data := range encoded {
			pipe.Set(ctx, key, data, 0)
		}
		pipe.SAdd(ctx, s.entitiesKey(), entityID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace datasets: %w", err)
	}
	return nil
}

// Entities returns members of the entity index in sorted order
func (s *Storage) Entities(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.entitiesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes the entity's datasets and index entry
func (s *Storage) Delete(ctx context.Context, entityID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.rangeKeys(entityID)...)
		pipe.SRem(ctx, s.entitiesKey(), entityID)
		return nil
	})
	return err
}

// Stats reads every dataset of every indexed entity
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	ids, err := s.Entities(ctx)
	if err != nil {
		return nil, err
	}

	stats := &storage.Stats{Entities: uint64(len(ids))}
	for _, id := range ids {
		for _, tr := range series.AllTimeRanges() {
			data, err := s.client.Get(ctx, s.datasetKey(id, tr)).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return nil, err
			}
			d, err := s.codec.Decode(data)
			if err != nil {
				return nil, err
			}
			stats.SizeBytes += uint64(len(data))
			stats.Observe(d)
		}
	}
	return stats, nil
}

// Close closes the client connection pool
func (s *Storage) Close() error {
	s.codec.Close()
	return s.client.Close()
}

func (s *Storage) datasetKey(entityID string, tr series.TimeRange) string {
	return fmt.Sprintf("%s:ds:%s:%s", s.prefix, entityID, tr)
}

func (s *Storage) entitiesKey() string {
	return s.prefix + ":entities"
}

func (s *Storage) rangeKeys(entityID string) []string {
	ranges := series.AllTimeRanges()
	keys := make([]string, 0, len(ranges))
	for _, tr := range ranges {
		keys = append(keys, s.datasetKey(entityID, tr))
	}
	return keys
}
