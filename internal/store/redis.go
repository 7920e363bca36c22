package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each collection in a hash with "data" and "version"
// fields. Writes use WATCH/MULTI so a concurrent writer aborts the transaction.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store on an existing client. Keys are prefix+collection.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(collection string) string {
	return s.prefix + collection
}

func (s *RedisStore) Read(ctx context.Context, collection string) (Snapshot, error) {
	fields, err := s.client.HGetAll(ctx, s.key(collection)).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("hgetall: %w", err)
	}
	if len(fields) == 0 {
		return Snapshot{}, nil
	}

	version, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse version of %s: %w", collection, err)
	}
	return Snapshot{Data: []byte(fields["data"]), Version: version}, nil
}

func (s *RedisStore) Write(ctx context.Context, collection string, data []byte, version int64) (int64, error) {
	key := s.key(collection)
	var next int64

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "version").Int64()
		if errors.Is(err, redis.Nil) {
			current = 0
		} else if err != nil {
			return fmt.Errorf("hget version: %w", err)
		}
		if current != version {
			return ErrVersionConflict
		}

		next = current + 1
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, "data", data, "version", next)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return 0, ErrVersionConflict
	}
	if err != nil {
		return 0, err
	}
	return next, nil
}
