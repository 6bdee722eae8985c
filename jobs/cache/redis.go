package cache

import (
	"context"
	"errors"

	"github.com/nrwiersma/worker/jobs/event"
	"github.com/nrwiersma/worker/jobs/internal/codec"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is the default key prefix of the Redis cache.
const DefaultPrefix = "worker:results:"

// Redis is a cache backed by Redis. Records are msgpack encoded
// and expire after the descriptor TTL. MaxEntries is not enforced.
type Redis struct {
	client redis.Cmdable
	prefix string
	desc   Descriptor
}

// NewRedis returns a Redis cache storing keys under the given prefix.
func NewRedis(client redis.Cmdable, prefix string, desc Descriptor) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Redis{
		client: client,
		prefix: prefix,
		desc:   desc,
	}
}

// Get returns the record with the given key.
func (r *Redis) Get(ctx context.Context, key string) (event.Record, bool, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return event.Record{}, false, nil
	}
	if err != nil {
		return event.Record{}, false, err
	}

	var rec event.Record
	if err = codec.Decode(codec.EventRecordType, b, &rec); err != nil {
		return event.Record{}, false, err
	}
	return rec, true, nil
}

// Put stores a record.
func (r *Redis) Put(ctx context.Context, key string, rec event.Record) error {
	b, err := codec.Encode(codec.EventRecordType, rec)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, r.prefix+key, b, r.desc.TTL).Err()
}

// Evict removes a record.
func (r *Redis) Evict(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// EvictAll removes all records under the cache prefix.
func (r *Redis) EvictAll(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 100).Result()
		if err != nil {
			return err
		}

		if len(keys) > 0 {
			if err = r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}

		if next == 0 {
			return nil
		}
		cursor = next
	}
}
