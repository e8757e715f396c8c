package firmstore

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// KVStore is the flat path-addressed store used for data that lives outside
// the sharded collections, such as per-brand flashing instructions.
type KVStore interface {
	// Get returns the raw value at path, or ErrNotFound
	Get(ctx context.Context, path string) ([]byte, error)
	// Set writes the raw value at path, replacing any existing value
	Set(ctx context.Context, path string, value []byte) error
	// Delete removes the value at path; deleting a missing path is not an error
	Delete(ctx context.Context, path string) error
}

// RedisKV implements KVStore on Redis string keys
type RedisKV struct {
	redis  *redis.Client
	prefix string
}

// NewRedisKV creates a KV store whose keys are namespaced under prefix
func NewRedisKV(rdb *redis.Client, prefix string) *RedisKV {
	return &RedisKV{redis: rdb, prefix: prefix}
}

func (kv *RedisKV) key(path string) string {
	if kv.prefix == "" {
		return path
	}
	return kv.prefix + ":" + path
}

func (kv *RedisKV) Get(ctx context.Context, path string) ([]byte, error) {
	data, err := kv.redis.Get(ctx, kv.key(path)).Bytes()
	if err == redis.Nil {
		return nil, WithContext(ErrNotFound, map[string]interface{}{"path": path})
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (kv *RedisKV) Set(ctx context.Context, path string, value []byte) error {
	return kv.redis.Set(ctx, kv.key(path), value, 0).Err()
}

func (kv *RedisKV) Delete(ctx context.Context, path string) error {
	return kv.redis.Del(ctx, kv.key(path)).Err()
}

// GetJSON reads and unmarshals a JSON value from a KV store
func GetJSON(ctx context.Context, kv KVStore, path string, dest interface{}) error {
	data, err := kv.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return WithContext(ErrInvalidData, map[string]interface{}{
			"path": path, "parse_error": err.Error(),
		})
	}
	return nil
}

// SetJSON marshals and writes a JSON value to a KV store
func SetJSON(ctx context.Context, kv KVStore, path string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return WithContext(ErrInvalidData, map[string]interface{}{"path": path})
	}
	return kv.Set(ctx, path, data)
}
