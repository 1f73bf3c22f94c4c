package redis_tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var ErrNotInitialized = errors.New("redis client not initialized")

// RefDao stores initial references in a redis hash.
type RefDao struct {
	client *redis.Client
	key    string
}

// NewRefDao uses the shared client when client is nil.
func NewRefDao(client *redis.Client, orbID string) *RefDao {
	if client == nil {
		client = RDB()
	}
	return &RefDao{
		client: client,
		key:    KeyInitialRefs(orbID),
	}
}

func (rd *RefDao) Key() string {
	return rd.key
}

func (rd *RefDao) LoadInitialRefs(ctx context.Context) (map[string]string, error) {
	if rd.client == nil {
		return nil, ErrNotInitialized
	}
	refs, err := rd.client.HGetAll(ctx, rd.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", rd.key, err)
	}
	return refs, nil
}

func (rd *RefDao) PutRef(ctx context.Context, name, ref string) error {
	if rd.client == nil {
		return ErrNotInitialized
	}
	return rd.client.HSet(ctx, rd.key, name, ref).Err()
}

// GetRef returns "" and no error when name is absent.
func (rd *RefDao) GetRef(ctx context.Context, name string) (string, error) {
	if rd.client == nil {
		return "", ErrNotInitialized
	}
	v, err := rd.client.HGet(ctx, rd.key, name).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (rd *RefDao) DeleteRef(ctx context.Context, name string) (bool, error) {
	if rd.client == nil {
		return false, ErrNotInitialized
	}
	n, err := rd.client.HDel(ctx, rd.key, name).Result()
	return n > 0, err
}

func (rd *RefDao) Names(ctx context.Context) ([]string, error) {
	if rd.client == nil {
		return nil, ErrNotInitialized
	}
	return rd.client.HKeys(ctx, rd.key).Result()
}
