package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kursadbilgin/storybird/internal/domain"
	"github.com/redis/go-redis/v9"
)

const DefaultSubscriptionsKey = "storybird:push:subscriptions"

// RedisSubscriptionRepo stores subscriptions in one hash: field = endpoint,
// value = the raw subscription blob.
type RedisSubscriptionRepo struct {
	client *redis.Client
	key    string
}

func NewRedisSubscriptionRepo(client *redis.Client, key string) *RedisSubscriptionRepo {
	if key == "" {
		key = DefaultSubscriptionsKey
	}
	return &RedisSubscriptionRepo{client: client, key: key}
}

func (r *RedisSubscriptionRepo) Add(ctx context.Context, sub domain.Subscription) error {
	if err := r.client.HSet(ctx, r.key, sub.Endpoint, string(sub.Raw)).Err(); err != nil {
		return fmt.Errorf("%w: hset subscription: %v", domain.ErrStorage, err)
	}
	return nil
}

func (r *RedisSubscriptionRepo) Remove(ctx context.Context, endpoint string) error {
	return r.RemoveMany(ctx, []string{endpoint})
}

func (r *RedisSubscriptionRepo) RemoveMany(ctx context.Context, endpoints []string) error {
	if len(endpoints) == 0 {
		return nil
	}
	if err := r.client.HDel(ctx, r.key, endpoints...).Err(); err != nil {
		return fmt.Errorf("%w: hdel subscriptions: %v", domain.ErrStorage, err)
	}
	return nil
}

func (r *RedisSubscriptionRepo) List(ctx context.Context) ([]domain.Subscription, error) {
	values, err := r.client.HVals(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: hvals subscriptions: %v", domain.ErrStorage, err)
	}

	blobs := make([]json.RawMessage, 0, len(values))
	for _, value := range values {
		blobs = append(blobs, json.RawMessage(value))
	}
	return decodeSubscriptions(blobs), nil
}
