// Package statecache mirrors the engine's cached views and service health
// into Redis so other processes can read them without a link of their own.
package statecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"robotcore/health"
	"robotcore/telemetry"
)

const allDevicesKey = "robotcore:devices"

func viewKey(deviceID string, cat telemetry.Category) string {
	return fmt.Sprintf("robotcore:device:%s:view:%s", deviceID, cat)
}

func healthKey(deviceID string) string {
	return fmt.Sprintf("robotcore:device:%s:health", deviceID)
}

func connectionKey(deviceID string) string {
	return fmt.Sprintf("robotcore:device:%s:connection", deviceID)
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps client. View keys expire after ttl so a dead process
// never leaves a stale connected view behind; zero keeps them forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) SetView(ctx context.Context, deviceID string, cat telemetry.Category, view any) error {
	data, err := json.Marshal(view)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, viewKey(deviceID, cat), data, r.ttl)
	pipe.SAdd(ctx, allDevicesKey, deviceID)
	_, err = pipe.Exec(ctx)
	return err
}

// GetView returns the raw JSON of a view, or nil if none is cached.
func (r *RedisStore) GetView(ctx context.Context, deviceID string, cat telemetry.Category) (json.RawMessage, error) {
	data, err := r.client.Get(ctx, viewKey(deviceID, cat)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (r *RedisStore) SetConnection(ctx context.Context, deviceID string, state telemetry.ConnectionState) error {
	return r.client.Set(ctx, connectionKey(deviceID), string(state), r.ttl).Err()
}

func (r *RedisStore) GetConnection(ctx context.Context, deviceID string) (telemetry.ConnectionState, error) {
	s, err := r.client.Get(ctx, connectionKey(deviceID)).Result()
	if errors.Is(err, redis.Nil) {
		return telemetry.StateDisconnected, nil
	}
	if err != nil {
		return "", err
	}
	return telemetry.ConnectionState(s), nil
}

func (r *RedisStore) SetHealth(ctx context.Context, deviceID, service string, h health.ServiceHealth) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, healthKey(deviceID), service, data).Err()
}

func (r *RedisStore) GetHealth(ctx context.Context, deviceID string) (map[string]health.ServiceHealth, error) {
	fields, err := r.client.HGetAll(ctx, healthKey(deviceID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]health.ServiceHealth, len(fields))
	for name, raw := range fields {
		var h health.ServiceHealth
		if err := json.Unmarshal([]byte(raw), &h); err != nil {
			return nil, fmt.Errorf("decode health %s: %w", name, err)
		}
		out[name] = h
	}
	return out, nil
}

func (r *RedisStore) Devices(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, allDevicesKey).Result()
}

func (r *RedisStore) RemoveDevice(ctx context.Context, deviceID string) error {
	keys := []string{healthKey(deviceID), connectionKey(deviceID)}
	for _, c := range telemetry.Categories() {
		keys = append(keys, viewKey(deviceID, c))
	}
	pipe := r.client.Pipeline()
	pipe.Del(ctx, keys...)
	pipe.SRem(ctx, allDevicesKey, deviceID)
	_, err := pipe.Exec(ctx)
	return err
}
