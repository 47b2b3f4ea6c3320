package unit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var ErrCacheMiss = errors.New("presence cache miss")

// PresenceCache holds the latest presence snapshot per unit.
type PresenceCache interface {
	Get(ctx context.Context, unitID uuid.UUID) (*Snapshot, error)
	Set(ctx context.Context, s Snapshot) error
}

const presenceKeyPrefix = "referhub:presence:"

// setIfNewer stores the snapshot only when its last_updated (in microseconds)
// is later than the one already cached, so a slow writer cannot replace a
// newer snapshot with an older one.
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'ts')
if cur and tonumber(cur) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], 'ts', ARGV[2], 'snapshot', ARGV[1])
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

type RedisPresenceCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPresenceCache(client *redis.Client, ttl time.Duration) *RedisPresenceCache {
	return &RedisPresenceCache{client: client, ttl: ttl}
}

func presenceKey(unitID uuid.UUID) string {
	return presenceKeyPrefix + unitID.String()
}

func (c *RedisPresenceCache) Get(ctx context.Context, unitID uuid.UUID) (*Snapshot, error) {
	raw, err := c.client.HGet(ctx, presenceKey(unitID), "snapshot").Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get presence: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode presence: %w", err)
	}
	return &s, nil
}

// Set caches s unless a snapshot with the same or a later LastUpdated is
// already present.
func (c *RedisPresenceCache) Set(ctx context.Context, s Snapshot) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode presence: %w", err)
	}
	err = setIfNewer.Run(ctx, c.client, []string{presenceKey(s.UnitID)},
		string(raw), s.LastUpdated.UnixMicro(), c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

// NopPresenceCache is used when no Redis is configured. Every Get misses.
type NopPresenceCache struct{}

func (NopPresenceCache) Get(context.Context, uuid.UUID) (*Snapshot, error) { return nil, ErrCacheMiss }
func (NopPresenceCache) Set(context.Context, Snapshot) error               { return nil }
