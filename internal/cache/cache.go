package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"occupancy-monitor/internal/logging"
	"occupancy-monitor/internal/models"
)

const (
	presenceKeyPrefix = "occupancy:device:"
	presenceKeySuffix = ":presence"
	statusKeySuffix   = ":status"
)

// Cache holds the live per-device snapshots served to dashboards.
// Best-effort: a cache failure never affects the engine path.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func New(addr, password string, db int, ttl time.Duration, logger *logging.Logger) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// NewFromClient wraps an existing client, for tests.
func NewFromClient(client *redis.Client, ttl time.Duration, logger *logging.Logger) *Cache {
	return &Cache{client: client, ttl: ttl, logger: logger}
}

func presenceKey(deviceID string) string {
	return presenceKeyPrefix + deviceID + presenceKeySuffix
}

func statusKey(deviceID string) string {
	return presenceKeyPrefix + deviceID + statusKeySuffix
}

// SetPresence stores the latest presence snapshot for a device.
func (c *Cache) SetPresence(ctx context.Context, ev models.PresenceEvent) error {
	jsonData, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal presence snapshot: %w", err)
	}
	if err := c.client.Set(ctx, presenceKey(ev.DeviceID), jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set presence snapshot: %w", err)
	}
	return nil
}

// GetPresence returns the latest presence snapshot for a device, or nil
// when none is cached.
func (c *Cache) GetPresence(ctx context.Context, deviceID string) (*models.PresenceEvent, error) {
	val, err := c.client.Get(ctx, presenceKey(deviceID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get presence snapshot: %w", err)
	}
	var ev models.PresenceEvent
	if err := json.Unmarshal([]byte(val), &ev); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presence snapshot: %w", err)
	}
	return &ev, nil
}

// SetStatus stores the latest diagnostic status for a device.
func (c *Cache) SetStatus(ctx context.Context, status models.DeviceStatus) error {
	jsonData, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal device status: %w", err)
	}
	if err := c.client.Set(ctx, statusKey(status.DeviceID), jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set device status: %w", err)
	}
	return nil
}

// GetStatus returns the latest diagnostic status for a device, or nil
// when none is cached.
func (c *Cache) GetStatus(ctx context.Context, deviceID string) (*models.DeviceStatus, error) {
	val, err := c.client.Get(ctx, statusKey(deviceID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get device status: %w", err)
	}
	var status models.DeviceStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device status: %w", err)
	}
	return &status, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}
