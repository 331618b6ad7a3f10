/**
 * @description
 * Redis-backed caches: the last known session of each user, used when the database
 * cannot be reached, and the commission settings singleton.
 */
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ravito/ravito-backend/internal/domain"
)

// ErrCacheMiss is returned when the requested entry is not cached.
var ErrCacheMiss = errors.New("cache miss")

const defaultPrefix = "ravito"

// Cache stores JSON documents in Redis under a common key prefix.
type Cache struct {
	client     redis.UniversalClient
	prefix     string
	sessionTTL time.Duration
}

// New builds a cache. A zero sessionTTL keeps sessions for 24 hours.
func New(client redis.UniversalClient, prefix string, sessionTTL time.Duration) *Cache {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = defaultPrefix
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}

	return &Cache{client: client, prefix: trimmedPrefix, sessionTTL: sessionTTL}
}

func (c *Cache) key(parts ...string) string {
	return c.prefix + ":" + strings.Join(parts, ":")
}

func (c *Cache) getJSON(ctx context.Context, key string, dst interface{}) error {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode cached %s: %w", key, err)
	}
	return nil
}

func (c *Cache) setJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

// GetSession returns the last session resolved online for userID.
func (c *Cache) GetSession(ctx context.Context, userID string) (*domain.Session, error) {
	var session domain.Session
	if err := c.getJSON(ctx, c.key("session", userID), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SetSession stores a session resolved online.
func (c *Cache) SetSession(ctx context.Context, session domain.Session) error {
	return c.setJSON(ctx, c.key("session", session.Profile.ID), session, c.sessionTTL)
}

// DeleteSession evicts the cached session of userID.
func (c *Cache) DeleteSession(ctx context.Context, userID string) error {
	return c.client.Del(ctx, c.key("session", userID)).Err()
}

// GetSettings returns the cached commission settings.
func (c *Cache) GetSettings(ctx context.Context) (*domain.SalesCommissionSettings, error) {
	var settings domain.SalesCommissionSettings
	if err := c.getJSON(ctx, c.key("commission", "settings"), &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// SetSettings caches the commission settings until they are replaced.
func (c *Cache) SetSettings(ctx context.Context, settings domain.SalesCommissionSettings) error {
	return c.setJSON(ctx, c.key("commission", "settings"), settings, time.Hour)
}

// DeleteSettings evicts the cached commission settings.
func (c *Cache) DeleteSettings(ctx context.Context) error {
	return c.client.Del(ctx, c.key("commission", "settings")).Err()
}
