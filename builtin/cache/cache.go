// Package cache is a built-in plugin exposing a Redis-backed cache to
// the rest of the application through the extension registry.
//
// Hosts enable it with a blank import:
//
//	import _ "github.com/BaSui01/plugflow/builtin/cache"
//
// and retrieve the service from the app context:
//
//	svc, _ := cache.FromApp(a)
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/plugflow/app"
	"github.com/BaSui01/plugflow/plugin"
)

// Name is the plugin's registry key.
const Name = "cache"

// ExtensionKey is the app extension slot holding the *Service.
const ExtensionKey = "plugflow.cache"

const dialTimeout = 5 * time.Second

func init() {
	plugin.RegisterExtension(plugin.Namespace, Name, New)
	plugin.RegisterFactory(Name, New)
}

// New constructs the cache plugin with its default configuration.
func New() (plugin.Plugin, error) {
	return &Cache{
		Base: plugin.Base{Desc: plugin.Descriptor{
			Name:        Name,
			Version:     "1.0.0",
			Description: "Redis-backed application cache",
			DefaultConfig: map[string]any{
				"addr":        "localhost:6379",
				"password":    "",
				"db":          0,
				"default_ttl": "5m",
			},
		}},
		addr:       "localhost:6379",
		defaultTTL: 5 * time.Minute,
	}, nil
}

// Cache is the plugin. The Redis client is created during InitApp so a
// registered-but-unloaded plugin holds no connections.
type Cache struct {
	plugin.Base

	mu         sync.Mutex
	addr       string
	password   string
	db         int
	defaultTTL time.Duration

	svc *Service
}

// Configure accepts addr, password, db, and default_ttl overrides.
func (c *Cache) Configure(cfg map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := cfg["addr"]; ok {
		s, ok := v.(string)
		if !ok || s == "" {
			return fmt.Errorf("cache: addr must be a non-empty string, got %v", v)
		}
		c.addr = s
	}
	if v, ok := cfg["password"]; ok {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("cache: password must be a string, got %v", v)
		}
		c.password = s
	}
	if v, ok := cfg["db"]; ok {
		n, err := asInt(v)
		if err != nil {
			return fmt.Errorf("cache: db: %w", err)
		}
		c.db = n
	}
	if v, ok := cfg["default_ttl"]; ok {
		d, err := asDuration(v)
		if err != nil {
			return fmt.Errorf("cache: default_ttl: %w", err)
		}
		c.defaultTTL = d
	}
	return nil
}

// InitApp dials Redis, verifies the connection, and publishes the
// Service under ExtensionKey.
func (c *Cache) InitApp(a *app.App) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger := a.Logger().With(zap.String("component", "cache_plugin"))

	client := redis.NewClient(&redis.Options{
		Addr:     c.addr,
		Password: c.password,
		DB:       c.db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connect to redis at %s: %w", c.addr, err)
	}

	c.svc = &Service{
		client:     client,
		defaultTTL: c.defaultTTL,
		logger:     logger,
	}
	a.SetExtension(ExtensionKey, c.svc)

	logger.Info("cache connected",
		zap.String("addr", c.addr),
		zap.Int("db", c.db),
		zap.Duration("default_ttl", c.defaultTTL))
	return nil
}

// OnUnload closes the Redis client.
func (c *Cache) OnUnload() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.svc == nil {
		return nil
	}
	err := c.svc.Close()
	c.svc = nil
	return err
}

// Healthcheck pings Redis.
func (c *Cache) Healthcheck() (plugin.HealthStatus, error) {
	c.mu.Lock()
	svc := c.svc
	addr := c.addr
	c.mu.Unlock()

	if svc == nil {
		return plugin.HealthStatus{}, fmt.Errorf("cache not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := svc.Ping(ctx); err != nil {
		return plugin.HealthStatus{}, fmt.Errorf("redis ping: %w", err)
	}

	return plugin.HealthStatus{
		Status:  plugin.HealthOK,
		Plugin:  Name,
		Version: c.Desc.Version,
		Details: map[string]any{"addr": addr},
	}, nil
}

// FromApp retrieves the cache service published by an initialized
// cache plugin.
func FromApp(a *app.App) (*Service, bool) {
	v, ok := a.Extension(ExtensionKey)
	if !ok {
		return nil, false
	}
	svc, ok := v.(*Service)
	return svc, ok
}

// ErrCacheMiss is returned by Get for absent keys.
var ErrCacheMiss = fmt.Errorf("cache miss")

// Service is the cache handle stored in the app extension registry.
type Service struct {
	client     *redis.Client
	defaultTTL time.Duration
	logger     *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// Get returns the value stored under key, or ErrCacheMiss.
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", fmt.Errorf("cache service is closed")
	}

	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrCacheMiss
	}
	if err != nil {
		s.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("cache get failed: %w", err)
	}
	return val, nil
}

// Set stores value under key. A zero ttl uses the plugin default.
func (s *Service) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("cache service is closed")
	}

	if ttl == 0 {
		ttl = s.defaultTTL
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// GetJSON unmarshals the cached value into dest.
func (s *Service) GetJSON(ctx context.Context, key string, dest any) error {
	val, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("unmarshal cached value: %w", err)
	}
	return nil
}

// SetJSON marshals value and stores it under key.
func (s *Service) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return s.Set(ctx, key, string(data), ttl)
}

// Delete removes keys.
func (s *Service) Delete(ctx context.Context, keys ...string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("cache service is closed")
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection.
func (s *Service) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("cache service is closed")
	}
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis client. Subsequent calls are no-ops.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

// asInt coerces YAML/JSON scalar representations of an integer.
func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

// asDuration accepts a duration string ("5m") or a time.Duration.
func asDuration(v any) (time.Duration, error) {
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", d, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("expected duration string, got %T", v)
	}
}
