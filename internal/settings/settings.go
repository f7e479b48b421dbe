// Package settings stores per-tenant capacity preferences.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medspa-capacity/internal/tenancy"
)

// Settings tune how a tenant's capacity is computed.
type Settings struct {
	TenantID string `json:"tenant_id"`
	// DefaultCapacity replaces the unlimited sentinel on days without
	// templates. Nil keeps such days unmanaged.
	DefaultCapacity *int   `json:"default_capacity,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
}

// Validate rejects negative defaults and unknown zones.
func (s Settings) Validate() error {
	if s.DefaultCapacity != nil && *s.DefaultCapacity < 0 {
		return fmt.Errorf("settings: default capacity must be non-negative")
	}
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("settings: timezone %q: %w", tz, err)
		}
	}
	return nil
}

// Location returns the tenant's zone, falling back to UTC when unset or unknown.
func (s *Settings) Location() *time.Location {
	if s == nil || s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Defaults returns the settings used when a tenant has saved none.
func Defaults(tenantID string) *Settings {
	return &Settings{TenantID: tenantID, Timezone: "America/New_York"}
}

// Store reads and writes tenant settings.
type Store interface {
	Get(ctx context.Context, scope tenancy.Scope) (*Settings, error)
	Set(ctx context.Context, scope tenancy.Scope, s Settings) error
}

// RedisStore keeps settings as JSON documents in Redis.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis-backed settings store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{redis: client}
}

func (s *RedisStore) key(tenantID string) string {
	return fmt.Sprintf("capacity:settings:%s", tenantID)
}

// Get returns the saved settings or Defaults when none exist.
func (s *RedisStore) Get(ctx context.Context, scope tenancy.Scope) (*Settings, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	data, err := s.redis.Get(ctx, s.key(scope.TenantID())).Bytes()
	if err == redis.Nil {
		return Defaults(scope.TenantID()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: get: %w", err)
	}

	var out Settings
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("settings: unmarshal: %w", err)
	}
	out.TenantID = scope.TenantID()
	return &out, nil
}

func (s *RedisStore) Set(ctx context.Context, scope tenancy.Scope, in Settings) error {
	if err := scope.Check(); err != nil {
		return err
	}
	if err := in.Validate(); err != nil {
		return err
	}
	in.TenantID = scope.TenantID()
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(in.TenantID), data, 0).Err(); err != nil {
		return fmt.Errorf("settings: set: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Settings
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Settings)}
}

func (m *MemoryStore) Get(_ context.Context, scope tenancy.Scope) (*Settings, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[scope.TenantID()]
	if !ok {
		return Defaults(scope.TenantID()), nil
	}
	return &s, nil
}

func (m *MemoryStore) Set(_ context.Context, scope tenancy.Scope, in Settings) error {
	if err := scope.Check(); err != nil {
		return err
	}
	if err := in.Validate(); err != nil {
		return err
	}
	in.TenantID = scope.TenantID()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[in.TenantID] = in
	return nil
}
