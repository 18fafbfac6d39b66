// Package cache stores normalized provider results for a short TTL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/model"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/observability"
)

// Interface is the byte-level store. Implementations must be safe for concurrent use.
type Interface interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Vehicles is the typed view over a store. Every backend failure surfaces as an
// error the caller may ignore; Lookup never reports a hit for an undecodable value.
type Vehicles struct {
	store     Interface
	opTimeout time.Duration
}

func NewVehicles(store Interface, opTimeout time.Duration) *Vehicles {
	return &Vehicles{store: store, opTimeout: opTimeout}
}

// returns context with timeout if set
func (v *Vehicles) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if v.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, v.opTimeout)
}

func (v *Vehicles) Lookup(ctx context.Context, key string) ([]model.Vehicle, bool, error) {
	ctx, cancel := v.withTimeout(ctx)
	defer cancel()

	raw, ok, err := v.store.Get(ctx, key)
	if err != nil {
		observability.AddCacheMisses(1)
		return nil, false, fmt.Errorf("cache get %q: %w", key, err)
	}
	if !ok {
		observability.AddCacheMisses(1)
		return nil, false, nil
	}
	var out []model.Vehicle
	if err := json.Unmarshal(raw, &out); err != nil {
		observability.AddCacheMisses(1)
		return nil, false, fmt.Errorf("cache decode %q: %w", key, err)
	}
	if out == nil {
		out = []model.Vehicle{}
	}
	observability.AddCacheHits(1)
	return out, true, nil
}

func (v *Vehicles) Store(ctx context.Context, key string, vs []model.Vehicle, ttl time.Duration) error {
	if vs == nil {
		vs = []model.Vehicle{}
	}
	b, err := json.Marshal(vs)
	if err != nil {
		return fmt.Errorf("cache encode %q: %w", key, err)
	}
	ctx, cancel := v.withTimeout(ctx)
	defer cancel()
	if err := v.store.Set(ctx, key, b, ttl); err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

func (v *Vehicles) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := v.withTimeout(ctx)
	defer cancel()
	if err := v.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("cache del %d keys: %w", len(keys), err)
	}
	return nil
}
