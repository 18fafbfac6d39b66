// Package provider wraps one provider backend with caching, a deadline and
// failure isolation.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mohammed-shakir/bikeshare-aggregator/internal/auth"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/cache"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/cache/keys"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/model"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/observability"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/normalize"
)

const (
	DefaultTimeout = 3 * time.Second
	DefaultTTL     = 60 * time.Second
	DefaultRes     = 9
)

var errPanic = errors.New("provider panicked")

type Option func(*Adapter)

func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithCache enables result caching; res is the H3 resolution of the key cell.
func WithCache(c *cache.Vehicles, res int) Option {
	return func(a *Adapter) {
		a.cache = c
		a.res = res
	}
}

// WithTTL sets the TTL used for every cache write.
func WithTTL(d time.Duration) Option {
	return func(a *Adapter) { a.ttl = func(string) time.Duration { return d } }
}

// WithTTLPolicy derives the TTL of a write from the key cell.
func WithTTLPolicy(f func(cell string) time.Duration) Option {
	return func(a *Adapter) {
		if f != nil {
			a.ttl = f
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.log = l
		}
	}
}

type Adapter struct {
	id      string
	client  Client
	norm    normalize.Normalizer
	auth    auth.Validator
	cache   *cache.Vehicles
	res     int
	ttl     func(cell string) time.Duration
	timeout time.Duration
	log     *slog.Logger

	writes sync.WaitGroup
}

func New(id string, client Client, norm normalize.Normalizer, v auth.Validator, opts ...Option) *Adapter {
	a := &Adapter{
		id:      id,
		client:  client,
		norm:    norm,
		auth:    v,
		res:     DefaultRes,
		ttl:     func(string) time.Duration { return DefaultTTL },
		timeout: DefaultTimeout,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	a.log = a.log.With("provider", id)
	return a
}

func (a *Adapter) ID() string { return a.id }

// Fetch returns the vehicles around (lat, lng). The only error it reports is
// an authorization failure; every provider failure becomes an empty slice.
func (a *Adapter) Fetch(ctx context.Context, lat, lng float64) ([]model.Vehicle, error) {
	if err := a.auth.RequireAccessToken(auth.AccessToken(ctx)); err != nil {
		observability.ObserveProviderFetch(a.id, "unauthorized")
		return nil, fmt.Errorf("provider %s: %w", a.id, err)
	}

	cell := keys.Cell(lat, lng, a.res)
	key := keys.CellKey(a.id, a.res, cell)

	if a.cache != nil {
		vs, ok, err := a.cache.Lookup(ctx, key)
		if err != nil {
			a.log.DebugContext(ctx, "cache lookup failed", "key", key, "err", err)
		}
		if ok {
			observability.ObserveProviderFetch(a.id, "hit")
			observability.AddProviderVehicles(a.id, len(vs))
			return vs, nil
		}
	}

	start := time.Now()
	vs, err := a.call(ctx, lat, lng)
	observability.ObserveProviderLatency(a.id, time.Since(start).Seconds())
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		observability.ObserveProviderFetch(a.id, outcome)
		a.log.ErrorContext(ctx, "provider fetch failed",
			"lat", lat,
			"lng", lng,
			"outcome", outcome,
			"err", err)
		return []model.Vehicle{}, nil
	}

	vs = a.sanitize(ctx, vs)
	observability.ObserveProviderFetch(a.id, "ok")
	observability.AddProviderVehicles(a.id, len(vs))

	if a.cache != nil {
		a.store(ctx, key, a.ttl(cell), slices.Clone(vs))
	}
	return vs, nil
}

// call runs the client and normalizer in their own goroutine so a client that
// ignores ctx cannot hold the caller past the deadline.
func (a *Adapter) call(ctx context.Context, lat, lng float64) ([]model.Vehicle, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type result struct {
		vs  []model.Vehicle
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("%w: %v", errPanic, r)}
			}
		}()
		raw, err := a.client.CallByCoordinates(ctx, lat, lng)
		if err != nil {
			ch <- result{err: fmt.Errorf("call: %w", err)}
			return
		}
		vs, err := a.norm.Normalize(a.id, raw)
		if err != nil {
			ch <- result{err: fmt.Errorf("normalize: %w", err)}
			return
		}
		ch <- result{vs: vs}
	}()

	select {
	case r := <-ch:
		return r.vs, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for provider: %w", ctx.Err())
	}
}

// drops vehicles outside the coordinate range and stamps the provider id
func (a *Adapter) sanitize(ctx context.Context, in []model.Vehicle) []model.Vehicle {
	out := make([]model.Vehicle, 0, len(in))
	dropped := 0
	for _, v := range in {
		if !model.ValidLatLng(v.Lat, v.Lng) {
			dropped++
			continue
		}
		v.ProviderID = a.id
		if v.Attributes == nil {
			v.Attributes = []model.Attribute{}
		}
		out = append(out, v)
	}
	if dropped > 0 {
		a.log.DebugContext(ctx, "dropped vehicles with invalid coordinates", "dropped", dropped)
	}
	return out
}

func (a *Adapter) store(ctx context.Context, key string, ttl time.Duration, vs []model.Vehicle) {
	ctx = context.WithoutCancel(ctx)
	a.writes.Add(1)
	go func() {
		defer a.writes.Done()
		if err := a.cache.Store(ctx, key, vs, ttl); err != nil {
			a.log.DebugContext(ctx, "cache store failed", "key", key, "err", err)
		}
	}()
}

// Wait blocks until every detached cache write has finished.
func (a *Adapter) Wait() {
	a.writes.Wait()
}
