// Package aggregator answers "which bikes are near this point" by fanning the
// query out to every provider operating in the point's region.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mohammed-shakir/bikeshare-aggregator/internal/auth"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/cache/keys"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/model"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/observability"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/geocode"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/hotness"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/logger"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/provider"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/queryevents"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/registry"
)

var ErrInvalidCoordinates = errors.New("invalid coordinates")

// EventSink receives one event per successful query.
type EventSink interface {
	Publish(ev queryevents.Event) bool
}

type Option func(*Aggregator)

func WithHotness(h hotness.Interface) Option {
	return func(a *Aggregator) { a.hot = h }
}

func WithEvents(s EventSink) Option {
	return func(a *Aggregator) { a.events = s }
}

// WithCellRes must match the resolution the adapters key their cache with.
func WithCellRes(res int) Option {
	return func(a *Aggregator) { a.res = res }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.log = l
		}
	}
}

type Aggregator struct {
	geo      geocode.Geocoder
	reg      *registry.Registry
	adapters provider.Set
	auth     auth.Validator
	hot      hotness.Interface
	events   EventSink
	res      int
	log      *slog.Logger
	now      func() time.Time
}

// New builds an aggregator. v gates every query before any provider is
// dispatched, so a query with no active adapters is still authorized.
func New(geo geocode.Geocoder, reg *registry.Registry, adapters provider.Set, v auth.Validator, opts ...Option) *Aggregator {
	a := &Aggregator{
		geo:      geo,
		reg:      reg,
		adapters: adapters,
		auth:     v,
		res:      provider.DefaultRes,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Query returns the vehicles of every provider operating at (lat, lng),
// grouped by provider in resolver order. Provider failures only shrink the
// result; an authorization failure fails the whole query.
func (a *Aggregator) Query(ctx context.Context, lat, lng float64) ([]model.Vehicle, error) {
	if err := a.auth.RequireAccessToken(auth.AccessToken(ctx)); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if err := model.CheckLatLng(lat, lng); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	start := a.now()

	region := a.region(ctx, lat, lng)
	ids := a.reg.Resolve(region.City, region.Country)

	active := make([]*provider.Adapter, 0, len(ids))
	for _, id := range ids {
		ad, ok := a.adapters.Get(id)
		if !ok {
			a.log.DebugContext(ctx, "no adapter for provider", "provider", id)
			continue
		}
		active = append(active, ad)
	}

	results := make([][]model.Vehicle, len(active))
	errs := make([]error, len(active))
	var wg sync.WaitGroup
	for i, ad := range active {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = ad.Fetch(ctx, lat, lng)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	out := make([]model.Vehicle, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}

	dur := a.now().Sub(start)
	observability.ObserveQuery(dur.Seconds(), len(active))
	a.record(ctx, lat, lng, region, ids, len(out), dur)
	return out, nil
}

// Capacities describes what the service offers at (lat, lng).
func (a *Aggregator) Capacities(ctx context.Context, lat, lng float64) (model.Capacities, error) {
	if err := model.CheckLatLng(lat, lng); err != nil {
		return model.Capacities{}, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	region := a.region(ctx, lat, lng)
	return model.Capacities{
		Location:        region.Label(),
		DefaultLanguage: a.reg.Language(region.Country),
		Providers:       a.reg.Resolve(region.City, region.Country),
	}, nil
}

// geocoding failures degrade to the unknown region
func (a *Aggregator) region(ctx context.Context, lat, lng float64) model.Region {
	if a.geo == nil {
		observability.ObserveGeocode("unknown")
		return model.UnknownRegion
	}
	r, err := a.geo.Reverse(ctx, lat, lng)
	if err != nil {
		observability.ObserveGeocode("error")
		a.log.WarnContext(ctx, "reverse geocoding failed", "lat", lat, "lng", lng, "err", err)
		return model.UnknownRegion
	}
	if r.IsUnknown() {
		observability.ObserveGeocode("unknown")
		return model.UnknownRegion
	}
	observability.ObserveGeocode("found")
	return r
}

func (a *Aggregator) record(ctx context.Context, lat, lng float64, region model.Region, ids []string, n int, dur time.Duration) {
	if a.hot == nil && a.events == nil {
		return
	}
	cell := keys.Cell(lat, lng, a.res)
	if a.hot != nil {
		a.hot.Inc(cell)
	}
	if a.events != nil {
		a.events.Publish(queryevents.Event{
			RequestID:  logger.RequestID(ctx),
			Lat:        lat,
			Lng:        lng,
			Cell:       cell,
			Location:   region.Label(),
			Providers:  ids,
			Vehicles:   n,
			DurationMs: float64(dur.Microseconds()) / 1000,
			TS:         a.now().UTC(),
		})
	}
}
