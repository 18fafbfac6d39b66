// Package kafka consumes cache invalidation messages from a Kafka topic and
// deletes the matching vehicle cache entries.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/bikeshare-aggregator/internal/cache"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/cache/keys"
)

type HotnessResetter interface {
	Reset(cells ...string)
}

type Runner struct {
	log       *slog.Logger
	cfg       InvalidationConfig
	cache     cache.Interface
	res       int
	providers []string
	ms        *metricSet
	ver       *versionDedupe
	assigned  atomic.Bool
	assignMu  sync.RWMutex
	assign    map[int32]struct{}
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	hot       HotnessResetter
}

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
	// Res is the cache key resolution used when an event does not carry one.
	Res int
	// Providers are expanded when an event does not name any.
	Providers []string
	Hotness   HotnessResetter
}

func New(cfg InvalidationConfig, c cache.Interface, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &Runner{
		log:       opts.Logger,
		cfg:       cfg,
		cache:     c,
		res:       opts.Res,
		providers: opts.Providers,
		ms:        newMetricSet(opts.Register),
		ver:       newVersionDedupe(8192),
		assign:    map[int32]struct{}{},
		hot:       opts.Hotness,
	}
	if r.res <= 0 {
		r.res = 9
	}
	return r
}

func (r *Runner) Start(ctx context.Context) error {
	if !r.cfg.Active() {
		r.log.Info("invalidation runner disabled", "driver", r.cfg.Driver, "enabled", r.cfg.Enabled)
		return nil
	}
	if r.cache == nil {
		return errors.New("kafka runner: cache dependency is required")
	}

	cfg, err := r.cfg.sarama()
	if err != nil {
		return fmt.Errorf("kafka config: %w", err)
	}
	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	h := &groupHandler{
		setup: func(sess sarama.ConsumerGroupSession) {
			r.assignMu.Lock()
			r.assigned.Store(true)
			r.assign = map[int32]struct{}{}
			for _, parts := range sess.Claims() {
				for _, p := range parts {
					r.assign[p] = struct{}{}
				}
			}
			r.assignMu.Unlock()
		},
		cleanup: func(sarama.ConsumerGroupSession) {
			r.assignMu.Lock()
			r.assigned.Store(false)
			r.assign = map[int32]struct{}{}
			r.assignMu.Unlock()
		},
		process: r.handleMessage,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				r.log.Error("kafka consumer group close", "err", err)
			}
		}()

		for {
			if err := group.Consume(ctx, []string{r.cfg.Topic}, h); err != nil {
				r.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("kafka invalidation runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
	r.log.Info("kafka invalidation runner stopped")
}

// Readiness is true once the consumer group has assigned partitions. A runner
// that is not configured to consume is always ready.
func (r *Runner) Readiness() (ready bool, partitions []int32) {
	if !r.cfg.Active() {
		return true, nil
	}
	if !r.assigned.Load() {
		return false, nil
	}
	r.assignMu.RLock()
	defer r.assignMu.RUnlock()
	for p := range r.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

// Undecodable and invalid messages are counted and skipped so one bad record
// cannot stall the partition. Only cache failures are returned.
func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	if !msg.Timestamp.IsZero() {
		r.ms.lagGauge.Set(time.Since(msg.Timestamp).Seconds())
	}

	var w WireEvent
	if err := json.Unmarshal(msg.Value, &w); err != nil {
		r.ms.msgs.WithLabelValues("invalid").Inc()
		r.log.Warn("invalidation decode failed", "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := w.Validate(); err != nil {
		r.ms.msgs.WithLabelValues("invalid").Inc()
		r.log.Warn("invalidation event rejected", "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}

	err := r.apply(ctx, w)
	r.observe(w.Op, err, time.Since(start))
	return err
}

func (r *Runner) observe(op string, err error, dur time.Duration) {
	if op == "" {
		op = "unknown"
	}
	if err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
	} else {
		r.ms.msgs.WithLabelValues("ok").Inc()
	}
	r.ms.proc.WithLabelValues(op).Observe(dur.Seconds())
}

type target struct {
	key  string
	cell string
}

func (r *Runner) targets(w WireEvent) []target {
	if w.Key != "" {
		return []target{{key: w.Key}}
	}
	res := w.Res
	if res <= 0 {
		res = r.res
	}
	cells := w.Cells
	if len(cells) == 0 {
		cells = []string{keys.Cell(*w.Lat, *w.Lng, res)}
	}
	providers := w.Providers
	if len(providers) == 0 {
		providers = r.providers
	}
	out := make([]target, 0, len(cells)*len(providers))
	for _, c := range cells {
		for _, p := range providers {
			out = append(out, target{key: keys.CellKey(p, res, c), cell: c})
		}
	}
	return out
}

func (r *Runner) apply(ctx context.Context, w WireEvent) error {
	var del []string
	cells := make(map[string]struct{})
	for _, t := range r.targets(w) {
		if !r.ver.shouldApply(t.key, w.Version) {
			r.ms.apply.WithLabelValues("skip_version").Inc()
			continue
		}
		del = append(del, t.key)
		if t.cell != "" {
			cells[t.cell] = struct{}{}
		}
	}
	if len(del) == 0 {
		return nil
	}

	if err := r.cache.Del(ctx, del...); err != nil {
		return fmt.Errorf("cache del (%d keys): %w", len(del), err)
	}
	r.ver.commit(w.Version, del...)
	r.ms.apply.WithLabelValues("delete").Add(float64(len(del)))

	if r.hot != nil && len(cells) > 0 {
		uniq := make([]string, 0, len(cells))
		for c := range cells {
			uniq = append(uniq, c)
		}
		r.hot.Reset(uniq...)
	}
	r.log.Debug("cache invalidated", "keys", len(del), "cells", len(cells), "op", w.Op)
	return nil
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
