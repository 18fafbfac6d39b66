// Package metricswrap reports hotness tracker size and hot cells.
package metricswrap

import (
	"fmt"
	"log/slog"

	xx "github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/observability"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/hotness"
)

type Sizer interface{ Size() int }

type Options struct {
	// Label is the tier label on the tracked-keys gauge.
	Label string
	// LogAbove logs cells whose score reaches this value; zero disables it.
	LogAbove float64
	// LogSample is the fraction of hot cells logged, in [0, 1].
	LogSample float64
	Logger    *slog.Logger
}

type WithMetrics struct {
	inner hotness.Interface
	opts  Options
}

var _ hotness.Interface = (*WithMetrics)(nil)

func New(inner hotness.Interface, opts Options) *WithMetrics {
	if opts.Label == "" {
		opts.Label = "all"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &WithMetrics{inner: inner, opts: opts}
}

func (w *WithMetrics) Inc(cell string) {
	w.inner.Inc(cell)
	if w.opts.LogAbove > 0 {
		score := w.inner.Score(cell)
		if score >= w.opts.LogAbove && shouldLog(w.opts.LogSample, cell) {
			w.opts.Logger.Info("hot cell above threshold",
				"event", "hotness_threshold",
				"score", score,
				"cell_hash", fmt.Sprintf("%08x", xx.Sum64String(cell)),
			)
		}
	}
	w.report()
}

func (w *WithMetrics) Score(cell string) float64 {
	return w.inner.Score(cell)
}

func (w *WithMetrics) Reset(cells ...string) {
	w.inner.Reset(cells...)
	w.report()
}

func (w *WithMetrics) report() {
	if s, ok := w.inner.(Sizer); ok {
		observability.SetHotKeysGauge(w.opts.Label, s.Size())
	}
}

func shouldLog(sample float64, key string) bool {
	if sample <= 0 {
		return false
	}
	if sample >= 1 {
		return true
	}
	const denom = 10000
	threshold := uint64(sample*denom + 0.5)
	if threshold == 0 {
		return false
	}
	return (xx.Sum64String(key) % denom) < threshold
}
