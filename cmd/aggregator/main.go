package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/bikeshare-aggregator/internal/aggregator"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/auth"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/cache"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/cache/memstore"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/cache/redisstore"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/config"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/httpclient"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/observability"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/server"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/geocode"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/hotness"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/hotness/expdecay"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/hotness/metricswrap"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/logger"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/metrics"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/provider"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/queryevents"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/registry"
	"github.com/mohammed-shakir/bikeshare-aggregator/pkg/invalidation/kafka"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// a missing .env is fine
	_ = godotenv.Load()

	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "aggregator",
		File: logger.FileConfig{
			Path:       cfg.LogFile,
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAgeDays: cfg.LogMaxAgeDays,
		},
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, appLog); err != nil {
		appLog.Error("aggregator exited with error", "err", err)
		return 1
	}
	appLog.Info("aggregator stopped")
	return 0
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	var mp *metrics.Provider
	if cfg.MetricsEnabled {
		mp = metrics.Init(metrics.Config{Enabled: true, Path: os.Getenv("METRICS_PATH"), Version: Version})
	} else {
		observability.Init(nil)
		observability.ExposeBuildInfo(Version)
	}

	reg, err := loadRegistry(cfg.RegistryFile)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	tracker := expdecay.New(cfg.HotHalfLife)
	hot := metricswrap.New(tracker, metricswrap.Options{
		Label:     "cells",
		LogAbove:  cfg.HotHotAt,
		LogSample: 0.01,
		Logger:    log,
	})
	go tracker.Run(ctx, cfg.HotHalfLife, 0.01, func(removed int) {
		if removed > 0 {
			log.Debug("hotness sweep", "removed", removed, "tracked", tracker.Size())
		}
	})
	tiers := hotness.Tiers{
		Tracker: hot,
		WarmAt:  cfg.HotWarmAt,
		HotAt:   cfg.HotHotAt,
		Cold:    cfg.CacheTTLCold,
		Warm:    cfg.CacheTTLWarm,
		Hot:     cfg.CacheTTLHot,
	}

	validator := auth.NewStatic(cfg.AccessTokens)
	if validator.Len() == 0 {
		log.Warn("no access tokens configured; every bikes request will be rejected")
	}

	set, disabled, err := provider.Build(reg, provider.BuildConfig{
		Endpoints: cfg.ProviderEndpoints,
		HTTP:      httpclient.NewOutbound(httpclient.WithResponseHeaderTimeout(cfg.ProviderTimeout)),
		Validator: validator,
		Options: []provider.Option{
			provider.WithTimeout(cfg.ProviderTimeout),
			provider.WithCache(cache.NewVehicles(store, cfg.CacheOpTimeout), cfg.CacheH3Res),
			provider.WithTTLPolicy(tiers.TTL),
			provider.WithLogger(log),
		},
	})
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}
	if len(disabled) > 0 {
		log.Warn("providers without endpoint are disabled", "providers", disabled)
	}
	defer set.Wait()

	geo, err := buildGeocoder(cfg)
	if err != nil {
		return err
	}

	aggOpts := []aggregator.Option{
		aggregator.WithHotness(hot),
		aggregator.WithCellRes(cfg.CacheH3Res),
		aggregator.WithLogger(log),
	}
	if cfg.QueryEventsEnabled {
		pub, err := queryevents.NewPublisher(splitBrokers(cfg.KafkaBrokers), cfg.QueryEventsTopic, cfg.QueryEventsQueue, log)
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}
		defer func() {
			if err := pub.Close(); err != nil {
				log.Warn("query events close", "err", err)
			}
		}()
		aggOpts = append(aggOpts, aggregator.WithEvents(pub))
	}
	agg := aggregator.New(geo, reg, set, validator, aggOpts...)

	icfg := kafka.FromEnv()
	runnerOpts := kafka.Options{
		Logger:    log,
		Res:       cfg.CacheH3Res,
		Providers: ids(set),
		Hotness:   hot,
	}
	if mp != nil {
		runnerOpts.Register = mp.Registerer()
	}
	runner := kafka.New(icfg, store, runnerOpts)
	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("invalidation runner: %w", err)
	}
	defer runner.Stop()

	deps := server.Deps{Service: agg, Providers: reg, Ready: runner}
	if mp != nil {
		deps.Metrics = mp.Handler()
		deps.MetricsPath = mp.Path()
	}

	log.Info("starting aggregator",
		"addr", cfg.Addr,
		"version", Version,
		"providers", len(set),
		"cache", cfg.CacheDriver,
		"res", cfg.CacheH3Res)
	return server.Run(ctx, cfg.Addr, log, server.NewHandler(log, deps))
}

func loadRegistry(path string) (*registry.Registry, error) {
	if path == "" {
		return registry.Default()
	}
	reg, err := registry.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load registry %q: %w", path, err)
	}
	return reg, nil
}

func openStore(ctx context.Context, cfg config.Config) (cache.Interface, func(), error) {
	switch cfg.CacheDriver {
	case "memory", "mem":
		s, err := memstore.New(cfg.CacheMemSize)
		if err != nil {
			return nil, nil, fmt.Errorf("memory cache: %w", err)
		}
		return s, func() {}, nil
	case "redis", "":
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		c, err := redisstore.New(dialCtx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown CACHE_DRIVER %q", cfg.CacheDriver)
	}
}

func buildGeocoder(cfg config.Config) (geocode.Geocoder, error) {
	static := geocode.NewStatic(geocode.DefaultCities)
	if cfg.GeocoderURL == "" {
		return static, nil
	}
	hc := httpclient.NewOutbound(httpclient.WithTimeout(cfg.GeocoderTimeout))
	nom, err := geocode.NewNominatim(hc, cfg.GeocoderURL,
		geocode.WithCacheSize(cfg.GeocoderCacheSize),
		geocode.WithUserAgent("bikeshare-aggregator/"+Version))
	if err != nil {
		return nil, fmt.Errorf("geocoder: %w", err)
	}
	return geocode.Fallback{nom, static}, nil
}

func splitBrokers(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}

func ids(s provider.Set) []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
