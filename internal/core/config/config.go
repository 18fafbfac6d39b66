// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr     string
	LogLevel string

	LogConsole    bool
	LogSampleN    int
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	RegistryFile      string
	AccessTokens      []string
	ProviderTimeout   time.Duration
	ProviderEndpoints map[string]string

	CacheDriver     string
	RedisAddr       string
	CacheOpTimeout  time.Duration
	CacheTTLDefault time.Duration
	CacheMemSize    int
	CacheH3Res      int

	HotHalfLife  time.Duration
	HotWarmAt    float64
	HotHotAt     float64
	CacheTTLCold time.Duration
	CacheTTLWarm time.Duration
	CacheTTLHot  time.Duration

	GeocoderURL       string
	GeocoderTimeout   time.Duration
	GeocoderCacheSize int

	QueryEventsEnabled bool
	QueryEventsTopic   string
	QueryEventsQueue   int
	KafkaBrokers       string

	MetricsEnabled bool
}

func FromEnv() Config {
	res := getint("CACHE_H3_RES", 9)
	if res < 0 || res > 15 {
		res = 9
	}

	ttlDefault := getpositive("CACHE_TTL_DEFAULT", 60*time.Second)

	return Config{
		Addr:     getenv("ADDR", ":8080"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		LogConsole:    getbool("LOG_CONSOLE", false),
		LogSampleN:    getint("LOG_SAMPLE_N", 0),
		LogFile:       getenv("LOG_FILE", ""),
		LogMaxSizeMB:  getint("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getint("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: getint("LOG_MAX_AGE_DAYS", 28),

		RegistryFile:      getenv("REGISTRY_FILE", ""),
		AccessTokens:      splitList(getenv("ACCESS_TOKENS", "")),
		ProviderTimeout:   getpositive("PROVIDER_TIMEOUT", 3*time.Second),
		ProviderEndpoints: parseStringMap(getenv("PROVIDER_ENDPOINTS", "")),

		CacheDriver:     strings.ToLower(getenv("CACHE_DRIVER", "redis")),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		CacheOpTimeout:  getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		CacheTTLDefault: ttlDefault,
		CacheMemSize:    getint("CACHE_MEM_SIZE", 10000),
		CacheH3Res:      res,

		HotHalfLife:  getduration("HOT_HALF_LIFE", time.Minute),
		HotWarmAt:    getfloat("HOT_WARM_AT", 0),
		HotHotAt:     getfloat("HOT_HOT_AT", 0),
		CacheTTLCold: getpositive("CACHE_TTL_COLD", ttlDefault),
		CacheTTLWarm: getpositive("CACHE_TTL_WARM", ttlDefault),
		CacheTTLHot:  getpositive("CACHE_TTL_HOT", ttlDefault),

		GeocoderURL:       getenv("GEOCODER_URL", ""),
		GeocoderTimeout:   getduration("GEOCODER_TIMEOUT", 2*time.Second),
		GeocoderCacheSize: getint("GEOCODER_CACHE_SIZE", 4096),

		QueryEventsEnabled: getbool("QUERY_EVENTS_ENABLED", false),
		QueryEventsTopic:   getenv("KAFKA_EVENTS_TOPIC", "bike-queries"),
		QueryEventsQueue:   getint("QUERY_EVENTS_QUEUE", 1024),
		KafkaBrokers:       getenv("KAFKA_BROKERS", "localhost:9092"),

		MetricsEnabled: getbool("METRICS_ENABLED", true),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// getpositive rejects zero and negative durations: a cache entry without a
// TTL would never expire.
func getpositive(k string, def time.Duration) time.Duration {
	if d := getduration(k, def); d > 0 {
		return d
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}

// parseStringMap reads whitespace separated id=url pairs, e.g.
// "ofo=http://a/v1?x=1,2 lime=http://b". Whitespace cannot appear in a URL,
// so endpoint query strings may contain commas or semicolons.
func parseStringMap(s string) map[string]string {
	out := map[string]string{}
	for _, p := range strings.Fields(s) {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
