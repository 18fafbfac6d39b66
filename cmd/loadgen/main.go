// Command loadgen drives /v1/bikes with a Zipf-skewed mix of query points so
// the hotness tiers and cache hit ratio can be observed under load.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/mohammed-shakir/bikeshare-aggregator/internal/geocode"
)

type Config struct {
	TargetURL      string
	Token          string
	Concurrency    int
	Duration       time.Duration
	ZipfS          float64
	ZipfV          float64
	Points         int
	Spread         float64
	OutputPrefix   string
	RequestTimeout time.Duration
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.TargetURL, "target", "http://localhost:8080/v1/bikes", "Aggregator /v1/bikes URL")
	flag.StringVar(&cfg.Token, "token", os.Getenv("LOADGEN_TOKEN"), "Access token sent as a Bearer header")
	flag.IntVar(&cfg.Concurrency, "concurrency", 16, "Concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "Test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.IntVar(&cfg.Points, "points", 256, "Distinct query points in the pool")
	flag.Float64Var(&cfg.Spread, "spread", 0.05, "Max offset in degrees around each city center")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/loadgen", "Output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 10*time.Second, "Per-request timeout")
	flag.Parse()
	return cfg
}

type point struct{ Lat, Lng float64 }

// makePoints cycles through the known cities so the head of the Zipf
// distribution lands on a handful of busy areas.
func makePoints(count int, spread float64, cities []geocode.City, r *rand.Rand) []point {
	if count <= 0 || len(cities) == 0 {
		return nil
	}
	out := make([]point, 0, count)
	for i := range count {
		c := cities[i%len(cities)]
		out = append(out, point{
			Lat: c.Lat + (r.Float64()-0.5)*2*spread,
			Lng: c.Lng + (r.Float64()-0.5)*2*spread,
		})
	}
	return out
}

func requestURL(target string, p point) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse target: %w", err)
	}
	q := u.Query()
	q.Set("lat", strconv.FormatFloat(p.Lat, 'f', 6, 64))
	q.Set("lng", strconv.FormatFloat(p.Lng, 'f', 6, 64))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type sample struct {
	Timestamp time.Time
	Latency   time.Duration
	Status    int
	ErrorMsg  string
	Index     int
	Vehicles  int
}

type summary struct {
	StartTime     time.Time `json:"start"`
	EndTime       time.Time `json:"end"`
	DurationSec   float64   `json:"duration_sec"`
	TotalRequests int64     `json:"total"`
	SuccessCount  int64     `json:"success"`
	ErrorCount    int64     `json:"errors"`
	Vehicles      int64     `json:"vehicles"`
	ThroughputRPS float64   `json:"throughput_rps"`
	P50Ms         float64   `json:"p50_ms"`
	P95Ms         float64   `json:"p95_ms"`
	P99Ms         float64   `json:"p99_ms"`
	Concurrency   int       `json:"concurrency"`
	ZipfS         float64   `json:"zipf_s"`
	ZipfV         float64   `json:"zipf_v"`
	Points        int       `json:"points"`
	TargetURL     string    `json:"target"`
}

type aggregatedResult struct {
	total    int64
	success  int64
	errors   int64
	vehicles int64
	latMs    []float64
}

func main() {
	cfg := loadConfig()
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		log.Fatalf("mkdir results: %v", err)
	}
	prefix := fmt.Sprintf("%s_%s", cfg.OutputPrefix, time.Now().UTC().Format("20060102_150405Z"))

	seed := time.Now().UnixNano()
	points := makePoints(cfg.Points, cfg.Spread, geocode.DefaultCities, rand.New(rand.NewSource(seed)))
	if len(points) == 0 {
		log.Fatalf("no query points generated")
	}
	imax := uint64(len(points)) - 1

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          1024,
			MaxIdleConnsPerHost:   256,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   4 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: cfg.RequestTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		log.Printf("open csv: %v", err)
		return
	}
	defer func() { _ = csvFile.Close() }()
	csvWriter := csv.NewWriter(csvFile)

	samplesChan := make(chan sample, 4096)
	resultsChan := make(chan aggregatedResult, 1)
	go func() {
		_ = csvWriter.Write([]string{"timestamp", "latency_ms", "status", "error", "point_idx", "vehicles"})
		var res aggregatedResult
		res.latMs = make([]float64, 0, 1<<16)
		for s := range samplesChan {
			res.total++
			if s.ErrorMsg == "" {
				res.success++
				res.vehicles += int64(s.Vehicles)
				res.latMs = append(res.latMs, float64(s.Latency.Microseconds())/1000.0)
			} else {
				res.errors++
			}
			_ = csvWriter.Write([]string{
				s.Timestamp.UTC().Format(time.RFC3339Nano),
				fmt.Sprintf("%.3f", float64(s.Latency.Microseconds())/1000.0),
				strconv.Itoa(s.Status),
				s.ErrorMsg,
				strconv.Itoa(s.Index),
				strconv.Itoa(s.Vehicles),
			})
		}
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			log.Printf("csv flush error: %v", err)
		}
		resultsChan <- res
	}()

	startTime := time.Now()
	log.Printf("loadgen start target=%s dur=%s conc=%d zipf(s=%.2f,v=%.2f) points=%d",
		cfg.TargetURL, cfg.Duration, cfg.Concurrency, cfg.ZipfS, cfg.ZipfV, len(points))

	var wg sync.WaitGroup
	wg.Add(cfg.Concurrency)
	for workerID := range cfg.Concurrency {
		go func(id int) {
			defer wg.Done()
			zipf := rand.NewZipf(rand.New(rand.NewSource(seed+int64(id)+1)), cfg.ZipfS, cfg.ZipfV, imax)
			for ctx.Err() == nil {
				idx := int(zipf.Uint64())
				s := query(ctx, httpClient, cfg, points[idx])
				s.Index = idx
				select {
				case samplesChan <- s:
				case <-ctx.Done():
					return
				}
			}
		}(workerID)
	}

	go func() {
		<-ctx.Done()
		wg.Wait()
		close(samplesChan)
	}()

	res := <-resultsChan
	endTime := time.Now()
	elapsed := endTime.Sub(startTime).Seconds()

	sort.Float64s(res.latMs)
	out := summary{
		StartTime:     startTime.UTC(),
		EndTime:       endTime.UTC(),
		DurationSec:   elapsed,
		TotalRequests: res.total,
		SuccessCount:  res.success,
		ErrorCount:    res.errors,
		Vehicles:      res.vehicles,
		ThroughputRPS: float64(res.total) / elapsed,
		P50Ms:         percentile(res.latMs, 50),
		P95Ms:         percentile(res.latMs, 95),
		P99Ms:         percentile(res.latMs, 99),
		Concurrency:   cfg.Concurrency,
		ZipfS:         cfg.ZipfS,
		ZipfV:         cfg.ZipfV,
		Points:        len(points),
		TargetURL:     cfg.TargetURL,
	}

	if jsonFile, err := os.Create(filepath.Clean(jsonPath)); err == nil {
		enc := json.NewEncoder(jsonFile)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		_ = jsonFile.Close()
	}

	log.Printf("done: total=%d succ=%d err=%d vehicles=%d thr=%.2f rps p50=%.1fms p95=%.1fms p99=%.1fms",
		res.total, res.success, res.errors, res.vehicles, out.ThroughputRPS, out.P50Ms, out.P95Ms, out.P99Ms)
	log.Printf("wrote %s and %s", jsonPath, csvPath)
}

func query(ctx context.Context, c *http.Client, cfg Config, p point) sample {
	s := sample{Timestamp: time.Now()}
	u, err := requestURL(cfg.TargetURL, p)
	if err != nil {
		s.ErrorMsg = err.Error()
		return s
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		s.ErrorMsg = err.Error()
		return s
	}
	req.Header.Set("Accept", "application/json")
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}
	resp, err := c.Do(req)
	s.Latency = time.Since(s.Timestamp)
	if err != nil {
		s.ErrorMsg = err.Error()
		return s
	}
	defer func() { _ = resp.Body.Close() }()
	s.Status = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		s.ErrorMsg = "status=" + strconv.Itoa(resp.StatusCode)
		return s
	}
	n, err := countVehicles(resp.Body)
	if err != nil {
		s.ErrorMsg = err.Error()
		return s
	}
	s.Vehicles = n
	return s
}

func countVehicles(r io.Reader) (int, error) {
	var body []json.RawMessage
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode body: %w", err)
	}
	return len(body), nil
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}
	k := (p / 100.0) * float64(len(sortedValues)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sortedValues)-1 {
		return sortedValues[len(sortedValues)-1]
	}
	d := k - f
	return sortedValues[i]*(1-d) + sortedValues[i+1]*d
}
