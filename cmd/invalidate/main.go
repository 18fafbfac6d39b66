// Command invalidate publishes one cache invalidation event, for operators
// who need to drop cached vehicles for an area before their TTL runs out.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/bikeshare-aggregator/pkg/invalidation/kafka"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}

type flags struct {
	brokers   string
	topic     string
	key       string
	providers string
	cells     string
	lat, lng  float64
	point     bool
	res       int
	version   uint64
}

func buildEvent(f flags, now time.Time) (kafka.WireEvent, error) {
	w := kafka.WireEvent{
		Key:       f.key,
		Providers: splitCSV(f.providers),
		Cells:     splitCSV(f.cells),
		Res:       f.res,
		Version:   f.version,
		TS:        now.UTC(),
		Op:        "invalidate",
	}
	if f.point {
		lat, lng := f.lat, f.lng
		w.Lat, w.Lng = &lat, &lng
	}
	if err := w.Validate(); err != nil {
		return kafka.WireEvent{}, err
	}
	return w, nil
}

func main() {
	var f flags
	flag.StringVar(&f.brokers, "brokers", getenv("KAFKA_BROKERS", "localhost:9092"), "Comma separated Kafka brokers")
	flag.StringVar(&f.topic, "topic", getenv("KAFKA_TOPIC", "vehicle-cache-invalidation"), "Invalidation topic")
	flag.StringVar(&f.key, "key", "", "Explicit cache key to drop")
	flag.StringVar(&f.providers, "providers", "", "Comma separated provider ids (default: all)")
	flag.StringVar(&f.cells, "cells", "", "Comma separated H3 cells")
	flag.Float64Var(&f.lat, "lat", 0, "Latitude of a point to invalidate")
	flag.Float64Var(&f.lng, "lng", 0, "Longitude of a point to invalidate")
	flag.IntVar(&f.res, "res", 0, "H3 resolution of the cells (default: consumer's)")
	flag.Uint64Var(&f.version, "version", 0, "Event version; 0 always applies")
	flag.Parse()
	flag.Visit(func(fl *flag.Flag) {
		if fl.Name == "lat" || fl.Name == "lng" {
			f.point = true
		}
	})

	w, err := buildEvent(f, time.Now())
	if err != nil {
		log.Fatalf("invalid event: %v", err)
	}
	if err := publish(splitCSV(f.brokers), f.topic, w); err != nil {
		log.Fatalf("publish: %v", err)
	}
}

func publish(brokers []string, topic string, w kafka.WireEvent) error {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Version = sarama.V2_5_0_0
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return fmt.Errorf("producer create: %w", err)
	}
	defer func() { _ = prod.Close() }()

	b, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	part, off, err := prod.SendMessage(&sarama.ProducerMessage{Topic: topic, Value: sarama.ByteEncoder(b)})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	log.Printf("published invalidation partition=%d offset=%d body=%s", part, off, b)
	return nil
}
