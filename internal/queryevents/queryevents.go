// Package queryevents publishes one Kafka record per aggregate query.
package queryevents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/observability"
)

type Event struct {
	RequestID  string    `json:"request_id,omitempty"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Cell       string    `json:"cell"`
	Location   string    `json:"location"`
	Providers  []string  `json:"providers"`
	Vehicles   int       `json:"vehicles"`
	DurationMs float64   `json:"duration_ms"`
	TS         time.Time `json:"ts"`
}

// Publisher queues events and hands them to an async producer. Publish never
// blocks; events are dropped when the queue is full or the publisher closed.
type Publisher struct {
	topic  string
	log    *slog.Logger
	prod   sarama.AsyncProducer
	events chan Event

	mu      sync.RWMutex
	closed  bool
	stopped chan struct{}
}

func NewPublisher(brokers []string, topic string, queueSize int, log *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("queryevents: create async producer: %w", err)
	}
	return NewWithProducer(prod, topic, queueSize, log), nil
}

// NewWithProducer takes ownership of prod; Close closes it.
func NewWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, log *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Publisher{
		topic:   topic,
		log:     log,
		prod:    prod,
		events:  make(chan Event, queueSize),
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.log.Warn("query event marshal failed", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(partitionKey(ev.Cell)),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				p.log.Warn("query event producer error", "err", err.Err, "topic", err.Msg.Topic)
			}
		}
	}()

	return p
}

// events of one cell stay on one partition
func partitionKey(cell string) string {
	return strconv.FormatUint(xxhash.Sum64String(cell), 16)
}

func (p *Publisher) Publish(ev Event) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.events <- ev:
		return true
	default:
		observability.IncQueryEventsDropped()
		return false
	}
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.stopped
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("queryevents: close producer: %w", err)
	}
	return nil
}
