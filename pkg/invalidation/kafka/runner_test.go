package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mohammed-shakir/bikeshare-aggregator/internal/cache/keys"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/cache/memstore"
)

const (
	cellA = "891fb466257ffff"
	cellB = "891fb46625bffff"
)

type fakeCache struct {
	mu  sync.Mutex
	del []string
	err error
}

func (f *fakeCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (f *fakeCache) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (f *fakeCache) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	f.del = append(f.del, keys...)
	f.mu.Unlock()
	return f.err
}

func (f *fakeCache) deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.del...)
	sort.Strings(out)
	return out
}

type mockResetter struct {
	mu    sync.Mutex
	calls []string
}

func (m *mockResetter) Reset(cells ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, cells...)
}

func (m *mockResetter) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func newRunner(t *testing.T, c *fakeCache, opts Options) *Runner {
	t.Helper()
	opts.Register = prometheus.NewRegistry()
	return New(InvalidationConfig{Enabled: true, Driver: DriverKafka}, c, opts)
}

func message(t *testing.T, w WireEvent) *sarama.ConsumerMessage {
	t.Helper()
	b, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &sarama.ConsumerMessage{
		Topic: "vehicle-cache-invalidation", Partition: 0, Offset: 1,
		Timestamp: time.Now().UTC(), Value: b,
	}
}

func TestWireEvent_CellsExpandAcrossProviders(t *testing.T) {
	fc := &fakeCache{}
	mr := &mockResetter{}
	r := newRunner(t, fc, Options{Providers: []string{"ofo", "lime"}, Hotness: mr})

	w := WireEvent{Cells: []string{cellA, cellB}, Version: 1, Op: "invalidate"}
	if err := r.handleMessage(context.Background(), message(t, w)); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}

	want := []string{
		keys.CellKey("lime", 9, cellA), keys.CellKey("lime", 9, cellB),
		keys.CellKey("ofo", 9, cellA), keys.CellKey("ofo", 9, cellB),
	}
	sort.Strings(want)
	got := fc.deleted()
	if len(got) != len(want) {
		t.Fatalf("deleted %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("deleted[%d]=%s want %s", i, got[i], want[i])
		}
	}
	if mr.Count() != 2 {
		t.Fatalf("hotness resets = %d, want 2", mr.Count())
	}
	if v := testutil.ToFloat64(r.ms.apply.WithLabelValues("delete")); v != 4 {
		t.Fatalf("delete counter = %v, want 4", v)
	}
}

func TestWireEvent_ExplicitProvidersAndRes(t *testing.T) {
	fc := &fakeCache{}
	r := newRunner(t, fc, Options{Providers: []string{"ofo", "lime"}})

	w := WireEvent{Providers: []string{"mobike"}, Cells: []string{cellA}, Res: 8, Version: 1}
	if err := r.handleMessage(context.Background(), message(t, w)); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	got := fc.deleted()
	if len(got) != 1 || got[0] != keys.CellKey("mobike", 8, cellA) {
		t.Fatalf("deleted %v", got)
	}
}

func TestWireEvent_PointResolvesToCell(t *testing.T) {
	fc := &fakeCache{}
	mr := &mockResetter{}
	r := newRunner(t, fc, Options{Providers: []string{"donkey"}, Hotness: mr})

	lat, lng := 48.852775, 2.369336
	w := WireEvent{Lat: &lat, Lng: &lng}
	if err := r.handleMessage(context.Background(), message(t, w)); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	got := fc.deleted()
	if len(got) != 1 || got[0] != keys.Key("donkey", lat, lng, 9) {
		t.Fatalf("deleted %v, want %s", got, keys.Key("donkey", lat, lng, 9))
	}
	if mr.Count() != 1 {
		t.Fatalf("hotness resets = %d, want 1", mr.Count())
	}
}

func TestWireEvent_ExplicitKeySkipsHotness(t *testing.T) {
	fc := &fakeCache{}
	mr := &mockResetter{}
	r := newRunner(t, fc, Options{Providers: []string{"ofo"}, Hotness: mr})

	key := keys.CellKey("ofo", 9, cellA)
	if err := r.handleMessage(context.Background(), message(t, WireEvent{Key: key, Version: 3})); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	if got := fc.deleted(); len(got) != 1 || got[0] != key {
		t.Fatalf("deleted %v", got)
	}
	if mr.Count() != 0 {
		t.Fatalf("explicit key must not reset hotness, got %d", mr.Count())
	}
}

func TestWireEvent_VersionDedupe(t *testing.T) {
	fc := &fakeCache{}
	mr := &mockResetter{}
	r := newRunner(t, fc, Options{Providers: []string{"ofo"}, Hotness: mr})
	ctx := context.Background()

	msg := message(t, WireEvent{Cells: []string{cellA}, Version: 2})
	if err := r.handleMessage(ctx, msg); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := r.handleMessage(ctx, msg); err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if err := r.handleMessage(ctx, message(t, WireEvent{Cells: []string{cellA}, Version: 1})); err != nil {
		t.Fatalf("stale: %v", err)
	}
	if got := fc.deleted(); len(got) != 1 {
		t.Fatalf("stale and duplicate versions must be skipped, deleted %v", got)
	}
	if v := testutil.ToFloat64(r.ms.apply.WithLabelValues("skip_version")); v != 2 {
		t.Fatalf("skip_version = %v, want 2", v)
	}

	// unversioned events always apply
	for range 2 {
		if err := r.handleMessage(ctx, message(t, WireEvent{Cells: []string{cellA}})); err != nil {
			t.Fatalf("unversioned: %v", err)
		}
	}
	if got := fc.deleted(); len(got) != 3 {
		t.Fatalf("deleted %d keys, want 3", len(got))
	}
	if mr.Count() != 3 {
		t.Fatalf("hotness resets = %d, want 3", mr.Count())
	}
}

func TestHandleMessage_InvalidPayloadsAreSkipped(t *testing.T) {
	fc := &fakeCache{}
	r := newRunner(t, fc, Options{Providers: []string{"ofo"}})
	ctx := context.Background()

	bad := []*sarama.ConsumerMessage{
		{Value: []byte("{not json")},
		message(t, WireEvent{Op: "noop"}),
		message(t, WireEvent{Lat: ptr(91), Lng: ptr(0)}),
	}
	for i, m := range bad {
		if err := r.handleMessage(ctx, m); err != nil {
			t.Fatalf("case %d: invalid messages must not fail the claim: %v", i, err)
		}
	}
	if got := fc.deleted(); len(got) != 0 {
		t.Fatalf("nothing should be deleted, got %v", got)
	}
	if v := testutil.ToFloat64(r.ms.msgs.WithLabelValues("invalid")); v != 3 {
		t.Fatalf("invalid = %v, want 3", v)
	}
}

func TestHandleMessage_CacheErrorPropagates(t *testing.T) {
	fc := &fakeCache{err: errors.New("redis down")}
	mr := &mockResetter{}
	r := newRunner(t, fc, Options{Providers: []string{"ofo"}, Hotness: mr})

	err := r.handleMessage(context.Background(), message(t, WireEvent{Cells: []string{cellA}}))
	if err == nil {
		t.Fatalf("expected cache error")
	}
	if mr.Count() != 0 {
		t.Fatalf("hotness must not reset when deletion failed")
	}
	if v := testutil.ToFloat64(r.ms.msgs.WithLabelValues("error")); v != 1 {
		t.Fatalf("error = %v, want 1", v)
	}
}

func TestHandleMessage_FailedDeleteIsRetriedOnRedelivery(t *testing.T) {
	fc := &fakeCache{err: errors.New("redis down")}
	mr := &mockResetter{}
	r := newRunner(t, fc, Options{Providers: []string{"ofo"}, Hotness: mr})
	ctx := context.Background()

	msg := message(t, WireEvent{Cells: []string{cellA}, Version: 7})
	if err := r.handleMessage(ctx, msg); err == nil {
		t.Fatalf("expected cache error on first delivery")
	}

	fc.mu.Lock()
	fc.err = nil
	fc.del = nil
	fc.mu.Unlock()

	if err := r.handleMessage(ctx, msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	want := keys.CellKey("ofo", 9, cellA)
	if got := fc.deleted(); len(got) != 1 || got[0] != want {
		t.Fatalf("redelivered event must delete %s, got %v", want, got)
	}
	if mr.Count() != 1 {
		t.Fatalf("hotness resets = %d, want 1", mr.Count())
	}

	// once committed, the same version is a duplicate
	if err := r.handleMessage(ctx, msg); err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if got := fc.deleted(); len(got) != 1 {
		t.Fatalf("duplicate must be skipped, deleted %v", got)
	}
}

func TestHandleMessage_DeletesFromStore(t *testing.T) {
	store, err := memstore.New(16)
	if err != nil {
		t.Fatalf("memstore: %v", err)
	}
	ctx := context.Background()
	hit := keys.CellKey("ofo", 9, cellA)
	other := keys.CellKey("ofo", 9, cellB)
	for _, k := range []string{hit, other} {
		if err := store.Set(ctx, k, []byte("[]"), time.Minute); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	r := New(InvalidationConfig{}, store, Options{Providers: []string{"ofo"}, Register: prometheus.NewRegistry()})
	if err := r.handleMessage(ctx, message(t, WireEvent{Cells: []string{cellA}})); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	if _, ok, _ := store.Get(ctx, hit); ok {
		t.Fatalf("%s should be gone", hit)
	}
	if _, ok, _ := store.Get(ctx, other); !ok {
		t.Fatalf("%s should survive", other)
	}
}

func TestReadiness(t *testing.T) {
	off := New(InvalidationConfig{}, &fakeCache{}, Options{})
	if ok, _ := off.Readiness(); !ok {
		t.Fatalf("inactive runner must report ready")
	}
	if err := off.Start(context.Background()); err != nil {
		t.Fatalf("inactive Start: %v", err)
	}
	off.Stop()

	on := New(InvalidationConfig{Enabled: true, Driver: DriverKafka}, &fakeCache{}, Options{})
	if ok, _ := on.Readiness(); ok {
		t.Fatalf("active runner without assignment must not be ready")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"INVALIDATION_ENABLED", "INVALIDATION_DRIVER", "KAFKA_BROKERS", "KAFKA_TOPIC", "KAFKA_GROUP_ID", "KAFKA_SASL_USERNAME"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Active() {
		t.Fatalf("runner must be inactive by default")
	}
	if cfg.Topic != "vehicle-cache-invalidation" || cfg.GroupID != "vehicle-cache-invalidator" {
		t.Fatalf("topic=%q group=%q", cfg.Topic, cfg.GroupID)
	}
	if len(cfg.Brokers) != 1 || cfg.Brokers[0] != "localhost:9092" {
		t.Fatalf("brokers=%v", cfg.Brokers)
	}

	t.Setenv("INVALIDATION_ENABLED", "true")
	t.Setenv("INVALIDATION_DRIVER", "kafka")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	cfg = FromEnv()
	if !cfg.Active() || len(cfg.Brokers) != 2 || cfg.Brokers[1] != "b:9092" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestSaramaConfig_RejectsUnknownSASL(t *testing.T) {
	cfg := InvalidationConfig{SASL: SASLConfig{Enable: true, Mechanism: "SCRAM-SHA-512", Username: "u"}}
	if _, err := cfg.sarama(); err == nil {
		t.Fatalf("expected unsupported mechanism error")
	}
	cfg.SASL.Mechanism = "plain"
	sc, err := cfg.sarama()
	if err != nil {
		t.Fatalf("plain: %v", err)
	}
	if !sc.Net.SASL.Enable || sc.Net.SASL.Mechanism != sarama.SASLTypePlaintext {
		t.Fatalf("sasl not applied: %+v", sc.Net.SASL)
	}
}

func ptr(f float64) *float64 { return &f }
