package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, b *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad json line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestSlogBridge_CarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Component: "aggregator"}, &buf)
	l := NewSlog(&zl)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithProvider(ctx, "ofo")
	l.ErrorContext(ctx, "provider fetch failed", "lat", 48.85, "err", errors.New("boom"))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("lines=%d want 1", len(lines))
	}
	m := lines[0]
	if m["request_id"] != "req-1" || m["provider"] != "ofo" || m["component"] != "aggregator" {
		t.Fatalf("missing context fields: %v", m)
	}
	if m["level"] != "error" || m["msg"] != "provider fetch failed" {
		t.Fatalf("unexpected level/msg: %v", m)
	}
	if m["err"] != "boom" || m["lat"] != 48.85 {
		t.Fatalf("unexpected attrs: %v", m)
	}
	if _, ok := m["timestamp"]; !ok {
		t.Fatalf("missing timestamp: %v", m)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	l := NewSlog(&zl)

	l.Info("dropped")
	l.Debug("dropped")
	l.Warn("kept")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["msg"] != "kept" {
		t.Fatalf("expected only warn line, got %v", lines)
	}
}

func TestGroupsAndAttrsFlatten(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)
	l := NewSlog(&zl).With("svc", "x").WithGroup("req")

	l.Info("hello", "lat", 1.5)
	m := decodeLines(t, &buf)[0]
	if m["svc"] != "x" || m["req.lat"] != 1.5 {
		t.Fatalf("unexpected fields: %v", m)
	}
}

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	if id := RequestID(ctx); len(id) != 16 {
		t.Fatalf("generated id=%q want 16 hex chars", id)
	}
	if RequestID(context.Background()) != "" {
		t.Fatalf("empty context must have no request id")
	}
}

func TestFileOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "svc.log")
	var buf bytes.Buffer
	zl := Build(Config{Level: "info", File: FileConfig{Path: path, MaxSizeMB: 1}}, &buf)
	zl.Info().Msg("to both")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "to both") || !strings.Contains(buf.String(), "to both") {
		t.Fatalf("line missing: file=%q stdout=%q", b, buf.String())
	}
}
