package main

import (
	"testing"
	"time"
)

func TestBuildEvent(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	w, err := buildEvent(flags{providers: "ofo, lime", cells: "891fb466257ffff", version: 4}, now)
	if err != nil {
		t.Fatalf("buildEvent: %v", err)
	}
	if len(w.Providers) != 2 || w.Providers[1] != "lime" || len(w.Cells) != 1 || w.Version != 4 {
		t.Fatalf("event=%+v", w)
	}
	if !w.TS.Equal(now) || w.Lat != nil {
		t.Fatalf("ts=%v lat=%v", w.TS, w.Lat)
	}

	w, err = buildEvent(flags{point: true, lat: 48.85, lng: 2.35}, now)
	if err != nil {
		t.Fatalf("point: %v", err)
	}
	if w.Lat == nil || *w.Lat != 48.85 || *w.Lng != 2.35 {
		t.Fatalf("point not carried: %+v", w)
	}

	if _, err := buildEvent(flags{}, now); err == nil {
		t.Fatalf("empty event must be rejected")
	}
}
