package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/model"
)

func TestStatic_KnownCities(t *testing.T) {
	g := NewStatic(DefaultCities)
	cases := []struct {
		name     string
		lat, lng float64
		want     string
	}{
		{"paris", 48.852775, 2.369336, "Paris, France"},
		{"tokyo", 35.689487, 139.691706, "Tokyo, Japan"},
		{"oxford", 51.7548, -1.2544, "Oxford, United Kingdom"},
		{"null island", 0, 0, "unknown"},
		{"mid atlantic", 40, -40, "unknown"},
		{"out of range", 91, 0, "unknown"},
	}
	for _, c := range cases {
		r, err := g.Reverse(context.Background(), c.lat, c.lng)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if got := r.Label(); got != c.want {
			t.Fatalf("%s: label=%q want %q", c.name, got, c.want)
		}
	}
}

func TestStatic_NearestWins(t *testing.T) {
	g := NewStatic([]City{
		{Name: "A", Country: "X", Lat: 10, Lng: 10, RadiusKm: 500},
		{Name: "B", Country: "X", Lat: 10, Lng: 11, RadiusKm: 500},
	})
	r, _ := g.Reverse(context.Background(), 10, 10.9)
	if r.City != "B" {
		t.Fatalf("nearest city=%q want B", r.City)
	}
}

type stub struct {
	r   model.Region
	err error
}

func (s stub) Reverse(context.Context, float64, float64) (model.Region, error) { return s.r, s.err }

func TestFallback(t *testing.T) {
	down := errors.New("down")
	paris := model.Region{City: "Paris", Country: "France"}

	r, err := Fallback{stub{err: down}, stub{r: model.UnknownRegion}, stub{r: paris}}.Reverse(context.Background(), 1, 1)
	if err != nil || r != paris {
		t.Fatalf("r=%v err=%v", r, err)
	}

	r, err = Fallback{stub{err: down}, stub{r: model.UnknownRegion}}.Reverse(context.Background(), 1, 1)
	if !r.IsUnknown() || !errors.Is(err, down) {
		t.Fatalf("all failing: r=%v err=%v", r, err)
	}

	r, err = Fallback{}.Reverse(context.Background(), 1, 1)
	if !r.IsUnknown() || err != nil {
		t.Fatalf("empty: r=%v err=%v", r, err)
	}
}

func TestNominatim_ParsesAndCachesPerCell(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/reverse" || r.URL.Query().Get("format") != "jsonv2" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("missing user agent")
		}
		_, _ = w.Write([]byte(`{"address":{"town":"Oxford","country":"United Kingdom"}}`))
	}))
	defer srv.Close()

	g, err := NewNominatim(srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("NewNominatim: %v", err)
	}
	for range 3 {
		r, err := g.Reverse(context.Background(), 51.7548, -1.2544)
		if err != nil {
			t.Fatalf("Reverse: %v", err)
		}
		if r.Label() != "Oxford, United Kingdom" {
			t.Fatalf("label=%q", r.Label())
		}
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("upstream hits=%d want 1", n)
	}
}

func TestNominatim_UnableToGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
	}))
	defer srv.Close()

	g, _ := NewNominatim(srv.Client(), srv.URL, WithCacheSize(0))
	r, err := g.Reverse(context.Background(), 0, 0)
	if err != nil || !r.IsUnknown() {
		t.Fatalf("r=%v err=%v", r, err)
	}
}

func TestNominatim_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g, _ := NewNominatim(srv.Client(), srv.URL)
	if _, err := g.Reverse(context.Background(), 48.85, 2.35); err == nil {
		t.Fatalf("expected error for 429")
	}
}
