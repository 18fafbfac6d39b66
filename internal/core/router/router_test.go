package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/bikeshare-aggregator/internal/auth"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/model"
)

type fakeService struct {
	gotToken string
	gotLat   float64
	gotLng   float64
	vs       []model.Vehicle
	caps     model.Capacities
	err      error
}

func (f *fakeService) Query(ctx context.Context, lat, lng float64) ([]model.Vehicle, error) {
	f.gotToken = auth.AccessToken(ctx)
	f.gotLat, f.gotLng = lat, lng
	return f.vs, f.err
}

func (f *fakeService) Capacities(_ context.Context, lat, lng float64) (model.Capacities, error) {
	f.gotLat, f.gotLng = lat, lng
	return f.caps, f.err
}

type providerTable map[string]model.Provider

func (p providerTable) Provider(id string) (model.Provider, bool) {
	v, ok := p[id]
	return v, ok
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestParseLatLng(t *testing.T) {
	cases := []struct {
		query string
		ok    bool
	}{
		{"lat=48.85&lng=2.36", true},
		{"lat=-90&lng=180", true},
		{"lng=2.36", false},
		{"lat=48.85", false},
		{"lat=abc&lng=1", false},
		{"lat=91&lng=0", false},
		{"lat=0&lng=-181", false},
		{"lat=NaN&lng=0", false},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, "/x?"+c.query, nil)
		_, _, err := ParseLatLng(r)
		if (err == nil) != c.ok {
			t.Fatalf("%s: err=%v want ok=%v", c.query, err, c.ok)
		}
	}
}

func TestHandleBikes_OK(t *testing.T) {
	svc := &fakeService{vs: []model.Vehicle{
		{ID: "IW-1", Lat: 48.85, Lng: 2.36, ProviderID: "indigowheel", Type: model.VehicleBike,
			Attributes: []model.Attribute{model.AttrGears}, Ext: model.IndigoWheelExt{PlateNo: "IW-1", Discount: 1}},
		{ID: "x", Lat: 1, Lng: 2, ProviderID: "unlisted", Type: model.VehicleBike},
	}}
	providers := providerTable{"indigowheel": {ID: "indigowheel", DisplayName: "Indigo Weel", Website: "https://www.indigoweel.com"}}
	h := HandleBikes(discard(), svc, providers)

	req := httptest.NewRequest(http.MethodGet, "/v1/bikes?lat=48.85&lng=2.36", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rr := httptest.NewRecorder()
	h(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if svc.gotToken != "tok-1" || svc.gotLat != 48.85 || svc.gotLng != 2.36 {
		t.Fatalf("service saw token=%q lat=%v lng=%v", svc.gotToken, svc.gotLat, svc.gotLng)
	}

	var out struct {
		Bikes []struct {
			ID         string   `json:"id"`
			Type       string   `json:"type"`
			Attributes []string `json:"attributes"`
			Kind       string   `json:"kind"`
			Provider   struct {
				Name        string `json:"name"`
				DisplayName string `json:"displayName"`
			} `json:"provider"`
			Extra map[string]any `json:"extra"`
		} `json:"bikes"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Bikes) != 2 {
		t.Fatalf("bikes=%d", len(out.Bikes))
	}
	b := out.Bikes[0]
	if b.Kind != "indigowheel" || b.Provider.DisplayName != "Indigo Weel" || b.Extra["plate_no"] != "IW-1" {
		t.Fatalf("bike=%+v", b)
	}
	if out.Bikes[1].Provider.Name != "unlisted" || out.Bikes[1].Attributes == nil {
		t.Fatalf("unlisted provider bike=%+v", out.Bikes[1])
	}
}

func TestHandleBikes_QueryToken(t *testing.T) {
	svc := &fakeService{}
	rr := httptest.NewRecorder()
	HandleBikes(discard(), svc, providerTable{})(rr, httptest.NewRequest(http.MethodGet, "/v1/bikes?lat=1&lng=2&access_token=q", nil))
	if rr.Code != http.StatusOK || svc.gotToken != "q" {
		t.Fatalf("status=%d token=%q", rr.Code, svc.gotToken)
	}
	if !strings.Contains(rr.Body.String(), `"bikes":[]`) {
		t.Fatalf("empty result must encode as []: %s", rr.Body.String())
	}
}

func TestHandleBikes_ErrorMapping(t *testing.T) {
	cases := []struct {
		name  string
		query string
		err   error
		code  int
	}{
		{"bad coords", "lat=100&lng=0", nil, http.StatusBadRequest},
		{"missing lng", "lat=1", nil, http.StatusBadRequest},
		{"unauthorized", "lat=1&lng=2", auth.ErrUnauthorized, http.StatusUnauthorized},
		{"wrapped unauthorized", "lat=1&lng=2", errors.Join(errors.New("provider ofo"), auth.ErrUnauthorized), http.StatusUnauthorized},
		{"internal", "lat=1&lng=2", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		svc := &fakeService{err: c.err}
		rr := httptest.NewRecorder()
		HandleBikes(discard(), svc, providerTable{})(rr, httptest.NewRequest(http.MethodGet, "/v1/bikes?"+c.query, nil))
		if rr.Code != c.code {
			t.Fatalf("%s: status=%d want %d", c.name, rr.Code, c.code)
		}
		var e errorResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil || e.Error == "" {
			t.Fatalf("%s: error body=%q", c.name, rr.Body.String())
		}
	}
}

func TestHandleCapacities(t *testing.T) {
	svc := &fakeService{caps: model.Capacities{
		Location: "Paris, France", DefaultLanguage: "fr",
		Providers: []string{"ofo", "mobike", "obike", "donkey"},
	}}
	rr := httptest.NewRecorder()
	HandleCapacities(discard(), svc)(rr, httptest.NewRequest(http.MethodGet, "/v1/capacities?lat=48.852775&lng=2.369336", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	want := `{"location":"Paris, France","defaultLanguage":"fr","providers":["ofo","mobike","obike","donkey"]}`
	if got := strings.TrimSpace(rr.Body.String()); got != want {
		t.Fatalf("body=%s want %s", got, want)
	}

	svc = &fakeService{caps: model.Capacities{Location: "unknown", DefaultLanguage: "en"}}
	rr = httptest.NewRecorder()
	HandleCapacities(discard(), svc)(rr, httptest.NewRequest(http.MethodGet, "/v1/capacities?lat=0&lng=0", nil))
	if !strings.Contains(rr.Body.String(), `"providers":[]`) {
		t.Fatalf("nil providers must encode as []: %s", rr.Body.String())
	}
}
