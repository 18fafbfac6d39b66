package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/bikeshare-aggregator/internal/cache/keys"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/model"
)

const (
	defaultUserAgent = "bikeshare-aggregator/1"
	// res 7 cells are ~5 km across, small enough to never straddle two cities
	defaultCellRes = 7
)

type NominatimOption func(*Nominatim)

func WithCacheSize(n int) NominatimOption {
	return func(g *Nominatim) { g.cacheSize = n }
}

func WithCellRes(res int) NominatimOption {
	return func(g *Nominatim) { g.res = res }
}

func WithUserAgent(ua string) NominatimOption {
	return func(g *Nominatim) {
		if ua != "" {
			g.userAgent = ua
		}
	}
}

// Nominatim reverse geocodes through a Nominatim compatible /reverse endpoint
// and remembers answers per H3 cell.
type Nominatim struct {
	client    *http.Client
	base      *url.URL
	userAgent string
	res       int
	cacheSize int
	cache     *lru.Cache[string, model.Region]
}

func NewNominatim(client *http.Client, baseURL string, opts ...NominatimOption) (*Nominatim, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse geocoder url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("geocoder url %q must be absolute", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	g := &Nominatim{
		client:    client,
		base:      u,
		userAgent: defaultUserAgent,
		res:       defaultCellRes,
		cacheSize: 4096,
	}
	for _, o := range opts {
		o(g)
	}
	if g.cacheSize > 0 {
		c, err := lru.New[string, model.Region](g.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("geocoder cache: %w", err)
		}
		g.cache = c
	}
	return g, nil
}

type nominatimResponse struct {
	Error   string `json:"error"`
	Address struct {
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		Municipality string `json:"municipality"`
		Country      string `json:"country"`
	} `json:"address"`
}

func (g *Nominatim) Reverse(ctx context.Context, lat, lng float64) (model.Region, error) {
	if !model.ValidLatLng(lat, lng) {
		return model.UnknownRegion, nil
	}
	cell := keys.Cell(lat, lng, g.res)
	if g.cache != nil {
		if r, ok := g.cache.Get(cell); ok {
			return r, nil
		}
	}

	u := *g.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/reverse"
	q := u.Query()
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("zoom", "10")
	q.Set("accept-language", "en")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return model.UnknownRegion, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return model.UnknownRegion, fmt.Errorf("reverse geocode: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return model.UnknownRegion, fmt.Errorf("geocoder status %d: %s", resp.StatusCode, string(b))
	}

	var out nominatimResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return model.UnknownRegion, fmt.Errorf("decode geocoder response: %w", err)
	}

	r := model.UnknownRegion
	if out.Error == "" {
		a := out.Address
		r = model.Region{City: firstNonEmpty(a.City, a.Town, a.Village, a.Municipality), Country: a.Country}
		if r.Country == "" {
			r = model.UnknownRegion
		}
	}
	if g.cache != nil {
		g.cache.Add(cell, r)
	}
	return r, nil
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
