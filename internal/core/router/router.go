// Package router holds the HTTP handlers of the public API.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/bikeshare-aggregator/internal/aggregator"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/auth"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/model"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/observability"
)

// Service answers the two public queries.
type Service interface {
	Query(ctx context.Context, lat, lng float64) ([]model.Vehicle, error)
	Capacities(ctx context.Context, lat, lng float64) (model.Capacities, error)
}

// ProviderLookup resolves provider metadata embedded in bike responses.
type ProviderLookup interface {
	Provider(id string) (model.Provider, bool)
}

const (
	RouteBikes      = "/v1/bikes"
	RouteCapacities = "/v1/capacities"
)

type bikeView struct {
	ID         string            `json:"id"`
	Lat        float64           `json:"lat"`
	Lng        float64           `json:"lng"`
	Type       model.VehicleType `json:"type"`
	Attributes []model.Attribute `json:"attributes"`
	Provider   model.Provider    `json:"provider"`
	Kind       string            `json:"kind,omitempty"`
	Extra      model.Extension   `json:"extra,omitempty"`
}

type bikesResponse struct {
	Bikes []bikeView `json:"bikes"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleBikes serves GET /v1/bikes?lat=..&lng=.. for an authenticated caller.
func HandleBikes(logger *slog.Logger, svc Service, providers ProviderLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, RouteBikes, sw.code, time.Since(start).Seconds())
		}()

		lat, lng, err := ParseLatLng(r)
		if err != nil {
			writeError(sw, http.StatusBadRequest, err.Error())
			return
		}

		token := auth.FromRequest(r.Header.Get("Authorization"), r.URL.Query().Get("access_token"))
		ctx := auth.WithAccessToken(r.Context(), token)

		vs, err := svc.Query(ctx, lat, lng)
		if err != nil {
			writeServiceError(ctx, logger, sw, err)
			return
		}

		out := bikesResponse{Bikes: make([]bikeView, 0, len(vs))}
		for _, v := range vs {
			p, ok := providers.Provider(v.ProviderID)
			if !ok {
				p = model.Provider{ID: v.ProviderID, DisplayName: v.ProviderID}
			}
			bv := bikeView{
				ID:         v.ID,
				Lat:        v.Lat,
				Lng:        v.Lng,
				Type:       v.Type,
				Attributes: v.Attributes,
				Provider:   p,
				Extra:      v.Ext,
			}
			if bv.Attributes == nil {
				bv.Attributes = []model.Attribute{}
			}
			if v.Ext != nil {
				bv.Kind = v.Ext.Kind()
			}
			out.Bikes = append(out.Bikes, bv)
		}
		writeJSON(sw, http.StatusOK, out)
	}
}

// HandleCapacities serves GET /v1/capacities?lat=..&lng=..; no token needed.
func HandleCapacities(logger *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, RouteCapacities, sw.code, time.Since(start).Seconds())
		}()

		lat, lng, err := ParseLatLng(r)
		if err != nil {
			writeError(sw, http.StatusBadRequest, err.Error())
			return
		}
		c, err := svc.Capacities(r.Context(), lat, lng)
		if err != nil {
			writeServiceError(r.Context(), logger, sw, err)
			return
		}
		if c.Providers == nil {
			c.Providers = []string{}
		}
		writeJSON(sw, http.StatusOK, c)
	}
}

func writeServiceError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, aggregator.ErrInvalidCoordinates):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, auth.ErrUnauthorized.Error())
	default:
		logger.ErrorContext(ctx, "request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// ParseLatLng reads the required lat and lng query parameters.
func ParseLatLng(r *http.Request) (float64, float64, error) {
	q := r.URL.Query()
	lat, err := parseCoord(q.Get("lat"), "lat")
	if err != nil {
		return 0, 0, err
	}
	lng, err := parseCoord(q.Get("lng"), "lng")
	if err != nil {
		return 0, 0, err
	}
	if err := model.CheckLatLng(lat, lng); err != nil {
		return 0, 0, err
	}
	return lat, lng, nil
}

func parseCoord(v, name string) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, fmt.Errorf("missing required parameter: %s", name)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: parse float: %w", name, err)
	}
	return f, nil
}
