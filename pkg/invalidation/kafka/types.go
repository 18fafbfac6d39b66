package kafka

import (
	"errors"
	"time"
)

// WireEvent is one invalidation message. It names either an explicit cache
// key, a list of H3 cells, or a point that is resolved to its cell. Providers
// narrows the deletion; empty means every provider the runner knows about.
type WireEvent struct {
	Key       string    `json:"key,omitempty"`
	Providers []string  `json:"providers,omitempty"`
	Cells     []string  `json:"h3_cells,omitempty"`
	Lat       *float64  `json:"lat,omitempty"`
	Lng       *float64  `json:"lng,omitempty"`
	Res       int       `json:"res,omitempty"`
	Version   uint64    `json:"version"`
	TS        time.Time `json:"ts"`
	Op        string    `json:"op,omitempty"`
}

var errEmptyEvent = errors.New("invalidation event names no key, cell or point")

func (w WireEvent) Validate() error {
	if w.Key == "" && len(w.Cells) == 0 && (w.Lat == nil || w.Lng == nil) {
		return errEmptyEvent
	}
	if w.Lat != nil && (*w.Lat < -90 || *w.Lat > 90) {
		return errors.New("lat out of range")
	}
	if w.Lng != nil && (*w.Lng < -180 || *w.Lng > 180) {
		return errors.New("lng out of range")
	}
	return nil
}
