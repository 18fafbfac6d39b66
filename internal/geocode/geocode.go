// Package geocode turns coordinates into a (city, country) region.
package geocode

import (
	"context"
	"errors"

	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/model"
)

// Geocoder returns model.UnknownRegion with a nil error when nothing matches.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (model.Region, error)
}

// Fallback asks each geocoder in turn and returns the first known region.
type Fallback []Geocoder

func (f Fallback) Reverse(ctx context.Context, lat, lng float64) (model.Region, error) {
	var errs []error
	for _, g := range f {
		r, err := g.Reverse(ctx, lat, lng)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !r.IsUnknown() {
			return r, nil
		}
	}
	return model.UnknownRegion, errors.Join(errs...)
}
