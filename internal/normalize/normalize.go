// Package normalize decodes provider payloads into model.Vehicle values.
//
// Each payload format has one Normalizer. Normalizers are pure: they never do
// I/O, they skip records lacking an id or coordinates, and they only fail when
// the payload as a whole cannot be decoded.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/model"
)

var ErrUnknownFormat = errors.New("unknown payload format")

type Normalizer interface {
	Normalize(providerID string, raw []byte) ([]model.Vehicle, error)
}

// Func adapts a plain function to Normalizer.
type Func func(providerID string, raw []byte) ([]model.Vehicle, error)

func (f Func) Normalize(providerID string, raw []byte) ([]model.Vehicle, error) {
	return f(providerID, raw)
}

const (
	FormatIndigoWheel = "indigowheel"
	FormatOfo         = "ofo"
	FormatMobike      = "mobike"
	FormatObike       = "obike"
	FormatLime        = "lime"
	FormatGBFS        = "gbfs"
)

var formats = map[string]Normalizer{
	FormatIndigoWheel: Func(indigoWheel),
	FormatOfo:         Func(ofo),
	FormatMobike:      Func(mobike),
	FormatObike:       Func(obike),
	FormatLime:        Func(lime),
	FormatGBFS:        Func(gbfs),
}

func ForFormat(format string) (Normalizer, error) {
	n, ok := formats[strings.ToLower(strings.TrimSpace(format))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return n, nil
}

// Formats lists the registered format names, sorted.
func Formats() []string {
	out := make([]string, 0, len(formats))
	for k := range formats {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// WithDefaultAttributes fills Attributes for vehicles the payload gave none.
func WithDefaultAttributes(n Normalizer, attrs []model.Attribute) Normalizer {
	if len(attrs) == 0 {
		return n
	}
	return Func(func(providerID string, raw []byte) ([]model.Vehicle, error) {
		vs, err := n.Normalize(providerID, raw)
		if err != nil {
			return nil, err
		}
		for i := range vs {
			if len(vs[i].Attributes) == 0 {
				vs[i].Attributes = append([]model.Attribute(nil), attrs...)
			}
		}
		return vs, nil
	})
}

func decode(format string, raw []byte, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("%s payload: empty body", format)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%s payload: %w", format, err)
	}
	return nil
}

func attrs(as ...model.Attribute) []model.Attribute {
	if len(as) == 0 {
		return []model.Attribute{}
	}
	return as
}

// flexID accepts ids sent as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexID(n.String())
		return nil
	}
	return fmt.Errorf("id must be string or number")
}

// flexBool accepts true/false, 0/1 and "0"/"1".
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	var v bool
	if err := json.Unmarshal(b, &v); err == nil {
		*f = flexBool(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		i, err := strconv.ParseFloat(n.String(), 64)
		if err != nil {
			return fmt.Errorf("flag %q: %w", n, err)
		}
		*f = i != 0
		return nil
	}
	return fmt.Errorf("flag must be bool or number")
}

// flexFloat accepts numbers and numeric strings; an empty string is zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("number %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("number: %w", err)
	}
	*f = flexFloat(v)
	return nil
}

// point reports whether both coordinates were present.
func point(lat, lng *flexFloat) (float64, float64, bool) {
	if lat == nil || lng == nil {
		return 0, 0, false
	}
	return float64(*lat), float64(*lng), true
}
