// Package keys builds the cache keys for provider results.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	h3 "github.com/uber/h3-go/v4"
)

const prefix = "veh"

// Key quantizes (lat, lng) to the H3 cell at res so nearby queries share an entry.
// Results are never shared across providers.
func Key(provider string, lat, lng float64, res int) string {
	return CellKey(provider, res, Cell(lat, lng, res))
}

// CellKey is the key for a provider at an already computed cell.
func CellKey(provider string, res int, cell string) string {
	return fmt.Sprintf("%s:%s:%d:%s", prefix, sanitize(strings.TrimSpace(provider)), res, cell)
}

// Cell returns the H3 cell for the coordinate. Inputs h3 rejects fall back to a
// fixed-precision rounding so the key stays stable.
func Cell(lat, lng float64, res int) string {
	c, err := h3.LatLngToCell(h3.NewLatLng(lat, lng), res)
	if err != nil || !c.IsValid() {
		return fmt.Sprintf("ll=%.5f,%.5f", lat, lng)
	}
	return c.String()
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			// ':' is our separator, so it is replaced too
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
