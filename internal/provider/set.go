package provider

import (
	"fmt"
	"net/http"

	"github.com/mohammed-shakir/bikeshare-aggregator/internal/auth"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/model"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/normalize"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/registry"
)

// Set maps provider ids to their adapters. It is built once at startup and
// only read afterwards.
type Set map[string]*Adapter

func (s Set) Get(id string) (*Adapter, bool) {
	a, ok := s[id]
	return a, ok
}

// Wait drains pending cache writes of every adapter.
func (s Set) Wait() {
	for _, a := range s {
		a.Wait()
	}
}

type BuildConfig struct {
	// Endpoints maps provider id to its HTTP endpoint.
	Endpoints map[string]string
	// Clients overrides Endpoints for the listed ids.
	Clients   map[string]Client
	HTTP      *http.Client
	Validator auth.Validator
	Options   []Option
}

// Build creates an adapter for every registered provider that has a client.
// Providers without one are returned in disabled.
func Build(reg *registry.Registry, bc BuildConfig) (set Set, disabled []string, err error) {
	set = Set{}
	for _, p := range reg.Providers() {
		e, _ := reg.Entry(p.ID)

		n, err := normalize.ForFormat(e.Format)
		if err != nil {
			return nil, nil, fmt.Errorf("provider %s: %w", p.ID, err)
		}
		n = normalize.WithDefaultAttributes(n, toAttributes(e.Attributes))

		c, ok := bc.Clients[p.ID]
		if !ok {
			ep, has := bc.Endpoints[p.ID]
			if !has {
				disabled = append(disabled, p.ID)
				continue
			}
			hc, err := NewHTTPClient(bc.HTTP, ep)
			if err != nil {
				return nil, nil, fmt.Errorf("provider %s: %w", p.ID, err)
			}
			c = hc
		}
		set[p.ID] = New(p.ID, c, n, bc.Validator, bc.Options...)
	}
	return set, disabled, nil
}

func toAttributes(in []string) []model.Attribute {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.Attribute, 0, len(in))
	for _, s := range in {
		out = append(out, model.Attribute(s))
	}
	return out
}
