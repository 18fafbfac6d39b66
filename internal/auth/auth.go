// Package auth validates caller access tokens carried in the request context.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
)

// ErrUnauthorized means the caller sent no token or a token we do not accept.
var ErrUnauthorized = errors.New("invalid or missing access token")

type Validator interface {
	RequireAccessToken(token string) error
}

type ctxKey struct{}

func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxKey{}, token)
}

func AccessToken(ctx context.Context) string {
	s, _ := ctx.Value(ctxKey{}).(string)
	return s
}

// Static accepts a fixed token set. An empty set accepts nothing.
type Static struct {
	tokens [][]byte
}

func NewStatic(tokens []string) *Static {
	s := &Static{}
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			s.tokens = append(s.tokens, []byte(t))
		}
	}
	return s
}

func (s *Static) RequireAccessToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrUnauthorized
	}
	tb := []byte(token)
	ok := 0
	for _, t := range s.tokens {
		ok |= subtle.ConstantTimeCompare(t, tb)
	}
	if ok != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Len reports how many tokens are accepted.
func (s *Static) Len() int { return len(s.tokens) }

// FromRequest extracts a bearer token from an Authorization header value,
// falling back to the access_token query parameter value.
func FromRequest(authorization, queryToken string) string {
	h := strings.TrimSpace(authorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(queryToken)
}
