package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// Client fetches the raw payload a provider serves for a coordinate.
type Client interface {
	CallByCoordinates(ctx context.Context, lat, lng float64) ([]byte, error)
}

type ClientFunc func(ctx context.Context, lat, lng float64) ([]byte, error)

func (f ClientFunc) CallByCoordinates(ctx context.Context, lat, lng float64) ([]byte, error) {
	return f(ctx, lat, lng)
}

const maxBody = 8 << 20

// StatusError is returned for non-2xx upstream answers.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

// HTTPClient calls GET <endpoint>?lat=..&lng=.. and returns the body.
type HTTPClient struct {
	client   *http.Client
	endpoint *url.URL
}

func NewHTTPClient(client *http.Client, endpoint string) (*HTTPClient, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse provider endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("provider endpoint %q must be absolute", endpoint)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{client: client, endpoint: u}, nil
}

func (c *HTTPClient) CallByCoordinates(ctx context.Context, lat, lng float64) ([]byte, error) {
	u := *c.endpoint
	q := u.Query()
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(lng, 'f', -1, 64))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(b)}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return b, nil
}
