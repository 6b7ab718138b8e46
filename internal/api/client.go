package api

import (
	"context"
	"encoding/json"
	"fmt"
)

// HTTPError is an application-level error: the service answered, but with a
// non-2xx status. It carries the body's message verbatim and never triggers
// the direct-endpoint fallback.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Client layers typed service operations over the resolver.
type Client struct {
	resolver *Resolver
}

func NewClient(resolver *Resolver) *Client {
	return &Client{resolver: resolver}
}

func (c *Client) Resolver() *Resolver {
	return c.resolver
}

func (c *Client) doJSON(ctx context.Context, svc Service, method, path string, body, out any) error {
	resp, err := c.resolver.Do(ctx, svc, method, path, body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out == nil || len(resp.Body) == 0 {
			return nil
		}
		return json.Unmarshal(resp.Body, out)
	}
	var errPayload struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(resp.Body, &errPayload)
	return &HTTPError{StatusCode: resp.StatusCode, Message: errPayload.Message}
}
