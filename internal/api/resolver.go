package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// ServiceUnreachableError reports that both the gateway and the service's
// direct endpoint failed at the transport level.
type ServiceUnreachableError struct {
	Service    Service
	GatewayErr error
	DirectErr  error
}

func (e *ServiceUnreachableError) Error() string {
	if e.DirectErr == nil {
		return fmt.Sprintf("service %s unreachable: gateway: %v", e.Service, e.GatewayErr)
	}
	return fmt.Sprintf("service %s unreachable: gateway: %v; direct: %v", e.Service, e.GatewayErr, e.DirectErr)
}

// Response is the raw answer from whichever base URL responded. Non-2xx
// statuses are carried here unchanged; the resolver never treats them as a
// reason to fall back.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	ViaDirect  bool
}

// Resolver issues requests against the gateway and retries exactly once
// against the service's direct endpoint when the gateway attempt fails at
// the transport level. It is stateless; callers own any status bookkeeping.
type Resolver struct {
	endpoints  Endpoints
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewResolver(endpoints Endpoints, httpClient *http.Client, logger zerolog.Logger) *Resolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Resolver{
		endpoints:  endpoints,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (r *Resolver) Endpoints() Endpoints {
	return r.endpoints
}

// Do sends one request via the gateway. A transport error (dial failure,
// timeout, canceled context) triggers a single retry against the direct URL
// registered for the service; an HTTP error status does not. No backoff, no
// further retries.
func (r *Resolver) Do(ctx context.Context, svc Service, method, path string, body any) (*Response, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}

	resp, gatewayErr := r.attempt(ctx, r.endpoints.GatewayBase(), method, path, bodyBytes)
	if gatewayErr == nil {
		return resp, nil
	}

	direct := r.endpoints.DirectBase(svc)
	if direct == "" {
		return nil, &ServiceUnreachableError{Service: svc, GatewayErr: gatewayErr}
	}
	r.logger.Debug().
		Str("service", string(svc)).
		Str("path", path).
		AnErr("gatewayError", gatewayErr).
		Msg("gateway unreachable, retrying against direct endpoint")

	resp, directErr := r.attempt(ctx, direct, method, path, bodyBytes)
	if directErr != nil {
		return nil, &ServiceUnreachableError{Service: svc, GatewayErr: gatewayErr, DirectErr: directErr}
	}
	resp.ViaDirect = true
	return resp, nil
}

// Probe issues a single GET against the service's own base URL with no
// fallback. Used by the health monitor only.
func (r *Resolver) Probe(ctx context.Context, svc Service) (int, error) {
	target := r.endpoints.ProbeURL(svc)
	if target == "" {
		return 0, fmt.Errorf("no probe URL for service %s", svc)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func (r *Resolver) attempt(ctx context.Context, base, method, path string, bodyBytes []byte) (*Response, error) {
	var bodyReader io.Reader
	if bodyBytes != nil {
		bodyReader = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if bodyBytes != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       payload,
	}, nil
}
