package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func testEndpoints(gateway, direct string) Endpoints {
	return Endpoints{
		Gateway: gateway,
		Direct: map[Service]string{
			ServiceUser:     direct,
			ServiceDocument: direct,
			ServiceVersion:  direct,
		},
	}
}

func TestResolverFallsBackToDirectOnTransportError(t *testing.T) {
	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/login" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"userId":7,"username":"ada"}`))
	}))
	defer direct.Close()

	// Gateway URL points nowhere routable from a closed listener.
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	gateway.Close()

	resolver := NewResolver(testEndpoints(gateway.URL, direct.URL), direct.Client(), zerolog.Nop())
	resp, err := resolver.Do(context.Background(), ServiceUser, http.MethodPost, "/users/login", map[string]string{"email": "a@b.c"})
	if err != nil {
		t.Fatalf("expected direct fallback to succeed, got %v", err)
	}
	if !resp.ViaDirect {
		t.Fatalf("expected response to be marked as served by the direct endpoint")
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from direct endpoint, got %d", resp.StatusCode)
	}
}

func TestResolverDoesNotFallBackOnHTTPErrorStatus(t *testing.T) {
	var directCalls int32
	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&directCalls, 1)
	}))
	defer direct.Close()

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid credentials"}`))
	}))
	defer gateway.Close()

	resolver := NewResolver(testEndpoints(gateway.URL, direct.URL), gateway.Client(), zerolog.Nop())
	resp, err := resolver.Do(context.Background(), ServiceUser, http.MethodPost, "/users/login", nil)
	if err != nil {
		t.Fatalf("a 4xx answer must be passed through, got error %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected passthrough 401, got %d", resp.StatusCode)
	}
	if resp.ViaDirect {
		t.Fatalf("4xx from gateway must not be retried against the direct endpoint")
	}
	if atomic.LoadInt32(&directCalls) != 0 {
		t.Fatalf("direct endpoint was called %d times, want 0", atomic.LoadInt32(&directCalls))
	}
}

func TestResolverReportsBothFailures(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	gateway.Close()
	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	direct.Close()

	resolver := NewResolver(testEndpoints(gateway.URL, direct.URL), nil, zerolog.Nop())
	_, err := resolver.Do(context.Background(), ServiceDocument, http.MethodGet, "/documents", nil)
	var unreachable *ServiceUnreachableError
	if !errors.As(err, &unreachable) {
		t.Fatalf("expected ServiceUnreachableError, got %v", err)
	}
	if unreachable.Service != ServiceDocument {
		t.Fatalf("expected failing service to be recorded, got %s", unreachable.Service)
	}
	if unreachable.GatewayErr == nil || unreachable.DirectErr == nil {
		t.Fatalf("expected both attempt errors to be kept: %+v", unreachable)
	}
}

func TestResolverGatewayServiceHasNoFallback(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	gateway.Close()

	resolver := NewResolver(Endpoints{Gateway: gateway.URL}, nil, zerolog.Nop())
	_, err := resolver.Do(context.Background(), ServiceGateway, http.MethodGet, "/users", nil)
	var unreachable *ServiceUnreachableError
	if !errors.As(err, &unreachable) {
		t.Fatalf("expected ServiceUnreachableError, got %v", err)
	}
	if unreachable.DirectErr != nil {
		t.Fatalf("gateway requests have no direct fallback, got direct error %v", unreachable.DirectErr)
	}
}

func TestProbeTargetsServiceDirectlyWithoutFallback(t *testing.T) {
	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/documents" {
			t.Fatalf("unexpected probe path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer direct.Close()

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	gateway.Close()

	resolver := NewResolver(testEndpoints(gateway.URL, direct.URL), direct.Client(), zerolog.Nop())
	code, err := resolver.Probe(context.Background(), ServiceDocument)
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if code != http.StatusForbidden {
		t.Fatalf("expected probe to report the raw status, got %d", code)
	}

	// The gateway probe targets the dead gateway itself and must fail even
	// though every direct endpoint is up.
	if _, err := resolver.Probe(context.Background(), ServiceGateway); err == nil {
		t.Fatalf("expected gateway probe to fail when the gateway is down")
	}
}
