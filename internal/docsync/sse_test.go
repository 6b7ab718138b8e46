package docsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/collabdesk/collabdesk/internal/api"
)

func sseEndpoints(gateway, direct string) api.Endpoints {
	return api.Endpoints{
		Gateway: gateway,
		Direct:  map[api.Service]string{api.ServiceDocument: direct},
	}
}

func TestSSEStreamDecodesDocumentUpdateEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/documents/5/subscribe" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("missing event-stream accept header")
		}
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": heartbeat\n\n")
		fmt.Fprint(w, "event: document-update\n")
		fmt.Fprint(w, `data: {"id":5,"title":"Plan","content":"hello world","ownerId":7}`+"\n\n")
		fmt.Fprint(w, "event: document-update\ndata: {\"id\":5,\"content\":\"second\"}\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	dialer := NewSSEDialer(sseEndpoints(server.URL, server.URL), server.Client())
	transport, err := dialer.Dial(context.Background(), 5)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer transport.Close()

	event, err := transport.Recv(context.Background())
	if err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	if event.Name != EventDocumentUpdate {
		t.Fatalf("expected document-update, got %q", event.Name)
	}
	var doc api.Document
	if err := json.Unmarshal(event.Data, &doc); err != nil {
		t.Fatalf("decode event payload: %v", err)
	}
	if doc.ID != 5 || doc.Content != "hello world" {
		t.Fatalf("unexpected document %+v", doc)
	}

	event, err = transport.Recv(context.Background())
	if err != nil {
		t.Fatalf("second recv failed: %v", err)
	}
	if err := json.Unmarshal(event.Data, &doc); err != nil {
		t.Fatalf("decode second payload: %v", err)
	}
	if doc.Content != "second" {
		t.Fatalf("expected second event content, got %q", doc.Content)
	}
}

func TestSSEDialFallsBackToDirectDocumentService(t *testing.T) {
	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "event: document-update\ndata: {\"id\":5,\"content\":\"via direct\"}\n\n")
		w.(http.Flusher).Flush()
	}))
	defer direct.Close()

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	gateway.Close()

	dialer := NewSSEDialer(sseEndpoints(gateway.URL, direct.URL), direct.Client())
	transport, err := dialer.Dial(context.Background(), 5)
	if err != nil {
		t.Fatalf("expected direct fallback, got %v", err)
	}
	defer transport.Close()

	event, err := transport.Recv(context.Background())
	if err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	var doc api.Document
	if err := json.Unmarshal(event.Data, &doc); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if doc.Content != "via direct" {
		t.Fatalf("unexpected content %q", doc.Content)
	}
}

func TestSSEDialDoesNotFallBackOnHTTPError(t *testing.T) {
	var directCalled bool
	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		directCalled = true
	}))
	defer direct.Close()

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"no such document"}`))
	}))
	defer gateway.Close()

	dialer := NewSSEDialer(sseEndpoints(gateway.URL, direct.URL), gateway.Client())
	_, err := dialer.Dial(context.Background(), 5)
	var httpErr *api.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError passthrough, got %v", err)
	}
	if httpErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", httpErr.StatusCode)
	}
	if directCalled {
		t.Fatalf("HTTP error must not trigger the direct fallback")
	}
}
