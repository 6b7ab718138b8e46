package docsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/collabdesk/collabdesk/internal/api"
)

func TestWSStreamRoundTrip(t *testing.T) {
	received := make(chan DocumentMessage, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		push := DocumentMessage{DocumentID: 9, Content: "from peer", EditedByUserID: 2}
		payload, _ := json.Marshal(push)
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			return
		}

		_, frame, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg DocumentMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			return
		}
		received <- msg
	}))
	defer server.Close()

	dialer := NewWSDialer(sseEndpoints(server.URL, server.URL), server.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	transport, err := dialer.Dial(ctx, 9)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer transport.Close()

	event, err := transport.Recv(ctx)
	if err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	if event.Name != EventDocumentUpdate {
		t.Fatalf("expected document-update, got %q", event.Name)
	}
	var doc api.Document
	if err := json.Unmarshal(event.Data, &doc); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if doc.ID != 9 || doc.Content != "from peer" {
		t.Fatalf("unexpected document %+v", doc)
	}

	stream := transport.(*WSStream)
	if err := stream.SendEdit(ctx, "local change", 4); err != nil {
		t.Fatalf("send edit failed: %v", err)
	}
	select {
	case msg := <-received:
		if msg.DocumentID != 9 || msg.Content != "local change" || msg.EditedByUserID != 4 {
			t.Fatalf("unexpected edit frame %+v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("edit frame never reached the peer")
	}
}

func TestWSDialFallsBackToDirectDocumentService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		payload, _ := json.Marshal(DocumentMessage{DocumentID: 3, Content: "direct"})
		_ = conn.Write(r.Context(), websocket.MessageText, payload)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer server.Close()

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	gateway.Close()

	dialer := NewWSDialer(sseEndpoints(gateway.URL, server.URL), server.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	transport, err := dialer.Dial(ctx, 3)
	if err != nil {
		t.Fatalf("expected direct fallback, got %v", err)
	}
	defer transport.Close()

	event, err := transport.Recv(ctx)
	if err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	var doc api.Document
	if err := json.Unmarshal(event.Data, &doc); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if doc.Content != "direct" {
		t.Fatalf("unexpected content %q", doc.Content)
	}
}
