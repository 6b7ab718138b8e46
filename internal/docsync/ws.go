package docsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"nhooyr.io/websocket"

	"github.com/collabdesk/collabdesk/internal/api"
)

// DocumentMessage mirrors the document service's websocket frame.
type DocumentMessage struct {
	DocumentID     int64  `json:"documentId"`
	Content        string `json:"content"`
	EditedByUserID int64  `json:"editedByUserId"`
}

// WSDialer opens the document service's websocket update channel, the
// alternative to the SSE subscription. The websocket handshake folds HTTP
// errors into the dial error, so any failed handshake against the gateway
// retries once against the direct document endpoint.
type WSDialer struct {
	endpoints  api.Endpoints
	httpClient *http.Client
}

func NewWSDialer(endpoints api.Endpoints, httpClient *http.Client) *WSDialer {
	return &WSDialer{endpoints: endpoints, httpClient: httpClient}
}

func (d *WSDialer) Dial(ctx context.Context, documentID int64) (Transport, error) {
	path := fmt.Sprintf("/documents/%d/ws", documentID)
	opts := &websocket.DialOptions{HTTPClient: d.httpClient}

	conn, _, gatewayErr := websocket.Dial(ctx, d.endpoints.GatewayBase()+path, opts)
	if gatewayErr != nil {
		direct := d.endpoints.DirectBase(api.ServiceDocument)
		if direct == "" {
			return nil, &api.ServiceUnreachableError{Service: api.ServiceDocument, GatewayErr: gatewayErr}
		}
		var directErr error
		conn, _, directErr = websocket.Dial(ctx, direct+path, opts)
		if directErr != nil {
			return nil, &api.ServiceUnreachableError{
				Service:    api.ServiceDocument,
				GatewayErr: gatewayErr,
				DirectErr:  directErr,
			}
		}
	}
	conn.SetReadLimit(maxSSELineBytes)
	return &WSStream{conn: conn, documentID: documentID}, nil
}

// WSStream adapts websocket frames to the channel's event interface and
// additionally supports sending edit frames upstream.
type WSStream struct {
	conn       *websocket.Conn
	documentID int64
}

func (s *WSStream) Recv(ctx context.Context) (Event, error) {
	_, payload, err := s.conn.Read(ctx)
	if err != nil {
		return Event{}, err
	}
	var msg DocumentMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Event{}, err
	}
	doc := api.Document{ID: msg.DocumentID, Content: msg.Content}
	data, err := json.Marshal(doc)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: EventDocumentUpdate, Data: data}, nil
}

// SendEdit pushes a local edit over the websocket channel.
func (s *WSStream) SendEdit(ctx context.Context, content string, editedByUserID int64) error {
	msg := DocumentMessage{
		DocumentID:     s.documentID,
		Content:        content,
		EditedByUserID: editedByUserID,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, payload)
}

func (s *WSStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
