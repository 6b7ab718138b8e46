package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type Document struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	OwnerID   int64  `json:"ownerId"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// docPayload tolerates both response shapes in the wild: the gateway wraps
// the document in a {"document": ...} envelope while the document service
// returns the bare object.
type docPayload struct {
	Document
}

func (p *docPayload) UnmarshalJSON(data []byte) error {
	var env struct {
		Document *Document `json:"document"`
	}
	if err := json.Unmarshal(data, &env); err == nil && env.Document != nil {
		p.Document = *env.Document
		return nil
	}
	return json.Unmarshal(data, &p.Document)
}

func (c *Client) CreateDocument(ctx context.Context, title, content string, ownerID int64) (Document, error) {
	body := map[string]any{"title": title, "content": content, "ownerId": ownerID}
	var out docPayload
	err := c.doJSON(ctx, ServiceDocument, http.MethodPost, "/documents", body, &out)
	return out.Document, err
}

func (c *Client) GetDocument(ctx context.Context, id int64) (Document, error) {
	var out docPayload
	err := c.doJSON(ctx, ServiceDocument, http.MethodGet, fmt.Sprintf("/documents/%d", id), nil, &out)
	return out.Document, err
}

func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	var out []Document
	err := c.doJSON(ctx, ServiceDocument, http.MethodGet, "/documents", nil, &out)
	return out, err
}

func (c *Client) ListDocumentsByOwner(ctx context.Context, ownerID int64) ([]Document, error) {
	var out []Document
	err := c.doJSON(ctx, ServiceDocument, http.MethodGet, fmt.Sprintf("/documents/owner/%d", ownerID), nil, &out)
	return out, err
}

// UpdateDocument sends the full current content plus title as a partial
// update. Last write wins; there is no revision check against the server.
func (c *Client) UpdateDocument(ctx context.Context, id int64, title, content string) (Document, error) {
	body := map[string]string{"title": title, "content": content}
	var out docPayload
	err := c.doJSON(ctx, ServiceDocument, http.MethodPut, fmt.Sprintf("/documents/%d", id), body, &out)
	return out.Document, err
}

func (c *Client) DeleteDocument(ctx context.Context, id int64) error {
	return c.doJSON(ctx, ServiceDocument, http.MethodDelete, fmt.Sprintf("/documents/%d", id), nil, nil)
}
