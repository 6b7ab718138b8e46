package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Timestamp accepts both RFC 3339 and the version service's zone-less
// LocalDateTime serialization.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", raw)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// Version is an immutable snapshot of a document's content. Versions are
// append-only per document; sequence numbers increase strictly with
// timestamp.
type Version struct {
	ID                int64     `json:"id"`
	DocumentID        int64     `json:"documentId"`
	Content           string    `json:"content"`
	EditedByUserID    int64     `json:"editedByUserId"`
	Timestamp         Timestamp `json:"timestamp"`
	VersionNumber     int       `json:"versionNumber"`
	ChangeDescription string    `json:"changeDescription,omitempty"`
}

// Contributions is the version service's read-only aggregate; the client
// renders it without local aggregation. Map keys are user IDs as strings.
type Contributions struct {
	DocumentID        int64          `json:"documentId"`
	TotalVersions     int            `json:"totalVersions"`
	UserContributions map[string]int `json:"userContributions"`
}

type RevertResult struct {
	Message    string  `json:"message"`
	NewVersion Version `json:"newVersion"`
}

func (c *Client) ListVersions(ctx context.Context, documentID int64) ([]Version, error) {
	var out []Version
	err := c.doJSON(ctx, ServiceVersion, http.MethodGet, fmt.Sprintf("/versions/document/%d", documentID), nil, &out)
	return out, err
}

// VersionHistory uses the service's newest-first endpoint.
func (c *Client) VersionHistory(ctx context.Context, documentID int64) ([]Version, error) {
	var out []Version
	err := c.doJSON(ctx, ServiceVersion, http.MethodGet, fmt.Sprintf("/versions/document/%d/history", documentID), nil, &out)
	return out, err
}

func (c *Client) GetVersion(ctx context.Context, id int64) (Version, error) {
	var out Version
	err := c.doJSON(ctx, ServiceVersion, http.MethodGet, fmt.Sprintf("/versions/%d", id), nil, &out)
	return out, err
}

// Revert asks the version service to make the document's live content equal
// to the target snapshot. The service appends a new version; history is
// forward-only and the target itself is never rewritten.
func (c *Client) Revert(ctx context.Context, documentID, versionID int64) (RevertResult, error) {
	var out RevertResult
	err := c.doJSON(ctx, ServiceVersion, http.MethodPost, fmt.Sprintf("/versions/revert/%d/%d", documentID, versionID), nil, &out)
	return out, err
}

func (c *Client) GetContributions(ctx context.Context, documentID int64) (Contributions, error) {
	var out Contributions
	err := c.doJSON(ctx, ServiceVersion, http.MethodGet, fmt.Sprintf("/versions/document/%d/contributions", documentID), nil, &out)
	return out, err
}

// UserVersions lists the versions a user has produced across all documents.
func (c *Client) UserVersions(ctx context.Context, userID int64) ([]Version, error) {
	var out []Version
	err := c.doJSON(ctx, ServiceVersion, http.MethodGet, fmt.Sprintf("/versions/user/%d/contributions", userID), nil, &out)
	return out, err
}
