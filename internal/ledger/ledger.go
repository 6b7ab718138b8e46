// Package ledger presents a document's append-only version history:
// loading and ordering snapshots, confirm-gated forward-only reverts, and
// the per-user contribution aggregates.
package ledger

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/rs/zerolog"

	"github.com/collabdesk/collabdesk/internal/api"
)

// ErrRevertDeclined reports that the confirmation gate rejected a revert.
// No request is sent in that case.
var ErrRevertDeclined = errors.New("revert declined")

// API is the slice of the version service the ledger consumes.
type API interface {
	ListVersions(ctx context.Context, documentID int64) ([]api.Version, error)
	VersionHistory(ctx context.Context, documentID int64) ([]api.Version, error)
	GetVersion(ctx context.Context, id int64) (api.Version, error)
	Revert(ctx context.Context, documentID, versionID int64) (api.RevertResult, error)
	GetContributions(ctx context.Context, documentID int64) (api.Contributions, error)
	UserVersions(ctx context.Context, userID int64) ([]api.Version, error)
}

// ConfirmFunc asks the user to approve a destructive-looking action. A
// false return aborts without any service call.
type ConfirmFunc func(prompt string) bool

type Options struct {
	API     API
	Confirm ConfirmFunc
	Logger  zerolog.Logger
}

// Ledger is a read-mostly view over one document's version history. Reverts
// never rewrite history: the service appends a new highest-sequence version
// carrying the reverted-to content.
type Ledger struct {
	api     API
	confirm ConfirmFunc
	logger  zerolog.Logger
}

func New(opts Options) *Ledger {
	confirm := opts.Confirm
	if confirm == nil {
		confirm = func(string) bool { return true }
	}
	return &Ledger{api: opts.API, confirm: confirm, logger: opts.Logger}
}

// Load fetches the document's versions ordered newest first. Ties on
// timestamp fall back to the sequence number, newest first.
func (l *Ledger) Load(ctx context.Context, documentID int64) ([]api.Version, error) {
	versions, err := l.api.ListVersions(ctx, documentID)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(versions)
	return versions, nil
}

// History fetches the richer history endpoint, falling back to the plain
// version list when the service does not expose it.
func (l *Ledger) History(ctx context.Context, documentID int64) ([]api.Version, error) {
	versions, err := l.api.VersionHistory(ctx, documentID)
	if err != nil {
		var httpErr *api.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return l.Load(ctx, documentID)
		}
		return nil, err
	}
	sortNewestFirst(versions)
	return versions, nil
}

// Inspect fetches a single version snapshot.
func (l *Ledger) Inspect(ctx context.Context, versionID int64) (api.Version, error) {
	return l.api.GetVersion(ctx, versionID)
}

// Revert restores versionID's content as a brand-new version at the top of
// the history. The confirmation gate runs first; a declined revert returns
// ErrRevertDeclined without touching the service.
func (l *Ledger) Revert(ctx context.Context, documentID, versionID int64) (api.RevertResult, error) {
	if !l.confirm("Revert document to an earlier version? A new version will be created.") {
		return api.RevertResult{}, ErrRevertDeclined
	}
	result, err := l.api.Revert(ctx, documentID, versionID)
	if err != nil {
		return api.RevertResult{}, err
	}
	l.logger.Info().
		Int64("document", documentID).
		Int64("restored", versionID).
		Int("newVersion", result.NewVersion.VersionNumber).
		Msg("reverted document")
	return result, nil
}

// Contributions returns the service's per-user aggregate for a document.
// The counts come back as computed upstream; nothing is recomputed locally.
func (l *Ledger) Contributions(ctx context.Context, documentID int64) (api.Contributions, error) {
	return l.api.GetContributions(ctx, documentID)
}

// UserContributions lists every version a user authored across documents,
// newest first.
func (l *Ledger) UserContributions(ctx context.Context, userID int64) ([]api.Version, error) {
	versions, err := l.api.UserVersions(ctx, userID)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(versions)
	return versions, nil
}

func sortNewestFirst(versions []api.Version) {
	sort.SliceStable(versions, func(i, j int) bool {
		ti, tj := versions[i].Timestamp.Time, versions[j].Timestamp.Time
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return versions[i].VersionNumber > versions[j].VersionNumber
	})
}
