// Package docsync implements real-time document synchronization: the
// server-push sync channel with echo suppression, the debounced autosave
// pipeline, and the document session facade tying them to an editing
// surface.
package docsync

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/collabdesk/collabdesk/internal/api"
)

// EventDocumentUpdate is the server-push event name carrying a Document
// payload.
const EventDocumentUpdate = "document-update"

// Event is one decoded server-push message.
type Event struct {
	Name string
	Data []byte
}

// Transport is a live server-push stream scoped to one document. Recv blocks
// until an event arrives, the context is canceled, or the stream fails.
// Close must unblock a pending Recv and is safe to call more than once.
type Transport interface {
	Recv(ctx context.Context) (Event, error)
	Close() error
}

// DialFunc establishes a transport for the given document.
type DialFunc func(ctx context.Context, documentID int64) (Transport, error)

// Editor is the capability surface the channel and pipeline need from the
// external editing collaborator.
type Editor interface {
	Content() string
	// SetContent captures a local edit.
	SetContent(content string)
	// Apply replaces content with a server-pushed update.
	Apply(content string)
}

// ReconnectPolicy enables capped exponential backoff redialing after a
// transport error. The source behavior is no reconnect at all; this stays
// off unless configured.
type ReconnectPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

type ChannelOptions struct {
	Dial   DialFunc
	Editor Editor
	// OnStatus receives connection transitions for the status indicator.
	OnStatus  func(connected bool)
	Reconnect *ReconnectPolicy
	Logger    zerolog.Logger
}

// Channel owns the single live subscription. State machine per document:
// Closed -> Open -> Closed; opening a different document closes the previous
// subscription first.
type Channel struct {
	dial      DialFunc
	editor    Editor
	onStatus  func(bool)
	reconnect *ReconnectPolicy
	logger    zerolog.Logger

	mu         sync.Mutex
	documentID int64
	transport  Transport
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewChannel(opts ChannelOptions) *Channel {
	return &Channel{
		dial:      opts.Dial,
		editor:    opts.Editor,
		onStatus:  opts.OnStatus,
		reconnect: opts.Reconnect,
		logger:    opts.Logger,
	}
}

// Open subscribes to the document's update stream. Any previous subscription
// is torn down first; there are never two live subscriptions.
func (c *Channel) Open(ctx context.Context, documentID int64) error {
	c.Close()

	runCtx, cancel := context.WithCancel(context.Background())
	transport, err := c.dial(runCtx, documentID)
	if err != nil {
		cancel()
		return err
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.documentID = documentID
	c.transport = transport
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.setStatus(true)
	go c.readLoop(runCtx, documentID, transport, done)
	return nil
}

// DocumentID reports the currently subscribed document, 0 when closed.
func (c *Channel) DocumentID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.documentID
}

// Close tears down the transport. Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	cancel := c.cancel
	transport := c.transport
	done := c.done
	c.cancel = nil
	c.transport = nil
	c.done = nil
	c.documentID = 0
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if transport != nil {
		_ = transport.Close()
	}
	if done != nil {
		<-done
	}
}

func (c *Channel) readLoop(ctx context.Context, documentID int64, transport Transport, done chan struct{}) {
	defer close(done)
	for {
		event, err := transport.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error().Err(err).Int64("document", documentID).Msg("sync channel transport error")
			c.setStatus(false)
			if c.reconnect == nil {
				return
			}
			next := c.redial(ctx, documentID)
			if next == nil {
				return
			}
			transport = next
			c.setStatus(true)
			continue
		}
		if event.Name != "" && event.Name != EventDocumentUpdate {
			continue
		}
		c.applyUpdate(event.Data)
	}
}

// applyUpdate reconciles one inbound push into the editor. An update for a
// document other than the currently open one is a stale event from a
// superseded subscription and is discarded. Matching updates pass through
// echo suppression: content identical to the editor's is left untouched so a
// client's own write broadcast back never re-renders the editor.
func (c *Channel) applyUpdate(payload []byte) {
	var doc api.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		c.logger.Debug().Err(err).Msg("discarding undecodable update event")
		return
	}

	c.mu.Lock()
	current := c.documentID
	c.mu.Unlock()
	if doc.ID != current {
		c.logger.Debug().
			Int64("event", doc.ID).
			Int64("open", current).
			Msg("discarding stale update for superseded document")
		return
	}

	if c.editor.Content() == doc.Content {
		return
	}
	c.editor.Apply(doc.Content)
}

// redial retries the dial with capped exponential backoff until it succeeds,
// the context ends, or the channel has moved on to another document.
func (c *Channel) redial(ctx context.Context, documentID int64) Transport {
	delay := c.reconnect.InitialDelay
	if delay <= 0 {
		delay = time.Second
	}
	maxDelay := c.reconnect.MaxDelay
	if maxDelay < delay {
		maxDelay = delay
	}
	for {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		c.mu.Lock()
		stillOpen := c.documentID == documentID
		c.mu.Unlock()
		if !stillOpen {
			return nil
		}

		transport, err := c.dial(ctx, documentID)
		if err == nil {
			c.mu.Lock()
			if c.documentID != documentID {
				c.mu.Unlock()
				_ = transport.Close()
				return nil
			}
			c.transport = transport
			c.mu.Unlock()
			return transport
		}
		c.logger.Debug().Err(err).Int64("document", documentID).Msg("reconnect attempt failed")
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (c *Channel) setStatus(connected bool) {
	if c.onStatus != nil {
		c.onStatus(connected)
	}
}
