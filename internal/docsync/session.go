package docsync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/collabdesk/collabdesk/internal/api"
)

type SessionOptions struct {
	Client      *api.Client
	Editor      Editor
	Dial        DialFunc
	QuietWindow time.Duration
	OnStatus    func(connected bool)
	Reconnect   *ReconnectPolicy
	Logger      zerolog.Logger
}

// DocumentSession is the capability port the presentation layer calls:
// open a document, capture edits and title changes, close. It owns the
// invariant that the autosave pipeline only ever writes the currently open
// document, and that at most one subscription is live.
type DocumentSession struct {
	client      *api.Client
	editor      Editor
	channel     *Channel
	quietWindow time.Duration
	logger      zerolog.Logger

	mu       sync.Mutex
	doc      api.Document
	pipeline *Pipeline
}

func NewDocumentSession(opts SessionOptions) *DocumentSession {
	s := &DocumentSession{
		client:      opts.Client,
		editor:      opts.Editor,
		quietWindow: opts.QuietWindow,
		logger:      opts.Logger,
	}
	s.channel = NewChannel(ChannelOptions{
		Dial:      opts.Dial,
		Editor:    opts.Editor,
		OnStatus:  opts.OnStatus,
		Reconnect: opts.Reconnect,
		Logger:    opts.Logger,
	})
	return s
}

// Open makes doc the current document: any previous document's pending
// autosave is flushed while it is still current, its subscription is torn
// down, and a fresh subscription plus pipeline are bound to doc.
func (s *DocumentSession) Open(ctx context.Context, doc api.Document) error {
	s.mu.Lock()
	previous := s.pipeline
	s.mu.Unlock()
	if previous != nil {
		previous.Flush()
		previous.Stop()
	}

	if err := s.channel.Open(ctx, doc.ID); err != nil {
		return err
	}

	s.editor.Apply(doc.Content)
	pipeline := NewPipeline(doc.ID, doc.Title, doc.Content, PipelineOptions{
		QuietWindow: s.quietWindow,
		Save:        s.saveDocument,
		Logger:      s.logger,
	})

	s.mu.Lock()
	s.doc = doc
	s.pipeline = pipeline
	s.mu.Unlock()
	return nil
}

// Edit captures a local edit from the editing surface.
func (s *DocumentSession) Edit(content string) {
	s.mu.Lock()
	pipeline := s.pipeline
	s.mu.Unlock()
	if pipeline == nil {
		return
	}
	s.editor.SetContent(content)
	pipeline.Edit(content)
}

// SetTitle sends the new title immediately (focus-loss semantics).
func (s *DocumentSession) SetTitle(ctx context.Context, title string) error {
	s.mu.Lock()
	pipeline := s.pipeline
	if pipeline != nil {
		s.doc.Title = title
	}
	s.mu.Unlock()
	if pipeline == nil {
		return nil
	}
	return pipeline.SetTitle(ctx, title)
}

// Document returns the current document record with the editor's live
// content.
func (s *DocumentSession) Document() api.Document {
	s.mu.Lock()
	doc := s.doc
	s.mu.Unlock()
	doc.Content = s.editor.Content()
	return doc
}

// Close flushes pending edits, stops the pipeline, and tears down the
// subscription. Safe to call when nothing is open.
func (s *DocumentSession) Close() {
	s.mu.Lock()
	pipeline := s.pipeline
	s.mu.Unlock()

	// Flush while the document is still current, then forget it.
	if pipeline != nil {
		pipeline.Flush()
		pipeline.Stop()
	}
	s.channel.Close()

	s.mu.Lock()
	s.pipeline = nil
	s.doc = api.Document{}
	s.mu.Unlock()
}

func (s *DocumentSession) saveDocument(ctx context.Context, documentID int64, title, content string) error {
	s.mu.Lock()
	current := s.doc.ID
	s.mu.Unlock()
	if current != documentID {
		// Never write a document that is no longer the open one.
		return nil
	}
	_, err := s.client.UpdateDocument(ctx, documentID, title, content)
	return err
}
