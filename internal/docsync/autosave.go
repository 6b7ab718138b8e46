package docsync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultQuietWindow is the trailing-edge debounce window for local edits.
const DefaultQuietWindow = 500 * time.Millisecond

// SaveFunc persists the full current content plus title for a document.
type SaveFunc func(ctx context.Context, documentID int64, title, content string) error

type PipelineOptions struct {
	QuietWindow time.Duration
	Save        SaveFunc
	Logger      zerolog.Logger
}

// Pipeline coalesces bursts of local edits into at most one outbound write
// per quiet window. Persistence is best effort: a failed write is logged and
// dropped, never retried and never surfaced. A write in flight does not
// block new edits, and a later edit's write can overtake an earlier one;
// last write wins.
type Pipeline struct {
	documentID int64
	quiet      time.Duration
	save       SaveFunc
	logger     zerolog.Logger

	mu      sync.Mutex
	title   string
	content string
	pending bool
	timer   *time.Timer
	stopped bool
}

func NewPipeline(documentID int64, title, content string, opts PipelineOptions) *Pipeline {
	quiet := opts.QuietWindow
	if quiet <= 0 {
		quiet = DefaultQuietWindow
	}
	return &Pipeline{
		documentID: documentID,
		quiet:      quiet,
		save:       opts.Save,
		logger:     opts.Logger,
		title:      title,
		content:    content,
	}
}

func (p *Pipeline) DocumentID() int64 {
	return p.documentID
}

// Edit records a local edit and restarts the quiet-window timer. Only after
// the window passes with no further edits does a single write fire, carrying
// the last edit's content.
func (p *Pipeline) Edit(content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.content = content
	p.pending = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.quiet, p.fire)
}

// SetTitle sends the title change immediately, independent of the content
// debounce. It races with debounced content writes under the same
// last-write-wins rule.
func (p *Pipeline) SetTitle(ctx context.Context, title string) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.title = title
	content := p.content
	p.mu.Unlock()
	return p.save(ctx, p.documentID, title, content)
}

// Flush fires any pending debounced write immediately. Used on graceful
// shutdown so the last burst of edits is not lost to the quiet window.
func (p *Pipeline) Flush() {
	p.fire()
}

// Stop discards any pending write and ignores further edits.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	p.pending = false
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Pipeline) fire() {
	p.mu.Lock()
	if p.stopped || !p.pending {
		p.mu.Unlock()
		return
	}
	p.pending = false
	title := p.title
	content := p.content
	p.mu.Unlock()

	if err := p.save(context.Background(), p.documentID, title, content); err != nil {
		p.logger.Error().Err(err).Int64("document", p.documentID).Msg("autosave failed; edit not persisted")
	}
}
