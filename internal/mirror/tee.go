package mirror

import (
	"github.com/rs/zerolog"

	"github.com/collabdesk/collabdesk/internal/docsync"
)

// EditorTee presents one editing surface backed by both an in-memory buffer
// and the mirrored file. Server pushes land in both; local edits already
// live in the file, so only the buffer is updated.
type EditorTee struct {
	Inner  docsync.Editor
	Mirror *Mirror
	Logger zerolog.Logger
}

func (t *EditorTee) Content() string {
	return t.Inner.Content()
}

func (t *EditorTee) SetContent(content string) {
	t.Inner.SetContent(content)
}

func (t *EditorTee) Apply(content string) {
	t.Inner.Apply(content)
	if t.Mirror == nil {
		return
	}
	if err := t.Mirror.Apply(content); err != nil {
		t.Logger.Error().Err(err).Str("path", t.Mirror.Path()).Msg("mirror write failed")
	}
}
