// Package editor provides an in-memory stand-in for the external editing
// surface. Content is an opaque text blob; the only derived value the client
// computes from it is the word count.
package editor

import (
	"strings"
	"sync"
)

type Buffer struct {
	mu      sync.RWMutex
	title   string
	content string
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Content() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.content
}

// SetContent captures a local edit.
func (b *Buffer) SetContent(content string) {
	b.mu.Lock()
	b.content = content
	b.mu.Unlock()
}

// Apply replaces the content with a server-pushed update.
func (b *Buffer) Apply(content string) {
	b.mu.Lock()
	b.content = content
	b.mu.Unlock()
}

func (b *Buffer) Title() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.title
}

func (b *Buffer) SetTitle(title string) {
	b.mu.Lock()
	b.title = title
	b.mu.Unlock()
}

// WordCount counts whitespace-separated words in the current content.
func (b *Buffer) WordCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(strings.Fields(b.content))
}
