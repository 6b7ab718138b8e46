// Package mirror keeps the open document mirrored to a local file so any
// external editor can be used as the editing surface. Local file writes feed
// the autosave pipeline; server pushes land back in the file.
package mirror

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// EditFunc receives the file's new content after an external write.
type EditFunc func(content string)

// Mirror watches one file. Writes performed through Apply are remembered by
// content hash so the watcher does not feed them back as local edits.
type Mirror struct {
	path    string
	logger  zerolog.Logger
	watcher *fsnotify.Watcher

	mu       sync.Mutex
	onEdit   EditFunc
	lastHash [sha256.Size]byte
	closed   bool
}

func New(path string, onEdit EditFunc, logger zerolog.Logger) *Mirror {
	return &Mirror{path: path, onEdit: onEdit, logger: logger}
}

// SetOnEdit swaps the external-edit callback. Useful when the consumer of
// edits is constructed after the mirror.
func (m *Mirror) SetOnEdit(onEdit EditFunc) {
	m.mu.Lock()
	m.onEdit = onEdit
	m.mu.Unlock()
}

func (m *Mirror) Path() string {
	return m.path
}

// Start seeds the file with content and begins watching for external
// writes. The parent directory is watched so editors that replace the file
// by rename are still seen.
func (m *Mirror) Start(content string) error {
	if err := m.Apply(content); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		_ = watcher.Close()
		return err
	}
	m.mu.Lock()
	m.watcher = watcher
	m.mu.Unlock()
	go m.watchLoop(watcher)
	return nil
}

// Apply writes server-side content into the file. A write whose content the
// file already holds is skipped.
func (m *Mirror) Apply(content string) error {
	hash := sha256.Sum256([]byte(content))
	m.mu.Lock()
	if m.lastHash == hash {
		m.mu.Unlock()
		return nil
	}
	m.lastHash = hash
	m.mu.Unlock()

	return writeFileAtomic(m.path, []byte(content), 0o644)
}

func (m *Mirror) Close() error {
	m.mu.Lock()
	watcher := m.watcher
	m.watcher = nil
	m.closed = true
	m.mu.Unlock()
	if watcher == nil {
		return nil
	}
	return watcher.Close()
}

func (m *Mirror) watchLoop(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			m.handleFileChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error().Err(err).Str("path", m.path).Msg("mirror watch error")
		}
	}
}

func (m *Mirror) handleFileChange() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		// Editors that replace by rename produce a transient missing file.
		if os.IsNotExist(err) {
			return
		}
		m.logger.Error().Err(err).Str("path", m.path).Msg("mirror read failed")
		return
	}
	hash := sha256.Sum256(data)
	m.mu.Lock()
	if m.closed || m.lastHash == hash {
		m.mu.Unlock()
		return
	}
	m.lastHash = hash
	onEdit := m.onEdit
	m.mu.Unlock()

	if onEdit != nil {
		onEdit(string(data))
	}
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
