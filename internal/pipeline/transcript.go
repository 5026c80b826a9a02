package pipeline

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tmc/langchaingo/llms"

	"evidencegen/internal/prompt"
)

// Transcript writes a short line per record to the console and, when a file
// is set, the full prompt and response as well.
type Transcript struct {
	mu      sync.Mutex
	file    *os.File
	console io.Writer
	writers []io.Writer
}

// NewTranscript writes to console only; nil console discards.
func NewTranscript(console io.Writer) *Transcript {
	if console == nil {
		console = io.Discard
	}
	return &Transcript{console: console, writers: []io.Writer{console}}
}

// OpenFile adds path as a second destination, appending to it.
func (t *Transcript) OpenFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.file = f
	t.writers = []io.Writer{t.console, f}
	return nil
}

// Close syncs and closes the file, if any, and reverts to console only.
func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writers = []io.Writer{t.console}
	if t.file == nil {
		return nil
	}
	f := t.file
	t.file = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Printf writes to every destination.
func (t *Transcript) Printf(format string, a ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	msg := fmt.Sprintf(format, a...)
	for _, w := range t.writers {
		fmt.Fprint(w, msg)
	}
}

// FileOnly writes to the file only.
func (t *Transcript) FileOnly(format string, a ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file != nil {
		fmt.Fprintf(t.file, format, a...)
	}
}

// Exchange records one annotation call.
func (t *Transcript) Exchange(ordinal int, dbID string, msgs []llms.MessageContent, response, evidence string) {
	t.FileOnly("===== record %d (%s) =====\n", ordinal, dbID)
	t.FileOnly("%s[response]\n%s\n\n", prompt.Text(msgs), response)
	t.Printf("#%d %s evidence: %s\n", ordinal, dbID, evidence)
}
