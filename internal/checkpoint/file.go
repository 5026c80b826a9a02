package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

type fileLine struct {
	Ordinal int             `json:"ordinal"`
	Record  json.RawMessage `json:"record"`
}

// FileStore appends one JSON line per record and syncs after each write.
type FileStore struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenFile opens (or creates) a JSON-lines checkpoint.
func OpenFile(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create checkpoint dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	return &FileStore{path: path, f: f}, nil
}

// Path returns the checkpoint file path.
func (s *FileStore) Path() string { return s.path }

// Load reads every complete line. A truncated final line from a crash is
// ignored and cut from the file so later appends start on a fresh line; a
// malformed line elsewhere is an error.
func (s *FileStore) Load(_ context.Context) (map[int]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	out := make(map[int]json.RawMessage)
	var pending error
	badAt := -1
	lineNo := 0
	for offset := 0; offset < len(data); {
		raw := data[offset:]
		next := len(data)
		if end := bytes.IndexByte(raw, '\n'); end >= 0 {
			raw = raw[:end]
			next = offset + end + 1
		}
		lineNo++
		if line := bytes.TrimSpace(raw); len(line) > 0 {
			if pending != nil {
				return nil, pending
			}
			var fl fileLine
			if err := json.Unmarshal(line, &fl); err != nil || len(fl.Record) == 0 {
				pending = fmt.Errorf("checkpoint %s line %d is malformed", s.path, lineNo)
				badAt = offset
			} else {
				out[fl.Ordinal] = append(json.RawMessage(nil), fl.Record...)
			}
		}
		offset = next
	}

	switch {
	case badAt >= 0:
		if err := s.f.Truncate(int64(badAt)); err != nil {
			return nil, fmt.Errorf("truncate checkpoint: %w", err)
		}
		if err := s.f.Sync(); err != nil {
			return nil, err
		}
	case len(data) > 0 && data[len(data)-1] != '\n':
		if _, err := s.f.Write([]byte{'\n'}); err != nil {
			return nil, fmt.Errorf("write checkpoint: %w", err)
		}
	}
	return out, nil
}

// Append writes one line and syncs.
func (s *FileStore) Append(_ context.Context, ordinal int, record json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, record); err != nil {
		return fmt.Errorf("checkpoint record %d: %w", ordinal, err)
	}
	line, err := json.Marshal(fileLine{Ordinal: ordinal, Record: buf.Bytes()})
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return s.f.Sync()
}

// Close closes the file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
