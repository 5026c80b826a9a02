package dataset

import (
	"context"
	"encoding/json"
	"fmt"

	"evidencegen/internal/checkpoint"
)

// Writer persists each finished record to a checkpoint store as soon as it
// is done and writes the full output file at the end.
type Writer struct {
	path  string
	store checkpoint.Store
}

// NewWriter writes to path, checkpointing into store.
func NewWriter(path string, store checkpoint.Store) *Writer {
	if store == nil {
		store = checkpoint.NopStore{}
	}
	return &Writer{path: path, store: store}
}

// Resume replaces records with their checkpointed versions and returns
// the ordinals already finished.
func (w *Writer) Resume(ctx context.Context, records []*Record) (map[int]bool, error) {
	saved, err := w.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(saved))
	for ordinal, raw := range saved {
		if ordinal < 0 || ordinal >= len(records) {
			continue
		}
		rec := NewRecord()
		if err := json.Unmarshal(raw, rec); err != nil {
			return nil, fmt.Errorf("checkpoint record %d: %w", ordinal, err)
		}
		records[ordinal] = rec
		done[ordinal] = true
	}
	return done, nil
}

// Put checkpoints one finished record.
func (w *Writer) Put(ctx context.Context, ordinal int, rec *Record) error {
	raw, err := rec.MarshalJSON()
	if err != nil {
		return err
	}
	return w.store.Append(ctx, ordinal, raw)
}

// Finish writes every record, finished or not, to the output path.
func (w *Writer) Finish(records []*Record) error {
	return WriteFile(w.path, records)
}

// Close closes the checkpoint store.
func (w *Writer) Close() error { return w.store.Close() }
