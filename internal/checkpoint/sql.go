package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"evidencegen/internal/adapter"
)

const createTable = `CREATE TABLE IF NOT EXISTS evidence_checkpoint (
    run_key VARCHAR(255) NOT NULL,
    ordinal INTEGER NOT NULL,
    record  TEXT NOT NULL,
    PRIMARY KEY (run_key, ordinal)
)`

// SQLStore keeps records in the evidence_checkpoint table of any adapter
// database.
type SQLStore struct {
	db     adapter.DBAdapter
	runKey string
}

// NewSQLStore creates the table if needed. The store owns db.
func NewSQLStore(ctx context.Context, db adapter.DBAdapter, runKey string) (*SQLStore, error) {
	if err := db.Exec(ctx, createTable); err != nil {
		return nil, fmt.Errorf("create checkpoint table: %w", err)
	}
	return &SQLStore{db: db, runKey: runKey}, nil
}

func (s *SQLStore) ph(n int) string { return s.db.Placeholder(n) }

// Load returns the rows of this run.
func (s *SQLStore) Load(ctx context.Context) (map[int]json.RawMessage, error) {
	res, err := s.db.ExecuteQuery(ctx,
		"SELECT ordinal, record FROM evidence_checkpoint WHERE run_key = "+s.ph(1), s.runKey)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	out := make(map[int]json.RawMessage, len(res.Rows))
	for _, row := range res.Rows {
		var ordinal int
		if _, err := fmt.Sscan(adapter.StringValue(row["ordinal"]), &ordinal); err != nil {
			return nil, fmt.Errorf("checkpoint ordinal %v: %w", row["ordinal"], err)
		}
		out[ordinal] = json.RawMessage(adapter.StringValue(row["record"]))
	}
	return out, nil
}

// Append replaces the row for ordinal.
func (s *SQLStore) Append(ctx context.Context, ordinal int, record json.RawMessage) error {
	if err := s.db.Exec(ctx,
		"DELETE FROM evidence_checkpoint WHERE run_key = "+s.ph(1)+" AND ordinal = "+s.ph(2),
		s.runKey, ordinal); err != nil {
		return err
	}
	return s.db.Exec(ctx,
		"INSERT INTO evidence_checkpoint (run_key, ordinal, record) VALUES ("+s.ph(1)+", "+s.ph(2)+", "+s.ph(3)+")",
		s.runKey, ordinal, string(record))
}

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }
