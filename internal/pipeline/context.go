package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"evidencegen/internal/adapter"
	"evidencegen/internal/description"
	"evidencegen/internal/schema"
)

// SchemaContexts builds the text a model sees for one database: its DDL
// with each column line followed by its description and sampled values.
type SchemaContexts struct {
	mode   MergeMode
	cache  bool
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]string
}

// NewSchemaContexts creates a builder; with cache set each (root, db_id,
// sample limit) is built once per run.
func NewSchemaContexts(mode MergeMode, cache bool, logger *zap.Logger) *SchemaContexts {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mode == "" {
		mode = MergeKeyed
	}
	return &SchemaContexts{mode: mode, cache: cache, logger: logger, entries: make(map[string]string)}
}

// Get returns the schema context of dbID under root.
func (s *SchemaContexts) Get(ctx context.Context, root, dbID string, sampleLimit int) (string, error) {
	key := fmt.Sprintf("%s\x00%s\x00%d", root, dbID, sampleLimit)
	if s.cache {
		s.mu.Lock()
		text, ok := s.entries[key]
		s.mu.Unlock()
		if ok {
			return text, nil
		}
	}

	text, err := s.build(ctx, root, dbID, sampleLimit)
	if err != nil {
		return "", err
	}
	if s.cache {
		s.mu.Lock()
		s.entries[key] = text
		s.mu.Unlock()
	}
	return text, nil
}

func (s *SchemaContexts) build(ctx context.Context, root, dbID string, sampleLimit int) (string, error) {
	db, err := adapter.OpenSQLite(ctx, schema.DatabasePath(root, dbID), true)
	if err != nil {
		return "", fmt.Errorf("database %s: %w", dbID, err)
	}
	defer db.Close()

	ddl, err := schema.Generate(ctx, db)
	if err != nil {
		return "", fmt.Errorf("schema of %s: %w", dbID, err)
	}

	reader := description.NewReader(s.logger, sampleLimit)
	tables, err := reader.ReadDir(ctx, schema.DescriptionDir(root, dbID), db)
	if err != nil {
		return "", fmt.Errorf("descriptions of %s: %w", dbID, err)
	}

	var merged string
	if s.mode == MergePositional {
		merged, err = description.InterleavePositional(ddl, description.Lines(tables))
	} else {
		merged, err = description.Merge(ddl, tables)
	}

	var alignErr *description.AlignmentError
	switch {
	case errors.As(err, &alignErr):
		s.logger.Warn("descriptions do not line up with the schema, using plain schema",
			zap.String("db_id", dbID), zap.Error(err))
		return ddl, nil
	case err != nil:
		return "", err
	}
	return merged, nil
}
