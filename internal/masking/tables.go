package masking

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"evidencegen/internal/adapter"
	"evidencegen/internal/description"
	"evidencegen/internal/schema"
)

// ColumnRef is a [table_index, name] pair of tables.json.
type ColumnRef struct {
	Table int
	Name  string
}

// UnmarshalJSON reads the two-element array form.
func (c *ColumnRef) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("column ref: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &c.Table); err != nil {
		return fmt.Errorf("column ref table index: %w", err)
	}
	return json.Unmarshal(pair[1], &c.Name)
}

// MarshalJSON writes the two-element array form.
func (c ColumnRef) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{c.Table, c.Name})
}

// TableSpec is one database entry of tables.json.
type TableSpec struct {
	DBID                string      `json:"db_id"`
	TableNames          []string    `json:"table_names"`
	TableNamesOriginal  []string    `json:"table_names_original"`
	ColumnNames         []ColumnRef `json:"column_names"`
	ColumnNamesOriginal []ColumnRef `json:"column_names_original"`
	ValueSamples        []string    `json:"value_samples,omitempty"`
}

// LoadTableSpecs reads a tables.json file.
func LoadTableSpecs(path string) ([]TableSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var specs []TableSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return specs, nil
}

// Sampler fills TableSpec.ValueSamples from the benchmark databases.
type Sampler struct {
	DBRoot string
	Limit  int // distinct values per column
	Logger *zap.Logger
}

// Sample visits every column of every original table. Unreadable
// databases, tables and columns are logged and skipped.
func (s *Sampler) Sample(ctx context.Context, specs []TableSpec) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := s.Limit
	if limit <= 0 {
		limit = 10
	}

	for i := range specs {
		if err := ctx.Err(); err != nil {
			return err
		}
		spec := &specs[i]
		path := schema.DatabasePath(s.DBRoot, spec.DBID)
		db, err := adapter.OpenSQLite(ctx, path, true)
		if err != nil {
			logger.Warn("cannot open database for value sampling", zap.String("db_id", spec.DBID), zap.Error(err))
			continue
		}
		spec.ValueSamples = sampleDatabase(ctx, db, spec.TableNamesOriginal, limit, logger)
		db.Close()
	}
	return nil
}

func sampleDatabase(ctx context.Context, db adapter.DBAdapter, tables []string, limit int, logger *zap.Logger) []string {
	var values []string
	for _, table := range tables {
		res, err := db.ExecuteQuery(ctx, "SELECT name FROM pragma_table_info(?)", table)
		if err != nil {
			logger.Warn("cannot read table columns", zap.String("table", table), zap.Error(err))
			continue
		}
		for _, row := range res.Rows {
			column := adapter.StringValue(row["name"])
			sampled, err := description.SampleValues(ctx, db, table, column, limit, 1000, 100)
			if err != nil {
				logger.Warn("cannot sample column", zap.String("table", table), zap.String("column", column), zap.Error(err))
				continue
			}
			values = append(values, sampled...)
		}
	}
	return values
}

// References holds the strings a question is masked against.
type References struct {
	Schema []string // table and column names, natural and original
	Values []string // sampled values
}

// Index groups references by db_id.
type Index map[string]*References

// BuildIndex collects references for every db_id in specs.
func BuildIndex(specs []TableSpec) Index {
	idx := make(Index)
	for _, spec := range specs {
		refs, ok := idx[spec.DBID]
		if !ok {
			refs = &References{}
			idx[spec.DBID] = refs
		}
		refs.Schema = append(refs.Schema, spec.TableNames...)
		refs.Schema = append(refs.Schema, spec.TableNamesOriginal...)
		for _, c := range spec.ColumnNames {
			refs.Schema = append(refs.Schema, c.Name)
		}
		for _, c := range spec.ColumnNamesOriginal {
			refs.Schema = append(refs.Schema, c.Name)
		}
		refs.Values = append(refs.Values, spec.ValueSamples...)
	}
	return idx
}

// Lookup returns the references of dbID, empty when unknown.
func (idx Index) Lookup(dbID string) References {
	if refs, ok := idx[dbID]; ok {
		return *refs
	}
	return References{}
}
