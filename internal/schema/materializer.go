// Package schema materializes the DDL text of a SQLite database and parses it
// back into per-table column records.
package schema

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"evidencegen/internal/adapter"
)

const catalogQuery = "SELECT sql FROM sqlite_master WHERE type='table' ORDER BY tbl_name"

// Generate returns every table's CREATE statement as stored in the catalog,
// ordered by table name, each followed by a blank line.
func Generate(ctx context.Context, db adapter.DBAdapter) (string, error) {
	result, err := db.ExecuteQuery(ctx, catalogQuery)
	if err != nil {
		return "", fmt.Errorf("failed to read sqlite_master: %w", err)
	}

	var sb strings.Builder
	for _, row := range result.Rows {
		stmt, ok := row["sql"].(string)
		if !ok || stmt == "" {
			continue
		}
		sb.WriteString(stmt)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

// GenerateFile opens the SQLite file read-only and materializes its schema.
func GenerateFile(ctx context.Context, path string) (string, error) {
	db, err := adapter.OpenSQLite(ctx, path, true)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()
	return Generate(ctx, db)
}

// DatabasePath is the BIRD layout: {root}/{db_id}/{db_id}.sqlite
func DatabasePath(root, dbID string) string {
	return filepath.Join(root, dbID, dbID+".sqlite")
}

// DescriptionDir is the BIRD layout: {root}/{db_id}/database_description
func DescriptionDir(root, dbID string) string {
	return filepath.Join(root, dbID, "database_description")
}
