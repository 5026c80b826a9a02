package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

// SQLiteAdapter SQLite adapter
type SQLiteAdapter struct {
	db     *sql.DB
	config *SQLiteConfig
}

// SQLiteConfig SQLite connection config
type SQLiteConfig struct {
	FilePath     string // DB file path, ":memory:" for in-memory
	ReadOnly     bool   // open with mode=ro, the benchmark databases are never written
	MaxOpenConns int
}

// NewSQLiteAdapter creates SQLite adapter
func NewSQLiteAdapter(config *SQLiteConfig) *SQLiteAdapter {
	return &SQLiteAdapter{
		config: config,
	}
}

func (a *SQLiteAdapter) dsn() string {
	if a.config.ReadOnly && a.config.FilePath != ":memory:" {
		return "file:" + a.config.FilePath + "?mode=ro"
	}
	return a.config.FilePath
}

// Connect connects to database
func (a *SQLiteAdapter) Connect(ctx context.Context) error {
	if a.config.ReadOnly {
		// mode=ro would otherwise create an empty file on some drivers
		if _, err := os.Stat(a.config.FilePath); err != nil {
			return fmt.Errorf("database file not found: %w", err)
		}
	}

	db, err := sql.Open("sqlite", a.dsn())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if a.config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(a.config.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = db
	return nil
}

// Close closes connection
func (a *SQLiteAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// ExecuteQuery executes query
func (a *SQLiteAdapter) ExecuteQuery(ctx context.Context, query string, args ...interface{}) (*QueryResult, error) {
	return queryRows(ctx, a.db, query, args)
}

// Exec executes a statement
func (a *SQLiteAdapter) Exec(ctx context.Context, stmt string, args ...interface{}) error {
	return execStmt(ctx, a.db, stmt, args)
}

// GetDatabaseType gets database type
func (a *SQLiteAdapter) GetDatabaseType() string {
	return "SQLite"
}

// Placeholder returns "?"
func (a *SQLiteAdapter) Placeholder(int) string {
	return "?"
}
