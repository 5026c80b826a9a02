package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
)

// PostgreSQLAdapter PostgreSQL adapter
type PostgreSQLAdapter struct {
	db     *sql.DB
	config *PostgreSQLConfig
}

// PostgreSQLConfig PostgreSQL connection config
type PostgreSQLConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string // disable, require, verify-ca, verify-full
}

// NewPostgreSQLAdapter creates PostgreSQL adapter
func NewPostgreSQLAdapter(config *PostgreSQLConfig) *PostgreSQLAdapter {
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
	if config.Port == 0 {
		config.Port = 5432
	}
	return &PostgreSQLAdapter{
		config: config,
	}
}

// Connect connects to database
func (a *PostgreSQLAdapter) Connect(ctx context.Context) error {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		a.config.Host,
		a.config.Port,
		a.config.User,
		a.config.Password,
		a.config.Database,
		a.config.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = db
	return nil
}

// Close closes connection
func (a *PostgreSQLAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// ExecuteQuery executes query
func (a *PostgreSQLAdapter) ExecuteQuery(ctx context.Context, query string, args ...interface{}) (*QueryResult, error) {
	return queryRows(ctx, a.db, query, args)
}

// Exec executes a statement
func (a *PostgreSQLAdapter) Exec(ctx context.Context, stmt string, args ...interface{}) error {
	return execStmt(ctx, a.db, stmt, args)
}

// GetDatabaseType gets database type
func (a *PostgreSQLAdapter) GetDatabaseType() string {
	return "PostgreSQL"
}

// Placeholder returns "$n"
func (a *PostgreSQLAdapter) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
