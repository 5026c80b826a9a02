package adapter

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLAdapter MySQL adapter
type MySQLAdapter struct {
	db     *sql.DB
	config *MySQLConfig
}

// MySQLConfig MySQL connection config
type MySQLConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// NewMySQLAdapter creates MySQL adapter
func NewMySQLAdapter(config *MySQLConfig) *MySQLAdapter {
	if config.Port == 0 {
		config.Port = 3306
	}
	return &MySQLAdapter{
		config: config,
	}
}

// Connect connects to database
func (a *MySQLAdapter) Connect(ctx context.Context) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		a.config.User,
		a.config.Password,
		a.config.Host,
		a.config.Port,
		a.config.Database,
	)

	db, err := sql.Open("mysql", dsn)
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
func (a *MySQLAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// ExecuteQuery executes query
func (a *MySQLAdapter) ExecuteQuery(ctx context.Context, query string, args ...interface{}) (*QueryResult, error) {
	return queryRows(ctx, a.db, query, args)
}

// Exec executes a statement
func (a *MySQLAdapter) Exec(ctx context.Context, stmt string, args ...interface{}) error {
	return execStmt(ctx, a.db, stmt, args)
}

// GetDatabaseType gets database type
func (a *MySQLAdapter) GetDatabaseType() string {
	return "MySQL"
}

// Placeholder returns "?"
func (a *MySQLAdapter) Placeholder(int) string {
	return "?"
}
