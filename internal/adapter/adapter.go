package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DatabaseType database type enum
type DatabaseType string

const (
	MySQL      DatabaseType = "mysql"
	PostgreSQL DatabaseType = "postgresql"
	SQLite     DatabaseType = "sqlite"
)

// DBAdapter database adapter interface
// Lightweight: connects and runs SQL, no ORM
type DBAdapter interface {
	// Connect opens and pings the connection
	Connect(ctx context.Context) error

	// Close closes the connection
	Close() error

	// ExecuteQuery runs a query and returns rows as maps
	ExecuteQuery(ctx context.Context, query string, args ...interface{}) (*QueryResult, error)

	// Exec runs a statement that returns no rows
	Exec(ctx context.Context, stmt string, args ...interface{}) error

	// GetDatabaseType returns "MySQL", "PostgreSQL" or "SQLite"
	GetDatabaseType() string

	// Placeholder returns the bind marker for the n-th (1-based) argument
	Placeholder(n int) string
}

// QueryResult unified query result
type QueryResult struct {
	Columns       []string                 // column names
	Rows          []map[string]interface{} // rows keyed by column
	RowCount      int
	ExecutionTime int64  // milliseconds
	Error         string // error message, if any
}

// DBConfig generic connection config
type DBConfig struct {
	Type     string // "mysql", "postgresql", "sqlite"
	Host     string
	Port     int
	Database string
	User     string
	Password string

	// SQLite only
	FilePath string
	ReadOnly bool

	MaxOpenConns int
	MaxIdleConns int
}

// NewAdapter creates the adapter matching config.Type
func NewAdapter(config *DBConfig) (DBAdapter, error) {
	switch strings.ToLower(config.Type) {
	case "mysql":
		return NewMySQLAdapter(&MySQLConfig{
			Host:     config.Host,
			Port:     config.Port,
			Database: config.Database,
			User:     config.User,
			Password: config.Password,
		}), nil
	case "postgresql", "postgres":
		return NewPostgreSQLAdapter(&PostgreSQLConfig{
			Host:     config.Host,
			Port:     config.Port,
			Database: config.Database,
			User:     config.User,
			Password: config.Password,
		}), nil
	case "sqlite":
		return NewSQLiteAdapter(&SQLiteConfig{
			FilePath:     config.FilePath,
			ReadOnly:     config.ReadOnly,
			MaxOpenConns: config.MaxOpenConns,
		}), nil
	default:
		return nil, &UnsupportedDatabaseError{Type: config.Type}
	}
}

// UnsupportedDatabaseError unsupported database type
type UnsupportedDatabaseError struct {
	Type string
}

func (e *UnsupportedDatabaseError) Error() string {
	return "unsupported database type: " + e.Type
}

// OpenSQLite opens a SQLite file and connects.
func OpenSQLite(ctx context.Context, path string, readOnly bool) (DBAdapter, error) {
	a := NewSQLiteAdapter(&SQLiteConfig{FilePath: path, ReadOnly: readOnly})
	if err := a.Connect(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// queryRows is shared by all drivers: []byte values are surfaced as strings.
func queryRows(ctx context.Context, db *sql.DB, query string, args []interface{}) (*QueryResult, error) {
	if db == nil {
		return nil, fmt.Errorf("database not connected")
	}
	start := time.Now()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return &QueryResult{
			Error:         err.Error(),
			ExecutionTime: time.Since(start).Milliseconds(),
		}, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &QueryResult{
		Columns:       columns,
		Rows:          result,
		RowCount:      len(result),
		ExecutionTime: time.Since(start).Milliseconds(),
	}, nil
}

func execStmt(ctx context.Context, db *sql.DB, stmt string, args []interface{}) error {
	if db == nil {
		return fmt.Errorf("database not connected")
	}
	if _, err := db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("exec failed: %w", err)
	}
	return nil
}

// QuoteIdent wraps a SQLite/MySQL identifier in backticks.
func QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// StringValue renders a scanned cell as text; NULL becomes "".
func StringValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
