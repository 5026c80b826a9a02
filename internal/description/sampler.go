package description

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"evidencegen/internal/adapter"
)

const columnTypeQuery = "SELECT lower(type) AS type FROM pragma_table_info(?) WHERE name = ?"

// ColumnType returns the lower-cased declared type of table.column.
func ColumnType(ctx context.Context, db adapter.DBAdapter, table, column string) (string, error) {
	res, err := db.ExecuteQuery(ctx, columnTypeQuery, table, column)
	if err != nil {
		return "", err
	}
	if len(res.Rows) == 0 {
		return "", nil
	}
	return adapter.StringValue(res.Rows[0]["type"]), nil
}

// SampleValues returns up to limit distinct non-NULL values of table.column,
// read from the first scanCap rows and cut to width characters.
func SampleValues(ctx context.Context, db adapter.DBAdapter, table, column string, limit, scanCap, width int) ([]string, error) {
	col := adapter.QuoteIdent(column)
	query := fmt.Sprintf("SELECT DISTINCT substr(%s,1,%d) AS v FROM (SELECT %s FROM %s LIMIT %d) LIMIT %d",
		col, width, col, adapter.QuoteIdent(table), scanCap, limit)

	res, err := db.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		if row["v"] == nil {
			continue
		}
		values = append(values, strings.ReplaceAll(adapter.StringValue(row["v"]), "\n", " "))
	}
	return values, nil
}

// sample fills entry.Examples. Failures and rows without a column name
// leave the examples empty.
func (r *Reader) sample(ctx context.Context, db adapter.DBAdapter, entry *Entry) {
	entry.Sampled = true
	if entry.OriginalColumn == "" {
		return
	}

	typ, err := ColumnType(ctx, db, entry.Table, entry.OriginalColumn)
	if err != nil {
		entry.SampleErr = err
		r.Logger.Warn("column type lookup failed",
			zap.String("table", entry.Table), zap.String("column", entry.OriginalColumn), zap.Error(err))
		return
	}
	if typ == "blob" {
		return
	}

	values, err := SampleValues(ctx, db, entry.Table, entry.OriginalColumn, r.SampleLimit, r.ScanCap, r.ValueWidth)
	if err != nil {
		entry.SampleErr = err
		r.Logger.Warn("column sampling failed",
			zap.String("table", entry.Table), zap.String("column", entry.OriginalColumn), zap.Error(err))
		return
	}
	entry.Examples = values
}
