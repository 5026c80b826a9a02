// Package description reads per-table column description files, enriches each
// row with sampled column values, and merges the result into schema text.
package description

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"evidencegen/internal/adapter"
)

const (
	// DefaultTargetSamples is used for the schema under annotation.
	DefaultTargetSamples = 30
	// DefaultExemplarSamples is used for exemplar schemas.
	DefaultExemplarSamples = 5

	defaultScanCap    = 1000
	defaultValueWidth = 100

	originalColumnHeader = "original_column_name"
)

// Table is one description file.
type Table struct {
	Name    string
	Entries []Entry
}

// Entry is one description row, i.e. one column.
type Entry struct {
	Table          string
	OriginalColumn string
	Headers        []string
	Values         []string

	Sampled   bool     // a sample query was attempted or the column was skipped as BLOB
	Examples  []string // distinct values, newlines flattened
	SampleErr error
}

// Line renders the entry as it is appended to a schema column line.
func (e Entry) Line() string {
	var sb strings.Builder
	sb.WriteString("   ### ")
	n := len(e.Headers)
	if len(e.Values) < n {
		n = len(e.Values)
	}
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.Headers[i])
		sb.WriteString(": ")
		sb.WriteString(e.Values[i])
	}
	if e.Sampled {
		sb.WriteString("   ### column value examples: ")
		for _, v := range e.Examples {
			sb.WriteString(v)
			sb.WriteString(", ")
		}
	}
	return sb.String()
}

// Lines flattens tables into one rendered line per entry, file order kept.
func Lines(tables []Table) []string {
	var out []string
	for _, t := range tables {
		for _, e := range t.Entries {
			out = append(out, e.Line())
		}
	}
	return out
}

// Reader loads description directories.
type Reader struct {
	Logger      *zap.Logger
	SampleLimit int // distinct values per column, 0 disables sampling
	ScanCap     int // rows scanned per column before DISTINCT
	ValueWidth  int // characters kept per value
}

// NewReader creates a reader sampling up to sampleLimit values per column.
func NewReader(logger *zap.Logger, sampleLimit int) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		Logger:      logger,
		SampleLimit: sampleLimit,
		ScanCap:     defaultScanCap,
		ValueWidth:  defaultValueWidth,
	}
}

// ReadDir reads every .csv file of dir in name order. A missing directory
// yields no tables. A file that cannot be read or parsed is logged and
// skipped. db may be nil, in which case no values are sampled.
func (r *Reader) ReadDir(ctx context.Context, dir string, db adapter.DBAdapter) ([]Table, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.Logger.Debug("no description directory", zap.String("dir", dir))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var tables []Table
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, name)
		table, err := r.ReadFile(ctx, path, db)
		if err != nil {
			r.Logger.Warn("skipping description file", zap.String("file", path), zap.Error(err))
			continue
		}
		tables = append(tables, table)
	}
	return tables, nil
}

// ReadFile parses one description file and samples its columns.
func (r *Reader) ReadFile(ctx context.Context, path string, db adapter.DBAdapter) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, err
	}

	records, err := parseRows(decode(data))
	if err != nil {
		return Table{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	table := Table{Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}
	if len(records) == 0 {
		return table, nil
	}

	headers := records[0]
	keyIdx := 0
	for i, h := range headers {
		if strings.EqualFold(h, originalColumnHeader) {
			keyIdx = i
			break
		}
	}

	for _, row := range records[1:] {
		entry := Entry{Table: table.Name, Headers: headers, Values: row}
		if keyIdx < len(row) {
			entry.OriginalColumn = strings.TrimSpace(row[keyIdx])
		}
		if db != nil && r.SampleLimit > 0 {
			r.sample(ctx, db, &entry)
		}
		table.Entries = append(table.Entries, entry)
	}
	return table, nil
}

// decode returns the file as UTF-8 text. Files that are not valid UTF-8 and
// carry no UTF-16 BOM are read as Windows-1252. NUL bytes become spaces.
func decode(data []byte) string {
	var text string
	if utf8.Valid(data) || hasUTF16BOM(data) {
		out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
		if err == nil {
			text = string(out)
		} else {
			text = string(data)
		}
	} else {
		out, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			out = data
		}
		text = string(out)
	}
	return strings.ReplaceAll(text, "\x00", " ")
}

func hasUTF16BOM(data []byte) bool {
	return len(data) >= 2 && (data[0] == 0xFF && data[1] == 0xFE || data[0] == 0xFE && data[1] == 0xFF)
}

// parseRows trims physical lines, drops blank ones and parses the rest as
// CSV. Newlines inside quoted fields are flattened to spaces.
func parseRows(text string) ([][]string, error) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.ReplaceAll(line, "\r", " "))
		if line != "" {
			lines = append(lines, line)
		}
	}

	cr := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for i := range rec {
			rec[i] = strings.ReplaceAll(rec[i], "\n", " ")
		}
		rows = append(rows, rec)
	}
	if len(rows) > 0 {
		for i := range rows[0] {
			rows[0][i] = strings.TrimSpace(rows[0][i])
		}
	}
	return rows, nil
}
