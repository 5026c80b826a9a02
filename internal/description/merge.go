package description

import (
	"fmt"
	"strings"

	"evidencegen/internal/schema"
)

// AlignmentError reports a count mismatch between schema column lines and
// description rows. Table is empty for the whole-text positional merge.
type AlignmentError struct {
	Table        string
	Columns      int
	Descriptions int
}

func (e *AlignmentError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("description alignment mismatch: %d column lines, %d description rows", e.Columns, e.Descriptions)
	}
	return fmt.Sprintf("description alignment mismatch for table %q: %d column lines, %d description rows",
		e.Table, e.Columns, e.Descriptions)
}

// InterleavePositional appends description lines to column lines in order,
// using one index shared across the whole schema text. Descriptions must be
// in the same table order as the statements. An empty description list
// returns the schema unchanged.
func InterleavePositional(schemaText string, descLines []string) (string, error) {
	if len(descLines) == 0 {
		return schemaText, nil
	}

	parsed := schema.Parse(schemaText)
	if n := parsed.ColumnLineCount(); n != len(descLines) {
		return "", &AlignmentError{Columns: n, Descriptions: len(descLines)}
	}

	out := make([]string, len(parsed.Lines))
	idx := 0
	for i, line := range parsed.Lines {
		out[i] = line.Text
		if line.IsColumn {
			out[i] += descLines[idx]
			idx++
		}
	}
	return strings.Join(out, "\n"), nil
}

// Merge appends to each column line the description of the same table and
// column. Names are compared case-insensitively; rows whose name matches no
// column are assigned to the remaining columns of that table in order.
// Tables without a description file are left as they are.
func Merge(schemaText string, tables []Table) (string, error) {
	if len(tables) == 0 {
		return schemaText, nil
	}

	byName := make(map[string]*Table, len(tables))
	for i := range tables {
		byName[strings.ToLower(tables[i].Name)] = &tables[i]
	}

	parsed := schema.Parse(schemaText)
	suffix := make(map[int]string) // line index -> rendered description

	for _, t := range parsed.Tables {
		desc, ok := byName[strings.ToLower(t.Name)]
		if !ok {
			continue
		}
		if len(desc.Entries) != len(t.Columns) {
			return "", &AlignmentError{Table: t.Name, Columns: len(t.Columns), Descriptions: len(desc.Entries)}
		}

		used := make([]bool, len(desc.Entries))
		var unmatched []schema.Column
		for _, col := range t.Columns {
			j := findEntry(desc.Entries, used, col.Name)
			if j < 0 {
				unmatched = append(unmatched, col)
				continue
			}
			used[j] = true
			suffix[col.Line] = desc.Entries[j].Line()
		}

		next := 0
		for _, col := range unmatched {
			for used[next] {
				next++
			}
			used[next] = true
			suffix[col.Line] = desc.Entries[next].Line()
		}
	}

	out := make([]string, len(parsed.Lines))
	for i, line := range parsed.Lines {
		out[i] = line.Text + suffix[i]
	}
	return strings.Join(out, "\n"), nil
}

func findEntry(entries []Entry, used []bool, column string) int {
	for j, e := range entries {
		if !used[j] && strings.EqualFold(e.OriginalColumn, column) {
			return j
		}
	}
	return -1
}
