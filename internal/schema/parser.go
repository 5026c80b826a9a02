package schema

import (
	"regexp"
	"strings"
)

// Table groups the column lines of one CREATE TABLE statement.
type Table struct {
	Name    string
	Columns []Column
}

// Column is one column-definition line of a statement.
type Column struct {
	Table string
	Name  string
	Type  string
	Line  int // index into Parsed.Lines
}

// Line is one physical line of the schema text.
type Line struct {
	Text     string
	Table    string // owning statement, "" before the first CREATE
	IsColumn bool
}

// Parsed is the schema text split into lines and tables, order preserved.
type Parsed struct {
	Lines  []Line
	Tables []Table
}

var createTableRegex = regexp.MustCompile("(?i)^\\s*CREATE\\s+TABLE\\s+(?:IF\\s+NOT\\s+EXISTS\\s+)?(?:\"([^\"]+)\"|`([^`]+)`|\\[([^\\]]+)\\]|'([^']+)'|([^\\s(]+))")

var structuralPrefixes = []string{
	"unique",
	"references",
	"on update cascade",
	"primary key",
	"constraint",
	"foreign key",
}

// IsColumnLine reports whether a schema line defines a column. Blank lines,
// statement heads, comments, parentheses and table constraints do not.
func IsColumnLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(strings.ToUpper(trimmed), "CREATE") ||
		strings.HasPrefix(trimmed, "--") ||
		strings.HasPrefix(trimmed, ")") ||
		strings.HasPrefix(trimmed, "(") {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, p := range structuralPrefixes {
		if strings.HasPrefix(lower, p) && !isIdentByte(lower, len(p)) {
			return false
		}
	}
	return true
}

// isIdentByte reports whether s[i] continues an identifier, so that a column
// named unique_count is not taken for a UNIQUE constraint.
func isIdentByte(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	c := s[i]
	return c == '_' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

// Parse splits schema text into lines and groups column lines by table.
func Parse(text string) *Parsed {
	parsed := &Parsed{}
	current := -1

	for i, raw := range strings.Split(text, "\n") {
		line := Line{Text: raw}

		if m := createTableRegex.FindStringSubmatch(raw); m != nil {
			parsed.Tables = append(parsed.Tables, Table{Name: firstNonEmpty(m[1:])})
			current = len(parsed.Tables) - 1
		}
		if current >= 0 {
			line.Table = parsed.Tables[current].Name
		}

		if IsColumnLine(raw) {
			line.IsColumn = true
			if current >= 0 {
				name, typ := ParseColumnLine(raw)
				t := &parsed.Tables[current]
				t.Columns = append(t.Columns, Column{Table: t.Name, Name: name, Type: typ, Line: i})
			}
		}
		parsed.Lines = append(parsed.Lines, line)
	}
	return parsed
}

// ColumnLineCount counts column lines across the whole text.
func (p *Parsed) ColumnLineCount() int {
	n := 0
	for _, l := range p.Lines {
		if l.IsColumn {
			n++
		}
	}
	return n
}

// ParseColumnLine extracts the column name (quotes removed) and its declared type.
func ParseColumnLine(line string) (name, typ string) {
	s := strings.TrimSpace(line)
	s = strings.TrimSuffix(s, ",")
	if s == "" {
		return "", ""
	}

	var rest string
	switch s[0] {
	case '"', '`', '\'', '[':
		closing := s[0]
		if closing == '[' {
			closing = ']'
		}
		end := strings.IndexByte(s[1:], closing)
		if end < 0 {
			return strings.Trim(s, "\"`'[]"), ""
		}
		name = s[1 : end+1]
		rest = s[end+2:]
	default:
		fields := strings.Fields(s)
		name = fields[0]
		rest = strings.TrimPrefix(s, name)
	}

	if fields := strings.Fields(rest); len(fields) > 0 {
		typ = strings.ToUpper(strings.TrimSuffix(fields[0], ","))
	}
	return name, typ
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
