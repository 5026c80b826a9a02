package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// TextMode selects how the "text" field is rebuilt for the codes target.
type TextMode string

const (
	// TextEvidenceQuestion sets text to evidence + " " + question.
	TextEvidenceQuestion TextMode = "evidence_question"
	// TextEvidenceText prefixes the existing text (question when absent).
	TextEvidenceText TextMode = "evidence_text"

	// TargetCodes is the downstream model whose input is the text field.
	TargetCodes = "codes"
)

// Load reads a JSON array of records. Files that are not valid UTF-8 are
// decoded as Windows-1252.
func Load(path string) ([]*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a JSON array of records.
func Parse(data []byte) ([]*Record, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("decode dataset: %w", err)
		}
		data = decoded
	}

	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	for i, r := range records {
		if r == nil {
			return nil, fmt.Errorf("parse dataset: record %d is null", i)
		}
	}
	return records, nil
}

// ApplyEvidence stores evidence on rec, overwriting any previous value, and
// for the codes target rebuilds the text field.
func ApplyEvidence(rec *Record, evidence, target string, mode TextMode) {
	rec.SetString(KeyEvidence, evidence)
	if target != TargetCodes {
		return
	}
	base := rec.Question()
	if mode == TextEvidenceText && rec.Has(KeyText) {
		base = rec.GetString(KeyText)
	}
	rec.SetString(KeyText, evidence+" "+base)
}

// Erase blanks the evidence of every record.
func Erase(records []*Record) {
	for _, r := range records {
		r.SetString(KeyEvidence, "")
	}
}

// Encode renders records as an indented JSON array.
func Encode(records []*Record) ([]byte, error) {
	if records == nil {
		records = []*Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes records atomically: a temp file in the same directory
// is renamed over path.
func WriteFile(path string, records []*Record) error {
	data, err := Encode(records)
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp dataset: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp dataset: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("sync temp dataset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp dataset: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp dataset: %w", err)
	}
	return nil
}
