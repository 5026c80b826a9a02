// Package dataset reads and writes benchmark question files while keeping
// every field and its original order.
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Well-known record keys.
const (
	KeyQuestion       = "question"
	KeyDBID           = "db_id"
	KeyEvidence       = "evidence"
	KeyMaskedQuestion = "masked_question"
	KeyText           = "text"
)

// Record is one JSON object with key order preserved.
type Record struct {
	keys   []string
	values map[string]json.RawMessage
}

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]json.RawMessage)}
}

// UnmarshalJSON reads an object, remembering key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("record must be a JSON object")
	}

	r.keys = nil
	r.values = make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("record key must be a string")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("record field %q: %w", key, err)
		}
		if _, dup := r.values[key]; !dup {
			r.keys = append(r.keys, key)
		}
		r.values[key] = raw
	}
	_, err = dec.Token()
	return err
}

// MarshalJSON writes the object in key order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalNoEscape(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(r.values[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Keys returns the keys in order.
func (r *Record) Keys() []string { return append([]string(nil), r.keys...) }

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Raw returns the raw JSON value of key.
func (r *Record) Raw(key string) (json.RawMessage, bool) {
	v, ok := r.values[key]
	return v, ok
}

// GetString returns key as a string; missing or non-string values give "".
func (r *Record) GetString(key string) string {
	raw, ok := r.values[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Set stores v under key, appending the key if it is new.
func (r *Record) Set(key string, v interface{}) error {
	raw, err := marshalNoEscape(v)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	if r.values == nil {
		r.values = make(map[string]json.RawMessage)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = raw
	return nil
}

// SetString is Set for strings, which cannot fail.
func (r *Record) SetString(key, value string) {
	_ = r.Set(key, value)
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := &Record{keys: append([]string(nil), r.keys...), values: make(map[string]json.RawMessage, len(r.values))}
	for k, v := range r.values {
		c.values[k] = append(json.RawMessage(nil), v...)
	}
	return c
}

// Question returns the "question" field.
func (r *Record) Question() string { return r.GetString(KeyQuestion) }

func (r *Record) DBID() string { return r.GetString(KeyDBID) }

func (r *Record) Evidence() string { return r.GetString(KeyEvidence) }

func (r *Record) MaskedQuestion() string { return r.GetString(KeyMaskedQuestion) }

// marshalNoEscape encodes v without HTML escaping so "<schema>" stays
// readable.
func marshalNoEscape(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
