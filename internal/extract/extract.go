// Package extract pulls a named field out of free-form model output.
//
// Each tier is a pure function and can be used on its own:
//
//	Strict  the whole response is one JSON object
//	Scan    the first embedded {...} object that parses and has the key
//	Repair  the response after jsonrepair has fixed quotes, commas and fences
//
// Field chains them and falls back to a sentinel string.
package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

const (
	// NoEvidence is returned when JSON was found but none of it had the key.
	NoEvidence = "Warning) No evidence found"
	// NotJSON is returned when the response holds no parseable JSON object.
	NotJSON = "Warning) Response is not in JSON format"
)

// objectPattern matches a brace block with at most one level of nesting.
var objectPattern = regexp.MustCompile(`\{(?:[^{}]|(?:\{[^{}]*\}))*\}`)

var fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n?(.*?)\\s*```$")

// Strict parses the whole (fence-stripped) response as a JSON object.
func Strict(raw, key string) (string, bool) {
	obj, ok := parseObject(stripFence(raw))
	if !ok {
		return "", false
	}
	return lookup(obj, key)
}

// Scan tries every embedded JSON object in order.
func Scan(raw, key string) (string, bool) {
	_, value, ok := scan(raw, key)
	return value, ok
}

func scan(raw, key string) (parsedAny bool, value string, ok bool) {
	for _, candidate := range objectPattern.FindAllString(raw, -1) {
		obj, parsed := parseObject(candidate)
		if !parsed {
			continue
		}
		parsedAny = true
		if v, found := lookup(obj, key); found {
			return true, v, true
		}
	}
	return parsedAny, "", false
}

// Repair runs jsonrepair over each embedded brace block, then over the
// text from the first '{' to the end.
func Repair(raw, key string) (string, bool) {
	text := stripFence(raw)
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	candidates := append(objectPattern.FindAllString(text, -1), text[start:])
	for _, candidate := range candidates {
		if v, ok := repairObject(candidate, key); ok {
			return v, true
		}
	}
	return "", false
}

func repairObject(text, key string) (string, bool) {
	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return "", false
	}
	obj, ok := parseObject(repaired)
	if !ok {
		return "", false
	}
	return lookup(obj, key)
}

// Field returns raw's value for key, or NoEvidence / NotJSON.
func Field(raw, key string) string {
	if v, ok := Strict(raw, key); ok {
		return v
	}
	parsedAny, v, ok := scan(raw, key)
	if ok {
		return v
	}
	if v, ok := Repair(raw, key); ok {
		return v
	}
	if parsedAny {
		return NoEvidence
	}
	if _, ok := parseObject(stripFence(raw)); ok {
		return NoEvidence
	}
	return NotJSON
}

// Evidence extracts the "evidence" field with newlines turned into ", ".
func Evidence(raw string) string {
	return strings.ReplaceAll(Field(raw, "evidence"), "\n", ", ")
}

// IsSentinel reports whether s is one of the failure strings.
func IsSentinel(s string) bool {
	return s == NoEvidence || s == NotJSON
}

// Plain is used for prompts that ask for bare text: the trimmed response
// without a leading "evidence:" label.
func Plain(raw string) string {
	s := strings.TrimSpace(stripFence(raw))
	if len(s) >= len("evidence:") && strings.EqualFold(s[:len("evidence:")], "evidence:") {
		s = strings.TrimSpace(s[len("evidence:"):])
	}
	return strings.ReplaceAll(s, "evidence: ", "")
}

func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

func parseObject(s string) (map[string]interface{}, bool) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		// \' is not a JSON escape but models emit it inside SQL literals
		if !strings.Contains(s, `\'`) {
			return nil, false
		}
		obj = nil
		if err := json.Unmarshal([]byte(strings.ReplaceAll(s, `\'`, "'")), &obj); err != nil || obj == nil {
			return nil, false
		}
	}
	return obj, true
}

func lookup(obj map[string]interface{}, key string) (string, bool) {
	v, ok := obj[key]
	if !ok {
		return "", false
	}
	return render(v), true
}

func render(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, render(item))
		}
		return strings.Join(parts, " ")
	case float64:
		return fmt.Sprintf("%v", t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
