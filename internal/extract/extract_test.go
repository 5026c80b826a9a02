package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrict(t *testing.T) {
	v, ok := Strict(`{"reasoning":"...","evidence":"updated in 2018 refers to Last Updated LIKE '%2018%';"}`, "evidence")
	assert.True(t, ok)
	assert.Equal(t, "updated in 2018 refers to Last Updated LIKE '%2018%';", v)

	v, ok = Strict("```json\n{\"evidence\": \"a = 1\"}\n```", "evidence")
	assert.True(t, ok)
	assert.Equal(t, "a = 1", v)

	v, ok = Strict(`{"evidence":"updated in 2018 refers to Last Updated LIKE \'%2018%\';"}`, "evidence")
	assert.True(t, ok)
	assert.Equal(t, "updated in 2018 refers to Last Updated LIKE '%2018%';", v)

	_, ok = Strict(`Here you go: {"evidence": "x"}`, "evidence")
	assert.False(t, ok)
}

func TestScanSkipsObjectsWithoutKey(t *testing.T) {
	raw := `Step 1 {"tables": ["a"]} then {not json} and finally {"reasoning": {"k": "v"}, "evidence": "x > 1"} done`
	v, ok := Scan(raw, "evidence")
	assert.True(t, ok)
	assert.Equal(t, "x > 1", v)

	_, ok = Scan(`{"reasoning": "only"}`, "evidence")
	assert.False(t, ok)
}

func TestRepair(t *testing.T) {
	v, ok := Repair("Answer: {'reasoning': 'r', 'evidence': 'rating refers to Rating',}", "evidence")
	assert.True(t, ok)
	assert.Equal(t, "rating refers to Rating", v)
}

func TestRepairEmbeddedObjectWithTrailingProse(t *testing.T) {
	v, ok := Repair("Here you go {evidence: 'free refers to Price = 0'} hope it helps", "evidence")
	assert.True(t, ok)
	assert.Equal(t, "free refers to Price = 0", v)

	assert.Equal(t, "free refers to Price = 0", Field("Here you go {evidence: 'free refers to Price = 0'} hope it helps", "evidence"))
}

func TestFieldSentinels(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"strict", `{"evidence": "a"}`, "a"},
		{"embedded", `text {"evidence": "b"} text`, "b"},
		{"no key", `{"reasoning": "r"}`, NoEvidence},
		{"prose", "I cannot answer that.", NotJSON},
		{"empty", "", NotJSON},
		{"array value", `{"evidence": ["a", "b"]}`, "a b"},
		{"number value", `{"evidence": 3}`, "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Field(tt.raw, "evidence"))
		})
	}
}

func TestEvidenceReplacesNewlines(t *testing.T) {
	assert.Equal(t, "a = 1, b = 2", Evidence(`{"evidence": "a = 1\nb = 2"}`))
	assert.True(t, IsSentinel(Evidence("nothing")))
}

func TestPlain(t *testing.T) {
	assert.Equal(t, "rating refers to Rating", Plain("  Evidence: rating refers to Rating \n"))
	assert.Equal(t, "a; b", Plain("a; evidence: b"))
	assert.Equal(t, "free refers to Price = 0", Plain("free refers to Price = 0"))
}
