package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evidencegen/internal/checkpoint"
)

const devJSON = `[
  {"question_id": 0, "db_id": "playstore", "question": "How many apps were updated in 2018?", "evidence": "old", "SQL": "SELECT 1", "difficulty": "simple"},
  {"db_id": "movie_platform", "question": "Name movie titles released in year 1945.", "text": "Name movie titles", "nested": {"b": [1, 2], "a": null}}
]`

func TestParsePreservesKeysAndOrder(t *testing.T) {
	records, err := Parse([]byte(devJSON))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []string{"question_id", "db_id", "question", "evidence", "SQL", "difficulty"}, records[0].Keys())
	assert.Equal(t, "playstore", records[0].DBID())
	assert.Equal(t, "", records[1].Evidence())
	assert.False(t, records[1].Has(KeyEvidence))

	out, err := Encode(records)
	require.NoError(t, err)
	again, err := Parse(out)
	require.NoError(t, err)
	for i := range records {
		if diff := cmp.Diff(records[i].Keys(), again[i].Keys()); diff != "" {
			t.Fatalf("record %d keys changed (-want +got):\n%s", i, diff)
		}
	}
	raw, _ := again[1].Raw("nested")
	assert.JSONEq(t, `{"b": [1, 2], "a": null}`, string(raw))
}

func TestParseWindows1252(t *testing.T) {
	records, err := Parse([]byte("[{\"question\": \"caf\xe9\"}]"))
	require.NoError(t, err)
	assert.Equal(t, "café", records[0].Question())
}

func TestParseRejectsNonArray(t *testing.T) {
	_, err := Parse([]byte(`{"question": "x"}`))
	require.Error(t, err)
	_, err = Parse([]byte(`[null]`))
	require.Error(t, err)
}

func TestApplyEvidence(t *testing.T) {
	records, err := Parse([]byte(devJSON))
	require.NoError(t, err)

	ApplyEvidence(records[0], "updated in 2018 refers to Last Updated LIKE '%2018%';", TargetCodes, TextEvidenceQuestion)
	assert.Equal(t, "updated in 2018 refers to Last Updated LIKE '%2018%';", records[0].Evidence())
	assert.Equal(t, "updated in 2018 refers to Last Updated LIKE '%2018%'; How many apps were updated in 2018?",
		records[0].GetString(KeyText))
	assert.Equal(t, []string{"question_id", "db_id", "question", "evidence", "SQL", "difficulty", "text"}, records[0].Keys())

	ApplyEvidence(records[1], "e", TargetCodes, TextEvidenceText)
	assert.Equal(t, "e Name movie titles", records[1].GetString(KeyText))

	rec := records[0].Clone()
	ApplyEvidence(rec, "x", "resdsql", TextEvidenceQuestion)
	assert.Equal(t, "x", rec.Evidence())
	assert.Equal(t, records[0].GetString(KeyText), rec.GetString(KeyText))
}

func TestEraseAndHTMLFriendlyOutput(t *testing.T) {
	records, err := Parse([]byte(devJSON))
	require.NoError(t, err)
	Erase(records)
	for _, r := range records {
		assert.True(t, r.Has(KeyEvidence))
		assert.Equal(t, "", r.Evidence())
	}

	records[0].SetString(KeyMaskedQuestion, "How many <schema> were updated in <value>?")
	out, err := Encode(records)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"masked_question": "How many <schema> were updated in <value>?"`)
}

func TestWriterCheckpointsAndResumes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	out := filepath.Join(dir, "dev_evidence.json")

	store, err := checkpoint.Open(ctx, "", out)
	require.NoError(t, err)
	w := NewWriter(out, store)

	records, err := Parse([]byte(devJSON))
	require.NoError(t, err)
	ApplyEvidence(records[1], "released in 1945 refers to movie_release_year = 1945", "", "")
	require.NoError(t, w.Put(ctx, 1, records[1]))
	require.NoError(t, w.Close())

	fresh, err := Parse([]byte(devJSON))
	require.NoError(t, err)
	store, err = checkpoint.Open(ctx, "", out)
	require.NoError(t, err)
	w = NewWriter(out, store)
	defer w.Close()

	done, err := w.Resume(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{1: true}, done)
	assert.Equal(t, "released in 1945 refers to movie_release_year = 1945", fresh[1].Evidence())
	assert.Equal(t, "old", fresh[0].Evidence())

	require.NoError(t, w.Finish(fresh))
	loaded, err := Load(out)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "How many apps were updated in 2018?", loaded[0].Question())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "tmp-")
	}
}
