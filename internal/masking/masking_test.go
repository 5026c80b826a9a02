package masking

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"evidencegen/internal/adapter"
	"evidencegen/internal/dataset"
	"evidencegen/internal/llm"
	"evidencegen/internal/llm/llmtest"
)

const tablesJSON = `[
  {
    "db_id": "playstore",
    "table_names": ["play store", "user reviews"],
    "table_names_original": ["playstore", "user_reviews"],
    "column_names": [[-1, "*"], [0, "app"], [0, "category"], [1, "sentiment"]],
    "column_names_original": [[-1, "*"], [0, "App"], [0, "Category"], [1, "Sentiment"]],
    "column_types": ["text", "text", "text", "text"]
  }
]`

func TestSimilar(t *testing.T) {
	assert.True(t, Similar("Apps", "app", 0.9))
	assert.True(t, Similar("category", "Category", 0.9))
	assert.False(t, Similar("updated", "sentiment", 0.9))
}

func TestFuzzyMask(t *testing.T) {
	m := NewFuzzyMasker()

	got := m.Mask("How many apps in category ART_AND_DESIGN", []string{"app", "category"}, SchemaMask)
	assert.Equal(t, "How many <schema> in <schema> ART_AND_DESIGN", got)

	got = m.Mask("list play store apps", []string{"play store", "apps"}, SchemaMask)
	assert.Equal(t, "list <schema>", got)

	// stopwords survive even when they are reference words
	got = m.Mask("what is the count", []string{"what", "count"}, SchemaMask)
	assert.Equal(t, "what is the count", got)
}

func TestFuzzyMaskQuestion(t *testing.T) {
	m := NewFuzzyMasker()
	refs := References{Schema: []string{"App", "Category"}, Values: []string{"ART_AND_DESIGN", "Photo Editor"}}

	got, err := m.MaskQuestion(context.Background(), "Which App in ART_AND_DESIGN has most installs?", refs)
	require.NoError(t, err)
	assert.Equal(t, "Which <schema> in <value> has most installs?", got)
}

func TestLoadTableSpecsAndIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.json")
	require.NoError(t, os.WriteFile(path, []byte(tablesJSON), 0o644))

	specs, err := LoadTableSpecs(path)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, ColumnRef{Table: 0, Name: "Category"}, specs[0].ColumnNamesOriginal[2])

	specs[0].ValueSamples = []string{"Maps"}
	refs := BuildIndex(specs).Lookup("playstore")
	assert.Contains(t, refs.Schema, "user_reviews")
	assert.Contains(t, refs.Schema, "Sentiment")
	assert.Contains(t, refs.Schema, "play store")
	assert.Equal(t, []string{"Maps"}, refs.Values)

	assert.Empty(t, BuildIndex(specs).Lookup("unknown").Schema)
}

func TestSamplerReadsEveryColumn(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	dbDir := filepath.Join(root, "playstore")
	require.NoError(t, os.MkdirAll(dbDir, 0o755))

	db, err := adapter.OpenSQLite(ctx, filepath.Join(dbDir, "playstore.sqlite"), false)
	require.NoError(t, err)
	require.NoError(t, db.Exec(ctx, "CREATE TABLE playstore (App TEXT, Category TEXT)"))
	require.NoError(t, db.Exec(ctx, "INSERT INTO playstore VALUES ('Maps', 'TRAVEL'), ('Chess', 'GAME')"))
	require.NoError(t, db.Close())

	specs := []TableSpec{
		{DBID: "playstore", TableNamesOriginal: []string{"playstore", "missing_table"}},
		{DBID: "absent"},
	}
	s := &Sampler{DBRoot: root, Limit: 10, Logger: zap.NewNop()}
	require.NoError(t, s.Sample(ctx, specs))

	assert.ElementsMatch(t, []string{"Maps", "Chess", "TRAVEL", "GAME"}, specs[0].ValueSamples)
	assert.Empty(t, specs[1].ValueSamples)
}

func TestLLMMasker(t *testing.T) {
	model := llmtest.NewFakeModel(`{"reasoning": "App is a column", "masked_question": "How many <schema> are free?"}`)
	m := NewLLMMasker(llm.NewClient(model))

	got, err := m.MaskQuestion(context.Background(), "How many apps are free?", References{Schema: []string{"App"}, Values: []string{"Free"}})
	require.NoError(t, err)
	assert.Equal(t, "How many <schema> are free?", got)

	prompt := llmtest.Text(model.Calls[0][0])
	assert.Contains(t, prompt, "question: How many apps are free?")
	assert.Contains(t, prompt, `schema_list: ["App"]`)
	assert.Contains(t, prompt, `value_list: ["Free"]`)

	model = llmtest.NewFakeModel("I would rather not.")
	got, err = NewLLMMasker(llm.NewClient(model)).MaskQuestion(context.Background(), "q?", References{})
	require.NoError(t, err)
	assert.Equal(t, "q?", got)
}

type failingMasker struct{ err error }

func (f failingMasker) MaskQuestion(context.Context, string, References) (string, error) {
	return "", f.err
}

func TestMaskRecords(t *testing.T) {
	records, err := dataset.Parse([]byte(`[{"db_id": "playstore", "question": "How many App rows?"}]`))
	require.NoError(t, err)

	idx := Index{"playstore": {Schema: []string{"App"}}}
	require.NoError(t, MaskRecords(context.Background(), records, idx, NewFuzzyMasker(), nil))
	assert.Equal(t, "How many <schema> rows?", records[0].MaskedQuestion())

	require.NoError(t, MaskRecords(context.Background(), records, idx, failingMasker{errors.New("boom")}, nil))
	assert.Equal(t, "How many App rows?", records[0].MaskedQuestion())

	fatal := &llm.CallError{Type: llm.ErrorAuth, Attempts: 1, Err: errors.New("401")}
	err = MaskRecords(context.Background(), records, idx, failingMasker{fatal}, nil)
	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))
}
