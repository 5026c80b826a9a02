package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"evidencegen/internal/adapter"
	"evidencegen/internal/dataset"
	"evidencegen/internal/llm"
	"evidencegen/internal/llm/llmtest"
	"evidencegen/internal/retrieval"
	"evidencegen/internal/retrieval/retrievaltest"
)

const wantEvidence = "updated in 2018 refers to Last Updated LIKE '%2018%';"

const playstoreTables = `[{
	"db_id": "playstore",
	"table_names": ["playstore"],
	"table_names_original": ["playstore"],
	"column_names": [[-1, "*"], [0, "app"], [0, "last updated"]],
	"column_names_original": [[-1, "*"], [0, "App"], [0, "Last Updated"]]
}]`

const trainJSON = `[
	{"db_id": "playstore", "question": "Which App was updated in 2017?", "evidence": "updated in 2017 refers to Last Updated LIKE '%2017%';"},
	{"db_id": "playstore", "question": "Name the App updated most recently.", "evidence": "most recently refers to MAX(Last Updated);"},
	{"db_id": "playstore", "question": "List every App updated in January.", "evidence": "January refers to Last Updated LIKE 'January%';"}
]`

// recordingEmbedder keeps every text it embeds.
type recordingEmbedder struct {
	*retrievaltest.BagOfWords
	mu      sync.Mutex
	docs    []string
	queries []string
}

func (r *recordingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	r.mu.Lock()
	r.docs = append(r.docs, texts...)
	r.mu.Unlock()
	return r.BagOfWords.EmbedDocuments(ctx, texts)
}

func (r *recordingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	r.mu.Lock()
	r.queries = append(r.queries, text)
	r.mu.Unlock()
	return r.BagOfWords.EmbedQuery(ctx, text)
}

type birdLayout struct {
	dir    string
	dbRoot string
	dev    string
	train  string
	tables string
	config string
	output string
}

func newBirdLayout(t *testing.T) *birdLayout {
	t.Helper()
	ctx := context.Background()
	l := &birdLayout{dir: t.TempDir()}
	l.dbRoot = filepath.Join(l.dir, "dev_databases")
	l.dev = filepath.Join(l.dir, "dev.json")
	l.train = filepath.Join(l.dir, "train.json")
	l.tables = filepath.Join(l.dir, "dev_tables.json")
	l.config = filepath.Join(l.dir, "llm_config.json")
	l.output = filepath.Join(l.dir, "out", "dev_evidence.json")

	descDir := filepath.Join(l.dbRoot, "playstore", "database_description")
	require.NoError(t, os.MkdirAll(descDir, 0o755))
	db, err := adapter.OpenSQLite(ctx, filepath.Join(l.dbRoot, "playstore", "playstore.sqlite"), false)
	require.NoError(t, err)
	require.NoError(t, db.Exec(ctx, "CREATE TABLE playstore\n(\n    App TEXT,\n    \"Last Updated\" TEXT\n)"))
	require.NoError(t, db.Exec(ctx, "INSERT INTO playstore VALUES ('Maps', 'January 1, 2018')"))
	require.NoError(t, db.Close())
	writeJSON(t, filepath.Join(descDir, "playstore.csv"),
		"original_column_name,column_description\nApp,Application name\nLast Updated,When the app was last updated\n")

	writeJSON(t, l.dev, `[{"question_id": 0, "db_id": "playstore", "question": "How many apps were updated in 2018?", "text": "apps 2018"}]`)
	writeJSON(t, l.train, trainJSON)
	writeJSON(t, l.tables, playstoreTables)
	writeJSON(t, l.config, `{"default_model": "fake-model", "retry": {"max_attempts": 1}}`)
	return l
}

func (l *birdLayout) args(extra ...string) []string {
	args := []string{"generate",
		"--config", l.config,
		"--dataset_json_path", l.dev,
		"--train_json_path", l.train,
		"--db_path", l.dbRoot,
		"--train_db_path", l.dbRoot,
		"--output_path", l.output,
		"--checkpoint", "",
		"--style", "json",
		"--merge", "keyed",
	}
	return append(args, extra...)
}

func stubBackends(t *testing.T, model *llmtest.FakeModel) *recordingEmbedder {
	t.Helper()
	emb := &recordingEmbedder{BagOfWords: retrievaltest.NewBagOfWords()}
	origModel, origEmbedder := newModel, newEmbedder
	newModel = func(llm.ModelConfig) (llms.Model, error) { return model, nil }
	newEmbedder = func(context.Context, retrieval.EmbedderConfig) (retrieval.Embedder, error) { return emb, nil }
	saved := genFlags
	t.Cleanup(func() {
		newModel, newEmbedder = origModel, origEmbedder
		genFlags = saved
	})
	return emb
}

func TestGenerateEndToEnd(t *testing.T) {
	l := newBirdLayout(t)
	model := llmtest.NewFakeModel(`{"reasoning": "year filter", "evidence": "` + wantEvidence + `"}`)
	emb := stubBackends(t, model)

	require.NoError(t, execute(t, l.args(
		"--top_n", "1",
		"--top_k_per_db", "1",
		"--text_mode", "evidence_text",
		"--mask", "fuzzy",
		"--dev_table_json_path", l.tables,
		"--train_table_json_path", l.tables,
	)...))

	records, err := dataset.Load(l.output)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, wantEvidence, records[0].Evidence())
	assert.Equal(t, wantEvidence+" apps 2018", records[0].GetString(dataset.KeyText))
	assert.Contains(t, records[0].MaskedQuestion(), "<schema>")

	// one exemplar block holding the anchor and one same-database pair
	require.Equal(t, 1, model.CallCount())
	msgs := model.Calls[0]
	require.Len(t, msgs, 3)
	assert.Equal(t, 2, strings.Count(llmtest.Text(msgs[1]), `"question": `))
	assert.Contains(t, llmtest.Text(msgs[2]), "### column value examples: ")

	// the pool and the query were embedded after masking
	require.Len(t, emb.docs, 3)
	for _, d := range emb.docs {
		assert.Contains(t, d, "<schema>")
	}
	require.Len(t, emb.queries, 1)
	assert.Equal(t, records[0].MaskedQuestion(), emb.queries[0])

	data, err := os.ReadFile(l.output + ".ckpt.jsonl")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ordinal":0`)

	// a rerun restores the record without calling the model
	failing := &llmtest.FakeModel{Fallback: llmtest.Reply{Err: errors.New("503 service unavailable")}}
	newModel = func(llm.ModelConfig) (llms.Model, error) { return failing, nil }
	require.NoError(t, execute(t, l.args("--mask", "fuzzy", "--dev_table_json_path", l.tables)...))
	assert.Equal(t, 0, failing.CallCount())

	var out []map[string]interface{}
	data, err = os.ReadFile(l.output)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, wantEvidence, out[0]["evidence"])
}

func TestGenerateUsesExistingMaskedQuestions(t *testing.T) {
	l := newBirdLayout(t)
	writeJSON(t, l.dev, `[{"db_id": "playstore", "question": "How many apps were updated in 2018?", "masked_question": "How many <schema> in <value>?"}]`)
	model := llmtest.NewFakeModel(`{"evidence": "e"}`)
	emb := stubBackends(t, model)

	require.NoError(t, execute(t, l.args("--mask", "existing", "--top_n", "1", "--top_k_per_db", "0", "--text_mode", "evidence_question")...))
	require.Len(t, emb.queries, 1)
	assert.Equal(t, "How many <schema> in <value>?", emb.queries[0])
}

func TestGenerateRejectsBadOptions(t *testing.T) {
	l := newBirdLayout(t)
	stubBackends(t, llmtest.NewFakeModel(`{"evidence": "e"}`))

	err := execute(t, l.args("--mask", "off", "--merge", "zip")...)
	assert.ErrorContains(t, err, "unknown merge mode")

	err = execute(t, l.args("--mask", "sometimes", "--merge", "keyed")...)
	assert.ErrorContains(t, err, "unknown mask mode")
}

func TestMaskForRetrievalKeepsPrecomputedAndRestored(t *testing.T) {
	l := newBirdLayout(t)
	stubBackends(t, llmtest.NewFakeModel())
	genFlags.mask = "fuzzy"
	genFlags.devTablePath = l.tables
	genFlags.trainTablePath = ""
	genFlags.dbPath = ""

	records, err := dataset.Parse([]byte(`[
		{"db_id": "playstore", "question": "Which App is best?", "masked_question": "kept as given"},
		{"db_id": "playstore", "question": "Which App is worst?"},
		{"db_id": "playstore", "question": "Which App is newest?"}
	]`))
	require.NoError(t, err)

	require.NoError(t, maskForRetrieval(context.Background(), records, map[int]bool{1: true}, nil, "", ""))
	assert.Equal(t, "kept as given", records[0].MaskedQuestion())
	assert.Equal(t, "", records[1].MaskedQuestion())
	assert.Equal(t, "Which <schema> is newest?", records[2].MaskedQuestion())
}
