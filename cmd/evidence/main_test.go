package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evidencegen/internal/dataset"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func writeJSON(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func TestEraseCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "dev.json")
	out := filepath.Join(dir, "dev_no_evidence.json")
	writeJSON(t, in, `[{"question_id": 1, "evidence": "x refers to y", "question": "q <b>"}, {"question": "r"}]`)

	require.NoError(t, execute(t, "erase", "--input", in, "--output", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"question": "q <b>"`)

	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "", got[0]["evidence"])
	assert.Equal(t, "", got[1]["evidence"])
	assert.EqualValues(t, 1, got[0]["question_id"])
}

func TestEraseCommandMissingInput(t *testing.T) {
	dir := t.TempDir()
	err := execute(t, "erase", "--input", filepath.Join(dir, "absent.json"), "--output", filepath.Join(dir, "out.json"))
	assert.Error(t, err)
}

func TestMaskCommandFuzzy(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "dev.json")
	tables := filepath.Join(dir, "tables.json")
	out := filepath.Join(dir, "dev_masked.json")
	writeJSON(t, in, `[{"db_id": "playstore", "question": "Which App has the most Installs?"}]`)
	writeJSON(t, tables, `[{
		"db_id": "playstore",
		"table_names": ["playstore"],
		"table_names_original": ["playstore"],
		"column_names": [[-1, "*"], [0, "app"], [0, "installs"]],
		"column_names_original": [[-1, "*"], [0, "App"], [0, "Installs"]]
	}]`)

	require.NoError(t, execute(t, "mask",
		"--dataset_json_path", in,
		"--table_json_path", tables,
		"--output_path", out,
		"--mode", "fuzzy"))

	records, err := dataset.Load(out)
	require.NoError(t, err)
	assert.Equal(t, "Which <schema> has the most <schema>", records[0].MaskedQuestion())
	assert.Equal(t, "Which App has the most Installs?", records[0].Question())
}

func TestMaskCommandUnknownMode(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "dev.json")
	writeJSON(t, in, `[]`)
	err := execute(t, "mask", "--dataset_json_path", in, "--table_json_path", in, "--output_path", in, "--mode", "regex")
	assert.ErrorContains(t, err, "unknown mask mode")
}

func TestCandidates(t *testing.T) {
	records, err := dataset.Parse([]byte(`[{"question": "q", "db_id": "d", "evidence": "e", "masked_question": "m"}]`))
	require.NoError(t, err)
	got := candidates(records)
	require.Len(t, got, 1)
	assert.Equal(t, "m", got[0].MaskedQuestion)
	assert.Equal(t, "e", got[0].Evidence)
}
