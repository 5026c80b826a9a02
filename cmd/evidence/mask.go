package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"evidencegen/internal/dataset"
	"evidencegen/internal/llm"
	"evidencegen/internal/masking"
)

var maskFlags struct {
	datasetPath string
	tablePath   string
	dbPath      string
	outputPath  string
	mode        string
	sampleLimit int
	llmName     string
	apiKey      string
}

var maskCmd = &cobra.Command{
	Use:   "mask",
	Short: "Add masked_question to every record",
	Long: `Replaces schema names and database values in each question with
<schema> and <value> and stores the result as masked_question. Retrieval
over masked questions matches question structure rather than topic.

Modes:
  fuzzy  Jaro-Winkler similarity against table, column and value names
  llm    the configured chat model rewrites the question`,
	RunE: runMask,
}

func init() {
	f := maskCmd.Flags()
	f.StringVar(&maskFlags.datasetPath, "dataset_json_path", "", "dataset JSON to mask")
	f.StringVar(&maskFlags.tablePath, "table_json_path", "", "tables.json of the dataset's databases")
	f.StringVar(&maskFlags.dbPath, "db_path", "", "root of the dataset's databases, for value sampling")
	f.StringVar(&maskFlags.outputPath, "output_path", "", "dataset JSON to write")
	f.StringVar(&maskFlags.mode, "mode", "fuzzy", "fuzzy | llm")
	f.IntVar(&maskFlags.sampleLimit, "value_samples", 10, "distinct values sampled per column")
	f.StringVar(&maskFlags.llmName, "llm", "", "model key in llm_config.json (llm mode)")
	f.StringVar(&maskFlags.apiKey, "openai_api_key", "", "API token when the config has none")
	_ = maskCmd.MarkFlagRequired("dataset_json_path")
	_ = maskCmd.MarkFlagRequired("table_json_path")
	_ = maskCmd.MarkFlagRequired("output_path")
}

func runMask(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	records, err := dataset.Load(maskFlags.datasetPath)
	if err != nil {
		return err
	}
	if err := maskDataset(ctx, records, maskFlags.mode, maskFlags.tablePath, maskFlags.dbPath, maskFlags.sampleLimit, maskFlags.llmName, maskFlags.apiKey); err != nil {
		return err
	}
	if err := dataset.WriteFile(maskFlags.outputPath, records); err != nil {
		return fmt.Errorf("write %s: %w", maskFlags.outputPath, err)
	}
	logger.Info("questions masked", zap.Int("records", len(records)), zap.String("output", maskFlags.outputPath))
	return nil
}

// maskDataset builds the reference index for tablePath and masks records.
// Value sampling is skipped when dbPath is empty.
func maskDataset(ctx context.Context, records []*dataset.Record, mode, tablePath, dbPath string, sampleLimit int, llmName, apiKey string) error {
	masker, err := newMasker(mode, llmName, apiKey)
	if err != nil {
		return err
	}

	specs, err := masking.LoadTableSpecs(tablePath)
	if err != nil {
		return fmt.Errorf("load tables: %w", err)
	}
	if dbPath != "" {
		sampler := &masking.Sampler{DBRoot: dbPath, Limit: sampleLimit, Logger: logger}
		if err := sampler.Sample(ctx, specs); err != nil {
			return err
		}
	}
	return masking.MaskRecords(ctx, records, masking.BuildIndex(specs), masker, logger)
}

func newMasker(mode, llmName, apiKey string) (masking.Masker, error) {
	switch mode {
	case "fuzzy":
		return masking.NewFuzzyMasker(), nil
	case "llm":
		client, err := newClient(llmName, apiKey, true)
		if err != nil {
			return nil, err
		}
		return masking.NewLLMMasker(client), nil
	default:
		return nil, fmt.Errorf("unknown mask mode %q (want fuzzy or llm)", mode)
	}
}

// newModel creates the chat model; tests replace it.
var newModel = llm.CreateLLM

// newClient creates the chat client for a model key of llm_config.json.
func newClient(name, apiKey string, jsonMode bool) (*llm.Client, error) {
	cfg, err := llm.Load(configPath)
	if err != nil {
		return nil, err
	}
	mc := cfg.Model(name)
	if mc.Token == "" {
		mc.Token = apiKey
	}
	if jsonMode {
		mc.JSONMode = true
	}
	model, err := newModel(mc)
	if err != nil {
		return nil, err
	}
	return llm.NewClientForModel(model, mc, cfg.Retry.Policy(), logger), nil
}
