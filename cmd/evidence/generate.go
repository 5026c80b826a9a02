package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"evidencegen/internal/checkpoint"
	"evidencegen/internal/dataset"
	"evidencegen/internal/llm"
	"evidencegen/internal/pipeline"
	"evidencegen/internal/prompt"
	"evidencegen/internal/retrieval"
)

var genFlags struct {
	datasetPath    string
	trainPath      string
	topN           int
	topKPerDB      int
	dbPath         string
	trainDBPath    string
	outputPath     string
	devTablePath   string
	trainTablePath string
	model          string
	apiKey         string

	llmName         string
	style           string
	diverse         bool
	metric          string
	mask            string
	maskSamples     int
	checkpoint      string
	transcript      string
	excludeDBs      []string
	maxPromptTokens int
	answerTurns     bool
	mergeMode       string
	textMode        string
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Annotate a dataset with generated evidence",
	Long: `For every record of --dataset_json_path, builds the schema context of
its database under --db_path, retrieves --top_n similar training questions
from --train_json_path (one block per database with --diverse) and writes
the model's evidence to --output_path.

Finished records are checkpointed as they complete (--checkpoint, default
<output_path>.ckpt.jsonl) and skipped when the command is run again.`,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&genFlags.datasetPath, "dataset_json_path", "", "dataset JSON to annotate")
	f.StringVar(&genFlags.trainPath, "train_json_path", "", "training dataset JSON with evidence (exemplar pool)")
	f.IntVar(&genFlags.topN, "top_n", 5, "number of exemplar blocks")
	f.IntVar(&genFlags.topKPerDB, "top_k_per_db", 4, "extra same-database exemplars per block (diverse)")
	f.StringVar(&genFlags.dbPath, "db_path", "", "root of the dataset's databases")
	f.StringVar(&genFlags.trainDBPath, "train_db_path", "", "root of the training databases (defaults to --db_path)")
	f.StringVar(&genFlags.outputPath, "output_path", "", "dataset JSON to write")
	f.StringVar(&genFlags.devTablePath, "dev_table_json_path", "", "tables.json of the dataset (masking)")
	f.StringVar(&genFlags.trainTablePath, "train_table_json_path", "", "tables.json of the training set (masking)")
	f.StringVar(&genFlags.model, "model", dataset.TargetCodes, "downstream text-to-SQL model; codes also rewrites the text field")
	f.StringVar(&genFlags.apiKey, "openai_api_key", "", "API token when the config has none")

	f.StringVar(&genFlags.llmName, "llm", "", "model key in llm_config.json (default_model when empty)")
	f.StringVar(&genFlags.style, "style", string(prompt.StyleJSON), "prompt style: direct | stepwise | json")
	f.BoolVar(&genFlags.diverse, "diverse", true, "one exemplar block per distinct database")
	f.StringVar(&genFlags.metric, "metric", string(retrieval.Cosine), "similarity: cosine | euclidean")
	f.StringVar(&genFlags.mask, "mask", "off", "question masking before retrieval: off | existing (use masked_question as given) | fuzzy | llm")
	f.IntVar(&genFlags.maskSamples, "mask_value_samples", 10, "distinct values sampled per column for masking")
	f.StringVar(&genFlags.checkpoint, "checkpoint", "", "checkpoint file or sqlite://, mysql://, postgres:// URL; off disables")
	f.StringVar(&genFlags.transcript, "transcript", "", "file receiving every prompt and response")
	f.StringSliceVar(&genFlags.excludeDBs, "exclude_db", nil, "db_ids never used as exemplars")
	f.IntVar(&genFlags.maxPromptTokens, "max_prompt_tokens", 0, "drop earliest exemplars above this many tokens (0 = no limit)")
	f.BoolVar(&genFlags.answerTurns, "answer_turns", false, "give exemplar evidence as assistant turns (json style)")
	f.StringVar(&genFlags.mergeMode, "merge", string(pipeline.MergeKeyed), "description merge: keyed | positional")
	f.StringVar(&genFlags.textMode, "text_mode", string(dataset.TextEvidenceQuestion), "codes text field: evidence_question | evidence_text")

	_ = generateCmd.MarkFlagRequired("dataset_json_path")
	_ = generateCmd.MarkFlagRequired("db_path")
	_ = generateCmd.MarkFlagRequired("output_path")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	style, err := prompt.ParseStyle(genFlags.style)
	if err != nil {
		return err
	}
	metric, err := retrieval.ParseMetric(genFlags.metric)
	if err != nil {
		return err
	}
	apiKey := genFlags.apiKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	records, err := dataset.Load(genFlags.datasetPath)
	if err != nil {
		return err
	}
	var train []*dataset.Record
	if genFlags.trainPath != "" {
		if train, err = dataset.Load(genFlags.trainPath); err != nil {
			return err
		}
	}
	trainDBPath := genFlags.trainDBPath
	if trainDBPath == "" {
		trainDBPath = genFlags.dbPath
	}

	switch genFlags.mask {
	case "off", "existing", "fuzzy", "llm":
	default:
		return fmt.Errorf("unknown mask mode %q (want off, existing, fuzzy or llm)", genFlags.mask)
	}
	useMasked := genFlags.mask != "off"

	store, err := checkpoint.Open(ctx, genFlags.checkpoint, genFlags.outputPath)
	if err != nil {
		return err
	}
	writer := dataset.NewWriter(genFlags.outputPath, store)
	defer writer.Close()

	// restored records carry their masked_question already
	done, err := writer.Resume(ctx, records)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	if genFlags.mask == "fuzzy" || genFlags.mask == "llm" {
		if err := maskForRetrieval(ctx, records, done, train, trainDBPath, apiKey); err != nil {
			return err
		}
	}

	cfg, err := llm.Load(configPath)
	if err != nil {
		return err
	}
	client, err := newClient(genFlags.llmName, apiKey, style.JSONAnswer())
	if err != nil {
		return err
	}

	var finder *retrieval.Finder
	if len(train) > 0 {
		var closeFinder func()
		finder, closeFinder, err = buildFinder(ctx, cfg.Embedding, apiKey, train, metric, useMasked)
		if err != nil {
			return err
		}
		defer closeFinder()
	} else {
		logger.Warn("no training dataset, prompts carry no exemplars")
	}

	pcfg := pipeline.DefaultConfig()
	pcfg.DBRoot = genFlags.dbPath
	pcfg.TrainDBRoot = trainDBPath
	pcfg.Style = style
	pcfg.TopK = genFlags.topN
	pcfg.TopN = genFlags.topKPerDB
	pcfg.Diverse = genFlags.diverse
	pcfg.UseMasked = useMasked
	pcfg.AnswerTurns = genFlags.answerTurns
	pcfg.MaxPromptTokens = genFlags.maxPromptTokens
	pcfg.ModelTarget = genFlags.model
	pcfg.TextMode = dataset.TextMode(genFlags.textMode)
	pcfg.MergeMode = pipeline.MergeMode(genFlags.mergeMode)

	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if genFlags.transcript != "" {
		tr := pipeline.NewTranscript(nil)
		if err := tr.OpenFile(genFlags.transcript); err != nil {
			return err
		}
		defer tr.Close()
		opts = append(opts, pipeline.WithTranscript(tr))
	}

	p, err := pipeline.New(pcfg, client, finder, writer, opts...)
	if err != nil {
		return err
	}
	logger.Info("starting run",
		zap.String("run_id", p.RunID()),
		zap.String("model", client.ModelName()),
		zap.Int("records", len(records)),
		zap.Int("pool", poolSize(finder)))

	summary, err := p.Run(ctx, records)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		logger.Warn("some records have no evidence; run again to retry them", zap.Int("failed", summary.Failed))
	}
	return nil
}

// maskForRetrieval masks the dataset and training records that do not
// carry masked_question yet. Records in done are skipped.
func maskForRetrieval(ctx context.Context, records []*dataset.Record, done map[int]bool, train []*dataset.Record, trainDBPath, apiKey string) error {
	var devPending []*dataset.Record
	for i, r := range records {
		if !done[i] && !hasMasked(r) {
			devPending = append(devPending, r)
		}
	}
	if len(devPending) > 0 {
		if genFlags.devTablePath == "" {
			return fmt.Errorf("--mask %s needs --dev_table_json_path", genFlags.mask)
		}
		if err := maskDataset(ctx, devPending, genFlags.mask, genFlags.devTablePath, genFlags.dbPath, genFlags.maskSamples, genFlags.llmName, apiKey); err != nil {
			return err
		}
	}

	var pending []*dataset.Record
	for _, r := range train {
		if !hasMasked(r) {
			pending = append(pending, r)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	if genFlags.trainTablePath == "" {
		logger.Warn("training records are not masked; pass --train_table_json_path", zap.Int("records", len(pending)))
		return nil
	}
	return maskDataset(ctx, pending, genFlags.mask, genFlags.trainTablePath, trainDBPath, genFlags.maskSamples, genFlags.llmName, apiKey)
}

func hasMasked(r *dataset.Record) bool {
	return strings.TrimSpace(r.MaskedQuestion()) != ""
}

// newEmbedder creates the embedding backend; tests replace it.
var newEmbedder = retrieval.NewEmbedder

// buildFinder embeds the eligible training records. The returned func
// releases the embedding cache.
func buildFinder(ctx context.Context, ec llm.EmbeddingConfig, apiKey string, train []*dataset.Record, metric retrieval.Metric, useMasked bool) (*retrieval.Finder, func(), error) {
	if ec.Token == "" && ec.Provider != "ollama" {
		ec.Token = apiKey
	}
	emb, err := newEmbedder(ctx, retrieval.EmbedderConfig{
		Provider:  ec.Provider,
		Model:     ec.Model,
		Token:     ec.Token,
		BaseURL:   ec.BaseURL,
		BatchSize: ec.BatchSize,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("embedder: %w", err)
	}
	release := func() {}
	if ec.CachePath != "" {
		cached, err := retrieval.NewCachedEmbedder(ctx, emb, ec.CachePath, ec.Provider+"/"+ec.Model, ec.BatchSize, ec.Concurrency, logger)
		if err != nil {
			return nil, nil, err
		}
		emb = cached
		release = func() { _ = cached.Close() }
	}

	pool, err := retrieval.BuildPool(ctx, candidates(train), emb, retrieval.PoolOptions{
		ExcludeDBs: genFlags.excludeDBs,
		UseMasked:  useMasked,
	})
	if err != nil {
		release()
		return nil, nil, err
	}
	return retrieval.NewFinder(pool, emb, metric), release, nil
}

func candidates(records []*dataset.Record) []retrieval.Candidate {
	out := make([]retrieval.Candidate, len(records))
	for i, r := range records {
		out[i] = retrieval.Candidate{
			Question:       r.Question(),
			MaskedQuestion: r.MaskedQuestion(),
			DBID:           r.DBID(),
			Evidence:       r.Evidence(),
		}
	}
	return out
}

func poolSize(f *retrieval.Finder) int {
	if f == nil {
		return 0
	}
	return f.Pool().Len()
}
