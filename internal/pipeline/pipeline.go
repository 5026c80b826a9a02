package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"evidencegen/internal/dataset"
	"evidencegen/internal/extract"
	"evidencegen/internal/llm"
	"evidencegen/internal/logger"
	"evidencegen/internal/prompt"
	"evidencegen/internal/retrieval"
)

// Pipeline annotates records one at a time.
type Pipeline struct {
	cfg        Config
	client     *llm.Client
	finder     *retrieval.Finder
	writer     *dataset.Writer
	contexts   *SchemaContexts
	counter    *prompt.Counter
	logger     *zap.Logger
	transcript *Transcript
	progress   func(total int) *logger.Logger
	runID      string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTranscript records every prompt and response.
func WithTranscript(t *Transcript) Option { return func(p *Pipeline) { p.transcript = t } }

// WithProgress replaces the stdout progress logger.
func WithProgress(f func(total int) *logger.Logger) Option {
	return func(p *Pipeline) { p.progress = f }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *zap.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// New creates a pipeline. finder may be nil, in which case prompts carry
// no exemplars.
func New(cfg Config, client *llm.Client, finder *retrieval.Finder, writer *dataset.Writer, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	style, _ := prompt.ParseStyle(string(cfg.Style))
	cfg.Style = style
	if cfg.TrainDBRoot == "" {
		cfg.TrainDBRoot = cfg.DBRoot
	}

	p := &Pipeline{
		cfg:        cfg,
		client:     client,
		finder:     finder,
		writer:     writer,
		counter:    prompt.NewCounter(),
		logger:     zap.NewNop(),
		transcript: NewTranscript(nil),
		progress:   logger.NewLogger,
		runID:      uuid.NewString(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("run_id", p.runID))
	p.contexts = NewSchemaContexts(cfg.MergeMode, cfg.CacheSchemas, p.logger)
	return p, nil
}

// RunID identifies this run in logs.
func (p *Pipeline) RunID() string { return p.runID }

// Summary counts the outcome of a run.
type Summary struct {
	Total     int
	Annotated int
	Restored  int
	Failed    int
}

// Run annotates every record not already checkpointed, then writes the
// output file. A record that fails keeps an empty evidence and is retried
// on the next run. Fatal model errors stop the run; records finished
// before that stay checkpointed and the output file is not written.
func (p *Pipeline) Run(ctx context.Context, records []*dataset.Record) (*Summary, error) {
	done, err := p.writer.Resume(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}

	progress := p.progress(len(records))
	progress.SetPhase(fmt.Sprintf("Generating evidence for %d records (run %s)", len(records), p.runID))
	summary := &Summary{Total: len(records)}

	for i, rec := range records {
		name := fmt.Sprintf("#%d %s", i, rec.DBID())
		if done[i] {
			summary.Restored++
			progress.SkipTask(name)
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		progress.StartTask(name)
		evidence, err := p.annotate(ctx, i, rec)
		if err != nil {
			if llm.IsFatal(err) {
				progress.FailTask(name, err)
				progress.PrintSummary()
				return summary, fmt.Errorf("record %d: %w", i, err)
			}
			summary.Failed++
			p.logger.Warn("record failed", zap.Int("ordinal", i), zap.String("db_id", rec.DBID()), zap.Error(err))
			rec.SetString(dataset.KeyEvidence, "")
			progress.FailTask(name, err)
			continue
		}

		dataset.ApplyEvidence(rec, evidence, p.cfg.ModelTarget, p.cfg.TextMode)
		if err := p.writer.Put(ctx, i, rec); err != nil {
			return summary, fmt.Errorf("checkpoint record %d: %w", i, err)
		}
		summary.Annotated++
		progress.CompleteTask(name)
	}

	progress.PrintSummary()
	if err := p.writer.Finish(records); err != nil {
		return summary, fmt.Errorf("write output: %w", err)
	}
	p.logger.Info("run finished",
		zap.Int("total", summary.Total),
		zap.Int("annotated", summary.Annotated),
		zap.Int("restored", summary.Restored),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

func (p *Pipeline) annotate(ctx context.Context, ordinal int, rec *dataset.Record) (string, error) {
	dbID := rec.DBID()
	if dbID == "" {
		return "", fmt.Errorf("record has no db_id")
	}
	target, err := p.contexts.Get(ctx, p.cfg.DBRoot, dbID, p.cfg.TargetSampleLimit)
	if err != nil {
		return "", err
	}

	exemplars, err := p.exemplars(ctx, rec)
	if err != nil {
		return "", err
	}

	pr := prompt.New(p.cfg.Style, prompt.Target{Schema: target, Question: rec.Question()}, exemplars)
	pr.AnswerTurns = p.cfg.AnswerTurns
	msgs, tokens, err := pr.Fit(p.counter, p.cfg.MaxPromptTokens)
	if err != nil {
		return "", err
	}
	p.logger.Debug("prompt ready",
		zap.Int("ordinal", ordinal),
		zap.Int("exemplars", len(pr.Exemplars)),
		zap.Int("dropped", pr.Dropped()),
		zap.Int("tokens", tokens))

	completion, err := p.client.CompleteTrim(ctx, msgs, pr.Trimmer())
	if err != nil {
		return "", err
	}

	var evidence string
	if p.cfg.Style.JSONAnswer() {
		evidence = extract.Evidence(completion.Text)
	} else {
		evidence = extract.Plain(completion.Text)
	}
	if extract.IsSentinel(evidence) {
		p.logger.Warn("no evidence in response", zap.Int("ordinal", ordinal), zap.String("db_id", dbID))
	}
	p.transcript.Exchange(ordinal, dbID, msgs, completion.Text, evidence)
	return evidence, nil
}

// exemplars retrieves similar training questions and renders each block's
// schema from the training databases. A block whose schema cannot be built
// is dropped.
func (p *Pipeline) exemplars(ctx context.Context, rec *dataset.Record) ([]prompt.Exemplar, error) {
	if p.finder == nil || p.cfg.TopK == 0 {
		return nil, nil
	}
	query := rec.Question()
	if p.cfg.UseMasked && rec.MaskedQuestion() != "" {
		query = rec.MaskedQuestion()
	}

	var groups []retrieval.Group
	if p.cfg.Diverse {
		var err error
		groups, err = p.finder.FindDiverse(ctx, query, p.cfg.TopK, p.cfg.TopN)
		if err != nil {
			return nil, err
		}
	} else {
		matches, err := p.finder.Find(ctx, query, p.cfg.TopK)
		if err != nil {
			return nil, err
		}
		groups = groupByDatabase(matches)
	}

	var out []prompt.Exemplar
	for _, g := range groups {
		dbID := g.Anchor.Entry.DBID
		text, err := p.contexts.Get(ctx, p.cfg.TrainDBRoot, dbID, p.cfg.ExemplarSampleLimit)
		if err != nil {
			p.logger.Warn("skipping exemplar block", zap.String("db_id", dbID), zap.Error(err))
			continue
		}
		pairs := []prompt.QA{{Question: g.Anchor.Entry.Question, Evidence: g.Anchor.Entry.Evidence}}
		for _, m := range g.Members {
			pairs = append(pairs, prompt.QA{Question: m.Entry.Question, Evidence: m.Entry.Evidence})
		}
		out = append(out, prompt.Exemplar{DBID: dbID, Schema: text, Pairs: pairs})
	}
	return out, nil
}

// groupByDatabase folds flat matches into one block per database, in order
// of each database's best match.
func groupByDatabase(matches []retrieval.Match) []retrieval.Group {
	var groups []retrieval.Group
	index := make(map[string]int)
	for _, m := range matches {
		if i, ok := index[m.Entry.DBID]; ok {
			groups[i].Members = append(groups[i].Members, m)
			continue
		}
		index[m.Entry.DBID] = len(groups)
		groups = append(groups, retrieval.Group{Anchor: m})
	}
	return groups
}
