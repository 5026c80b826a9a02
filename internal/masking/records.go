package masking

import (
	"context"

	"go.uber.org/zap"

	"evidencegen/internal/dataset"
	"evidencegen/internal/llm"
)

// MaskRecords sets masked_question on every record. A model failure for one
// record leaves its question unmasked; fatal model errors stop the run.
func MaskRecords(ctx context.Context, records []*dataset.Record, idx Index, masker Masker, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		question := rec.Question()
		masked, err := masker.MaskQuestion(ctx, question, idx.Lookup(rec.DBID()))
		if err != nil {
			if llm.IsFatal(err) {
				return err
			}
			logger.Warn("masking failed, keeping question", zap.Int("ordinal", i), zap.Error(err))
			masked = question
		}
		rec.SetString(dataset.KeyMaskedQuestion, masked)
		logger.Debug("masked question", zap.String("question", question), zap.String("masked", masked))
	}
	return nil
}
