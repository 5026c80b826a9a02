package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"evidencegen/internal/adapter"
)

const cacheSchema = `CREATE TABLE IF NOT EXISTS embedding_cache (
    model  TEXT NOT NULL,
    hash   TEXT NOT NULL,
    vector TEXT NOT NULL,
    PRIMARY KEY (model, hash)
)`

// CachedEmbedder stores vectors in a SQLite file keyed by model and text
// hash, and embeds misses in concurrent batches.
type CachedEmbedder struct {
	inner       Embedder
	db          adapter.DBAdapter
	model       string
	batchSize   int
	concurrency int
	logger      *zap.Logger
}

// NewCachedEmbedder opens (or creates) the cache at path.
func NewCachedEmbedder(ctx context.Context, inner Embedder, path, model string, batchSize, concurrency int, logger *zap.Logger) (*CachedEmbedder, error) {
	db := adapter.NewSQLiteAdapter(&adapter.SQLiteConfig{FilePath: path, MaxOpenConns: 1})
	if err := db.Connect(ctx); err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	if err := db.Exec(ctx, cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	if batchSize <= 0 {
		batchSize = 64
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		inner:       inner,
		db:          db,
		model:       model,
		batchSize:   batchSize,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// Close closes the cache database.
func (c *CachedEmbedder) Close() error { return c.db.Close() }

func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// EmbedDocuments returns one vector per text, in order.
func (c *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []int

	for i, t := range texts {
		vec, ok, err := c.lookup(ctx, t)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = vec
		} else {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}
	c.logger.Debug("embedding cache misses", zap.Int("hits", len(texts)-len(missing)), zap.Int("misses", len(missing)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for start := 0; start < len(missing); start += c.batchSize {
		end := start + c.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]
		g.Go(func() error {
			batchTexts := make([]string, len(batch))
			for j, idx := range batch {
				batchTexts[j] = texts[idx]
			}
			vecs, err := c.inner.EmbedDocuments(gctx, batchTexts)
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(batch))
			}
			for j, idx := range batch {
				out[idx] = vecs[j]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, idx := range missing {
		if err := c.store(ctx, texts[idx], out[idx]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// EmbedQuery embeds a single text through the cache.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *CachedEmbedder) lookup(ctx context.Context, text string) ([]float32, bool, error) {
	res, err := c.db.ExecuteQuery(ctx,
		"SELECT vector FROM embedding_cache WHERE model = ? AND hash = ?", c.model, textHash(text))
	if err != nil {
		return nil, false, fmt.Errorf("embedding cache lookup: %w", err)
	}
	if len(res.Rows) == 0 {
		return nil, false, nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(adapter.StringValue(res.Rows[0]["vector"])), &vec); err != nil {
		return nil, false, nil
	}
	return vec, true, nil
}

func (c *CachedEmbedder) store(ctx context.Context, text string, vec []float32) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	if err := c.db.Exec(ctx,
		"INSERT OR REPLACE INTO embedding_cache (model, hash, vector) VALUES (?, ?, ?)",
		c.model, textHash(text), string(data)); err != nil {
		return fmt.Errorf("embedding cache store: %w", err)
	}
	return nil
}
