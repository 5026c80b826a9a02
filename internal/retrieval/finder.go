package retrieval

import (
	"context"
	"fmt"
)

// Finder embeds incoming questions and ranks them against a pool.
type Finder struct {
	pool     *Pool
	embedder Embedder
	metric   Metric
}

// NewFinder creates a finder using the same embedder that built the pool.
func NewFinder(pool *Pool, embedder Embedder, metric Metric) *Finder {
	return &Finder{pool: pool, embedder: embedder, metric: metric}
}

// Pool returns the underlying pool.
func (f *Finder) Pool() *Pool { return f.pool }

func (f *Finder) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := f.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vec, nil
}

// Find returns the k closest pool entries.
func (f *Finder) Find(ctx context.Context, text string, k int) ([]Match, error) {
	if f.pool.Len() == 0 || k <= 0 {
		return nil, nil
	}
	vec, err := f.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return f.pool.FlatTopK(vec, k, f.metric)
}

// FindDiverse returns k groups from distinct databases with up to n
// additional same-database entries each.
func (f *Finder) FindDiverse(ctx context.Context, text string, k, n int) ([]Group, error) {
	if f.pool.Len() == 0 || k <= 0 {
		return nil, nil
	}
	vec, err := f.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return f.pool.DiverseTopK(vec, k, n, f.metric)
}
