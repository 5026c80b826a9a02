// Package retrievaltest provides deterministic embedders for tests.
package retrievaltest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
)

// BagOfWords hashes lower-cased words into Dim buckets. Texts sharing words
// end up close, which is enough to exercise ranking.
type BagOfWords struct {
	Dim int

	mu    sync.Mutex
	Calls int // EmbedDocuments/EmbedQuery invocations
	Texts int // texts embedded
	Err   error
}

// NewBagOfWords creates a 32-dimensional embedder.
func NewBagOfWords() *BagOfWords { return &BagOfWords{Dim: 32} }

// Vector embeds one text without counting the call.
func (b *BagOfWords) Vector(text string) []float32 {
	vec := make([]float32, b.Dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(w, "?.,!")))
		vec[int(h.Sum32())%b.Dim]++
	}
	return vec
}

// EmbedDocuments implements retrieval.Embedder.
func (b *BagOfWords) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.Calls++
	b.Texts += len(texts)
	err := b.Err
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = b.Vector(t)
	}
	return out, nil
}

// EmbedQuery implements retrieval.Embedder.
func (b *BagOfWords) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
