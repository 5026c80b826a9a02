package retrieval

import (
	"context"
	"fmt"
	"strings"
)

// Candidate is a training record offered to the pool.
type Candidate struct {
	Question       string
	MaskedQuestion string
	DBID           string
	Evidence       string
}

// Entry is an embedded pool member.
type Entry struct {
	Question string
	Text     string // what was embedded: the question or its masked form
	DBID     string
	Evidence string
	Vector   []float32
}

// PoolOptions control pool construction.
type PoolOptions struct {
	ExcludeDBs []string // db_ids never offered as exemplars
	UseMasked  bool     // embed masked_question when present
}

// Pool is immutable after BuildPool.
type Pool struct {
	entries []Entry
	dim     int
}

// Eligible reports whether a training record carries usable evidence.
func Eligible(evidence string) bool {
	e := strings.ToLower(strings.TrimSpace(evidence))
	return e != "" && e != "false;"
}

// BuildPool filters candidates and embeds the survivors.
func BuildPool(ctx context.Context, candidates []Candidate, emb Embedder, opts PoolOptions) (*Pool, error) {
	excluded := make(map[string]bool, len(opts.ExcludeDBs))
	for _, db := range opts.ExcludeDBs {
		excluded[strings.ToLower(db)] = true
	}

	var entries []Entry
	for _, c := range candidates {
		if !Eligible(c.Evidence) || excluded[strings.ToLower(c.DBID)] {
			continue
		}
		text := c.Question
		if opts.UseMasked && c.MaskedQuestion != "" {
			text = c.MaskedQuestion
		}
		entries = append(entries, Entry{Question: c.Question, Text: text, DBID: c.DBID, Evidence: c.Evidence})
	}
	if len(entries) == 0 {
		return &Pool{}, nil
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Text
	}
	vectors, err := emb.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed pool: %w", err)
	}
	return NewPool(entries, vectors)
}

// NewPool pairs entries with precomputed vectors of equal dimension.
func NewPool(entries []Entry, vectors [][]float32) (*Pool, error) {
	if len(entries) != len(vectors) {
		return nil, fmt.Errorf("pool has %d entries but %d vectors", len(entries), len(vectors))
	}
	p := &Pool{entries: make([]Entry, len(entries))}
	for i := range entries {
		if i == 0 {
			p.dim = len(vectors[0])
		} else if len(vectors[i]) != p.dim {
			return nil, fmt.Errorf("pool vector %d has dimension %d, want %d", i, len(vectors[i]), p.dim)
		}
		p.entries[i] = entries[i]
		p.entries[i].Vector = vectors[i]
	}
	return p, nil
}

// Len returns the number of entries.
func (p *Pool) Len() int { return len(p.entries) }

// Entry returns the i-th entry.
func (p *Pool) Entry(i int) Entry { return p.entries[i] }
