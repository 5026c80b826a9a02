package retrieval

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Metric orders pool entries against a query.
type Metric string

const (
	// Euclidean ranks by L2 distance, smaller first.
	Euclidean Metric = "euclidean"
	// Cosine ranks by cosine similarity, larger first.
	Cosine Metric = "cosine"
)

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(s)) {
	case Euclidean, "l2":
		return Euclidean, nil
	case Cosine, "":
		return Cosine, nil
	default:
		return "", fmt.Errorf("unknown metric %q (want euclidean or cosine)", s)
	}
}

// Match is a ranked pool entry.
type Match struct {
	Index int
	Score float64 // distance for Euclidean, similarity for Cosine
	Entry Entry
}

// Group is one diverse exemplar block: an anchor and further entries of
// the same database.
type Group struct {
	Anchor  Match
	Members []Match
}

// EuclideanDistance returns the L2 distance of two vectors of equal length.
func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns 0 when either vector has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// rank scores every entry and sorts best first; ties keep pool order.
func (p *Pool) rank(query []float32, metric Metric) ([]Match, error) {
	if len(p.entries) == 0 {
		return nil, nil
	}
	if len(query) != p.dim {
		return nil, fmt.Errorf("query dimension %d does not match pool dimension %d", len(query), p.dim)
	}

	matches := make([]Match, len(p.entries))
	for i, e := range p.entries {
		var score float64
		if metric == Euclidean {
			score = EuclideanDistance(query, e.Vector)
		} else {
			score = CosineSimilarity(query, e.Vector)
		}
		matches[i] = Match{Index: i, Score: score, Entry: e}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if metric == Euclidean {
			return matches[i].Score < matches[j].Score
		}
		return matches[i].Score > matches[j].Score
	})
	return matches, nil
}

// FlatTopK returns the k globally closest entries.
func (p *Pool) FlatTopK(query []float32, k int, metric Metric) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	ranked, err := p.rank(query, metric)
	if err != nil {
		return nil, err
	}
	if k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked, nil
}

// DiverseTopK walks the ranking taking the first entry of each unseen
// database until k anchors are chosen, then adds up to n further entries of
// each anchor's database in rank order.
func (p *Pool) DiverseTopK(query []float32, k, n int, metric Metric) ([]Group, error) {
	if k <= 0 {
		return nil, nil
	}
	ranked, err := p.rank(query, metric)
	if err != nil {
		return nil, err
	}

	var groups []Group
	seen := make(map[string]int)
	for _, m := range ranked {
		if len(groups) >= k {
			break
		}
		if _, ok := seen[m.Entry.DBID]; ok {
			continue
		}
		seen[m.Entry.DBID] = len(groups)
		groups = append(groups, Group{Anchor: m})
	}

	if n > 0 {
		for _, m := range ranked {
			gi, ok := seen[m.Entry.DBID]
			if !ok {
				continue
			}
			g := &groups[gi]
			if m.Index == g.Anchor.Index || len(g.Members) >= n {
				continue
			}
			g.Members = append(g.Members, m)
		}
	}
	return groups, nil
}
