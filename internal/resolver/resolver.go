// Package resolver matches free-text product references against the catalog
// snapshot using normalized string similarity.
package resolver

import (
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/shoplens-ai/catalog-assistant/internal/model"
)

const (
	// ThresholdStrict is the minimum score for direct operation targets.
	ThresholdStrict = 0.6
	// ThresholdLoose is the minimum score for best-effort exclusion lists.
	ThresholdLoose = 0.4

	// MaxCandidates caps the clarification candidate list.
	MaxCandidates = 5
)

// Match pairs a product with its similarity score.
type Match struct {
	Product model.Product
	Score   float64
}

// Resolver scores products against free-text references.
type Resolver struct {
	metric strutil.StringMetric
}

// New creates a resolver backed by Jaro-Winkler similarity.
func New() *Resolver {
	return &Resolver{metric: metrics.NewJaroWinkler()}
}

// Score returns the similarity between a query and a product name in [0,1].
// Containment of one normalized string in the other counts as a full match.
func (r *Resolver) Score(query, name string) float64 {
	q := normalize(query)
	n := normalize(name)
	if q == "" || n == "" {
		return 0
	}
	if strings.Contains(n, q) || strings.Contains(q, n) {
		return 1
	}
	return strutil.Similarity(q, n, r.metric)
}

// Rank returns all products scoring at or above threshold, highest first.
// Equal scores keep catalog order so ties stay visible to the caller.
func (r *Resolver) Rank(query string, products []model.Product, threshold float64) []Match {
	var matches []Match
	for _, p := range products {
		if score := r.Score(query, p.Name); score >= threshold {
			matches = append(matches, Match{Product: p, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// Resolve resolves a query to exactly one product. A single match above the
// strict threshold resolves directly; several matches are all surfaced for
// clarification and zero matches report not-found. Ambiguity never silently
// picks one option.
func (r *Resolver) Resolve(operation, query string, products []model.Product) *model.ToolCallResult {
	matches := r.Rank(query, products, ThresholdStrict)
	switch len(matches) {
	case 0:
		return model.ErrResult(model.ErrCodeProductNotFound, "товар «"+query+"» не найден", "product")
	case 1:
		p := matches[0].Product
		return model.OKResult(&model.ResultData{Action: operation, Product: &p})
	}

	if len(matches) > MaxCandidates {
		matches = matches[:MaxCandidates]
	}
	candidates := make([]model.Candidate, len(matches))
	for i, m := range matches {
		candidates[i] = model.Candidate{ID: m.Product.ID, Name: m.Product.Name, Price: m.Product.Price}
	}
	return model.ClarifyResult(&model.Clarification{
		Operation:  operation,
		Candidates: candidates,
	})
}

// ResolveExclusions maps free-text exclusion terms to product ids with the
// loose threshold. Unmatched terms are returned, not treated as errors.
func (r *Resolver) ResolveExclusions(terms []string, products []model.Product) (ids []string, unmatched []string) {
	seen := make(map[string]bool)
	for _, term := range terms {
		matches := r.Rank(term, products, ThresholdLoose)
		if len(matches) == 0 {
			unmatched = append(unmatched, term)
			continue
		}
		id := matches[0].Product.ID
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, unmatched
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
