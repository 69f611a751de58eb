package retrieval

import "context"

// Reranker re-scores fused candidates, one score per candidate in the same
// order as in. Implementations are model-agnostic: nothing in this package
// assumes a cross-encoder or any particular model is available.
type Reranker interface {
	Score(ctx context.Context, query string, candidates []Result) ([]float64, error)
}

// TermOverlapReranker scores each candidate by the fraction of significant
// query terms it contains. It is the default reranker: cheap, dependency-free,
// and good enough to demote a candidate that only matched on a stop word or
// a stray token the fusion step happened to rank highly.
type TermOverlapReranker struct{}

func (TermOverlapReranker) Score(ctx context.Context, query string, candidates []Result) ([]float64, error) {
	queryTerms := make(map[string]bool)
	for _, t := range tokenize(query) {
		if !isStopWord(t) {
			queryTerms[t] = true
		}
	}

	scores := make([]float64, len(candidates))
	if len(queryTerms) == 0 {
		return scores, nil
	}

	for i, c := range candidates {
		textTerms := make(map[string]bool)
		for _, t := range tokenize(c.Text) {
			textTerms[t] = true
		}
		hits := 0
		for t := range queryTerms {
			if textTerms[t] {
				hits++
			}
		}
		scores[i] = float64(hits) / float64(len(queryTerms))
	}
	return scores, nil
}
