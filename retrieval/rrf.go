package retrieval

import "sort"

// rrfK is the standard Reciprocal Rank Fusion constant from the literature.
const rrfK = 60

// FusedResultInfo records which retrieval methods contributed to a result
// and at what rank, for trace/debugging purposes.
type FusedResultInfo struct {
	Methods    []string `json:"methods"`
	BM25Rank   int      `json:"bm25_rank,omitempty"`   // 1-based, 0 = not present
	VectorRank int      `json:"vector_rank,omitempty"` // 1-based, 0 = not present
}

// fuseRRF combines BM25 and vector result sets with Reciprocal Rank Fusion:
// score = sum(weight_i / (rrfK + rank_i)). Fusion ranks by reciprocal rank,
// not by the raw/normalized scores carried on each Result, so BM25 and
// cosine/L2 distances never need to be on a comparable scale for the fused
// ordering itself.
func fuseRRF(bm25Results, vecResults []Result, weightBM25, weightVector float64, maxResults int) ([]Result, map[string]FusedResultInfo) {
	type fusedEntry struct {
		result Result
		score  float64
		info   FusedResultInfo
	}

	fused := make(map[string]*fusedEntry)

	for rank, r := range bm25Results {
		entry, ok := fused[r.ChunkID]
		if !ok {
			entry = &fusedEntry{result: r}
			fused[r.ChunkID] = entry
		}
		entry.score += weightBM25 / float64(rrfK+rank+1)
		entry.info.Methods = append(entry.info.Methods, "bm25")
		entry.info.BM25Rank = rank + 1
		entry.result.BM25Score = r.BM25Score
		entry.result.BM25Normalized = r.BM25Normalized
	}

	for rank, r := range vecResults {
		entry, ok := fused[r.ChunkID]
		if !ok {
			entry = &fusedEntry{result: r}
			fused[r.ChunkID] = entry
		}
		entry.score += weightVector / float64(rrfK+rank+1)
		entry.info.Methods = append(entry.info.Methods, "vector")
		entry.info.VectorRank = rank + 1
		entry.result.VectorDistance = r.VectorDistance
	}

	entries := make([]*fusedEntry, 0, len(fused))
	for _, e := range fused {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].score > entries[j].score
	})

	if maxResults > 0 && len(entries) > maxResults {
		entries = entries[:maxResults]
	}

	results := make([]Result, len(entries))
	infoMap := make(map[string]FusedResultInfo, len(entries))
	for i, e := range entries {
		e.result.Score = e.score
		results[i] = e.result
		infoMap[e.result.ChunkID] = e.info
	}
	return results, infoMap
}

// normalizeBM25 min-max normalizes raw BM25 scores (already negated so
// higher is better) to [0, 1] in place. A single-result set normalizes to
// 1.0, matching the documented single-hit convention.
func normalizeBM25(results []Result) {
	if len(results) == 0 {
		return
	}
	if len(results) == 1 {
		results[0].BM25Normalized = 1.0
		return
	}
	min, max := results[0].BM25Score, results[0].BM25Score
	for _, r := range results[1:] {
		if r.BM25Score < min {
			min = r.BM25Score
		}
		if r.BM25Score > max {
			max = r.BM25Score
		}
	}
	spread := max - min
	for i := range results {
		if spread == 0 {
			results[i].BM25Normalized = 1.0
			continue
		}
		results[i].BM25Normalized = (results[i].BM25Score - min) / spread
	}
}
