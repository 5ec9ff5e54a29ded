package engine

import (
	"context"
	"sort"
	"time"
)

// HistoricalPattern is one ranked match against the query signature.
type HistoricalPattern struct {
	Timestamp       string  `json:"timestamp"`
	PatternType     string  `json:"pattern_type"`
	Frequency       int     `json:"frequency"`
	AvgLoss         float64 `json:"avg_loss"`
	SimilarityScore float64 `json:"similarity_score"`

	// FirstSeen is Timestamp parsed.
	FirstSeen time.Time `json:"-"`
}

// MatchResult is the ranked output of Match plus window counters.
type MatchResult struct {
	Matches         []HistoricalPattern
	TotalPatterns   int
	RecentLogsCount int
}

// Match scores every group of w against query, keeps the ones strictly
// above the threshold, and returns at most TopN of them, most similar
// first. Equal scores keep the window's group order.
func Match(ctx context.Context, w *Window, query string, opts Options) (MatchResult, error) {
	opts = opts.withDefaults()
	res := MatchResult{
		Matches:         make([]HistoricalPattern, 0),
		TotalPatterns:   len(w.Groups),
		RecentLogsCount: w.Retained,
	}

	for i, g := range w.Groups {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return MatchResult{}, err
			}
		}

		score := Similarity(query, g.Signature)
		if score <= opts.Threshold {
			continue
		}

		first := g.Earliest()
		res.Matches = append(res.Matches, HistoricalPattern{
			Timestamp:       g.Members[first].Timestamp,
			PatternType:     g.Signature,
			Frequency:       len(g.Members),
			AvgLoss:         g.AvgLoss(),
			SimilarityScore: score,
			FirstSeen:       g.Times[first],
		})
	}

	sort.SliceStable(res.Matches, func(i, j int) bool {
		return res.Matches[i].SimilarityScore > res.Matches[j].SimilarityScore
	})

	if len(res.Matches) > opts.TopN {
		res.Matches = res.Matches[:opts.TopN]
	}
	return res, nil
}
