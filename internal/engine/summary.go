package engine

import (
	"fmt"
	"time"
)

// SummaryParams are the fields the recommendation sentence is built from.
type SummaryParams struct {
	When       time.Time
	Similarity float64
	Frequency  int
	DateLayout string
}

// RenderSummary fills the recommendation template.
func RenderSummary(p SummaryParams) string {
	layout := p.DateLayout
	if layout == "" {
		layout = DefaultDateLayout
	}
	return fmt.Sprintf(
		"[History replay] This pattern closely resembles the fluctuation at %s %d:00 (similarity %.1f%%), "+
			"which occurred %d times at that time; recommend continuing the noise-reduction strategy used at that time.",
		p.When.Format(layout), p.When.Hour(), p.Similarity*100, p.Frequency,
	)
}

// Summarize describes the best match, or returns "" when there is none.
func Summarize(matches []HistoricalPattern, opts Options) string {
	if len(matches) == 0 {
		return ""
	}
	opts = opts.withDefaults()
	top := matches[0]
	return RenderSummary(SummaryParams{
		When:       top.FirstSeen.In(opts.Location),
		Similarity: top.SimilarityScore,
		Frequency:  top.Frequency,
		DateLayout: opts.DateLayout,
	})
}
