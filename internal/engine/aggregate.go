package engine

import (
	"context"
	"math"
	"time"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/model"
)

// checkEvery is how many loop iterations run between context checks.
const checkEvery = 1024

// maxWindowHours is the largest look-back a time.Duration can express.
const maxWindowHours = math.MaxInt64 / int64(time.Hour)

// windowStart returns now - hoursBack. Look-backs too long for a
// time.Duration start at the zero time, so every record is inside.
func windowStart(now time.Time, hoursBack int) time.Time {
	if int64(hoursBack) > maxWindowHours {
		return time.Time{}
	}
	return now.Add(-time.Duration(hoursBack) * time.Hour)
}

// PatternGroup collects the windowed records that share one signature.
// Members and Times are index-aligned and keep encounter order.
type PatternGroup struct {
	Signature string
	Members   []*model.TraceRecord
	Times     []time.Time
	Losses    []float64
}

// Earliest returns the index of the member with the smallest timestamp.
// The first one wins on ties.
func (g *PatternGroup) Earliest() int {
	idx := 0
	for i := 1; i < len(g.Times); i++ {
		if g.Times[i].Before(g.Times[idx]) {
			idx = i
		}
	}
	return idx
}

// AvgLoss is the mean of the collected losses, 0 when there are none.
func (g *PatternGroup) AvgLoss() float64 {
	if len(g.Losses) == 0 {
		return 0
	}
	var sum float64
	for _, l := range g.Losses {
		sum += l
	}
	return sum / float64(len(g.Losses))
}

// Window is the result of aggregating records over a trailing time span.
// Groups are ordered by first encounter so results are reproducible.
type Window struct {
	Cutoff   time.Time
	Groups   []*PatternGroup
	Retained int // records inside the window
	Excluded int // records dropped for an unparseable timestamp

	index map[string]int
}

func newWindow(cutoff time.Time) *Window {
	return &Window{
		Cutoff: cutoff,
		Groups: make([]*PatternGroup, 0),
		index:  make(map[string]int),
	}
}

// Group returns the group for a signature, if present.
func (w *Window) Group(signature string) (*PatternGroup, bool) {
	idx, ok := w.index[signature]
	if !ok {
		return nil, false
	}
	return w.Groups[idx], true
}

func (w *Window) add(sig string, rec *model.TraceRecord, t time.Time) *PatternGroup {
	idx, ok := w.index[sig]
	if !ok {
		idx = len(w.Groups)
		w.index[sig] = idx
		w.Groups = append(w.Groups, &PatternGroup{Signature: sig})
	}
	g := w.Groups[idx]
	g.Members = append(g.Members, rec)
	g.Times = append(g.Times, t)
	return g
}

// Aggregate keeps the records whose timestamp is at or after
// now - hoursBack, groups them by signature and collects the potential
// loss of every LATENCY_TIMEOUT record. Records with an unparseable
// timestamp are counted in Excluded and otherwise ignored.
func Aggregate(ctx context.Context, records []model.TraceRecord, hoursBack int, now time.Time, loc *time.Location) (*Window, error) {
	cutoff := windowStart(now, hoursBack)
	w := newWindow(cutoff)

	for i := range records {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		rec := &records[i]
		t, err := rec.Time(loc)
		if err != nil {
			w.Excluded++
			continue
		}
		if t.Before(cutoff) {
			continue
		}

		w.Retained++
		g := w.add(signatureAt(rec, t, loc), rec, t)
		if rec.ReasonCode == model.ReasonLatencyTimeout {
			g.Losses = append(g.Losses, rec.PotentialLoss())
		}
	}

	return w, nil
}
