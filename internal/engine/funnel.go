package engine

import (
	"sort"
	"strconv"
	"time"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/model"
)

// Actions that mark funnel stages.
const (
	ActionRequestGenerated = "REQUEST_GENERATED"
	ActionBidCalculation   = "BID_CALCULATION"
	ActionBidSubmitted     = "BID_SUBMITTED"
	ActionAuctionResult    = "AUCTION_RESULT"
	ActionFinalDecision    = "FINAL_DECISION"
)

// ReasonCount is how often a rejection reason occurred.
type ReasonCount struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// Funnel counts distinct request ids reaching each pipeline stage.
type Funnel struct {
	Request          int           `json:"request"`
	Valid            int           `json:"valid"`
	Bid              int           `json:"bid"`
	Win              int           `json:"win"`
	FailedRequestIDs []string      `json:"failed_request_ids"`
	RejectReasons    []ReasonCount `json:"reject_reasons"`
}

// ComputeFunnel aggregates the funnel over records.
func ComputeFunnel(records []model.TraceRecord) Funnel {
	requests := make(map[string]struct{})
	valid := make(map[string]struct{})
	bids := make(map[string]struct{})
	wins := make(map[string]struct{})
	failedSeen := make(map[string]struct{})

	f := Funnel{
		FailedRequestIDs: make([]string, 0),
		RejectReasons:    make([]ReasonCount, 0),
	}

	for i := range records {
		rec := &records[i]
		requests[rec.RequestID] = struct{}{}

		if rec.Node == model.NodeSSP && rec.Action == ActionRequestGenerated {
			valid[rec.RequestID] = struct{}{}
		}
		if rec.Node == model.NodeDSP && (rec.Action == ActionBidCalculation || rec.Action == ActionBidSubmitted) {
			bids[rec.RequestID] = struct{}{}
		}
		if rec.Action == ActionAuctionResult ||
			(rec.Node == model.NodeADX && rec.Action == ActionFinalDecision && rec.Decision == model.DecisionPass) {
			wins[rec.RequestID] = struct{}{}
		}

		if rec.IsRejected() && (rec.Action == ActionFinalDecision || rec.Node == model.NodeADX) {
			if _, ok := failedSeen[rec.RequestID]; !ok {
				failedSeen[rec.RequestID] = struct{}{}
				f.FailedRequestIDs = append(f.FailedRequestIDs, rec.RequestID)
			}
		}
	}

	f.Request = len(requests)
	f.Valid = len(valid)
	f.Bid = len(bids)
	f.Win = len(wins)
	f.RejectReasons = rejectReasons(records)
	return f
}

// rejectReasons counts reason codes of REJECT records, most frequent
// first. Ties keep the order in which codes were first seen.
func rejectReasons(records []model.TraceRecord) []ReasonCount {
	out := make([]ReasonCount, 0)
	index := make(map[string]int)
	for i := range records {
		rec := &records[i]
		if !rec.IsRejected() {
			continue
		}
		code := rec.LossType()
		idx, ok := index[code]
		if !ok {
			idx = len(out)
			index[code] = idx
			out = append(out, ReasonCount{Code: code})
		}
		out[idx].Count++
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}

// CurrentPattern builds a query signature "{hour}h_{reason}" from now's
// hour and the dominant rejection reason in records. records are expected
// newest first, so ties go to the most recent reason. It returns "" when
// no record is a rejection.
func CurrentPattern(records []model.TraceRecord, now time.Time, loc *time.Location) string {
	reasons := rejectReasons(records)
	if len(reasons) == 0 {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}
	return strconv.Itoa(now.In(loc).Hour()) + "h_" + reasons[0].Code
}
