package engine

import (
	"context"
	"testing"
	"time"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stage(id, node, action, decision, reason string) model.TraceRecord {
	return model.TraceRecord{RequestID: id, Node: node, Action: action, Decision: decision, ReasonCode: reason}
}

func funnelRecords() []model.TraceRecord {
	return []model.TraceRecord{
		stage("r1", model.NodeSSP, ActionRequestGenerated, model.DecisionPass, "REQUEST_CREATED"),
		stage("r1", model.NodeADX, ActionFinalDecision, model.DecisionPass, "ALL_FILTERS_PASSED"),
		stage("r1", model.NodeDSP, ActionBidSubmitted, model.DecisionPass, "BID_SUBMITTED"),
		stage("r1", model.NodeADX, ActionAuctionResult, model.DecisionPass, "AUCTION_WON"),
		stage("r2", model.NodeSSP, ActionRequestGenerated, model.DecisionPass, "REQUEST_CREATED"),
		stage("r2", model.NodeADX, "LATENCY_CHECK", model.DecisionReject, model.ReasonLatencyTimeout),
		stage("r2", model.NodeADX, ActionFinalDecision, model.DecisionReject, model.ReasonLatencyTimeout),
		stage("r3", model.NodeSSP, ActionRequestGenerated, model.DecisionPass, "REQUEST_CREATED"),
		stage("r3", model.NodeDSP, ActionBidCalculation, model.DecisionPass, "BID_CALCULATED"),
		stage("r4", model.NodeADX, "SIZE_CHECK", model.DecisionReject, "SIZE_MISMATCH"),
		stage("r5", model.NodeDSP, "QUALITY", model.DecisionReject, "SIZE_MISMATCH"),
	}
}

func TestComputeFunnel(t *testing.T) {
	f := ComputeFunnel(funnelRecords())

	assert.Equal(t, 5, f.Request)
	assert.Equal(t, 3, f.Valid)
	assert.Equal(t, 2, f.Bid)
	assert.Equal(t, 1, f.Win)
	assert.Equal(t, []string{"r2", "r4"}, f.FailedRequestIDs)
	assert.Equal(t, []ReasonCount{
		{Code: model.ReasonLatencyTimeout, Count: 2},
		{Code: "SIZE_MISMATCH", Count: 2},
	}, f.RejectReasons)
}

func TestComputeFunnel_Empty(t *testing.T) {
	f := ComputeFunnel(nil)
	assert.Zero(t, f.Request)
	assert.NotNil(t, f.FailedRequestIDs)
	assert.NotNil(t, f.RejectReasons)
}

func TestCurrentPattern(t *testing.T) {
	now := time.Date(2026, 10, 16, 14, 30, 0, 0, time.UTC)

	assert.Equal(t, "", CurrentPattern(nil, now, time.UTC))

	recs := []model.TraceRecord{
		stage("a", model.NodeADX, "SIZE_CHECK", model.DecisionReject, "SIZE_MISMATCH"),
		stage("b", model.NodeADX, "FLOOR", model.DecisionReject, "BID_BELOW_FLOOR"),
		stage("c", model.NodeADX, "FLOOR", model.DecisionReject, "BID_BELOW_FLOOR"),
		stage("d", model.NodeADX, "FLOOR", model.DecisionPass, "BID_ABOVE_FLOOR"),
	}
	assert.Equal(t, "14h_BID_BELOW_FLOOR", CurrentPattern(recs, now, time.UTC))

	// Equal counts: the newest (first) reason wins.
	assert.Equal(t, "22h_SIZE_MISMATCH", CurrentPattern(recs[:2], now, time.FixedZone("CST", 8*3600)))
}

func TestQueryEngine_FunnelAndPattern(t *testing.T) {
	qe := newTestEngine(&memStore{records: funnelRecords()})

	f, err := qe.Funnel(context.Background())
	require.NoError(t, err)
	// Recent limit is 3 in the test engine: r5, r4, r3 (bid calculation).
	assert.Equal(t, 3, f.Request)
	assert.Equal(t, 1, f.Bid)

	pattern, err := qe.CurrentPattern(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "15h_SIZE_MISMATCH", pattern)
}
