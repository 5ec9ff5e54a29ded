package traceql

import (
	"strconv"
	"strings"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/model"
)

// Match reports whether rec satisfies n. A nil node matches everything.
func Match(n Node, rec *model.TraceRecord) bool {
	switch e := n.(type) {
	case nil:
		return true
	case BinaryExpr:
		if e.Op == "OR" {
			return Match(e.Left, rec) || Match(e.Right, rec)
		}
		return Match(e.Left, rec) && Match(e.Right, rec)
	case NotExpr:
		return !Match(e.Expr, rec)
	case CompareExpr:
		return evalCompare(e, rec)
	}
	return false
}

// Filter returns the records matching n, preserving order.
func Filter(n Node, records []model.TraceRecord) []model.TraceRecord {
	if n == nil {
		return records
	}
	out := make([]model.TraceRecord, 0, len(records))
	for i := range records {
		if Match(n, &records[i]) {
			out = append(out, records[i])
		}
	}
	return out
}

func evalCompare(e CompareExpr, rec *model.TraceRecord) bool {
	if e.Key == "" {
		return containsFold(rec.Reasoning, e.Value) || containsFold(rec.ReasonCode, e.Value)
	}

	field, ok := fieldValue(e.Key, rec)
	switch e.Op {
	case OpEq:
		return ok && strings.EqualFold(field.String(), e.Value)
	case OpNeq:
		return !ok || !strings.EqualFold(field.String(), e.Value)
	case OpContains:
		return ok && containsFold(field.String(), e.Value)
	}

	// Ordering operators only apply to numbers.
	got, isNum := field.Float()
	want, err := strconv.ParseFloat(e.Value, 64)
	if !ok || !isNum || err != nil {
		return false
	}
	switch e.Op {
	case OpGt:
		return got > want
	case OpGte:
		return got >= want
	case OpLt:
		return got < want
	case OpLte:
		return got <= want
	}
	return false
}

// fieldValue resolves a field name. Unknown names fall through to
// internal_variables, so "region" and "var.region" are the same field.
func fieldValue(key string, rec *model.TraceRecord) (model.Value, bool) {
	k := strings.ToLower(key)
	switch k {
	case "id", "request_id":
		return model.StringValue(rec.RequestID), true
	case "node":
		return model.StringValue(rec.Node), true
	case "action":
		return model.StringValue(rec.Action), true
	case "decision":
		return model.StringValue(rec.Decision), true
	case "reason", "reason_code":
		return model.StringValue(rec.ReasonCode), true
	case "reasoning":
		return model.StringValue(rec.Reasoning), true
	case "ts", "timestamp":
		return model.StringValue(rec.Timestamp), true
	case "pctr":
		return optNumber(rec.PCTR)
	case "pcvr":
		return optNumber(rec.PCVR)
	case "ecpm":
		return optNumber(rec.ECPM)
	case "latency", "latency_ms":
		return optNumber(rec.LatencyMs)
	case "second_best_bid":
		return optNumber(rec.SecondBestBid)
	case "actual_paid_price":
		return optNumber(rec.ActualPaidPrice)
	case "saved_amount":
		return optNumber(rec.SavedAmount)
	}

	name := strings.TrimPrefix(key, "var.")
	v := rec.Var(name)
	if v.IsNull() {
		return v, false
	}
	return v, true
}

func optNumber(f *float64) (model.Value, bool) {
	if f == nil {
		return model.Value{}, false
	}
	return model.NumberValue(*f), true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
