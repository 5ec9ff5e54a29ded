package model

// Reserved reason codes the engine treats specially.
const (
	ReasonLatencyTimeout = "LATENCY_TIMEOUT"
)

// Decisions emitted by pipeline nodes.
const (
	DecisionPass   = "PASS"
	DecisionReject = "REJECT"
)

// Pipeline nodes.
const (
	NodeSSP = "SSP"
	NodeADX = "ADX"
	NodeDSP = "DSP"
)

// Variable keys read from InternalVariables.
const (
	VarRegion        = "region"
	VarPotentialLoss = "potential_loss"
)

// Fallbacks for absent variables.
const (
	DefaultRegion        = "unknown"
	DefaultPotentialLoss = 0.1
)

// TraceRecord is one decision event written by the ad-exchange pipeline.
// Multiple stages of the same auction share a RequestID.
// Timestamp is kept as written; it is parsed only when a record is windowed.
type TraceRecord struct {
	RequestID         string           `json:"request_id"`
	Timestamp         string           `json:"timestamp"`
	Node              string           `json:"node"`
	Action            string           `json:"action"`
	Decision          string           `json:"decision"`
	ReasonCode        string           `json:"reason_code"`
	InternalVariables map[string]Value `json:"internal_variables"`
	Reasoning         string           `json:"reasoning"`

	PCTR            *float64 `json:"pCTR"`
	PCVR            *float64 `json:"pCVR"`
	ECPM            *float64 `json:"eCPM"`
	LatencyMs       *float64 `json:"latency_ms"`
	SecondBestBid   *float64 `json:"second_best_bid"`
	ActualPaidPrice *float64 `json:"actual_paid_price"`
	SavedAmount     *float64 `json:"saved_amount"`
}

// Var returns the named internal variable, or a Null value.
func (r *TraceRecord) Var(key string) Value {
	if r.InternalVariables == nil {
		return Value{}
	}
	return r.InternalVariables[key]
}

// Region returns the record's region variable or DefaultRegion when it is
// absent, null, or empty.
func (r *TraceRecord) Region() string {
	v := r.Var(VarRegion)
	if v.IsNull() {
		return DefaultRegion
	}
	if s := v.String(); s != "" {
		return s
	}
	return DefaultRegion
}

// PotentialLoss returns the numeric potential_loss variable, or
// DefaultPotentialLoss when it is absent or not a number.
func (r *TraceRecord) PotentialLoss() float64 {
	if f, ok := r.Var(VarPotentialLoss).Float(); ok {
		return f
	}
	return DefaultPotentialLoss
}

// LossType is the reason code, or "unknown" when it is empty.
func (r *TraceRecord) LossType() string {
	if r.ReasonCode == "" {
		return "unknown"
	}
	return r.ReasonCode
}

// IsRejected reports whether the record carries a REJECT decision.
func (r *TraceRecord) IsRejected() bool {
	return r.Decision == DecisionReject
}
