package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceRecord_Region(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]Value
		want string
	}{
		{"nil map", nil, DefaultRegion},
		{"absent", map[string]Value{"other": StringValue("x")}, DefaultRegion},
		{"empty string", map[string]Value{VarRegion: StringValue("")}, DefaultRegion},
		{"null", map[string]Value{VarRegion: {}}, DefaultRegion},
		{"present", map[string]Value{VarRegion: StringValue("br")}, "br"},
		{"numeric", map[string]Value{VarRegion: NumberValue(86)}, "86"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := TraceRecord{InternalVariables: tt.vars}
			assert.Equal(t, tt.want, rec.Region())
		})
	}
}

func TestTraceRecord_PotentialLoss(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]Value
		want float64
	}{
		{"absent", nil, DefaultPotentialLoss},
		{"string", map[string]Value{VarPotentialLoss: StringValue("0.4")}, DefaultPotentialLoss},
		{"number", map[string]Value{VarPotentialLoss: NumberValue(0.35)}, 0.35},
		{"zero", map[string]Value{VarPotentialLoss: NumberValue(0)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := TraceRecord{InternalVariables: tt.vars}
			assert.InDelta(t, tt.want, rec.PotentialLoss(), 1e-12)
		})
	}
}

func TestTraceRecord_LossType(t *testing.T) {
	assert.Equal(t, "unknown", (&TraceRecord{}).LossType())
	assert.Equal(t, ReasonLatencyTimeout, (&TraceRecord{ReasonCode: ReasonLatencyTimeout}).LossType())
}

func TestValue_MarshalJSON(t *testing.T) {
	vars := map[string]Value{
		"s": StringValue("br"),
		"n": NumberValue(1.5),
		"b": BoolValue(true),
		"r": RawValue(`[300,250]`),
		"z": {},
	}

	data, err := json.Marshal(vars)
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"br","n":1.5,"b":true,"r":[300,250],"z":null}`, string(data))
}
