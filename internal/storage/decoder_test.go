package storage

import (
	"errors"
	"strings"
	"testing"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_Decode(t *testing.T) {
	line := `{"request_id":"req-1","timestamp":"2026-10-16T14:03:22.123456","node":"ADX",` +
		`"action":"LATENCY_CHECK","decision":"REJECT","reason_code":"LATENCY_TIMEOUT",` +
		`"internal_variables":{"region":"br","potential_loss":0.25,"ad_size":[300,250],"is_ios":true,"note":null},` +
		`"reasoning":"too slow","pCTR":0.012,"eCPM":null,"latency_ms":130.5}`

	rec, err := NewDecoder().Decode([]byte(line))
	require.NoError(t, err)

	assert.Equal(t, "req-1", rec.RequestID)
	assert.Equal(t, "2026-10-16T14:03:22.123456", rec.Timestamp)
	assert.Equal(t, model.NodeADX, rec.Node)
	assert.Equal(t, model.DecisionReject, rec.Decision)
	assert.Equal(t, model.ReasonLatencyTimeout, rec.ReasonCode)
	assert.Equal(t, "too slow", rec.Reasoning)
	assert.Equal(t, "br", rec.Region())
	assert.InDelta(t, 0.25, rec.PotentialLoss(), 1e-12)

	assert.Equal(t, model.KindRaw, rec.Var("ad_size").Kind())
	assert.Equal(t, "[300,250]", rec.Var("ad_size").String())
	assert.Equal(t, model.KindBool, rec.Var("is_ios").Kind())
	assert.True(t, rec.Var("note").IsNull())

	require.NotNil(t, rec.PCTR)
	assert.InDelta(t, 0.012, *rec.PCTR, 1e-12)
	require.NotNil(t, rec.LatencyMs)
	assert.Nil(t, rec.ECPM)
	assert.Nil(t, rec.PCVR)
}

func TestDecoder_DecodeRejectsNonObjects(t *testing.T) {
	d := NewDecoder()
	for _, line := range []string{`not json`, `[1,2]`, `"str"`, `{"unterminated":`} {
		_, err := d.Decode([]byte(line))
		assert.True(t, errors.Is(err, model.ErrDecode), "line %q", line)
	}
}

func TestDecoder_DecodeStreamSkipsMalformed(t *testing.T) {
	input := strings.Join([]string{
		`{"request_id":"a","reason_code":"BID_BELOW_FLOOR"}`,
		`{broken`,
		``,
		`   `,
		`{"request_id":"b"}`,
		`garbage line`,
		`{"request_id":"c"}`,
	}, "\n")

	var ids []string
	stats, err := NewDecoder().DecodeStream(strings.NewReader(input), func(rec model.TraceRecord) {
		ids = append(ids, rec.RequestID)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, 5, stats.Lines)
	assert.Equal(t, 3, stats.Decoded)
	assert.Equal(t, 2, stats.Skipped)
}
