package reasoncode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()

	tests := []struct {
		code      string
		label     string
		rejection bool
	}{
		{"LATENCY_TIMEOUT", "Response timed out", true},
		{"BID_BELOW_FLOOR", "Bid below floor price", true},
		{"AUCTION_WON", "Auction won", false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			e, ok := c.Lookup(tt.code)
			require.True(t, ok)
			assert.Equal(t, tt.label, e.Label)
			assert.Equal(t, tt.rejection, e.Rejection)
			assert.NotEmpty(t, e.LabelZH)
		})
	}

	assert.Len(t, c.Entries(), 18)
	assert.Equal(t, "LATENCY_TIMEOUT", c.Entries()[0].Code)
}

func TestLabel_UnknownFallsBack(t *testing.T) {
	assert.Equal(t, "NEW_CODE", Default().Label("NEW_CODE"))
}

func TestLoad_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
codes:
  - code: LATENCY_TIMEOUT
    label: Upstream too slow
    rejection: true
  - code: GEO_BLOCKED
    label: Geo blocked
    rejection: true
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Upstream too slow", c.Label("LATENCY_TIMEOUT"))
	assert.Equal(t, "Geo blocked", c.Label("GEO_BLOCKED"))
	assert.Len(t, c.Entries(), 19)
	assert.Equal(t, "LATENCY_TIMEOUT", c.Entries()[0].Code)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("codes:\n  - label: nameless\n"))
	assert.ErrorIs(t, err, ErrInvalidCatalog)

	_, err = Parse([]byte("codes: [unterminated"))
	assert.ErrorIs(t, err, ErrInvalidCatalog)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
