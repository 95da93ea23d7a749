package bot

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caucion-rate-alerts/internal/alerting"
)

func TestParseThreshold(t *testing.T) {
	pref, err := parseThreshold("1.5")
	require.NoError(t, err)
	assert.Equal(t, alerting.PrefThreshold, pref.Kind)
	assert.Equal(t, "1.5", pref.Threshold.String())
}

func TestParseThresholdToleratesPercentSign(t *testing.T) {
	pref, err := parseThreshold(" 2% ")
	require.NoError(t, err)
	assert.Equal(t, "2", pref.Threshold.String())
}

func TestParseThresholdEmpty(t *testing.T) {
	_, err := parseThreshold("   ")
	assert.ErrorIs(t, err, errEmptyThreshold)
}

func TestParseThresholdRejectsNonPositive(t *testing.T) {
	_, err := parseThreshold("0")
	assert.ErrorIs(t, err, alerting.ErrInvalidThreshold)

	_, err = parseThreshold("-1.2")
	assert.ErrorIs(t, err, alerting.ErrInvalidThreshold)
}

func TestParseThresholdRejectsJunk(t *testing.T) {
	_, err := parseThreshold("mucho")
	assert.Error(t, err)
}

func TestAdminGate(t *testing.T) {
	h := NewHandler(Options{AdminIDs: []int64{42}}, zerolog.Nop())
	_, ok := h.admins[42]
	assert.True(t, ok)
	_, ok = h.admins[7]
	assert.False(t, ok)
}
