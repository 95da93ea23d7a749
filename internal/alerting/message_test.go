package alerting

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"caucion-rate-alerts/internal/rates"
)

func testSnapshot() rates.Snapshot {
	capturedAt := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	return rates.NewSnapshot(capturedAt, map[rates.Tenor]decimal.Decimal{
		rates.TenorD1: decimal.RequireFromString("35.55"),
		rates.TenorD2: decimal.RequireFromString("36.10"),
	})
}

func TestRenderRatesOpenMarket(t *testing.T) {
	text := RenderRates(testSnapshot(), nil, true)

	assert.Contains(t, text, "TASAS DE CAUCIONES")
	assert.Contains(t, text, "24hs: `35.55%` TNA")
	assert.Contains(t, text, "48hs: `36.10%` TNA")
	assert.Contains(t, text, "2026-03-02 14:30:00")
	assert.NotContains(t, text, "Mercado cerrado")
}

func TestRenderRatesClosedMarketCarriesFlag(t *testing.T) {
	text := RenderRates(testSnapshot(), nil, false)
	assert.Contains(t, text, "Mercado cerrado")
}

func TestRenderRatesWithChangeIndicators(t *testing.T) {
	changes := rates.ChangeSet{
		rates.TenorD1: {
			AbsoluteDelta: decimal.RequireFromString("0.05"),
			PercentDelta:  decimal.RequireFromString("0.14"),
			Changed:       true,
		},
	}

	text := RenderRates(testSnapshot(), changes, true)
	assert.Contains(t, text, "24hs: `35.55%` TNA 📈 +0.05pp (+0.14%)")
}

func TestRenderChangeAlertShowsDeltaOnlyOnChangedTenors(t *testing.T) {
	changes := rates.ChangeSet{
		rates.TenorD1: {
			Previous:      decimal.RequireFromString("35.50"),
			Current:       decimal.RequireFromString("35.55"),
			AbsoluteDelta: decimal.RequireFromString("0.05"),
			PercentDelta:  decimal.RequireFromString("0.1408"),
			Changed:       true,
		},
	}

	text := RenderChangeAlert(testSnapshot(), changes)

	assert.Contains(t, text, "¡Cambio en las tasas!")
	assert.Contains(t, text, "📈 +0.05pp (+0.14%)")
	// The unchanged tenor is listed without an arrow.
	assert.Contains(t, text, "48hs: `36.10%` TNA\n")
}

func TestRenderChangeAlertDownwardMove(t *testing.T) {
	changes := rates.ChangeSet{
		rates.TenorD2: {
			Previous:      decimal.RequireFromString("36.60"),
			Current:       decimal.RequireFromString("36.10"),
			AbsoluteDelta: decimal.RequireFromString("-0.50"),
			PercentDelta:  decimal.RequireFromString("-1.366"),
			Changed:       true,
		},
	}

	text := RenderChangeAlert(testSnapshot(), changes)
	assert.Contains(t, text, "📉 -0.50pp (-1.37%)")
}

func TestRenderBroadcastHasNoMarkdown(t *testing.T) {
	text := RenderBroadcast(testSnapshot(), rates.ChangeSet{})
	assert.NotContains(t, text, "`")
	assert.NotContains(t, text, "*")
}
