package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caucion-rate-alerts/internal/rates"
)

type captureSink struct {
	chatID int64
	text   string
	calls  int
}

func (c *captureSink) Deliver(_ context.Context, chatID int64, text string) error {
	c.chatID = chatID
	c.text = text
	c.calls++
	return nil
}

func TestShouldPublishRequiresUpwardMove(t *testing.T) {
	pub := NewPublisher(&captureSink{}, 42, decimal.NewFromInt(5), zerolog.Nop())

	bigRise := changeSet(t,
		map[rates.Tenor]string{rates.TenorD1: "35.00"},
		map[rates.Tenor]string{rates.TenorD1: "40.50"},
	)
	assert.True(t, pub.ShouldPublish(bigRise), "+5.5pp qualifies")

	smallRise := changeSet(t,
		map[rates.Tenor]string{rates.TenorD1: "35.00"},
		map[rates.Tenor]string{rates.TenorD1: "37.00"},
	)
	assert.False(t, pub.ShouldPublish(smallRise), "+2.0pp does not qualify")

	bigDrop := changeSet(t,
		map[rates.Tenor]string{rates.TenorD1: "40.00"},
		map[rates.Tenor]string{rates.TenorD1: "34.00"},
	)
	assert.False(t, pub.ShouldPublish(bigDrop), "-6.0pp never qualifies")

	assert.False(t, pub.ShouldPublish(nil))
}

func TestShouldPublishBoundaryInclusive(t *testing.T) {
	pub := NewPublisher(&captureSink{}, 42, decimal.NewFromInt(5), zerolog.Nop())

	exact := changeSet(t,
		map[rates.Tenor]string{rates.TenorD1: "35.00"},
		map[rates.Tenor]string{rates.TenorD1: "40.00"},
	)
	assert.True(t, pub.ShouldPublish(exact))
}

func TestPublishSendsToChannel(t *testing.T) {
	sink := &captureSink{}
	pub := NewPublisher(sink, -100123, decimal.NewFromInt(5), zerolog.Nop())

	prev := rates.NewSnapshot(time.Now(), map[rates.Tenor]decimal.Decimal{
		rates.TenorD1: decimal.RequireFromString("35.00"),
		rates.TenorD2: decimal.RequireFromString("36.20"),
	})
	curr := rates.NewSnapshot(time.Now(), map[rates.Tenor]decimal.Decimal{
		rates.TenorD1: decimal.RequireFromString("40.50"),
		rates.TenorD2: decimal.RequireFromString("36.20"),
	})
	changes := rates.ComputeChanges(prev, curr)

	require.NoError(t, pub.Publish(context.Background(), curr, changes))
	assert.Equal(t, int64(-100123), sink.chatID)
	assert.Equal(t, 1, sink.calls)
	assert.Contains(t, sink.text, "40.50% TNA")
	assert.Contains(t, sink.text, "+5.50pp")
	assert.NotContains(t, sink.text, "`", "broadcast must be plain text")
}
