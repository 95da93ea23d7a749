package alerting

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"caucion-rate-alerts/internal/rates"
)

// Publisher posts a public channel message when rates rise sharply. It is
// independent of per-subscriber preferences: one post per qualifying tick,
// upward moves only.
type Publisher struct {
	sink      Sink
	channelID int64
	minRise   decimal.Decimal
	logger    zerolog.Logger
}

// NewPublisher builds a channel publisher. minRise is the minimum upward
// move in percentage points that warrants a post.
func NewPublisher(sink Sink, channelID int64, minRise decimal.Decimal, logger zerolog.Logger) *Publisher {
	return &Publisher{
		sink:      sink,
		channelID: channelID,
		minRise:   minRise,
		logger:    logger.With().Str("component", "publisher").Logger(),
	}
}

// ShouldPublish reports whether the change set qualifies for a post.
// Drops never qualify, whatever their size.
func (p *Publisher) ShouldPublish(changes rates.ChangeSet) bool {
	if p == nil || len(changes) == 0 {
		return false
	}
	return changes.AnyRiseAtLeast(p.minRise)
}

// Publish posts the broadcast message to the channel.
func (p *Publisher) Publish(ctx context.Context, snap rates.Snapshot, changes rates.ChangeSet) error {
	text := RenderBroadcast(snap, changes)
	if err := p.sink.Deliver(ctx, p.channelID, text); err != nil {
		return err
	}
	p.logger.Info().Int64("channel_id", p.channelID).Msg("broadcast published")
	return nil
}
