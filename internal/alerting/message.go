package alerting

import (
	"fmt"
	"strings"

	"caucion-rate-alerts/internal/rates"
)

const timestampLayout = "2006-01-02 15:04:05"

var tenorEmoji = map[rates.Tenor]string{
	rates.TenorD1: "🕐",
	rates.TenorD2: "🕑",
	rates.TenorD3: "🕒",
	rates.TenorD7: "🕔",
}

// RenderRates formats the current snapshot for the /tasas reply, with delta
// indicators for tenors that moved since the prior observation (pass a nil
// change set when there is nothing to diff against). When the market is
// closed the message carries the closed flag and shows the last known rates
// instead of pretending they are live.
func RenderRates(snap rates.Snapshot, changes rates.ChangeSet, marketOpen bool) string {
	builder := strings.Builder{}
	builder.WriteString("📊 *TASAS DE CAUCIONES*\n\n")

	for _, tenor := range snap.Tenors() {
		rate, _ := snap.Rate(tenor)
		builder.WriteString(fmt.Sprintf("%s %s: `%s%%` TNA", tenorEmoji[tenor], tenor.Label(), rate.StringFixed(2)))
		if change, ok := changes[tenor]; ok && change.Changed {
			builder.WriteString(" " + formatDelta(change))
		}
		builder.WriteString("\n")
	}

	builder.WriteString(fmt.Sprintf("\n🕒 Actualizado: %s", snap.CapturedAt().Format(timestampLayout)))
	if !marketOpen {
		builder.WriteString("\n🔒 Mercado cerrado — últimas tasas conocidas")
	}
	return builder.String()
}

// RenderChangeAlert formats the per-subscriber notification. Every changed
// tenor appears with its delta, not only the one that satisfied the
// subscriber's rule; unchanged tenors are listed without an arrow so the
// message is always a complete picture.
func RenderChangeAlert(snap rates.Snapshot, changes rates.ChangeSet) string {
	builder := strings.Builder{}
	builder.WriteString("🔔 *¡Cambio en las tasas!*\n\n")
	builder.WriteString("📊 *TASAS DE CAUCIONES*\n\n")

	for _, tenor := range snap.Tenors() {
		rate, _ := snap.Rate(tenor)
		builder.WriteString(fmt.Sprintf("%s %s: `%s%%` TNA", tenorEmoji[tenor], tenor.Label(), rate.StringFixed(2)))
		if change, ok := changes[tenor]; ok && change.Changed {
			builder.WriteString(" " + formatDelta(change))
		}
		builder.WriteString("\n")
	}

	builder.WriteString(fmt.Sprintf("\n🕒 Actualizado: %s", snap.CapturedAt().Format(timestampLayout)))
	return builder.String()
}

// RenderBroadcast formats the public channel post for a large upward move.
// Plain text, no Markdown markers.
func RenderBroadcast(snap rates.Snapshot, changes rates.ChangeSet) string {
	builder := strings.Builder{}
	builder.WriteString("🔔 ¡Cambio en las tasas!\n\n")
	builder.WriteString("📊 TASAS DE CAUCIONES\n\n")

	for _, tenor := range snap.Tenors() {
		rate, _ := snap.Rate(tenor)
		builder.WriteString(fmt.Sprintf("%s %s: %s%% TNA", tenorEmoji[tenor], tenor.Label(), rate.StringFixed(2)))
		if change, ok := changes[tenor]; ok && change.Changed {
			builder.WriteString(" " + formatDelta(change))
		}
		builder.WriteString("\n")
	}

	builder.WriteString(fmt.Sprintf("\n🕒 Actualizado: %s", snap.CapturedAt().Format(timestampLayout)))
	return builder.String()
}

func formatDelta(change rates.Change) string {
	arrow := "📉"
	sign := ""
	if change.AbsoluteDelta.IsPositive() {
		arrow = "📈"
		sign = "+"
	}
	return fmt.Sprintf("%s %s%spp (%s%s%%)",
		arrow,
		sign, change.AbsoluteDelta.StringFixed(2),
		sign, change.PercentDelta.StringFixed(2),
	)
}
