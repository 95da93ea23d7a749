package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"caucion-rate-alerts/internal/alerting"
	"caucion-rate-alerts/internal/fetcher"
	"caucion-rate-alerts/internal/market"
	"caucion-rate-alerts/internal/rates"
	"caucion-rate-alerts/internal/storage"
)

// StatsProvider supplies the counters behind the admin /stats command.
type StatsProvider interface {
	CollectStats(ctx context.Context) (storage.Stats, error)
}

// Options collect the handler's collaborators.
type Options struct {
	Bot         *tgbotapi.BotAPI
	Calendar    *market.Calendar
	Source      fetcher.Source
	Snapshots   storage.SnapshotStore
	Registry    storage.SubscriptionRegistry
	Suggestions storage.SuggestionStore
	Stats       StatsProvider
	AdminIDs    []int64
}

// Handler serves the Telegram command surface.
type Handler struct {
	bot         *tgbotapi.BotAPI
	calendar    *market.Calendar
	source      fetcher.Source
	snapshots   storage.SnapshotStore
	registry    storage.SubscriptionRegistry
	suggestions storage.SuggestionStore
	stats       StatsProvider
	admins      map[int64]struct{}
	logger      zerolog.Logger
}

// NewHandler wires the command handler.
func NewHandler(opts Options, logger zerolog.Logger) *Handler {
	admins := make(map[int64]struct{}, len(opts.AdminIDs))
	for _, id := range opts.AdminIDs {
		admins[id] = struct{}{}
	}
	return &Handler{
		bot:         opts.Bot,
		calendar:    opts.Calendar,
		source:      opts.Source,
		snapshots:   opts.Snapshots,
		registry:    opts.Registry,
		suggestions: opts.Suggestions,
		stats:       opts.Stats,
		admins:      admins,
		logger:      logger.With().Str("component", "bot").Logger(),
	}
}

// Run consumes Telegram updates until ctx is cancelled.
func (h *Handler) Run(ctx context.Context) error {
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30

	updates := h.bot.GetUpdatesChan(updateCfg)
	h.logger.Info().Str("username", h.bot.Self.UserName).Msg("bot update loop started")

	for {
		select {
		case <-ctx.Done():
			h.bot.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			h.handleCommand(ctx, update.Message)
		}
	}
}

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	h.logger.Debug().Int64("chat_id", chatID).Str("command", msg.Command()).Msg("command received")

	switch msg.Command() {
	case "start":
		h.handleStart(ctx, chatID)
	case "ayuda", "help":
		h.reply(chatID, helpText)
	case "tasas":
		h.handleRates(ctx, chatID)
	case "suscribir":
		h.handlePreference(ctx, chatID, alerting.AnyChange(),
			"✅ Suscripción activada: te aviso ante cualquier cambio de tasa.")
	case "umbral":
		h.handleThreshold(ctx, chatID, msg.CommandArguments())
	case "pausar":
		h.handlePreference(ctx, chatID, alerting.Paused(),
			"⏸️ Notificaciones pausadas. Tu suscripción sigue guardada: /suscribir para reactivarla.")
	case "estado":
		h.handleStatus(ctx, chatID)
	case "sugerencia":
		h.handleSuggestion(ctx, chatID, msg.CommandArguments())
	case "stats":
		h.handleStats(ctx, chatID)
	default:
		h.reply(chatID, "No conozco ese comando. Probá /ayuda.")
	}
}

const helpText = `🤖 *Caución Watcher*

/tasas — tasas actuales de caución
/suscribir — avisarme ante cualquier cambio
/umbral <pct> — avisarme solo ante cambios de al menos <pct>%
/pausar — pausar notificaciones
/estado — ver mi suscripción
/sugerencia <texto> — dejar una sugerencia
/ayuda — este mensaje`

func (h *Handler) handleStart(ctx context.Context, chatID int64) {
	// First contact registers the chat paused; notifications are opt-in.
	if _, err := h.registry.Get(ctx, chatID); err != nil {
		h.logger.Error().Err(err).Int64("chat_id", chatID).Msg("register chat failed")
		h.reply(chatID, "Hubo un problema registrándote. Intentá de nuevo en un rato.")
		return
	}
	h.reply(chatID, "👋 ¡Hola! Monitoreo las tasas de caución de BYMA.\n\n"+
		"Usá /tasas para verlas ahora y /suscribir para recibir avisos de cambios.\n"+
		"Más opciones en /ayuda.")
}

func (h *Handler) handleRates(ctx context.Context, chatID int64) {
	open := h.calendar.IsOpen(time.Now())

	stored, err := h.snapshots.Latest(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("load latest snapshot failed")
		h.reply(chatID, "No pude consultar las tasas en este momento.")
		return
	}

	if open {
		snap, fetchErr := h.source.Fetch(ctx)
		if fetchErr == nil {
			var changes rates.ChangeSet
			if stored != nil {
				changes = rates.ComputeChanges(*stored, snap)
			}
			h.reply(chatID, alerting.RenderRates(snap, changes, true))
			return
		}
		h.logger.Warn().Err(fetchErr).Msg("live fetch for /tasas failed, falling back to stored snapshot")
	}

	if stored == nil {
		h.reply(chatID, "Todavía no tengo tasas registradas. Probá de nuevo cuando abra el mercado.")
		return
	}
	h.reply(chatID, alerting.RenderRates(*stored, nil, open))
}

func (h *Handler) handlePreference(ctx context.Context, chatID int64, pref alerting.Preference, confirmation string) {
	if err := h.registry.SetPreference(ctx, chatID, pref); err != nil {
		h.logger.Error().Err(err).Int64("chat_id", chatID).Msg("set preference failed")
		h.reply(chatID, "No pude guardar tu preferencia. Intentá de nuevo.")
		return
	}
	h.reply(chatID, confirmation)
}

func (h *Handler) handleThreshold(ctx context.Context, chatID int64, args string) {
	pref, err := parseThreshold(args)
	switch {
	case errors.Is(err, errEmptyThreshold):
		h.reply(chatID, "Indicá el porcentaje mínimo, por ejemplo: `/umbral 1.5`")
		return
	case errors.Is(err, alerting.ErrInvalidThreshold):
		h.reply(chatID, "El umbral tiene que ser mayor que cero.")
		return
	case err != nil:
		h.reply(chatID, "No entiendo ese porcentaje. Ejemplo: `/umbral 1.5`")
		return
	}

	h.handlePreference(ctx, chatID, pref,
		fmt.Sprintf("✅ Listo: te aviso ante cambios de al menos %s%%.", pref.Threshold.String()))
}

var errEmptyThreshold = errors.New("bot: empty threshold argument")

// parseThreshold turns the /umbral argument into a threshold preference.
// A trailing percent sign is tolerated.
func parseThreshold(args string) (alerting.Preference, error) {
	raw := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(args), "%"))
	if raw == "" {
		return alerting.Preference{}, errEmptyThreshold
	}

	value, err := decimal.NewFromString(raw)
	if err != nil {
		return alerting.Preference{}, fmt.Errorf("bot: parse threshold %q: %w", raw, err)
	}

	return alerting.Threshold(value)
}

func (h *Handler) handleStatus(ctx context.Context, chatID int64) {
	sub, err := h.registry.Get(ctx, chatID)
	if err != nil {
		h.logger.Error().Err(err).Int64("chat_id", chatID).Msg("get subscription failed")
		h.reply(chatID, "No pude consultar tu suscripción.")
		return
	}

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("📋 *Tu suscripción*\n\nNotificaciones: %s", sub.Preference.Describe()))
	if sub.LastNotifiedAt != nil {
		builder.WriteString(fmt.Sprintf("\nÚltimo aviso: %s", sub.LastNotifiedAt.In(market.Location()).Format("2006-01-02 15:04")))
	}
	h.reply(chatID, builder.String())
}

func (h *Handler) handleSuggestion(ctx context.Context, chatID int64, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		h.reply(chatID, "Escribí tu sugerencia después del comando: `/sugerencia que muestre plazos más largos`")
		return
	}

	if _, err := h.suggestions.InsertSuggestion(ctx, chatID, text); err != nil {
		h.logger.Error().Err(err).Int64("chat_id", chatID).Msg("store suggestion failed")
		h.reply(chatID, "No pude guardar la sugerencia. Intentá de nuevo.")
		return
	}
	h.reply(chatID, "💡 ¡Gracias! Sugerencia registrada.")
}

func (h *Handler) handleStats(ctx context.Context, chatID int64) {
	if _, ok := h.admins[chatID]; !ok {
		h.reply(chatID, "Este comando es solo para administradores.")
		return
	}

	stats, err := h.stats.CollectStats(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("collect stats failed")
		h.reply(chatID, "No pude recolectar las estadísticas.")
		return
	}

	builder := strings.Builder{}
	builder.WriteString("📈 *Estadísticas*\n\n")
	builder.WriteString("Suscriptores por modo:\n")
	for _, kind := range []alerting.PreferenceKind{alerting.PrefAnyChange, alerting.PrefThreshold, alerting.PrefPaused} {
		builder.WriteString(fmt.Sprintf("  %s: %d\n", kind, stats.SubscribersByKind[kind]))
	}
	builder.WriteString(fmt.Sprintf("\nObservaciones guardadas: %d", stats.ObservationCount))
	builder.WriteString(fmt.Sprintf("\nSugerencias recibidas: %d", stats.SuggestionCount))
	h.reply(chatID, builder.String())
}

func (h *Handler) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := h.bot.Send(msg); err != nil {
		h.logger.Error().Err(err).Int64("chat_id", chatID).Msg("reply failed")
	}
}
