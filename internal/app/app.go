package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"caucion-rate-alerts/internal/alerting"
	"caucion-rate-alerts/internal/bot"
	"caucion-rate-alerts/internal/config"
	"caucion-rate-alerts/internal/fetcher"
	"caucion-rate-alerts/internal/market"
	"caucion-rate-alerts/internal/metrics"
	"caucion-rate-alerts/internal/scheduler"
	"caucion-rate-alerts/internal/service"
	"caucion-rate-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSource() fetcher.Source {
	tenors, _ := a.Config.PPI.TenorList()
	return fetcher.NewPPI(fetcher.PPIOptions{
		BaseURL:    a.Config.PPI.BaseURL,
		PublicKey:  a.Config.PPI.PublicKey,
		PrivateKey: a.Config.PPI.PrivateKey,
		Timeout:    a.Config.PPI.RequestTimeout,
		UserAgent:  a.Config.PPI.UserAgent,
		Tenors:     tenors,
	}, a.Logger)
}

func (a *App) newCalendar() (*market.Calendar, error) {
	window, err := a.Config.Market.Window()
	if err != nil {
		return nil, err
	}
	return market.NewCalendar(window), nil
}

func (a *App) newBot() (*tgbotapi.BotAPI, error) {
	if a.Config.Telegram.BotToken == "" {
		return nil, errors.New("telegram.bot_token is required")
	}
	botAPI, err := tgbotapi.NewBotAPI(a.Config.Telegram.BotToken)
	if err != nil {
		return nil, fmt.Errorf("authorize telegram bot: %w", err)
	}
	return botAPI, nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	return store, store.Close, nil
}

// Run executes the long-running monitoring service: polling scheduler,
// Telegram command loop, and optionally the metrics listener.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	calendar, err := a.newCalendar()
	if err != nil {
		return err
	}

	botAPI, err := a.newBot()
	if err != nil {
		return err
	}

	sink := alerting.NewTelegramSink(botAPI, a.Logger)
	source := a.newSource()

	var publisher *alerting.Publisher
	if a.Config.Alerting.Publish.Enabled {
		minRise := decimal.NewFromFloat(a.Config.Alerting.Publish.MinRisePoints)
		publisher = alerting.NewPublisher(sink, a.Config.Telegram.ChannelID, minRise, a.Logger)
	}

	var collectors *metrics.Set
	if a.Config.Metrics.Enabled {
		collectors = metrics.NewSet()
		collectors.RegisterSubscriberGauges(store.Pool(), a.Logger)
	}

	engine := service.NewEngine(service.Options{
		Calendar:        calendar,
		Source:          source,
		Snapshots:       store,
		Subscriptions:   store,
		Sink:            sink,
		Publisher:       publisher,
		DeliveryTimeout: a.Config.Alerting.DeliveryTimeout,
		Metrics:         collectors,
	}, a.Logger)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	commands := bot.NewHandler(bot.Options{
		Bot:         botAPI,
		Calendar:    calendar,
		Source:      source,
		Snapshots:   store,
		Registry:    store,
		Suggestions: store,
		Stats:       store,
		AdminIDs:    a.Config.Telegram.AdminIDs,
	}, a.Logger)

	a.Logger.Info().
		Dur("interval", a.Config.Scheduler.Interval).
		Bool("publish", publisher != nil).
		Msg("starting caución monitoring service")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return sched.Run(groupCtx, engine.ProcessTick)
	})
	group.Go(func() error {
		return commands.Run(groupCtx)
	})
	if collectors != nil {
		group.Go(func() error {
			return collectors.Serve(groupCtx, a.Config.Metrics.Listen, a.Logger)
		})
	}

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}
