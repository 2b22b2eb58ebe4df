package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pairwatch/internal/alerting"
	"pairwatch/internal/bot"
	"pairwatch/internal/command"
	"pairwatch/internal/config"
	"pairwatch/internal/dedup"
	"pairwatch/internal/fetcher"
	"pairwatch/internal/pricecache"
	"pairwatch/internal/scheduler"
	"pairwatch/internal/service"
	"pairwatch/internal/storage"
	"pairwatch/internal/version"
	"pairwatch/internal/watch"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	out         io.Writer
	openAlertDB func(context.Context) (alertJournal, func(), error)
}

// alertJournal is the journal surface used by the maintenance commands.
type alertJournal interface {
	Migrate(ctx context.Context) error
	ListRecentAlerts(ctx context.Context, limit int) ([]storage.AlertRecord, error)
	ListAlertsBetween(ctx context.Context, from, to time.Time) ([]storage.AlertRecord, error)
	CountAlerts(ctx context.Context) (int64, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newMarket() *fetcher.Market {
	userAgent := a.Config.Market.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}
	return fetcher.NewMarket(fetcher.MarketOptions{
		PriceURL:  a.Config.Market.PriceURL,
		TradesURL: a.Config.Market.TradesURL,
		Timeout:   a.Config.Market.RequestTimeout,
		UserAgent: userAgent,
	}, a.Logger)
}

func (a *App) newSender() *alerting.TelegramSender {
	cfg := a.Config.Telegram
	return alerting.NewTelegramSender(cfg.BotToken, cfg.APIBase, cfg.SendTimeout, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database, a.Logger)
	if err != nil {
		return nil, nil, err
	}
	if pool == nil {
		return nil, nil, nil
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) stdout() io.Writer {
	if a.out != nil {
		return a.out
	}
	return os.Stdout
}

// openAlertJournal opens the journal for show, export and prune, creating
// the table on first use so a fresh database reads as empty.
func (a *App) openAlertJournal(ctx context.Context, purpose string) (alertJournal, func(), error) {
	open := a.openAlertDB
	if open == nil {
		open = a.openPostgresJournal
	}
	journal, closer, err := open(ctx)
	if err != nil {
		return nil, nil, err
	}
	if journal == nil {
		return nil, nil, fmt.Errorf("database not configured; cannot %s alerts", purpose)
	}
	if err := journal.Migrate(ctx); err != nil {
		closer()
		return nil, nil, err
	}
	return journal, closer, nil
}

func (a *App) openPostgresJournal(ctx context.Context) (alertJournal, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil || store == nil {
		return nil, nil, err
	}
	return store, closeStore, nil
}

// openJournal returns the alert journal, or nil when no database is configured.
func (a *App) openJournal(ctx context.Context) (alerting.Journal, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; alert journal disabled")
		return nil, func() {}, nil
	}
	if err := store.Migrate(ctx); err != nil {
		closeStore()
		return nil, nil, err
	}
	return store, closeStore, nil
}

func (a *App) newPriceSource(ctx context.Context, market fetcher.PriceFetcher) (*pricecache.Cache, func(), error) {
	rdb, err := pricecache.Connect(ctx, a.Config.Redis)
	if err != nil {
		return nil, nil, err
	}
	if rdb == nil {
		a.Logger.Info().Msg("redis.addr not configured; price cache is process-local")
		return pricecache.New(market, nil, a.Config.Redis.PriceTTL, a.Logger), func() {}, nil
	}
	closer := func() {
		_ = rdb.Close()
	}
	return pricecache.New(market, rdb, a.Config.Redis.PriceTTL, a.Logger), closer, nil
}

func (a *App) watchDefaults() watch.Defaults {
	return watch.Defaults{
		Pair:     a.Config.Watch.DefaultPair,
		Interval: a.Config.Watch.DefaultInterval,
		MinUSD:   a.Config.Watch.DefaultMinUSD,
	}
}

// Run executes the long-running bot until SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	if err := a.Config.RequireBot(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	keyFn, err := dedup.KeyFuncFor(a.Config.Watch.OrderKey)
	if err != nil {
		return err
	}

	journal, closeJournal, err := a.openJournal(ctx)
	if err != nil {
		return err
	}
	defer closeJournal()

	market := a.newMarket()
	prices, closeCache, err := a.newPriceSource(ctx, market)
	if err != nil {
		return err
	}
	defer closeCache()

	sched := scheduler.New(a.Logger)
	dispatcher := alerting.NewDispatcher(a.newSender(), journal, a.Logger)
	svc := service.New(watch.NewStore(a.watchDefaults()), sched, market, prices, dedup.New(keyFn), dispatcher, a.Config.Watch.MinInterval, a.Logger)
	router := command.NewRouter(svc, a.Config.Watch.MinInterval, a.Logger)

	telegram, err := bot.New(bot.Options{
		Token:       a.Config.Telegram.BotToken,
		APIBase:     a.Config.Telegram.APIBase,
		PollTimeout: a.Config.Telegram.PollTimeout,
		Allowed:     a.Config.Telegram.Allowed,
	}, router, a.Logger)
	if err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(ctx)
	if err := sched.Start(gctx, svc.HandleTick); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	group.Go(func() error {
		<-gctx.Done()
		sched.Stop()
		return nil
	})
	group.Go(func() error {
		defer cancel()
		return telegram.Run(gctx)
	})

	a.Logger.Info().
		Str("version", version.Version).
		Str("order_key", a.Config.Watch.OrderKey).
		Dur("min_interval", a.Config.Watch.MinInterval).
		Msg("pairwatch started")

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("pairwatch terminated with error")
		return err
	}

	a.Logger.Info().Msg("pairwatch stopped")
	return nil
}

// ExportOptions hold parameters for exporting journalled alerts.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// PruneOptions configure journal retention.
type PruneOptions struct {
	OlderThan time.Duration
}

// SimulateOptions describe a synthetic trade alert.
type SimulateOptions struct {
	ChatID int64
	Pair   string
	Side   string
	USD    string
}
