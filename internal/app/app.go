package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradewatch/internal/alerting"
	"tradewatch/internal/chain"
	"tradewatch/internal/config"
	"tradewatch/internal/correlator"
	"tradewatch/internal/history"
	"tradewatch/internal/hub"
	"tradewatch/internal/market"
	"tradewatch/internal/publish"
	"tradewatch/internal/retention"
	"tradewatch/internal/server"
	"tradewatch/internal/service"
	"tradewatch/internal/storage"
	"tradewatch/internal/trade"
	"tradewatch/internal/units"
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

func (a *App) contracts() chain.Contracts {
	c := a.Config.Chain
	return chain.ParseContracts(c.USDCAddress, c.CTFExchangeAddress, c.NegRiskExchangeAddress, c.ShareTokenAddress)
}

func (a *App) newResolver() market.Resolver {
	return market.NewGamma(market.Options{
		BaseURL:   a.Config.Market.BaseURL,
		Timeout:   a.Config.Market.RequestTimeout,
		UserAgent: a.Config.Market.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) alertThreshold() decimal.Decimal {
	threshold, err := decimal.NewFromString(a.Config.Alerting.MinNotional)
	if err != nil {
		return decimal.Zero
	}
	return threshold
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) migrate(ctx context.Context, store *storage.Store) error {
	if store == nil {
		return nil
	}
	applied, err := store.Migrate(ctx, a.Config.Database.MigrationsPath)
	if err != nil {
		return err
	}
	a.Logger.Info().Int("files", applied).Str("path", a.Config.Database.MigrationsPath).Msg("migrations applied")
	return nil
}

// sinks builds the optional trade consumers. Each one is skipped when unconfigured.
func (a *App) sinks(store *storage.Store) ([]correlator.Sink, func()) {
	var (
		sinks   []correlator.Sink
		closers []func()
	)

	var audit storage.AlertStore
	if store != nil {
		sinks = append(sinks, storage.NewArchiver(store, a.Logger))
		audit = store
	}

	if a.Config.Alerting.Enabled {
		if notifier := a.newNotifier(); notifier != nil {
			sinks = append(sinks, alerting.NewTradeAlerter(notifier, a.alertThreshold(), []string{"telegram"}, audit, a.Logger))
		} else {
			a.Logger.Warn().Msg("alerting enabled but no channel configured")
		}
	}

	if a.Config.AMQP.URL != "" {
		producer, err := publish.NewEventProducer(publish.Options{
			URL:           a.Config.AMQP.URL,
			Exchange:      a.Config.AMQP.Exchange,
			RoutingPrefix: a.Config.AMQP.RoutingPrefix,
		}, a.Logger)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("amqp unavailable; trade publishing disabled")
		} else {
			sinks = append(sinks, producer)
			closers = append(closers, producer.Close)
		}
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}

// Run executes the long-running watcher and viewer server.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; trade archive disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}
	if err := a.migrate(ctx, store); err != nil {
		return err
	}

	sinks, closeSinks := a.sinks(store)
	defer closeSinks()

	recent := history.New(a.Config.History.Capacity)
	viewers := hub.New(recent, hub.Options{
		HeartbeatInterval: a.Config.Server.HeartbeatInterval,
		WriteTimeout:      a.Config.Server.WriteTimeout,
	}, a.Logger)

	receipts := chain.NewClient(chain.ClientOptions{
		RPCURL:  a.Config.Chain.RPCURL,
		Timeout: a.Config.Chain.RequestTimeout,
	}, a.Logger)
	defer receipts.Close()

	contracts := a.contracts()
	corr := correlator.New(correlator.Options{
		Contracts:   contracts,
		MinNotional: units.MustUnits(a.Config.Detector.MinNotional, units.USDCDecimals),
		MaxInFlight: int64(a.Config.Detector.MaxInFlight),
	}, receipts, a.newResolver(), recent, viewers, a.Logger, sinks...)

	components := service.Components{
		Handler: corr,
		Hub:     viewers,
		Server: server.New(server.Options{
			Addr:           a.Config.ListenAddr(),
			AllowedOrigins: a.Config.Server.AllowedOrigins,
		}, recent, viewers, a.Logger),
	}

	if a.Config.Chain.RPCURL != "" {
		components.Watcher = chain.NewSource(chain.SourceOptions{
			Endpoint:       a.Config.Chain.RPCURL,
			Contract:       contracts.USDC,
			PollInterval:   a.Config.Chain.PollInterval,
			BackoffInitial: a.Config.Chain.BackoffInitial,
			BackoffMax:     a.Config.Chain.BackoffMax,
			OnStatus: func(status string) {
				viewers.Notify("watcher", map[string]string{"status": status})
			},
		}, a.Logger)
	}

	if store != nil {
		components.Pruner = retention.New(retention.Options{
			Schedule:  a.Config.Archive.PruneSchedule,
			Retention: a.Config.Archive.Retention,
			LockKey:   a.Config.Archive.LockKey,
		}, store, a.Logger)
	}

	a.Logger.Info().
		Str("min_notional", a.Config.Detector.MinNotional).
		Str("addr", a.Config.ListenAddr()).
		Int("sinks", len(sinks)).
		Msg("starting trade watcher")

	err = service.New(components, a.Logger).Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("trade watcher stopped")
	return nil
}

// ExportOptions hold parameters for exporting archived trades.
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
	// Side keeps only trades of that side when set.
	Side trade.Side
}

// SimulateOptions configure a synthetic alert.
type SimulateOptions struct {
	Notional decimal.Decimal
	Side     string
	Title    string
}
