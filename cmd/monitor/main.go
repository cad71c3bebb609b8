// Package main provides the tokenwatch daemon entry point.
// Runs: provider polling → reconciliation → persistence → scoring →
// alert evaluation → notification dispatch, plus the metrics endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tokenwatch/internal/alerting"
	"tokenwatch/internal/cache"
	"tokenwatch/internal/config"
	"tokenwatch/internal/governor"
	"tokenwatch/internal/logging"
	"tokenwatch/internal/monitor"
	"tokenwatch/internal/observability"
	"tokenwatch/internal/provider"
	"tokenwatch/internal/reconcile"
	"tokenwatch/internal/scoring"
	"tokenwatch/internal/storage"
	"tokenwatch/internal/storage/clickhouse"
	"tokenwatch/internal/storage/memory"
	"tokenwatch/internal/storage/migrations"
	"tokenwatch/internal/storage/postgres"
	"tokenwatch/internal/wallet"
)

// pumpFunProgram is the launch program watched by default when a
// provider exposes a websocket endpoint.
const pumpFunProgram = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

func main() {
	configPath := flag.String("config", "", "Path to config file (default: search ./tokenwatch.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:      cfg.Log.Level,
		JSONOutput: cfg.Log.JSONOutput,
	})
	log := logging.WithComponent("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	stores, err := buildStores(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing storage: %v\n", err)
		os.Exit(1)
	}
	defer stores.close()

	adapters, feed, err := buildProviders(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing providers: %v\n", err)
		os.Exit(1)
	}

	gov := buildGovernor(cfg)
	reconciler := reconcile.New(adapters, gov, cfg.Reconciler.Deadline)
	analyzer := wallet.NewAnalyzer(stores.transactions, stores.prices, stores.wallets)

	dispatcher := alerting.NewDispatcher(alerting.DispatcherConfig{
		QueueSize:       cfg.Dispatch.QueueSize,
		RetryBackoff:    cfg.Dispatch.RetryBackoff,
		WebhookRetries:  cfg.Dispatch.WebhookRetries,
		TelegramRetries: cfg.Dispatch.TelegramRetries,
	}, buildSenders(cfg)...)
	dispatcher.Start(ctx)
	defer dispatcher.Close()

	evaluator := alerting.NewEvaluator(stores.rules, dispatcher, cfg.Dispatch.Cooldown)

	var events <-chan provider.LaunchEvent
	if feed != nil {
		feed.Start(ctx)
		defer feed.Close()
		events = feed.Events()
	}

	runner := monitor.NewRunner(monitor.Config{
		PollInterval: cfg.Monitor.PollInterval,
		Workers:      cfg.Monitor.Workers,
		Seeds:        cfg.Monitor.Seeds,
	}, monitor.Deps{
		Reconciler:     reconciler,
		Gateway:        stores.gateway,
		History:        stores.history,
		Scores:         stores.scores,
		Analyzer:       analyzer,
		Evaluator:      evaluator,
		Weights:        buildWeights(cfg.Scoring),
		TotalProviders: len(adapters),
		CacheConfig: cache.Config{
			FreshnessWindow:      cfg.Cache.FreshnessWindow,
			HardExpiryMultiplier: cfg.Cache.HardExpiryMultiplier,
			Shards:               cfg.Cache.Shards,
		},
		Feed: events,
	})

	metricsServer := startMetricsServer(cfg.Metrics.ListenAddr)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("environment", cfg.Environment).
		Int("providers", len(adapters)).
		Int("seeds", len(cfg.Monitor.Seeds)).
		Dur("poll_interval", cfg.Monitor.PollInterval).
		Msg("tokenwatch started")

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("monitor stopped")
		os.Exit(1)
	}
}

// stores bundles every storage dependency plus its cleanup.
type stores struct {
	gateway      storage.Gateway
	history      storage.PriceSampleStore // full timeseries, nil for memory
	prices       storage.PriceSampleStore // read side for the analyzer
	scores       storage.ScoreStore
	transactions storage.TransactionStore
	wallets      storage.WalletAnalysisStore
	rules        storage.AlertRuleStore

	closers []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildStores wires either the in-memory stores (no DSNs configured)
// or postgres + clickhouse. The two database DSNs come as a pair.
func buildStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	pgDSN, chDSN := cfg.Database.PostgresDSN, cfg.Database.ClickhouseDSN
	if pgDSN == "" && chDSN == "" {
		return buildMemoryStores(), nil
	}
	if pgDSN == "" || chDSN == "" {
		return nil, fmt.Errorf("postgres_dsn and clickhouse_dsn must be set together")
	}

	pool, err := postgres.NewPool(ctx, pgDSN)
	if err != nil {
		return nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}

	conn, err := clickhouse.NewConn(ctx, chDSN)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
		pool.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	history := clickhouse.NewPriceSampleStore(conn)
	return &stores{
		gateway:      postgres.NewGateway(pool),
		history:      history,
		prices:       history,
		scores:       clickhouse.NewScoreStore(conn),
		transactions: postgres.NewTransactionStore(pool),
		wallets:      postgres.NewWalletAnalysisStore(pool),
		rules:        postgres.NewAlertRuleStore(pool),
		closers:      []func(){pool.Close, func() { _ = conn.Close() }},
	}, nil
}

func buildMemoryStores() *stores {
	tokens := memory.NewTokenStore()
	samples := memory.NewPriceSampleStore()
	holders := memory.NewHolderSnapshotStore()
	transactions := memory.NewTransactionStore()

	return &stores{
		gateway:      memory.NewGateway(tokens, samples, holders, transactions),
		prices:       samples,
		scores:       memory.NewScoreStore(),
		transactions: transactions,
		wallets:      memory.NewWalletAnalysisStore(),
		rules:        memory.NewAlertRuleStore(),
	}
}

// buildProviders constructs the adapter chain in priority order plus
// the launch feed when a websocket endpoint is configured.
func buildProviders(cfg *config.Config) ([]provider.Adapter, *provider.LaunchFeed, error) {
	adapters := make([]provider.Adapter, 0, len(cfg.Providers))
	var feed *provider.LaunchFeed

	for _, p := range cfg.Providers {
		switch p.ID {
		case "helius":
			adapters = append(adapters, provider.NewHeliusAdapter(p.BaseURL, p.APIKey))
		case "birdeye":
			adapters = append(adapters, provider.NewBirdeyeAdapter(p.BaseURL, p.APIKey))
		case "solscan":
			adapters = append(adapters, provider.NewSolscanAdapter(p.BaseURL, p.APIKey))
		default:
			return nil, nil, fmt.Errorf("unknown provider id %q", p.ID)
		}

		if p.WSURL != "" && feed == nil {
			feed = provider.NewLaunchFeed(p.WSURL, []string{pumpFunProgram}, provider.DefaultLaunchFeedConfig())
		}
	}
	if len(adapters) == 0 {
		return nil, nil, fmt.Errorf("no providers configured")
	}
	return adapters, feed, nil
}

func buildGovernor(cfg *config.Config) *governor.Governor {
	limits := make(map[string]governor.ProviderLimit, len(cfg.Providers))
	for _, p := range cfg.Providers {
		limits[p.ID] = governor.ProviderLimit{
			RPS:         p.RPS,
			Burst:       p.Burst,
			WaitTimeout: p.WaitTimeout,
		}
	}
	return governor.New(limits,
		governor.WithMaxRetries(cfg.Governor.MaxRetries),
		governor.WithBackoff(cfg.Governor.BackoffBase, cfg.Governor.BackoffMax),
	)
}

func buildSenders(cfg *config.Config) []alerting.Sender {
	senders := []alerting.Sender{alerting.NewWebhookSender()}
	if cfg.Dispatch.TelegramBotToken != "" {
		senders = append(senders, alerting.NewTelegramSender(cfg.Dispatch.TelegramBotToken))
	}
	return senders
}

func buildWeights(cfg config.ScoringConfig) scoring.Weights {
	return scoring.Weights{
		Distribution:           cfg.WeightDistribution,
		Deployer:               cfg.WeightDeployer,
		HolderCount:            cfg.WeightHolderCount,
		Completeness:           cfg.WeightCompleteness,
		MissingProviderPenalty: cfg.MissingProviderPenalty,
		TopK:                   cfg.TopK,
	}
}

func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger := logging.WithComponent("metrics")
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	return server
}
