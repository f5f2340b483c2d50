package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hefarica/ARBITRAGEXPLUS2025/cmd/engine/config"
	"github.com/hefarica/ARBITRAGEXPLUS2025/differ"
	"github.com/hefarica/ARBITRAGEXPLUS2025/history"
	"github.com/hefarica/ARBITRAGEXPLUS2025/optimizer"
	"github.com/hefarica/ARBITRAGEXPLUS2025/orchestrator"
	"github.com/hefarica/ARBITRAGEXPLUS2025/pricing"
	"github.com/hefarica/ARBITRAGEXPLUS2025/providers/gas"
	"github.com/hefarica/ARBITRAGEXPLUS2025/providers/sqlite"
	"github.com/hefarica/ARBITRAGEXPLUS2025/providers/stream"
	"github.com/hefarica/ARBITRAGEXPLUS2025/searcher"
	"github.com/hefarica/ARBITRAGEXPLUS2025/server"
	"github.com/hefarica/ARBITRAGEXPLUS2025/sinks/channel"
	"github.com/hefarica/ARBITRAGEXPLUS2025/sinks/webhook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	seedPath := flag.String("seed", "", "Optional YAML snapshot imported into the sqlite market before starting.")
	flag.Parse()

	log.Printf("Loading configuration from: %s", *configPath)
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate already checked the level.
	level, _ := config.ParseLevel(cfg.LogLevel)
	rootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *seedPath, rootLogger); err != nil && !errors.Is(err, context.Canceled) {
		rootLogger.Error("Engine exited with error", "error", err)
		os.Exit(1)
	}
	rootLogger.Info("Engine stopped")
}

func run(ctx context.Context, cfg *config.Config, seedPath string, rootLogger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	g, ctx := errgroup.WithContext(ctx)

	provider, closeProvider, err := newMarketProvider(ctx, g, cfg, seedPath, rootLogger)
	if err != nil {
		return err
	}
	defer closeProvider()

	quoter, err := pricing.NewQuoter(cfg.Pricing)
	if err != nil {
		return err
	}
	search, err := searcher.New(cfg.Search, quoter, rootLogger.With("component", "searcher"))
	if err != nil {
		return err
	}
	opt, err := optimizer.New(cfg.Optimizer)
	if err != nil {
		return err
	}
	snapshotDiffer, err := differ.NewSnapshotDiffer(&differ.SnapshotDifferConfig{
		Registry: registry,
		Logger:   rootLogger.With("component", "differ"),
	})
	if err != nil {
		return err
	}

	opts := []orchestrator.Option{
		orchestrator.WithRegistry(registry),
		orchestrator.WithSnapshotDiffer(snapshotDiffer),
	}

	if cfg.Providers.RPCURL != "" {
		oracle, ethClient, err := gas.Dial(ctx, cfg.Providers.RPCURL, gas.Config{
			Timeout:         cfg.Providers.GasTimeout,
			DefaultGasUnits: cfg.Providers.DefaultGasUnits,
			Logger:          rootLogger.With("component", "gas-oracle"),
		})
		if err != nil {
			return err
		}
		defer ethClient.Close()
		opts = append(opts, orchestrator.WithGasOracle(oracle))
	}

	if cfg.History.Enabled() {
		store, err := history.Open(ctx, history.Config{
			Driver:     cfg.History.Driver,
			DSN:        cfg.History.ConnString(),
			ConfigName: cfg.History.ConfigName,
			Logger:     rootLogger.With("component", "history"),
		})
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, orchestrator.WithHistoryStore(store))
	}

	sink, err := newSink(ctx, g, cfg, registry, rootLogger)
	if err != nil {
		return err
	}
	opts = append(opts, orchestrator.WithSink(sink))

	orch, err := orchestrator.New(cfg.Engine, provider, search, opt, rootLogger.With("component", "orchestrator"), opts...)
	if err != nil {
		return err
	}

	if cfg.Server.Addr != "" {
		srv, err := server.New(server.Config{
			Addr:     cfg.Server.Addr,
			Engine:   orch,
			Gatherer: registry,
			Logger:   rootLogger.With("component", "server"),
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.Run(ctx) })
	}

	g.Go(func() error { return orch.Run(ctx) })
	return g.Wait()
}

func newMarketProvider(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	seedPath string,
	rootLogger *slog.Logger,
) (orchestrator.MarketDataProvider, func(), error) {
	switch cfg.Providers.Market {
	case config.MarketStream:
		if seedPath != "" {
			return nil, nil, errors.New("-seed is only supported with the sqlite market")
		}
		client, err := stream.NewClient(ctx, stream.Config{
			URL:        cfg.Providers.StreamURL,
			Logger:     rootLogger.With("component", "stream-client"),
			BufferSize: cfg.Providers.StreamBufferSize,
		})
		if err != nil {
			return nil, nil, err
		}
		logger := rootLogger.With("component", "stream-updates")
		g.Go(func() error {
			for {
				select {
				case snap := <-client.Updates():
					logger.Debug("Market snapshot received", "version", snap.Version, "pools", len(snap.Pools))
				case <-client.Err():
					return nil
				}
			}
		})
		return client, func() {}, nil

	default:
		provider, err := sqlite.Open(ctx, sqlite.Config{
			Path:    cfg.Providers.SQLitePath,
			ChainID: cfg.ChainID,
			Logger:  rootLogger.With("component", "sqlite-market"),
		})
		if err != nil {
			return nil, nil, err
		}
		if seedPath != "" {
			snap, err := config.LoadSnapshot(seedPath)
			if err == nil {
				err = provider.Import(ctx, snap)
			}
			if err != nil {
				provider.Close()
				return nil, nil, err
			}
		}
		return provider, func() { provider.Close() }, nil
	}
}

func newSink(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	registry prometheus.Registerer,
	rootLogger *slog.Logger,
) (orchestrator.ExecutionSink, error) {
	if cfg.Sink.WebhookURL != "" {
		return webhook.New(ctx, webhook.Config{
			URL:       cfg.Sink.WebhookURL,
			Timeout:   cfg.Sink.Timeout,
			QueueSize: cfg.Sink.QueueSize,
			Headers:   cfg.Sink.Headers,
			Registry:  registry,
			Logger:    rootLogger.With("component", "webhook-sink"),
		})
	}

	logger := rootLogger.With("component", "report-log")
	sink, err := channel.New(cfg.Sink.ChannelSize, logger)
	if err != nil {
		return nil, err
	}
	g.Go(func() error {
		for {
			select {
			case report := <-sink.Reports():
				logger.Info("Portfolio selected",
					"cycle_id", report.CycleID,
					"sequence", report.Sequence,
					"routes", len(report.Portfolio.Routes),
					"total_profit_usd", report.Portfolio.TotalProfitUSD,
					"total_gas_usd", report.Portfolio.TotalGasUSD,
				)
			case <-ctx.Done():
				return nil
			}
		}
	})
	return sink, nil
}
