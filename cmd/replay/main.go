package main

import (
	"QuoteLedger/internal/config"
	"QuoteLedger/internal/core"
	"QuoteLedger/internal/ingestion"
	"QuoteLedger/internal/observability"
	"QuoteLedger/internal/projection"
	"QuoteLedger/internal/server"
	"QuoteLedger/internal/strategy"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", envOrDefault("REPLAY_CONFIG", "configs/replay.yaml"), "run configuration file")
	runIDFlag := flag.String("run-id", "", "run UUID; derived from run.name when empty")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "WARN: load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	logCloser, err := observability.Setup(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logging: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger("replay")

	runID, err := resolveRunID(*runIDFlag, cfg.Run.Name)
	if err != nil {
		logger.Error().Err(err).Msg("invalid run id")
		logCloser.Close()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err = run(ctx, cfg, runID, logger)
	stop()
	if err != nil {
		logger.Error().Err(err).Str("run_id", runID.String()).Msg("replay failed")
		logCloser.Close()
		os.Exit(1)
	}
	logCloser.Close()
}

// resolveRunID parses an explicit ID or derives a stable one from the run
// name, so repeated runs of the same config share record IDs.
func resolveRunID(explicit, name string) (uuid.UUID, error) {
	if explicit != "" {
		return uuid.Parse(explicit)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("quoteledger:run:"+name)), nil
}

func run(ctx context.Context, cfg *config.Config, runID uuid.UUID, logger zerolog.Logger) error {
	startedAt := time.Now()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetricsWith(registry)
	health := observability.NewHealthChecker()

	// --- Status servers live until the run returns ---
	serverCtx, stopServers := context.WithCancel(context.Background())
	defer stopServers()
	errChan := make(chan error, 2)
	startStatusServers(serverCtx, cfg.Server, health, registry, errChan, logger)

	fail := func(err error) error {
		health.SetPhase(observability.PhaseFailed, err.Error())
		return err
	}

	// --- Load and index quote logs ---
	s3Client, err := newS3Client(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	catalog, err := loadCatalog(ctx, cfg, s3Client, metrics, logger)
	if err != nil {
		return fail(err)
	}

	strat, err := strategy.DefaultRegistry().New(cfg.Run.Strategy, cfg.StrategyParams())
	if err != nil {
		return fail(err)
	}

	// --- Output sinks ---
	sinks, err := openSinks(ctx, cfg, runID, strat.Name(), startedAt, metrics)
	if err != nil {
		return fail(err)
	}
	defer sinks.Close()

	acc := projection.NewAccumulator(cfg.PnLMetric(), cfg.Run.SettlementAsset, cfg.InitialBalances)

	engine, err := core.NewEngine(core.Config{
		RunID:           runID,
		SettlementAsset: cfg.Run.SettlementAsset,
		FundingInterval: cfg.Run.FundingInterval,
		Fees:            cfg.FeeTable(),
		InitialBalances: cfg.InitialBalances,
		Recorder:        acc,
		Output:          sinks.Output(),
		Metrics:         metrics,
	}, strat)
	if err != nil {
		return fail(err)
	}

	// --- Replay ---
	stream := ingestion.Merge(catalog.Streams(), cfg.MergeOptions())
	health.SetPhase(observability.PhaseReplaying, "")
	logger.Info().
		Str("run_id", runID.String()).
		Str("strategy", strat.Name()).
		Int("streams", len(catalog.Streams())).
		Int("quotes", catalog.Len()).
		Msg("replay started")

	replayStart := time.Now()
	runErr := engine.Run(sinks.Context(), stream)
	sinkErr := sinks.Drain()
	elapsed := time.Since(replayStart)

	// A failed sink cancels the replay, so report its cause first
	if sinkErr != nil {
		sinks.Fail(context.Background())
		return fail(fmt.Errorf("output sink: %w", sinkErr))
	}
	if runErr != nil {
		sinks.Fail(context.Background())
		return fail(fmt.Errorf("replay aborted at sequence %d: %w", engine.Sequence(), runErr))
	}

	// --- Results ---
	report := acc.Report(strat.Name(), engine.StateHashHex(), engine.Sequence(), engine.Ledger())
	if err := report.WriteJSONFile(cfg.Outputs.ReportPath); err != nil {
		return fail(fmt.Errorf("write report: %w", err))
	}
	if err := exportTradeLog(ctx, cfg, runID, s3Client, acc.Trades()); err != nil {
		return fail(err)
	}
	if err := sinks.Finish(ctx, report); err != nil {
		return fail(err)
	}
	publishSummary(ctx, cfg, report.Summary(cfg.Run.Name, elapsed), logger)

	health.SetPhase(observability.PhaseDone, "")
	logger.Info().
		Int64("quotes", report.Quotes).
		Int("merged_dropped", stream.Dropped()).
		Int("trades", len(report.Trades)).
		Int("rejections", len(report.Rejections)).
		Int("funding", len(report.Funding)).
		Float64("total_pnl", report.TotalPnL).
		Str("state_hash", report.StateHash).
		Dur("elapsed", elapsed).
		Str("report", cfg.Outputs.ReportPath).
		Msg("replay complete")

	select {
	case err := <-errChan:
		return err
	default:
	}
	return nil
}

func startStatusServers(
	ctx context.Context,
	cfg config.ServerConfig,
	health *observability.HealthChecker,
	registry *prometheus.Registry,
	errChan chan<- error,
	logger zerolog.Logger,
) {
	if cfg.HTTPAddr == "" && cfg.GRPCAddr == "" {
		return
	}

	status := server.NewStatusServer(cfg.GRPCAddr, cfg.HTTPAddr, health, registry)
	if cfg.HTTPAddr != "" {
		go func() {
			if err := status.StartHTTP(ctx); err != nil {
				logger.Error().Err(err).Msg("HTTP status server failed")
				errChan <- fmt.Errorf("http server: %w", err)
			}
		}()
	}
	if cfg.GRPCAddr != "" {
		go func() {
			if err := status.StartGRPC(ctx); err != nil {
				logger.Error().Err(err).Msg("gRPC status server failed")
				errChan <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}
}

func loadCatalog(
	ctx context.Context,
	cfg *config.Config,
	s3Client *s3.Client,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) (*ingestion.Catalog, error) {
	var fetcher *ingestion.S3Fetcher
	if s3Client != nil {
		fetcher = ingestion.NewS3FetcherWithClient(s3Client)
	}

	symbols := cfg.SymbolMap()
	loader := ingestion.NewLoader(symbols, fetcher, metrics)
	catalog := ingestion.NewCatalog(cfg.Run.Pairs, symbols)

	for _, src := range cfg.IngestionSources() {
		quotes, err := loader.Load(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", src, err)
		}
		catalog.Add(quotes)
	}

	for _, req := range cfg.RequiredStreams() {
		if err := catalog.Require(req[0], req[1]); err != nil {
			return nil, err
		}
	}
	if catalog.Len() == 0 {
		return nil, errors.New("no quotes loaded from any source")
	}

	logger.Info().
		Int("streams", len(catalog.Streams())).
		Int("quotes", catalog.Len()).
		Int("filtered", catalog.Filtered()).
		Strs("venues", catalog.Venues()).
		Msg("quote logs loaded")

	return catalog, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
