package main

import (
	"QuoteLedger/internal/config"
	"QuoteLedger/internal/event"
	"QuoteLedger/internal/ingestion"
	"QuoteLedger/internal/observability"
	"QuoteLedger/internal/persistence"
	"QuoteLedger/internal/projection"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// sinkSet owns the optional envelope consumers. A failing consumer cancels
// the set's context, which stops the replay.
type sinkSet struct {
	ctx    context.Context
	cancel context.CancelFunc
	output chan event.Envelope
	fanout *projection.Fanout
	db     *sql.DB
	writer *persistence.ReportWriter
	nc     *nats.Conn
	logger zerolog.Logger

	wg       sync.WaitGroup
	errMu    sync.Mutex
	firstErr error
}

func openSinks(
	ctx context.Context,
	cfg *config.Config,
	runID uuid.UUID,
	strategyName string,
	startedAt time.Time,
	metrics *observability.Metrics,
) (*sinkSet, error) {
	sinkCtx, cancel := context.WithCancel(ctx)
	s := &sinkSet{
		ctx:    sinkCtx,
		cancel: cancel,
		logger: observability.NewLogger("sinks"),
	}

	out := cfg.Outputs
	if out.Postgres.URL == "" && out.NATS.URL == "" {
		return s, nil
	}

	var runners []func()

	s.output = make(chan event.Envelope, out.ChannelSize)
	s.fanout = projection.NewFanout(s.output)

	// --- Postgres ---
	if out.Postgres.URL != "" {
		db, err := sql.Open("postgres", out.Postgres.URL)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres open: %w", err)
		}
		s.db = db
		db.SetMaxOpenConns(4)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
		if out.Postgres.Migrate {
			if err := persistence.NewMigrator(db, persistence.EmbeddedMigrations()).Up(ctx); err != nil {
				s.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}

		s.writer = persistence.NewReportWriter(db, runID)
		if err := s.writer.StartRun(ctx, persistence.RunRow{
			RunID:           runID,
			Name:            cfg.Run.Name,
			Strategy:        strategyName,
			PnLMetric:       string(cfg.PnLMetric()),
			SettlementAsset: cfg.Run.SettlementAsset,
			StartedAt:       startedAt,
		}); err != nil {
			s.Close()
			return nil, fmt.Errorf("register run: %w", err)
		}

		worker := persistence.NewPersistenceWorker(
			s.writer, runID,
			s.fanout.Subscribe("postgres", out.ChannelSize, true),
			out.Postgres.BatchSize, out.Postgres.FlushInterval, metrics,
		)
		runners = append(runners, func() { s.start("postgres", worker.Run) })
		s.logger.Info().Msg("Postgres sink enabled")
	}

	// --- NATS JetStream ---
	if out.NATS.URL != "" {
		nc, js, err := ingestion.ConnectNATS(out.NATS.URL)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.nc = nc

		if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
			s.Close()
			return nil, err
		}

		publisher := ingestion.NewOutboundPublisher(js, runID.String(),
			s.fanout.Subscribe("nats", out.ChannelSize, !out.NATS.Lossy), metrics)
		runners = append(runners, func() { s.start("nats", publisher.Run) })
		s.logger.Info().Bool("lossy", out.NATS.Lossy).Msg("NATS sink enabled")
	}

	for _, r := range runners {
		r()
	}
	s.start("fanout", s.fanout.Run)

	return s, nil
}

func (s *sinkSet) start(name string, run func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := run(s.ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}

		s.logger.Error().Err(err).Str("sink", name).Msg("sink failed")
		s.errMu.Lock()
		if s.firstErr == nil {
			s.firstErr = fmt.Errorf("%s: %w", name, err)
		}
		s.errMu.Unlock()
		s.cancel()
	}()
}

// Context is cancelled when a sink fails or the parent is done.
func (s *sinkSet) Context() context.Context {
	return s.ctx
}

// Output is nil when no sink is configured, which disables envelope emission.
func (s *sinkSet) Output() chan<- event.Envelope {
	if s.output == nil {
		return nil
	}
	return s.output
}

// Drain closes the output channel after the engine stopped and waits for
// every sink to flush.
func (s *sinkSet) Drain() error {
	if s.output == nil {
		return nil
	}
	close(s.output)
	s.wg.Wait()

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.fanout.Dropped() > 0 {
		s.logger.Warn().Int64("dropped", s.fanout.Dropped()).Msg("lossy sinks dropped envelopes")
	}
	return s.firstErr
}

// Finish stores the final report when Postgres is enabled.
func (s *sinkSet) Finish(ctx context.Context, report *projection.Report) error {
	if s.writer == nil {
		return nil
	}
	if err := s.writer.FinishRun(ctx, report, time.Now()); err != nil {
		return fmt.Errorf("store run results: %w", err)
	}
	return nil
}

// Fail marks the run aborted in Postgres. Errors are logged only.
func (s *sinkSet) Fail(ctx context.Context) {
	if s.writer == nil {
		return
	}
	if err := s.writer.FailRun(ctx, time.Now()); err != nil {
		s.logger.Warn().Err(err).Msg("mark run failed")
	}
}

func (s *sinkSet) Close() {
	s.cancel()
	if s.nc != nil {
		s.nc.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

func newS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	if !cfg.UsesS3() {
		return nil, nil
	}
	client, err := ingestion.NewS3Client(ctx, cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return client, nil
}

// exportTradeLog writes the parquet trade log locally and/or to S3.
func exportTradeLog(ctx context.Context, cfg *config.Config, runID uuid.UUID, client *s3.Client, trades []event.TradeRecord) error {
	out := cfg.Outputs
	if out.TradeLog == "" && out.S3Export.Bucket == "" {
		return nil
	}

	rows := persistence.NewTradeRows(runID, trades)

	if out.TradeLog != "" {
		if err := persistence.WriteTradeLogFile(out.TradeLog, rows); err != nil {
			return fmt.Errorf("write trade log: %w", err)
		}
	}

	if out.S3Export.Bucket != "" {
		data, err := persistence.TradeLogParquet(rows)
		if err != nil {
			return fmt.Errorf("encode trade log: %w", err)
		}
		key := path.Join(out.S3Export.Prefix, cfg.Run.Name, runID.String()+"-trades.parquet")
		if err := persistence.UploadTradeLog(ctx, client, out.S3Export.Bucket, key, data); err != nil {
			return err
		}
	}
	return nil
}

// publishSummary pushes run totals to CloudWatch. Failures are logged only.
func publishSummary(ctx context.Context, cfg *config.Config, summary observability.RunSummary, logger zerolog.Logger) {
	cw := cfg.Outputs.CloudWatch
	if cw.Namespace == "" {
		return
	}

	publisher, err := observability.NewSummaryPublisher(ctx, cw.Region, cw.Namespace)
	if err != nil {
		logger.Warn().Err(err).Msg("cloudwatch unavailable")
		return
	}
	if err := publisher.Publish(ctx, summary); err != nil {
		logger.Warn().Err(err).Msg("cloudwatch publish failed")
	}
}
