package persistence

import (
	"QuoteLedger/internal/event"
	"QuoteLedger/internal/observability"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BatchWriter stores one batch of result rows.
type BatchWriter interface {
	WriteBatch(ctx context.Context, b *Batch) error
}

// PersistenceWorker drains engine envelopes and batch-writes them to Postgres.
// It runs outside the engine loop; when subscribed as a blocking consumer a
// slow database stalls the replay instead of losing rows.
type PersistenceWorker struct {
	writer       BatchWriter
	runID        uuid.UUID
	inputChan    <-chan event.Envelope
	batchSize    int
	flushTimeout time.Duration
	maxBackoff   time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger

	flushed int64
}

func NewPersistenceWorker(
	writer BatchWriter,
	runID uuid.UUID,
	inputChan <-chan event.Envelope,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *PersistenceWorker {
	if batchSize <= 0 {
		batchSize = 500
	}
	if flushTimeout <= 0 {
		flushTimeout = time.Second
	}
	return &PersistenceWorker{
		writer:       writer,
		runID:        runID,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		maxBackoff:   30 * time.Second,
		metrics:      metrics,
		logger:       observability.NewLogger("persistence"),
	}
}

// Run batches incoming envelopes and flushes either when the batch is full
// or the flush timeout expires. Returns when the input closes or ctx is
// cancelled, after a final flush.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	batch := &Batch{}

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if batch.Len() > 0 {
				if err := pw.flush(context.Background(), batch); err != nil {
					pw.logger.Error().Err(err).Int("rows", batch.Len()).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case env, ok := <-pw.inputChan:
			if !ok {
				if batch.Len() > 0 {
					if err := pw.flushWithRetry(ctx, batch); err != nil {
						return err
					}
				}
				pw.logger.Info().Int64("rows", pw.flushed).Msg("persistence drained")
				return nil
			}

			batch.Add(pw.runID, env)

			if batch.Len() >= pw.batchSize {
				if err := pw.flushWithRetry(ctx, batch); err != nil {
					return err
				}
				batch.Reset()
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			if batch.Len() > 0 {
				if err := pw.flushWithRetry(ctx, batch); err != nil {
					return err
				}
				batch.Reset()
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

// Flushed returns the number of rows written so far.
func (pw *PersistenceWorker) Flushed() int64 {
	return pw.flushed
}

// flushWithRetry retries with exponential backoff until the write succeeds.
// On cancellation it makes one last attempt with a background context.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, batch *Batch) error {
	backoff := 100 * time.Millisecond

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			pw.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("rows", batch.Len()).
				Msg("persistence retry")

			select {
			case <-ctx.Done():
				if err := pw.flush(context.Background(), batch); err != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}

			backoff *= 2
			if backoff > pw.maxBackoff {
				backoff = pw.maxBackoff
			}
		}

		err := pw.flush(ctx, batch)
		if err == nil {
			if attempt > 0 {
				pw.logger.Info().Int("retries", attempt).Msg("persistence flush recovered")
			}
			return nil
		}

		pw.logger.Error().Err(err).Int64("last_sequence", batch.LastSequence()).Msg("persistence flush failed")
		if pw.metrics != nil {
			pw.metrics.PersistRetries.Inc()
		}
	}
}

func (pw *PersistenceWorker) flush(ctx context.Context, batch *Batch) error {
	start := time.Now()

	if err := pw.writer.WriteBatch(ctx, batch); err != nil {
		return err
	}

	pw.flushed += int64(batch.Len())
	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
	}
	return nil
}
