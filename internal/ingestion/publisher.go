package ingestion

import (
	"QuoteLedger/internal/event"
	"QuoteLedger/internal/observability"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	OutboundStreamName    = "REPLAY_EVENTS"
	OutboundSubjectPrefix = "replay.events"
)

// JetStreamPublisher is the subset of jetstream.JetStream used for output.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// OutboundPublisher publishes engine output to NATS for downstream consumers.
// Subjects follow the pattern: replay.events.{event_type}.{venue}
type OutboundPublisher struct {
	js        JetStreamPublisher
	runID     string
	inputChan <-chan event.Envelope
	metrics   *observability.Metrics
	logger    zerolog.Logger
	published int64
	failed    int64
}

// PublishableEvent is the wire form of an envelope.
type PublishableEvent struct {
	RunID          string      `json:"run_id"`
	Sequence       int64       `json:"sequence"`
	EventType      string      `json:"event_type"`
	IdempotencyKey string      `json:"idempotency_key"`
	MarketID       string      `json:"market_id"`
	Payload        interface{} `json:"payload"`
	StateHash      string      `json:"state_hash"`
	Timestamp      int64       `json:"timestamp"` // Replay time, nanoseconds
}

// NewPublishableEvent converts an envelope for the wire.
func NewPublishableEvent(runID string, env event.Envelope) PublishableEvent {
	return PublishableEvent{
		RunID:          runID,
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.Payload.IdempotencyKey(),
		MarketID:       env.Payload.MarketID(),
		Payload:        env.Payload,
		StateHash:      hex.EncodeToString(env.StateHash[:]),
		Timestamp:      env.Timestamp,
	}
}

func NewOutboundPublisher(js JetStreamPublisher, runID string, inputChan <-chan event.Envelope, metrics *observability.Metrics) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		runID:     runID,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    observability.NewLogger("publisher"),
	}
}

// Run drains the input channel until it is closed or ctx is cancelled.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-op.inputChan:
			if !ok {
				op.logger.Info().
					Int64("published", op.published).
					Int64("failed", op.failed).
					Msg("outbound publisher drained")
				return nil
			}

			if err := op.publish(ctx, env); err != nil {
				op.failed++
				if op.metrics != nil {
					op.metrics.PublishFailures.Inc()
				}
				// Non-fatal: the report and database sinks hold the same records
				op.logger.Warn().Err(err).Int64("seq", env.Sequence).Msg("outbound publish failed")
				continue
			}
			op.published++
		}
	}
}

// Published returns the number of envelopes acknowledged by the server.
func (op *OutboundPublisher) Published() int64 {
	return op.published
}

func (op *OutboundPublisher) publish(ctx context.Context, env event.Envelope) error {
	data, err := json.Marshal(NewPublishableEvent(op.runID, env))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = op.js.Publish(ctx, Subject(env), data, jetstream.WithMsgID(fmt.Sprintf("%s:%s", op.runID, env.Payload.IdempotencyKey())))
	return err
}

// Subject builds replay.events.{event_type}.{venue}.
func Subject(env event.Envelope) string {
	venue, _, _ := strings.Cut(env.Payload.MarketID(), ":")
	return fmt.Sprintf("%s.%s.%s", OutboundSubjectPrefix, env.EventType, subjectToken(venue))
}

// subjectToken replaces characters NATS reserves in subject tokens.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, s)
}

// ConnectNATS dials the server with unlimited reconnects and opens JetStream.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	logger := observability.NewLogger("nats")
	nc, err := nats.Connect(url,
		nats.Name("quote-ledger-replay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       OutboundStreamName,
		Subjects:   []string{OutboundSubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Replicas:   1,
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
