package ingestion_test

import (
	"QuoteLedger/internal/event"
	"QuoteLedger/internal/ingestion"
	"QuoteLedger/internal/testutil"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

type publishedMsg struct {
	subject string
	data    []byte
}

type fakeJetStream struct {
	msgs    []publishedMsg
	failFor string
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if subject == f.failFor {
		return nil, errors.New("no responders")
	}
	f.msgs = append(f.msgs, publishedMsg{subject: subject, data: data})
	return &jetstream.PubAck{Stream: ingestion.OutboundStreamName}, nil
}

func TestSubject_SanitisesVenue(t *testing.T) {
	env := event.Envelope{
		EventType: event.EventTypeTrade,
		Payload:   event.TradeRecord{Intent: event.TradeIntent{Venue: "hl.perp", Pair: "BTC/USDC"}},
	}
	if got := ingestion.Subject(env); got != "replay.events.trade.hl_perp" {
		t.Fatalf("subject = %s", got)
	}
}

func TestOutboundPublisher_PublishesAndSkipsFailures(t *testing.T) {
	js := &fakeJetStream{failFor: "replay.events.rejection.b"}
	in := make(chan event.Envelope, 3)

	var hash [32]byte
	hash[0] = 0xab
	in <- event.Envelope{
		Sequence: 1, EventType: event.EventTypeTrade, Timestamp: 10, StateHash: hash,
		Payload: event.TradeRecord{Sequence: 1, Intent: event.TradeIntent{Venue: "a", Pair: "BTC/USDT"}},
	}
	in <- event.Envelope{
		Sequence: 2, EventType: event.EventTypeRejection,
		Payload: event.Rejection{Sequence: 2, Intent: event.TradeIntent{Venue: "b", Pair: "BTC/USDT"}, Reason: event.RejectNoQuote},
	}
	in <- event.Envelope{
		Sequence: 3, EventType: event.EventTypeFunding,
		Payload: event.FundingEvent{Boundary: 3600, Venue: "a", Pair: "BTC-PERP", PnL: -1},
	}
	close(in)

	pub := ingestion.NewOutboundPublisher(js, "run-1", in, nil)
	if err := pub.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if pub.Published() != 2 || len(js.msgs) != 2 {
		t.Fatalf("published = %d, msgs = %d", pub.Published(), len(js.msgs))
	}
	if js.msgs[1].subject != "replay.events.funding.a" {
		t.Fatalf("second subject = %s", js.msgs[1].subject)
	}

	var wire ingestion.PublishableEvent
	if err := json.Unmarshal(js.msgs[0].data, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if wire.RunID != "run-1" || wire.EventType != "trade" || wire.MarketID != "a:BTC/USDT" {
		t.Fatalf("wire = %+v", wire)
	}
	if wire.StateHash[:2] != "ab" || wire.Timestamp != 10 {
		t.Fatalf("state hash %s, timestamp %d", wire.StateHash, wire.Timestamp)
	}
}

func TestOutboundPublisher_JetStream(t *testing.T) {
	testutil.RequireIntegration(t)

	nc, js, err := ingestion.ConnectNATS(testutil.TestNATSURL())
	if err != nil {
		t.Skipf("test nats not available: %v", err)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
		t.Fatalf("ensure stream: %v", err)
	}
	stream, err := js.Stream(ctx, ingestion.OutboundStreamName)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	before, err := stream.Info(ctx)
	if err != nil {
		t.Fatalf("info: %v", err)
	}

	in := make(chan event.Envelope, 1)
	in <- event.Envelope{
		Sequence: time.Now().UnixNano(), EventType: event.EventTypeTrade,
		Payload: event.TradeRecord{TradeID: uuid.New(), Intent: event.TradeIntent{Venue: "a", Pair: "BTC/USDT"}},
	}
	close(in)

	pub := ingestion.NewOutboundPublisher(js, "integration", in, nil)
	if err := pub.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if pub.Published() != 1 {
		t.Fatalf("published = %d", pub.Published())
	}

	after, err := stream.Info(ctx)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if after.State.Msgs <= before.State.Msgs {
		t.Fatalf("stream messages %d -> %d", before.State.Msgs, after.State.Msgs)
	}
}
