package projection

import (
	"QuoteLedger/internal/event"
	"QuoteLedger/internal/observability"
	"context"

	"github.com/rs/zerolog"
)

// Fanout copies every engine envelope to its subscribers.
// Blocking subscribers apply backpressure to the engine; lossy subscribers
// drop on a full buffer.
type Fanout struct {
	inputChan <-chan event.Envelope
	subs      []subscriber
	lastSeq   int64
	dropped   int64
	logger    zerolog.Logger
}

type subscriber struct {
	name     string
	ch       chan event.Envelope
	blocking bool
}

func NewFanout(inputChan <-chan event.Envelope) *Fanout {
	return &Fanout{
		inputChan: inputChan,
		logger:    observability.NewLogger("fanout"),
	}
}

// Subscribe registers a consumer. Must be called before Run.
func (f *Fanout) Subscribe(name string, buffer int, blocking bool) <-chan event.Envelope {
	ch := make(chan event.Envelope, buffer)
	f.subs = append(f.subs, subscriber{name: name, ch: ch, blocking: blocking})
	return ch
}

// Run forwards envelopes until the input closes, then closes every
// subscriber channel.
func (f *Fanout) Run(ctx context.Context) error {
	defer f.closeAll()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-f.inputChan:
			if !ok {
				f.logger.Info().
					Int64("last_sequence", f.lastSeq).
					Int64("dropped", f.dropped).
					Msg("fanout drained")
				return nil
			}

			for _, sub := range f.subs {
				if sub.blocking {
					select {
					case sub.ch <- env:
					case <-ctx.Done():
						return ctx.Err()
					}
					continue
				}

				select {
				case sub.ch <- env:
				default:
					f.dropped++
					f.logger.Debug().
						Str("subscriber", sub.name).
						Int64("sequence", env.Sequence).
						Msg("envelope dropped")
				}
			}

			f.lastSeq = env.Sequence
		}
	}
}

// Dropped returns how many envelopes lossy subscribers missed.
func (f *Fanout) Dropped() int64 {
	return f.dropped
}

func (f *Fanout) closeAll() {
	for _, sub := range f.subs {
		close(sub.ch)
	}
}
