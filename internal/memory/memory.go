// Package memory is the boundary to the session's long-term knowledge: a
// read side that recalls pre-formatted context and a write side that absorbs
// outcome events. Ranking and storage live behind these interfaces, outside
// the execution core.
package memory

import (
	"context"

	"patchwork/internal/events"
)

// Recaller supplies pre-formatted context for a prompt. The core treats the
// result as an opaque string to place in the model's context bundle.
type Recaller interface {
	Recall(ctx context.Context, prompt string) (string, error)
}

// Sink absorbs session outcomes for future recall.
type Sink interface {
	Record(ctx context.Context, event events.Event) error
}

// NopRecaller recalls nothing.
type NopRecaller struct{}

func (NopRecaller) Recall(context.Context, string) (string, error) { return "", nil }

// NopSink discards outcomes.
type NopSink struct{}

func (NopSink) Record(context.Context, events.Event) error { return nil }

// Pump drains a bus subscription into a sink until the channel closes or the
// context ends. Run it in its own goroutine; it returns when done.
func Pump(ctx context.Context, ch <-chan events.Event, sink Sink) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			// Sink errors are the sink's problem; the stream keeps flowing.
			_ = sink.Record(ctx, ev)
		}
	}
}
