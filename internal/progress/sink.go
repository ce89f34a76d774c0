package progress

import "context"

// Sink consumes batches of progress events. Implementations must be safe for
// repeated calls, honor ctx deadlines, and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so the
// orchestrator can remain agnostic about how events are buffered or persisted.
type Emitter interface {
	Emit(evt Event)
}

// SinkFunc adapts a function into a Sink with a no-op Close.
type SinkFunc func(ctx context.Context, batch []Event) error

// Consume calls f.
func (f SinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

// Close implements Sink.
func (SinkFunc) Close(context.Context) error {
	return nil
}
