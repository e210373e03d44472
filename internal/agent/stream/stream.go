package stream

import (
	"context"
	"fmt"
)

// Emitter carries progress lines from the analysis pipeline to the HTTP
// response stream. The pipeline goroutine writes, the request handler drains;
// lines are delivered FIFO and the channel is closed by the producer when the
// pipeline finishes, so the handler always observes termination.
type Emitter struct {
	ch chan string
}

func NewEmitter(buffer int) *Emitter {
	if buffer <= 0 {
		buffer = 64
	}
	return &Emitter{ch: make(chan string, buffer)}
}

// Lines is the consumer side; it is closed when the pipeline is done.
func (e *Emitter) Lines() <-chan string {
	return e.ch
}

// Close ends the stream. Only the producing goroutine may call it, once.
func (e *Emitter) Close() {
	close(e.ch)
}

func (e *Emitter) send(ctx context.Context, line string) {
	select {
	case e.ch <- line:
	case <-ctx.Done():
		// Caller abandoned the request; drop the line so the pipeline can
		// keep unwinding toward its own teardown.
	}
}

type ctxKey struct{}

// NewContext attaches the emitter to the context so graph nodes and the
// bridge can emit without threading it through every signature.
func NewContext(ctx context.Context, e *Emitter) context.Context {
	return context.WithValue(ctx, ctxKey{}, e)
}

func FromContext(ctx context.Context) (*Emitter, bool) {
	e, ok := ctx.Value(ctxKey{}).(*Emitter)
	return e, ok
}

// Emit formats and sends one progress line. A context without an emitter is a
// no-op, which keeps components usable from plain unit tests.
func Emit(ctx context.Context, format string, args ...any) {
	e, ok := FromContext(ctx)
	if !ok {
		return
	}
	if len(args) == 0 {
		e.send(ctx, format)
		return
	}
	e.send(ctx, fmt.Sprintf(format, args...))
}
