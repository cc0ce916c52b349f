package trust

import (
	"context"
	"sync"

	"github.com/trustmesh/trustmesh/pkg/graphstore"
)

// emitter numbers pipeline events and pushes them onto a request's stream.
//
// A nil channel makes it a no-op, which is how the synchronous Run mode
// shares the pipeline with the streaming mode. After a terminal event
// nothing more is sent; after cancellation pending sends are abandoned so
// the stream closes without a terminal event.
type emitter struct {
	ctx       context.Context
	requestID string
	ch        chan<- Event

	mu       sync.Mutex
	seq      uint64
	terminal bool
}

func newEmitter(ctx context.Context, requestID string, ch chan<- Event) *emitter {
	return &emitter{ctx: ctx, requestID: requestID, ch: ch}
}

func (e *emitter) discovered(n graphstore.Node) {
	e.send(Event{Kind: EventNodeDiscovered, Node: &n})
}

func (e *emitter) resolved(r NodeResult) {
	e.send(Event{Kind: EventNodeResolved, Result: &r})
}

func (e *emitter) complete(report *Report) {
	e.send(Event{Kind: EventWalkComplete, Report: report})
}

func (e *emitter) failed(err error) {
	e.send(Event{Kind: EventFailed, Error: err.Error()})
}

func (e *emitter) send(ev Event) {
	if e.ch == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal || e.ctx.Err() != nil {
		return
	}

	e.seq++
	ev.Seq = e.seq
	ev.RequestID = e.requestID
	if ev.Terminal() {
		e.terminal = true
	}

	select {
	case e.ch <- ev:
	case <-e.ctx.Done():
	}
}
