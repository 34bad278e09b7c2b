// Package audit records traffic events off the request path.
//
// Events are dispatched fire-and-forget onto a bounded queue consumed by a
// single worker. The queue never blocks a caller: when full, the event is
// dropped and the drop is logged. Write failures are logged and swallowed;
// they never affect the request that produced the event.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/daybook-app/daybook/internal/model"
	"github.com/daybook-app/daybook/internal/store"
)

// DefaultQueueDepth bounds the pending-event queue when no depth is
// configured.
const DefaultQueueDepth = 256

// Recorder accepts audit events and persists them in the background.
type Recorder struct {
	st  *store.Store
	log *slog.Logger

	mu     sync.Mutex
	events chan model.Traffic
	closed bool

	done    chan struct{}
	dropped atomic.Int64
}

// NewRecorder starts the single consumer worker. depth <= 0 selects
// DefaultQueueDepth.
func NewRecorder(st *store.Store, logger *slog.Logger, depth int) *Recorder {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	r := &Recorder{
		st:     st,
		log:    logger,
		events: make(chan model.Traffic, depth),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues an audit event. Never blocks: a full queue drops the
// event and logs the drop; a closed recorder discards silently.
func (r *Recorder) Record(actorID uuid.UUID, action, detail string) {
	event := model.Traffic{ID: uuid.New(), ActorID: actorID, Action: action, Detail: detail}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.events <- event:
	default:
		r.dropped.Add(1)
		r.log.Warn("audit queue full, event dropped", "action", action)
	}
}

// Dropped returns how many events were discarded due to backpressure.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Close stops accepting events, drains the queue, and waits for the
// worker to finish.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	ctx := context.Background()
	for event := range r.events {
		if err := r.st.Traffic.Insert(ctx, r.st.DB(), event); err != nil {
			// Swallowed after logging: audit writes never surface.
			r.log.Error("audit write failed", "action", event.Action, "error", err)
		}
	}
}
