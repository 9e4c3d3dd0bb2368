// Package activity records user activity as a best effort side channel. Recording never
// blocks the request path and sink failures are logged, not returned.
package activity

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"agentdesk.io/internal/auth"
	"agentdesk.io/internal/ids"
	"agentdesk.io/internal/obs"
)

// Actions emitted by the edge.
const (
	ActionAccessDenied        = "access.denied"
	ActionSignOut             = "auth.sign_out"
	ActionProviderUnavailable = "session.provider_unavailable"
)

// Event is one append-only activity record.
type Event struct {
	ID         string
	OccurredAt time.Time
	UserID     string
	Action     string
	Resource   string
	ResourceID string
	Metadata   map[string]any
	RequestID  string
}

// Sink persists events. Write is called from a single worker goroutine.
type Sink interface {
	Name() string
	Write(ctx context.Context, e Event) error
}

const (
	defaultQueueSize    = 1024
	defaultWriteTimeout = 2 * time.Second
)

// Recorder queues events and hands them to sinks in the background.
type Recorder struct {
	sinks        []Sink
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Event

	running atomic.Bool
	done    chan struct{}
}

// Option customises a Recorder.
type Option func(*Recorder)

// WithQueueSize bounds the number of events waiting for the worker.
func WithQueueSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan Event, n)
		}
	}
}

// WithWriteTimeout bounds each sink write.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

func NewRecorder(sinks []Sink, opts ...Option) *Recorder {
	r := &Recorder{
		sinks:        sinks,
		writeTimeout: defaultWriteTimeout,
		queue:        make(chan Event, defaultQueueSize),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record enqueues e without blocking. Missing id, time, request id and user id are filled
// from ctx. The event is dropped when the queue is full or the recorder is closed.
func (r *Recorder) Record(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if e.RequestID == "" {
		e.RequestID = obs.RequestIDFromContext(ctx)
	}
	if e.UserID == "" {
		if uid, ok := auth.UserIDFromContext(ctx); ok {
			e.UserID = uid
		}
	}
	e.Metadata = maps.Clone(e.Metadata)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		obs.ActivityDropped()
		return
	}
	select {
	case r.queue <- e:
	default:
		obs.ActivityDropped()
		obs.Ctx(ctx).Warn().Str("action", e.Action).Msg("activity_dropped")
	}
}

// Run writes queued events until the recorder is closed or ctx is done, then flushes
// whatever is still queued.
func (r *Recorder) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return nil
	}
	defer close(r.done)
	for {
		select {
		case e, ok := <-r.queue:
			if !ok {
				return nil
			}
			r.write(e)
		case <-ctx.Done():
			r.drain()
			return nil
		}
	}
}

// Close stops accepting events and waits for the worker to flush, bounded by ctx.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	if !r.running.Load() {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case e, ok := <-r.queue:
			if !ok {
				return
			}
			r.write(e)
		default:
			return
		}
	}
}

func (r *Recorder) write(e Event) {
	for _, sink := range r.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
		err := sink.Write(obs.WithRequestID(ctx, e.RequestID), e)
		cancel()
		if err != nil {
			obs.ActivityResult(sink.Name(), "failed")
			obs.Logger().Warn().Err(err).
				Str("sink", sink.Name()).
				Str("action", e.Action).
				Str("event_id", e.ID).
				Msg("activity_sink_failed")
			continue
		}
		obs.ActivityResult(sink.Name(), "written")
	}
}
