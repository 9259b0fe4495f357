package violations

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"admission/internal/models"
)

// Recorder persists denied-request records off the serving path. Writes go
// through a buffered queue drained by a fixed pool of workers, so a burst of
// violations cannot fan out unbounded against the audit store. When the
// queue is full the record is dropped with a warning; audit loss is always
// preferred over blocking a request.
type Recorder struct {
	store        Store
	queue        chan *models.ViolationRecord
	writeTimeout time.Duration
	onDrop       func()

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// RecorderOption configures optional recorder behavior.
type RecorderOption func(*Recorder)

// WithDropCallback registers a callback invoked whenever a record is dropped
// because the queue is full. Used to feed the dropped-violations metric.
func WithDropCallback(fn func()) RecorderOption {
	return func(r *Recorder) { r.onDrop = fn }
}

// NewRecorder starts a recorder with the configured queue size and worker
// count. Callers must Close it to drain outstanding writes.
func NewRecorder(store Store, cfg models.AuditConfig, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:        store,
		queue:        make(chan *models.ViolationRecord, cfg.Buffer),
		writeTimeout: cfg.WriteTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}

	for i := 0; i < cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}

	return r
}

// Record enqueues a violation for persistence. It never blocks and never
// returns an error: a full queue drops the record with a warning.
func (r *Recorder) Record(record *models.ViolationRecord) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	select {
	case r.queue <- record:
		r.mu.Unlock()
	default:
		r.mu.Unlock()
		if r.onDrop != nil {
			r.onDrop()
		}
		slog.Warn("Violation audit queue full, dropping record",
			"ip", record.IP,
			"tier", record.ViolationTier)
	}
}

// List returns a filtered, newest-first page of persisted violations.
func (r *Recorder) List(ctx context.Context, filter models.ViolationFilter) ([]*models.ViolationRecord, int, error) {
	return r.store.List(ctx, filter)
}

// Close stops accepting records and waits for the workers to drain the queue.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

// worker drains the queue. A failed write is logged and swallowed; it must
// never surface to a caller.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for record := range r.queue {
		ctx := context.Background()
		cancel := context.CancelFunc(func() {})
		if r.writeTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, r.writeTimeout)
		}

		if err := r.store.Insert(ctx, record); err != nil {
			slog.Warn("Failed to persist violation record",
				"id", record.ID,
				"error", err)
		}
		cancel()
	}
}
