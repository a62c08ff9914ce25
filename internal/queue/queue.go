// Package queue implements an in-memory, at-least-once message queue with
// batch delivery. Messages are received in batches, held in flight under a
// visibility timeout, and redelivered unless acknowledged.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/catalog-import-service/internal/obs"
)

// ErrShuttingDown is returned by Send after intake has been closed.
var ErrShuttingDown = errors.New("queue intake closed")

// ErrBacklogFull is returned by Send when the high watermark is reached.
var ErrBacklogFull = errors.New("queue backlog full")

// Message is one queued body plus its delivery bookkeeping. Receipt changes
// on every delivery and is the handle for Ack and Nack.
type Message struct {
	ID           string
	Body         []byte
	Receipt      string
	ReceiveCount int
}

type inflightEntry struct {
	msg      *Message
	deadline time.Time
}

// Queue is a buffered message queue with at-least-once semantics.
type Queue struct {
	mu           sync.Mutex
	backlog      []*Message
	inflight     map[string]*inflightEntry
	notify       chan struct{}
	visibility   time.Duration
	watermark    int
	shuttingDown atomic.Bool

	sent      atomic.Uint64
	delivered atomic.Uint64
	acked     atomic.Uint64
}

// New creates a Queue whose in-flight messages become redeliverable after the
// given visibility timeout.
func New(visibility time.Duration) *Queue {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &Queue{
		inflight:   make(map[string]*inflightEntry),
		notify:     make(chan struct{}, 1),
		visibility: visibility,
	}
}

// SetHighWatermark caps the total backlog plus in-flight size; Send fails
// with ErrBacklogFull once the cap is reached. Zero or negative disables it.
func (q *Queue) SetHighWatermark(n int) {
	q.mu.Lock()
	q.watermark = n
	q.mu.Unlock()
}

// Send appends one message body to the backlog.
func (q *Queue) Send(ctx context.Context, body []byte) error {
	if q.shuttingDown.Load() {
		return ErrShuttingDown
	}
	b := make([]byte, len(body))
	copy(b, body)
	msg := &Message{ID: uuid.NewString(), Body: b}
	q.mu.Lock()
	if q.watermark > 0 && len(q.backlog)+len(q.inflight) >= q.watermark {
		q.mu.Unlock()
		return ErrBacklogFull
	}
	q.backlog = append(q.backlog, msg)
	q.mu.Unlock()
	q.sent.Add(1)
	obs.QueueDepth.Set(float64(q.Depth()))
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// reclaimExpiredLocked moves in-flight messages past their visibility
// deadline back to the front of the backlog. Caller holds q.mu.
func (q *Queue) reclaimExpiredLocked(now time.Time) {
	var expired []*Message
	for receipt, e := range q.inflight {
		if now.After(e.deadline) {
			delete(q.inflight, receipt)
			expired = append(expired, e.msg)
		}
	}
	if len(expired) > 0 {
		q.backlog = append(expired, q.backlog...)
		log.Debug().Int("count", len(expired)).Msg("visibility expired, messages redelivered")
	}
}

// ReceiveBatch returns up to max messages, waiting up to wait for the first
// one. Returned messages stay in flight until Ack or Nack; unacknowledged
// messages are redelivered after the visibility timeout.
func (q *Queue) ReceiveBatch(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	deadline := time.Now().Add(wait)
	for {
		q.mu.Lock()
		q.reclaimExpiredLocked(time.Now())
		if len(q.backlog) > 0 {
			n := min(max, len(q.backlog))
			batch := make([]Message, 0, n)
			vis := time.Now().Add(q.visibility)
			for _, msg := range q.backlog[:n] {
				msg.Receipt = uuid.NewString()
				msg.ReceiveCount++
				q.inflight[msg.Receipt] = &inflightEntry{msg: msg, deadline: vis}
				batch = append(batch, *msg)
			}
			q.backlog = q.backlog[n:]
			q.mu.Unlock()
			q.delivered.Add(uint64(len(batch)))
			return batch, nil
		}
		q.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		timer := time.NewTimer(min(remaining, 50*time.Millisecond))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-q.notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Ack removes an in-flight message permanently.
func (q *Queue) Ack(receipt string) {
	q.mu.Lock()
	_, ok := q.inflight[receipt]
	delete(q.inflight, receipt)
	q.mu.Unlock()
	if ok {
		q.acked.Add(1)
	}
	obs.QueueDepth.Set(float64(q.Depth()))
}

// Nack returns an in-flight message to the backlog for immediate redelivery.
func (q *Queue) Nack(receipt string) {
	q.mu.Lock()
	e, ok := q.inflight[receipt]
	if ok {
		delete(q.inflight, receipt)
		q.backlog = append([]*Message{e.msg}, q.backlog...)
	}
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Depth returns backlog plus in-flight message count.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog) + len(q.inflight)
}

// Metrics returns counters and sizes for observability.
func (q *Queue) Metrics() (sent, delivered, acked uint64, depth int) {
	return q.sent.Load(), q.delivered.Load(), q.acked.Load(), q.Depth()
}

// CloseIntake disallows future sends.
func (q *Queue) CloseIntake() { q.shuttingDown.Store(true) }

// IsShuttingDown reports if intake has been closed.
func (q *Queue) IsShuttingDown() bool { return q.shuttingDown.Load() }

// DrainUntil blocks until every sent message has been acknowledged or the
// context is done.
func (q *Queue) DrainUntil(ctx context.Context) bool {
	for {
		sent, _, acked, depth := q.Metrics()
		if depth == 0 && sent == acked {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
