/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package mail

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/telekom/issuemail/pkg/metrics"
	"github.com/telekom/issuemail/pkg/telemetry"
)

const sendTimeout = 2 * time.Minute

// QueueOptions configures a Queue. Zero values select defaults.
type QueueOptions struct {
	// Host labels the queue metrics.
	Host             string
	MaxRetries       int
	InitialBackoffMs int
	MaxQueueSize     int
	// SendsPerSecond throttles item sends. Zero disables throttling.
	SendsPerSecond float64
}

// ItemStatus is a point in time view of a queued item.
type ItemStatus struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	State     ItemState `json:"state"`
	Attempt   int       `json:"attempt"`
	CreatedAt time.Time `json:"createdAt"`
	NextRetry time.Time `json:"nextRetry,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

// entry fields other than item are guarded by Queue.mu.
type entry struct {
	item      Item
	state     ItemState
	attempt   int
	createdAt time.Time
	nextRetry time.Time
	lastErr   error
}

// Queue sends items asynchronously on a single worker with retries. Items
// that exhaust their retries are parked in the error queue until resent.
type Queue struct {
	host             string
	queue            chan *entry
	log              *zap.SugaredLogger
	maxRetries       int
	initialBackoffMs int
	maxQueueSize     int
	limiter          *rate.Limiter
	wg               sync.WaitGroup
	ctx              context.Context
	cancel           context.CancelFunc

	doneOnce sync.Once
	done     chan struct{}

	mu      sync.Mutex
	tracked []*entry
	pending []*entry
	failed  []*entry
}

// NewQueue creates a new mail queue for asynchronous sending
func NewQueue(log *zap.SugaredLogger, opts QueueOptions) *Queue {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.InitialBackoffMs <= 0 {
		opts.InitialBackoffMs = 10000
	}
	if opts.MaxQueueSize <= 0 {
		opts.MaxQueueSize = 1000
	}
	if opts.Host == "" {
		opts.Host = "none"
	}

	log = log.Named("mail-queue")
	log.Infow("Initializing mail queue",
		"host", opts.Host,
		"maxRetries", opts.MaxRetries,
		"initialBackoffMs", opts.InitialBackoffMs,
		"maxQueueSize", opts.MaxQueueSize,
		"sendsPerSecond", opts.SendsPerSecond)

	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		host:             opts.Host,
		queue:            make(chan *entry, opts.MaxQueueSize),
		log:              log,
		maxRetries:       opts.MaxRetries,
		initialBackoffMs: opts.InitialBackoffMs,
		maxQueueSize:     opts.MaxQueueSize,
		ctx:              ctx,
		cancel:           cancel,
		done:             make(chan struct{}),
	}
	if opts.SendsPerSecond > 0 {
		q.limiter = rate.NewLimiter(rate.Limit(opts.SendsPerSecond), 1)
	}
	return q
}

// Start begins the background worker for processing items
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.worker()
	q.log.Info("Mail queue worker started")
}

// AddItem hands an item to the queue.
func (q *Queue) AddItem(item Item) error {
	if item == nil {
		return fmt.Errorf("cannot queue a nil item")
	}
	id := item.ID()
	select {
	case <-q.ctx.Done():
		q.log.Errorw("Cannot add item, queue is shutting down", "id", id)
		metrics.MailQueueDropped.WithLabelValues(q.host).Inc()
		return ErrQueueClosed
	default:
	}

	now := time.Now()
	e := &entry{item: item, state: StatePending, createdAt: now, nextRetry: now}
	if err := q.push(e); err != nil {
		metrics.MailQueueDropped.WithLabelValues(q.host).Inc()
		q.log.Errorw("Mail queue rejected item", "id", id, "queueSize", q.maxQueueSize, "error", err)
		return err
	}
	metrics.MailQueued.WithLabelValues(q.host).Inc()
	q.log.Debugw("Item queued for sending", "id", id)
	return nil
}

func (q *Queue) push(e *entry) error {
	q.mu.Lock()
	q.tracked = append(q.tracked, e)
	q.mu.Unlock()

	select {
	case q.queue <- e:
		return nil
	case <-q.ctx.Done():
		q.untrack(e)
		return ErrQueueClosed
	default:
		q.untrack(e)
		return fmt.Errorf("%w (capacity: %d)", ErrQueueFull, q.maxQueueSize)
	}
}

func (q *Queue) untrack(e *entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, t := range q.tracked {
		if t == e {
			q.tracked = append(q.tracked[:i], q.tracked[i+1:]...)
			return
		}
	}
}

// worker processes items from the queue. Entries waiting for a retry live on
// the queue so a worker restarted after a panic picks them up.
func (q *Queue) worker() {
	defer q.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			q.log.Errorw("panic in mail queue worker recovered", "panic", r)
			metrics.MailFailed.WithLabelValues(q.host).Inc()
			q.wg.Add(1)
			go q.worker()
		}
	}()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			q.log.Info("Mail queue worker shutting down")
			q.drain()
			return

		case e := <-q.queue:
			if e == nil {
				continue
			}
			q.mu.Lock()
			q.pending = append(q.pending, e)
			q.mu.Unlock()
			if !q.processEntry(e) {
				q.removePending(e)
			}

		case <-ticker.C:
			for _, e := range q.duePending(time.Now()) {
				if !q.processEntry(e) {
					q.removePending(e)
				}
			}
		}
	}
}

// duePending returns the entries whose retry time has come.
func (q *Queue) duePending(now time.Time) []*entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []*entry
	for _, e := range q.pending {
		if !now.Before(e.nextRetry) {
			due = append(due, e)
		}
	}
	return due
}

func (q *Queue) removePending(e *entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.pending {
		if p == e {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// processEntry sends an item once and reports whether a retry is scheduled.
func (q *Queue) processEntry(e *entry) (retry bool) {
	q.mu.Lock()
	e.attempt++
	e.state = StateSending
	attempt := e.attempt
	q.mu.Unlock()

	id := e.item.ID()
	q.log.Debugw("Processing queued item", "id", id, "attempt", attempt, "maxRetries", q.maxRetries)

	q.throttle()
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	ctx, span := telemetry.StartSpan(ctx, "mail.send",
		attribute.String("mail.item", id),
		attribute.String("mail.host", q.host),
		attribute.Int("mail.attempt", attempt))
	err := q.send(ctx, e.item)
	telemetry.EndSpan(span, err)
	cancel()

	q.mu.Lock()
	defer q.mu.Unlock()
	if err == nil {
		e.state = StateSent
		e.lastErr = nil
		q.removeTrackedLocked(e)
		metrics.MailSent.WithLabelValues(q.host).Inc()
		q.log.Infow("Queued item sent", "id", id, "attempt", attempt)
		return false
	}

	e.lastErr = err
	if attempt < q.maxRetries {
		backoffMs := q.calculateBackoff(attempt)
		e.state = StatePending
		e.nextRetry = time.Now().Add(time.Duration(backoffMs) * time.Millisecond)
		q.log.Warnw("Item send failed, scheduling retry",
			"id", id,
			"attempt", attempt,
			"error", err,
			"retryIn", fmt.Sprintf("%dms", backoffMs))
		metrics.MailRetryScheduled.WithLabelValues(q.host).Inc()
		return true
	}

	e.state = StateFailed
	q.removeTrackedLocked(e)
	q.failed = append(q.failed, e)
	q.log.Errorw("Item send failed after all retries, moved to error queue",
		"id", id,
		"attempts", attempt,
		"error", err)
	metrics.MailFailed.WithLabelValues(q.host).Inc()
	return false
}

func (q *Queue) send(ctx context.Context, item Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError("send", item.ID(), fmt.Errorf("panic: %v", r))
		}
	}()
	return item.Send(ctx)
}

func (q *Queue) throttle() {
	if q.limiter == nil || q.ctx.Err() != nil {
		return
	}
	if err := q.limiter.Wait(q.ctx); err != nil {
		q.log.Debugw("Send throttle interrupted", "error", err)
	}
}

func (q *Queue) removeTrackedLocked(e *entry) {
	for i, t := range q.tracked {
		if t == e {
			q.tracked = append(q.tracked[:i], q.tracked[i+1:]...)
			return
		}
	}
}

// drain gives every item still waiting one final attempt before shutdown.
func (q *Queue) drain() {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()
	for len(q.queue) > 0 {
		pending = append(pending, <-q.queue)
	}
	q.log.Infow("Processing pending items on shutdown", "count", len(pending))
	for _, e := range pending {
		q.mu.Lock()
		e.attempt = max(e.attempt, q.maxRetries-1)
		q.mu.Unlock()
		q.processEntry(e)
	}
}

// calculateBackoff grows exponentially from the initial backoff, capped at 30 minutes.
func (q *Queue) calculateBackoff(attempt int) int {
	backoffMs := int(float64(q.initialBackoffMs) * math.Pow(2, float64(attempt-1)))
	if backoffMs > 1800000 {
		backoffMs = 1800000
	}
	return backoffMs
}

// Stop gracefully shuts down the queue and waits for all items to be processed
func (q *Queue) Stop(ctx context.Context) error {
	q.log.Info("Stopping mail queue")
	q.cancel()

	select {
	case <-q.Done():
		q.log.Info("Mail queue stopped gracefully")
		return nil
	case <-ctx.Done():
		q.log.Warnw("Mail queue shutdown timeout, some items may not have been processed")
		return ctx.Err()
	}
}

// Done is closed once the queue has stopped and the final drain is over.
func (q *Queue) Done() <-chan struct{} {
	q.doneOnce.Do(func() {
		go func() {
			q.wg.Wait()
			close(q.done)
		}()
	})
	return q.done
}

// Length returns the number of items waiting for the worker.
func (q *Queue) Length() int {
	return len(q.queue)
}

// Items lists the items not yet sent, oldest first.
func (q *Queue) Items(ctx context.Context) []ItemStatus {
	q.mu.Lock()
	entries := append([]*entry(nil), q.tracked...)
	q.mu.Unlock()
	return q.statuses(ctx, entries)
}

// ErrorItems lists the items parked in the error queue.
func (q *Queue) ErrorItems(ctx context.Context) []ItemStatus {
	q.mu.Lock()
	entries := append([]*entry(nil), q.failed...)
	q.mu.Unlock()
	return q.statuses(ctx, entries)
}

// Resend moves every item from the error queue back onto the queue with a
// fresh retry budget. Items that do not fit stay in the error queue.
func (q *Queue) Resend() (int, error) {
	q.mu.Lock()
	failed := q.failed
	q.failed = nil
	for _, e := range failed {
		e.attempt = 0
		e.state = StatePending
		e.nextRetry = time.Now()
	}
	q.mu.Unlock()

	for i, e := range failed {
		if err := q.push(e); err != nil {
			q.mu.Lock()
			for _, rest := range failed[i:] {
				rest.state = StateFailed
			}
			q.failed = append(failed[i:len(failed):len(failed)], q.failed...)
			q.mu.Unlock()
			q.log.Warnw("Resend stopped early", "resent", i, "remaining", len(failed)-i, "error", err)
			return i, err
		}
	}
	if len(failed) > 0 {
		q.log.Infow("Error queue resent", "count", len(failed))
	}
	return len(failed), nil
}

// adoptFailed takes over the error queue of a previous queue instance.
func (q *Queue) adoptFailed(other *Queue) {
	other.mu.Lock()
	failed := other.failed
	other.failed = nil
	other.mu.Unlock()

	q.mu.Lock()
	q.failed = append(q.failed, failed...)
	q.mu.Unlock()
}

func (q *Queue) statuses(ctx context.Context, entries []*entry) []ItemStatus {
	out := make([]ItemStatus, 0, len(entries))
	for _, e := range entries {
		q.mu.Lock()
		st := ItemStatus{
			ID:        e.item.ID(),
			State:     e.state,
			Attempt:   e.attempt,
			CreatedAt: e.createdAt,
		}
		if e.state == StatePending && e.attempt > 0 {
			st.NextRetry = e.nextRetry
		}
		if e.lastErr != nil {
			st.LastError = e.lastErr.Error()
		}
		q.mu.Unlock()
		st.Subject = e.item.Subject(ctx)
		out = append(out, st)
	}
	return out
}
