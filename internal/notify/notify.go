// Package notify hands engine notifications (winner, sale, cancellation, outbid)
// to an external delivery collaborator without blocking the caller.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	model "auction-engine/internal/models"
	"auction-engine/utils"
)

// Notifier accepts notifications for asynchronous delivery
type Notifier interface {
	Notify(n model.Notification)
}

// Publisher delivers one encoded message to a broker
type Publisher interface {
	Publish(ctx context.Context, id string, topic string, payload []byte) error
}

// Dispatcher queues notifications and publishes them from background workers.
// Notify never blocks: when the queue is full the notification is dropped and logged.
type Dispatcher struct {
	pub     Publisher
	queue   chan model.Notification
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewDispatcher creates a dispatcher with the given queue size and per-publish timeout
func NewDispatcher(pub Publisher, queueSize int, timeout time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		pub:     pub,
		queue:   make(chan model.Notification, queueSize),
		timeout: timeout,
	}
}

// Start runs workers until ctx is done or Close drains the queue
func (d *Dispatcher) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Notify enqueues n without blocking
func (d *Dispatcher) Notify(n model.Notification) {
	if n.ID == "" {
		n.ID = utils.GenerateID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return
	}

	select {
	case d.queue <- n:
	default:
		d.dropped.Add(1)
		utils.Warn("notify: queue full, dropping notification", map[string]any{
			"type":       n.Type,
			"auction_id": n.AuctionID,
		})
	}
}

// Close stops intake and waits for queued notifications to be published
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Stats returns delivery counters
func (d *Dispatcher) Stats() (sent, failed, dropped uint64) {
	return d.sent.Load(), d.failed.Load(), d.dropped.Load()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-d.queue:
			if !ok {
				return
			}
			d.deliver(ctx, n)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n model.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		d.failed.Add(1)
		utils.Error("notify: failed to encode notification", map[string]any{"id": n.ID, "error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.pub.Publish(ctx, n.ID, string(n.Type), payload); err != nil {
		d.failed.Add(1)
		utils.Error("notify: failed to publish notification", map[string]any{
			"id":         n.ID,
			"type":       n.Type,
			"auction_id": n.AuctionID,
			"error":      err.Error(),
		})
		return
	}
	d.sent.Add(1)
}

// LogPublisher writes notifications to the structured log
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, id string, topic string, payload []byte) error {
	utils.Info("notification", map[string]any{
		"id":      id,
		"topic":   topic,
		"payload": string(payload),
	})
	return nil
}
