// Package fanout pushes accepted bids and lifecycle events to live watchers.
// Delivery is best-effort: the repository is authoritative and clients can
// reconcile by polling.
package fanout

import (
	"sync"
	"sync/atomic"

	model "auction-engine/internal/models"
	"auction-engine/utils"
)

// DefaultBuffer is the per-subscriber queue length before a slow reader is dropped
const DefaultBuffer = 64

// AuctionTopic carries BidAccepted and AuctionUpdated events of one auction
func AuctionTopic(auctionID string) string { return "auction:" + auctionID }

// BidderTopic carries Outbid alerts addressed to one bidder
func BidderTopic(bidderID string) string { return "bidder:" + bidderID }

// Subscription receives the events of one topic in publish order
type Subscription struct {
	topic  string
	ch     chan model.Event
	hub    *Hub
	closed atomic.Bool
}

// Events is closed when the subscription ends, either by Close or because
// the subscriber fell too far behind.
func (s *Subscription) Events() <-chan model.Event { return s.ch }

// Topic returns the topic the subscription listens on
func (s *Subscription) Topic() string { return s.topic }

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() { s.hub.remove(s) }

// Hub routes events to per-topic subscribers
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[*Subscription]struct{}
	buffer int

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates a hub whose subscribers buffer up to buffer events
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		topics: make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe starts receiving events published to topic
func (h *Hub) Subscribe(topic string) *Subscription {
	s := &Subscription{topic: topic, ch: make(chan model.Event, h.buffer), hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.topics[topic] = subs
	}
	subs[s] = struct{}{}
	return s
}

// Publish delivers ev to every subscriber of topic without blocking. A subscriber
// whose buffer is full is disconnected.
func (h *Hub) Publish(topic string, ev model.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.published.Add(1)
	for s := range h.topics[topic] {
		select {
		case s.ch <- ev:
		default:
			h.dropLocked(s)
			h.dropped.Add(1)
			utils.Warn("fanout: dropping slow subscriber", map[string]any{
				"topic":      topic,
				"event_type": ev.Type,
				"auction_id": ev.AuctionID,
			})
		}
	}
}

// Subscribers returns the number of live subscriptions on topic
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

// Stats returns the number of publish calls and dropped subscribers
func (h *Hub) Stats() (published, dropped uint64) {
	return h.published.Load(), h.dropped.Load()
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(s)
}

func (h *Hub) dropLocked(s *Subscription) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if subs, ok := h.topics[s.topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.topics, s.topic)
		}
	}
	close(s.ch)
}
