package handler

import (
	"net/http"
	"time"

	"auction-engine/internal/fanout"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

const defaultKeepAlive = 15 * time.Second

// Subscriber hands out live subscriptions to fan-out topics
type Subscriber interface {
	Subscribe(topic string) *fanout.Subscription
}

// EventsHandler streams fan-out events to HTTP clients as Server-Sent Events
type EventsHandler struct {
	hub       Subscriber
	keepAlive time.Duration
}

// NewEventsHandler creates an EventsHandler; keepAlive <= 0 selects the default ping interval
func NewEventsHandler(hub Subscriber, keepAlive time.Duration) *EventsHandler {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return &EventsHandler{hub: hub, keepAlive: keepAlive}
}

// AuctionEventsHandler handles GET /auctions/:auction_id/events
func (h *EventsHandler) AuctionEventsHandler(c *gin.Context) {
	h.stream(c, fanout.AuctionTopic(c.Param("auction_id")))
}

// UserEventsHandler handles GET /users/:user_id/events
func (h *EventsHandler) UserEventsHandler(c *gin.Context) {
	h.stream(c, fanout.BidderTopic(c.Param("user_id")))
}

// stream forwards events until the client leaves or the hub drops the subscription
func (h *EventsHandler) stream(c *gin.Context, topic string) {
	sub := h.hub.Subscribe(topic)
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	utils.Info("events: subscriber connected", map[string]any{"topic": topic})

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			utils.Info("events: subscriber left", map[string]any{"topic": topic})
			return
		case ev, ok := <-sub.Events():
			if !ok {
				utils.Warn("events: subscription dropped", map[string]any{"topic": topic})
				return
			}
			c.SSEvent(string(ev.Type), ev)
			c.Writer.Flush()
		case now := <-ticker.C:
			c.SSEvent("ping", gin.H{"at": now.UTC()})
			c.Writer.Flush()
		}
	}
}
