package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names a real-time event pushed to auction watchers
type EventType string

const (
	EventBidAccepted    EventType = "BidAccepted"
	EventAuctionUpdated EventType = "AuctionUpdated"
	EventOutbid         EventType = "Outbid"
	EventAuctionDeleted EventType = "AuctionDeleted"
)

// OutbidAlert is addressed to the bidder who just lost the lead
type OutbidAlert struct {
	BidderID  string          `json:"bidder_id"`
	AuctionID string          `json:"auction_id"`
	NewAmount decimal.Decimal `json:"new_amount"`
}

// Event is a fan-out message. Exactly one payload field is set, per Type.
// Version is the auction version the event was produced at.
type Event struct {
	Type      EventType    `json:"type"`
	AuctionID string       `json:"auction_id"`
	Version   int64        `json:"version"`
	Bid       *Bid         `json:"bid,omitempty"`
	Auction   *Auction     `json:"auction,omitempty"`
	Outbid    *OutbidAlert `json:"outbid,omitempty"`
	At        time.Time    `json:"at"`
}

// NotificationType names an outbound message for the notification collaborator
type NotificationType string

const (
	NotifyWinnerDetermined NotificationType = "WinnerDetermined"
	NotifySellerSold       NotificationType = "SellerSold"
	NotifyAuctionCancelled NotificationType = "AuctionCancelled"
	NotifyOutbid           NotificationType = "Outbid"
)

// Notification is emitted by the engine; formatting and delivery belong to the collaborator.
// ReserveMet is set on sale notifications of auctions that carry a reserve price.
type Notification struct {
	ID         string           `json:"id"`
	Type       NotificationType `json:"type"`
	AuctionID  string           `json:"auction_id"`
	WinnerID   string           `json:"winner_id,omitempty"`
	SellerID   string           `json:"seller_id,omitempty"`
	BidderID   string           `json:"bidder_id,omitempty"`
	BidderIDs  []string         `json:"bidder_ids,omitempty"`
	Amount     decimal.Decimal  `json:"amount"`
	ReserveMet *bool            `json:"reserve_met,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}
