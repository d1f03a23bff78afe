package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// amounts travel as JSON numbers, matching the HTTP contract
	decimal.MarshalJSONWithoutQuotes = true
}

// MoneyPlaces is the fixed precision of every currency amount.
const MoneyPlaces int32 = 2

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

const (
	AuctionDraft     AuctionStatus = "DRAFT"
	AuctionScheduled AuctionStatus = "SCHEDULED"
	AuctionActive    AuctionStatus = "ACTIVE"
	AuctionEnded     AuctionStatus = "ENDED"
	AuctionCancelled AuctionStatus = "CANCELLED"
	AuctionSold      AuctionStatus = "SOLD"
)

// Valid reports whether s is one of the known auction statuses
func (s AuctionStatus) Valid() bool {
	switch s {
	case AuctionDraft, AuctionScheduled, AuctionActive, AuctionEnded, AuctionCancelled, AuctionSold:
		return true
	}
	return false
}

// Terminal reports whether no transition can leave s
func (s AuctionStatus) Terminal() bool {
	return s == AuctionSold || s == AuctionCancelled
}

// BidStatus is the standing of a single bid
type BidStatus string

const (
	BidWinning BidStatus = "WINNING"
	BidOutbid  BidStatus = "OUTBID"
	BidWon     BidStatus = "WON"
)

// Valid reports whether s is one of the known bid statuses
func (s BidStatus) Valid() bool {
	return s == BidWinning || s == BidOutbid || s == BidWon
}

// Auction represents a listed item and its bidding state
type Auction struct {
	ID              string              `json:"auction_id"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	CategoryID      string              `json:"category_id,omitempty"`
	SellerID        string              `json:"seller_id"`
	StartingPrice   decimal.Decimal     `json:"starting_price"`
	CurrentPrice    decimal.Decimal     `json:"current_price"`
	MinBidIncrement decimal.Decimal     `json:"min_bid_increment"`
	ReservePrice    decimal.NullDecimal `json:"reserve_price"`
	StartTime       time.Time           `json:"start_time"`
	EndTime         time.Time           `json:"end_time"`
	Status          AuctionStatus       `json:"status"`
	WinnerID        string              `json:"winner_id,omitempty"`
	Views           int64               `json:"views"`
	TotalBids       int64               `json:"total_bids"`
	Version         int64               `json:"version"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// MinimumNextBid returns the smallest amount a new bid must reach
func (a Auction) MinimumNextBid() decimal.Decimal {
	return a.CurrentPrice.Add(a.MinBidIncrement)
}

// ReserveMet reports whether amount satisfies the reserve price, if any
func (a Auction) ReserveMet(amount decimal.Decimal) bool {
	if !a.ReservePrice.Valid {
		return true
	}
	return amount.GreaterThanOrEqual(a.ReservePrice.Decimal)
}

// Bid represents a bidder's offer on an auction
type Bid struct {
	BidID         string          `json:"bid_id"`
	AuctionID     string          `json:"auction_id"`
	BidderID      string          `json:"bidder_id"`
	Amount        decimal.Decimal `json:"amount"`
	PreviousPrice decimal.Decimal `json:"previous_price"`
	Status        BidStatus       `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// BidPage is one page of bid history, newest first
type BidPage struct {
	Bids  []Bid `json:"bids"`
	Total int   `json:"total"`
	Page  int   `json:"page"`
	Pages int   `json:"pages"`
}

// AuctionFilter narrows auction listings. Zero fields match everything.
type AuctionFilter struct {
	Status     AuctionStatus
	CategoryID string
	SellerID   string
}

// BidderFilter narrows a bidder's bid history. Zero status fields match everything.
type BidderFilter struct {
	BidderID      string
	Status        BidStatus
	AuctionStatus AuctionStatus
}

// ActiveBids matches the bids a bidder is currently leading on running auctions
func ActiveBids(bidderID string) BidderFilter {
	return BidderFilter{BidderID: bidderID, Status: BidWinning, AuctionStatus: AuctionActive}
}

// AuctionPatch holds the editable fields of an auction that has not opened.
// Nil fields are left unchanged.
type AuctionPatch struct {
	Title           *string
	Description     *string
	CategoryID      *string
	StartingPrice   *decimal.Decimal
	MinBidIncrement *decimal.Decimal
	ReservePrice    *decimal.NullDecimal
	StartTime       *time.Time
	EndTime         *time.Time
}

// Apply returns a copy of a with the patch applied
func (p AuctionPatch) Apply(a Auction) Auction {
	if p.Title != nil {
		a.Title = *p.Title
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.CategoryID != nil {
		a.CategoryID = *p.CategoryID
	}
	if p.StartingPrice != nil {
		a.StartingPrice = *p.StartingPrice
		a.CurrentPrice = *p.StartingPrice
	}
	if p.MinBidIncrement != nil {
		a.MinBidIncrement = *p.MinBidIncrement
	}
	if p.ReservePrice != nil {
		a.ReservePrice = *p.ReservePrice
	}
	if p.StartTime != nil {
		a.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		a.EndTime = *p.EndTime
	}
	return a
}
