package repository

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

import (
	"context"
	"time"

	model "auction-engine/internal/models"
)

// AuctionDB defines the auction and bid storage interface. It is the single
// source of truth for current price and winner.
type AuctionDB interface {
	CreateAuction(ctx context.Context, auction model.Auction) error
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListAuctions(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error)
	// DueAuctions returns SCHEDULED auctions whose start time and ACTIVE auctions
	// whose end time is at or before now.
	DueAuctions(ctx context.Context, now time.Time) ([]model.Auction, error)
	// GetBidsByAuction returns a newest-first page of bids and the total count.
	GetBidsByAuction(ctx context.Context, auctionID string, offset, limit int) ([]model.Bid, int, error)
	// GetWinningBid returns the WINNING or WON bid of an auction.
	GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error)
	GetBid(ctx context.Context, bidID string) (model.Bid, error)
	// GetBidsByBidder returns a newest-first page of a bidder's bids and the total count.
	GetBidsByBidder(ctx context.Context, filter model.BidderFilter, offset, limit int) ([]model.Bid, int, error)
	// InTx runs fn in a transaction holding an exclusive lock on the auction row.
	// Staged writes are committed only when fn returns nil.
	InTx(ctx context.Context, auctionID string, fn func(tx Tx) error) error
}

// Tx is a transaction scoped to one locked auction
type Tx interface {
	// Auction returns the auction as read under the lock, including staged changes.
	Auction() model.Auction
	WinningBid(ctx context.Context) (model.Bid, error)
	// BidderIDs returns the distinct bidders of the auction in first-bid order.
	BidderIDs(ctx context.Context) ([]string, error)
	InsertBid(ctx context.Context, bid model.Bid) error
	SetBidStatus(ctx context.Context, bidID string, status model.BidStatus) error
	SaveAuction(ctx context.Context, auction model.Auction) error
	// DeleteAuction removes the auction with its bids on commit and returns the removed bid IDs.
	DeleteAuction(ctx context.Context) ([]string, error)
}

// normalizePage clamps offset and limit to sane values
func normalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 10
	}
	return offset, limit
}
