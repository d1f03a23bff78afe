package bidding

import (
	"context"
	"fmt"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/cache"
	model "auction-engine/internal/models"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// GetAuction returns a single auction
func (s *BiddingService) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	if auctionID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	auction, err := cache.Fetch(ctx, s.loader, cache.AuctionKey(auctionID), func(ctx context.Context) (model.Auction, error) {
		return s.repo.GetAuction(ctx, auctionID)
	})
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return auction, nil
}

// ListAuctions returns auctions matching filter, soonest ending first
func (s *BiddingService) ListAuctions(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("service: %w - unknown status %q", biddingerrors.ErrInvalidAuction, filter.Status)
	}

	auctions, err := cache.Fetch(ctx, s.loader, cache.ListingKey(filter), func(ctx context.Context) ([]model.Auction, error) {
		return s.repo.ListAuctions(ctx, filter)
	})
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions: %w", err)
	}
	return auctions, nil
}

// GetBidsForAuction returns one page of an auction's bid history, newest first.
// page starts at 1; limit defaults to 10 and is capped at 100.
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID string, page, limit int) (model.BidPage, error) {
	if auctionID == "" {
		return model.BidPage{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}
	page, limit = clampPage(page, limit)

	result, err := cache.Fetch(ctx, s.loader, cache.BidPageKey(auctionID, page, limit), func(ctx context.Context) (model.BidPage, error) {
		bids, total, err := s.repo.GetBidsByAuction(ctx, auctionID, (page-1)*limit, limit)
		if err != nil {
			return model.BidPage{}, err
		}
		return newBidPage(bids, total, page, limit), nil
	})
	if err != nil {
		return model.BidPage{}, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}
	return result, nil
}

// GetWinningBid returns the leading (or, once sold, the won) bid of an auction
func (s *BiddingService) GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error) {
	if auctionID == "" {
		return model.Bid{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	bid, err := cache.Fetch(ctx, s.loader, cache.WinningBidKey(auctionID), func(ctx context.Context) (model.Bid, error) {
		return s.repo.GetWinningBid(ctx, auctionID)
	})
	if err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, err)
	}
	return bid, nil
}

// GetBid returns a single bid
func (s *BiddingService) GetBid(ctx context.Context, bidID string) (model.Bid, error) {
	if bidID == "" {
		return model.Bid{}, fmt.Errorf("service: %w - empty bid ID", biddingerrors.ErrInvalidBid)
	}

	bid, err := cache.Fetch(ctx, s.loader, cache.BidKey(bidID), func(ctx context.Context) (model.Bid, error) {
		return s.repo.GetBid(ctx, bidID)
	})
	if err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to get bid %s: %w", bidID, err)
	}
	return bid, nil
}

// GetBidsByBidder returns one page of a bidder's bids across auctions, newest
// first. Empty status fields in filter match everything.
func (s *BiddingService) GetBidsByBidder(ctx context.Context, filter model.BidderFilter, page, limit int) (model.BidPage, error) {
	if filter.BidderID == "" {
		return model.BidPage{}, fmt.Errorf("service: %w - empty bidder ID", biddingerrors.ErrInvalidBid)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return model.BidPage{}, fmt.Errorf("service: %w - unknown bid status %q", biddingerrors.ErrInvalidBid, filter.Status)
	}
	if filter.AuctionStatus != "" && !filter.AuctionStatus.Valid() {
		return model.BidPage{}, fmt.Errorf("service: %w - unknown auction status %q", biddingerrors.ErrInvalidBid, filter.AuctionStatus)
	}
	page, limit = clampPage(page, limit)

	result, err := cache.Fetch(ctx, s.loader, cache.BidderKey(filter, page, limit), func(ctx context.Context) (model.BidPage, error) {
		bids, total, err := s.repo.GetBidsByBidder(ctx, filter, (page-1)*limit, limit)
		if err != nil {
			return model.BidPage{}, err
		}
		return newBidPage(bids, total, page, limit), nil
	})
	if err != nil {
		return model.BidPage{}, fmt.Errorf("service: failed to get bids for bidder %s: %w", filter.BidderID, err)
	}
	return result, nil
}

// GetActiveBids returns the bids a bidder currently leads on running auctions
func (s *BiddingService) GetActiveBids(ctx context.Context, bidderID string, page, limit int) (model.BidPage, error) {
	return s.GetBidsByBidder(ctx, model.ActiveBids(bidderID), page, limit)
}

func newBidPage(bids []model.Bid, total, page, limit int) model.BidPage {
	return model.BidPage{
		Bids:  bids,
		Total: total,
		Page:  page,
		Pages: (total + limit - 1) / limit,
	}
}

func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}
