package bidding

import (
	"fmt"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
)

// ValidateBid decides whether amount from bidderID is acceptable against the
// auction as read at now. It has no side effects; the ledger calls it once on a
// plain read and again under the auction lock.
func ValidateBid(auction model.Auction, amount decimal.Decimal, bidderID string, now time.Time) error {
	if auction.Status != model.AuctionActive {
		return fmt.Errorf("validator: auction %s is %s: %w", auction.ID, auction.Status, biddingerrors.ErrAuctionNotActive)
	}
	if !auction.EndTime.After(now) {
		return fmt.Errorf("validator: auction %s closed at %s: %w", auction.ID, auction.EndTime.Format(time.RFC3339), biddingerrors.ErrAuctionEnded)
	}
	if bidderID == auction.SellerID {
		return fmt.Errorf("validator: bidder %s: %w", bidderID, biddingerrors.ErrSelfBidForbidden)
	}

	minimum := MinimumNextBid(auction)
	if amount.LessThan(minimum) {
		return &biddingerrors.BidTooLowError{Minimum: minimum}
	}
	return nil
}

// MinimumNextBid returns the smallest amount the next bid on auction must reach
func MinimumNextBid(auction model.Auction) decimal.Decimal {
	return auction.MinimumNextBid().Round(model.MoneyPlaces)
}
