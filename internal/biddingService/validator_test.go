package bidding

import (
	"errors"
	"testing"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestValidateBid(t *testing.T) {
	now := time.Now().UTC()
	base := model.Auction{
		ID:              "a1",
		SellerID:        "seller1",
		StartingPrice:   decimal.NewFromInt(100),
		CurrentPrice:    decimal.NewFromInt(100),
		MinBidIncrement: decimal.NewFromInt(5),
		StartTime:       now.Add(-time.Hour),
		EndTime:         now.Add(time.Hour),
		Status:          model.AuctionActive,
	}

	tests := []struct {
		name          string
		mutate        func(a *model.Auction)
		bidderID      string
		amount        string
		expectedError error
		minimum       string
	}{
		{
			name:     "exact_minimum",
			bidderID: "u1",
			amount:   "105",
		},
		{
			name:     "above_minimum",
			bidderID: "u1",
			amount:   "250.50",
		},
		{
			name:          "below_minimum",
			bidderID:      "u1",
			amount:        "104.99",
			expectedError: biddingerrors.ErrBidTooLow,
			minimum:       "105",
		},
		{
			name:          "equal_to_current_price",
			bidderID:      "u1",
			amount:        "100",
			expectedError: biddingerrors.ErrBidTooLow,
			minimum:       "105",
		},
		{
			name:          "fractional_increment",
			mutate:        func(a *model.Auction) { a.MinBidIncrement = decimal.RequireFromString("0.25") },
			bidderID:      "u1",
			amount:        "100.20",
			expectedError: biddingerrors.ErrBidTooLow,
			minimum:       "100.25",
		},
		{
			name:          "scheduled_auction",
			mutate:        func(a *model.Auction) { a.Status = model.AuctionScheduled },
			bidderID:      "u1",
			amount:        "200",
			expectedError: biddingerrors.ErrAuctionNotActive,
		},
		{
			name:          "sold_auction",
			mutate:        func(a *model.Auction) { a.Status = model.AuctionSold },
			bidderID:      "u1",
			amount:        "200",
			expectedError: biddingerrors.ErrAuctionNotActive,
		},
		{
			name:          "end_time_passed",
			mutate:        func(a *model.Auction) { a.EndTime = now.Add(-time.Second) },
			bidderID:      "u1",
			amount:        "200",
			expectedError: biddingerrors.ErrAuctionEnded,
		},
		{
			name:          "end_time_now",
			mutate:        func(a *model.Auction) { a.EndTime = now },
			bidderID:      "u1",
			amount:        "200",
			expectedError: biddingerrors.ErrAuctionEnded,
		},
		{
			name:          "seller_bids",
			bidderID:      "seller1",
			amount:        "200",
			expectedError: biddingerrors.ErrSelfBidForbidden,
		},
		{
			// status is checked before price
			name:          "not_active_and_too_low",
			mutate:        func(a *model.Auction) { a.Status = model.AuctionEnded },
			bidderID:      "u1",
			amount:        "1",
			expectedError: biddingerrors.ErrAuctionNotActive,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			auction := base
			if tc.mutate != nil {
				tc.mutate(&auction)
			}

			err := ValidateBid(auction, decimal.RequireFromString(tc.amount), tc.bidderID, now)
			if tc.expectedError == nil {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			require.True(t, errors.Is(err, tc.expectedError), "expected error: %v, got: %v", tc.expectedError, err)
			if tc.minimum != "" {
				minimum, ok := biddingerrors.MinimumBid(err)
				require.True(t, ok)
				require.True(t, decimal.RequireFromString(tc.minimum).Equal(minimum), "minimum %s", minimum)
			}
		})
	}
}

func TestMinimumNextBid(t *testing.T) {
	a := model.Auction{
		CurrentPrice:    decimal.RequireFromString("99.99"),
		MinBidIncrement: decimal.RequireFromString("0.01"),
	}
	require.Equal(t, "100.00", MinimumNextBid(a).StringFixed(2))
}
