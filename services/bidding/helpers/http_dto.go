package helpers

import (
	"errors"
	"time"

	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs. Amounts bind straight into decimals, so the binding
// tags cannot range-check them; Validate does.
type PlaceBidRequest struct {
	AuctionID string          `json:"auction_id" binding:"required"`
	BidderID  string          `json:"bidder_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

func (r PlaceBidRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return errors.New("amount must be greater than 0")
	}
	return nil
}

type BidResponse struct {
	BidID         string          `json:"bid_id"`
	AuctionID     string          `json:"auction_id"`
	BidderID      string          `json:"bidder_id"`
	Amount        decimal.Decimal `json:"amount"`
	PreviousPrice decimal.Decimal `json:"previous_price"`
	Status        model.BidStatus `json:"status"`
	CreatedAt     string          `json:"created_at"`
}

// NewBidResponse converts a stored bid into its wire form
func NewBidResponse(bid model.Bid) BidResponse {
	return BidResponse{
		BidID:         bid.BidID,
		AuctionID:     bid.AuctionID,
		BidderID:      bid.BidderID,
		Amount:        bid.Amount,
		PreviousPrice: bid.PreviousPrice,
		Status:        bid.Status,
		CreatedAt:     bid.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type CreateAuctionRequest struct {
	Title           string              `json:"title" binding:"required"`
	Description     string              `json:"description"`
	CategoryID      string              `json:"category_id"`
	SellerID        string              `json:"seller_id" binding:"required"`
	StartingPrice   decimal.Decimal     `json:"starting_price"`
	MinBidIncrement decimal.Decimal     `json:"min_bid_increment"`
	ReservePrice    decimal.NullDecimal `json:"reserve_price"`
	StartTime       time.Time           `json:"start_time"`
	EndTime         time.Time           `json:"end_time"`
}

func (r CreateAuctionRequest) Validate() error {
	return validatePrices(&r.StartingPrice, &r.MinBidIncrement, r.ReservePrice)
}

// ToAuction builds the draft handed to the lifecycle controller
func (r CreateAuctionRequest) ToAuction() model.Auction {
	return model.Auction{
		Title:           r.Title,
		Description:     r.Description,
		CategoryID:      r.CategoryID,
		SellerID:        r.SellerID,
		StartingPrice:   r.StartingPrice,
		MinBidIncrement: r.MinBidIncrement,
		ReservePrice:    r.ReservePrice,
		StartTime:       r.StartTime.UTC(),
		EndTime:         r.EndTime.UTC(),
	}
}

// UpdateAuctionRequest edits a DRAFT or SCHEDULED auction. Absent fields are kept;
// clear_reserve drops the reserve price.
type UpdateAuctionRequest struct {
	Title           *string          `json:"title"`
	Description     *string          `json:"description"`
	CategoryID      *string          `json:"category_id"`
	StartingPrice   *decimal.Decimal `json:"starting_price"`
	MinBidIncrement *decimal.Decimal `json:"min_bid_increment"`
	ReservePrice    *decimal.Decimal `json:"reserve_price"`
	ClearReserve    bool             `json:"clear_reserve"`
	StartTime       *time.Time       `json:"start_time"`
	EndTime         *time.Time       `json:"end_time"`
}

func (r UpdateAuctionRequest) Validate() error {
	if r == (UpdateAuctionRequest{}) {
		return errors.New("no fields to update")
	}
	if r.ClearReserve && r.ReservePrice != nil {
		return errors.New("reserve_price and clear_reserve are mutually exclusive")
	}
	reserve := decimal.NullDecimal{}
	if r.ReservePrice != nil {
		reserve = decimal.NewNullDecimal(*r.ReservePrice)
	}
	return validatePrices(r.StartingPrice, r.MinBidIncrement, reserve)
}

// ToPatch converts the request into a lifecycle patch
func (r UpdateAuctionRequest) ToPatch() model.AuctionPatch {
	patch := model.AuctionPatch{
		Title:           r.Title,
		Description:     r.Description,
		CategoryID:      r.CategoryID,
		StartingPrice:   r.StartingPrice,
		MinBidIncrement: r.MinBidIncrement,
	}
	switch {
	case r.ClearReserve:
		patch.ReservePrice = &decimal.NullDecimal{}
	case r.ReservePrice != nil:
		reserve := decimal.NewNullDecimal(*r.ReservePrice)
		patch.ReservePrice = &reserve
	}
	if r.StartTime != nil {
		start := r.StartTime.UTC()
		patch.StartTime = &start
	}
	if r.EndTime != nil {
		end := r.EndTime.UTC()
		patch.EndTime = &end
	}
	return patch
}

// validatePrices range-checks the amounts that are present
func validatePrices(starting, increment *decimal.Decimal, reserve decimal.NullDecimal) error {
	switch {
	case starting != nil && starting.IsNegative():
		return errors.New("starting_price must not be negative")
	case increment != nil && !increment.IsPositive():
		return errors.New("min_bid_increment must be greater than 0")
	case reserve.Valid && reserve.Decimal.IsNegative():
		return errors.New("reserve_price must not be negative")
	}
	return nil
}

type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
}
