package handler

//go:generate mockgen -source=bidding_handler.go -destination=mock_handler.go -package=handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type BiddingServiceInterface interface {
	PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (model.Bid, error)
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListAuctions(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error)
	GetBidsForAuction(ctx context.Context, auctionID string, page, limit int) (model.BidPage, error)
	GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error)
	GetBid(ctx context.Context, bidID string) (model.Bid, error)
	GetBidsByBidder(ctx context.Context, filter model.BidderFilter, page, limit int) (model.BidPage, error)
	GetActiveBids(ctx context.Context, bidderID string, page, limit int) (model.BidPage, error)
}

type LifecycleInterface interface {
	CreateAuction(ctx context.Context, draft model.Auction) (model.Auction, error)
	UpdateAuction(ctx context.Context, auctionID string, patch model.AuctionPatch) (model.Auction, error)
	DeleteAuction(ctx context.Context, auctionID string) error
	Transition(ctx context.Context, auctionID string, target model.AuctionStatus) (model.Auction, error)
}

type BiddingHandler struct {
	service   BiddingServiceInterface
	lifecycle LifecycleInterface
}

func NewBiddingHandler(service BiddingServiceInterface, lifecycle LifecycleInterface) *BiddingHandler {
	return &BiddingHandler{service: service, lifecycle: lifecycle}
}

// RecordBidHandler handles POST /bids
func (h *BiddingHandler) RecordBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := bindJSON(c, &req); err != nil {
		helpers.HandleBindError(c, "RecordBidHandler", err)
		return
	}

	bid, err := h.service.PlaceBid(c.Request.Context(), req.AuctionID, req.BidderID, req.Amount)
	if err != nil {
		helpers.RespondError(c, "RecordBidHandler", err, map[string]any{
			"auction_id": req.AuctionID,
			"bidder_id":  req.BidderID,
			"amount":     req.Amount.String(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewBidResponse(bid), "bid recorded successfully")
	helpers.LogSuccess("RecordBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":     bid.BidID,
		"auction_id": bid.AuctionID,
		"bidder_id":  bid.BidderID,
		"amount":     bid.Amount.StringFixed(model.MoneyPlaces),
	})
}

// GetBidsByAuctionHandler handles GET /auctions/:auction_id/bids?page=&limit=
func (h *BiddingHandler) GetBidsByAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	page, limit, err := pageQuery(c)
	if err != nil {
		helpers.RespondError(c, "GetBidsByAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	result, err := h.service.GetBidsForAuction(c.Request.Context(), auctionID, page, limit)
	if err != nil {
		helpers.RespondError(c, "GetBidsByAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, bidPageResponse(result), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByAuctionHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(result.Bids),
		"page":       result.Page,
	})
}

// GetWinningBidHandler handles GET /auctions/:auction_id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetWinningBidHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponse(bid), "winning bid retrieved successfully")
	helpers.LogSuccess("GetWinningBidHandler", "winning bid retrieved successfully", map[string]any{
		"bid_id":     bid.BidID,
		"auction_id": bid.AuctionID,
		"bidder_id":  bid.BidderID,
		"amount":     bid.Amount.StringFixed(model.MoneyPlaces),
	})
}

// GetBidHandler handles GET /bids/:bid_id
func (h *BiddingHandler) GetBidHandler(c *gin.Context) {
	bidID := c.Param("bid_id")
	bid, err := h.service.GetBid(c.Request.Context(), bidID)
	if err != nil {
		helpers.RespondError(c, "GetBidHandler", err, map[string]any{"bid_id": bidID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponse(bid), "bid retrieved successfully")
}

// GetBidsByUserHandler handles GET /users/:user_id/bids?status=&page=&limit=
func (h *BiddingHandler) GetBidsByUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	filter := model.BidderFilter{
		BidderID: userID,
		Status:   model.BidStatus(strings.ToUpper(c.Query("status"))),
	}

	page, limit, err := pageQuery(c)
	if err != nil {
		helpers.RespondError(c, "GetBidsByUserHandler", err, map[string]any{"user_id": userID})
		return
	}

	result, err := h.service.GetBidsByBidder(c.Request.Context(), filter, page, limit)
	if err != nil {
		helpers.RespondError(c, "GetBidsByUserHandler", err, map[string]any{"user_id": userID, "status": filter.Status})
		return
	}

	utils.JSONResponse(c, http.StatusOK, bidPageResponse(result), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByUserHandler", "bids retrieved successfully", map[string]any{
		"user_id": userID,
		"count":   len(result.Bids),
		"page":    result.Page,
	})
}

// GetActiveBidsByUserHandler handles GET /users/:user_id/bids/active?page=&limit=
func (h *BiddingHandler) GetActiveBidsByUserHandler(c *gin.Context) {
	userID := c.Param("user_id")

	page, limit, err := pageQuery(c)
	if err != nil {
		helpers.RespondError(c, "GetActiveBidsByUserHandler", err, map[string]any{"user_id": userID})
		return
	}

	result, err := h.service.GetActiveBids(c.Request.Context(), userID, page, limit)
	if err != nil {
		helpers.RespondError(c, "GetActiveBidsByUserHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, bidPageResponse(result), "active bids retrieved successfully")
}

// CreateAuctionHandler handles POST /auctions
func (h *BiddingHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := bindJSON(c, &req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	auction, err := h.lifecycle.CreateAuction(c.Request.Context(), req.ToAuction())
	if err != nil {
		helpers.RespondError(c, "CreateAuctionHandler", err, map[string]any{"seller_id": req.SellerID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, auction, "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": auction.ID,
		"seller_id":  auction.SellerID,
	})
}

// ListAuctionsHandler handles GET /auctions?status=&category=&seller_id=
func (h *BiddingHandler) ListAuctionsHandler(c *gin.Context) {
	filter := model.AuctionFilter{
		Status:     model.AuctionStatus(strings.ToUpper(c.Query("status"))),
		CategoryID: c.Query("category"),
		SellerID:   c.Query("seller_id"),
	}

	auctions, err := h.service.ListAuctions(c.Request.Context(), filter)
	if err != nil {
		helpers.RespondError(c, "ListAuctionsHandler", err, map[string]any{"status": filter.Status})
		return
	}
	if auctions == nil {
		auctions = []model.Auction{}
	}

	utils.JSONResponse(c, http.StatusOK, auctions, "auctions retrieved successfully")
	helpers.LogSuccess("ListAuctionsHandler", "auctions retrieved successfully", map[string]any{
		"count":  len(auctions),
		"status": filter.Status,
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "auction retrieved successfully")
}

// UpdateAuctionHandler handles PATCH /auctions/:auction_id
func (h *BiddingHandler) UpdateAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var req helpers.UpdateAuctionRequest
	if err := bindJSON(c, &req); err != nil {
		helpers.HandleBindError(c, "UpdateAuctionHandler", err)
		return
	}

	auction, err := h.lifecycle.UpdateAuction(c.Request.Context(), auctionID, req.ToPatch())
	if err != nil {
		helpers.RespondError(c, "UpdateAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "auction updated successfully")
	helpers.LogSuccess("UpdateAuctionHandler", "auction updated successfully", map[string]any{
		"auction_id": auction.ID,
		"version":    auction.Version,
	})
}

// DeleteAuctionHandler handles DELETE /auctions/:auction_id
func (h *BiddingHandler) DeleteAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	if err := h.lifecycle.DeleteAuction(c.Request.Context(), auctionID); err != nil {
		helpers.RespondError(c, "DeleteAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, gin.H{"auction_id": auctionID}, "auction deleted successfully")
	helpers.LogSuccess("DeleteAuctionHandler", "auction deleted successfully", map[string]any{"auction_id": auctionID})
}

// TransitionHandler handles POST /auctions/:auction_id/transitions
func (h *BiddingHandler) TransitionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var req helpers.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "TransitionHandler", err)
		return
	}

	target := model.AuctionStatus(strings.ToUpper(req.Status))
	if !target.Valid() {
		err := fmt.Errorf("%w - unknown status %q", biddingerrors.ErrInvalidAuction, req.Status)
		helpers.RespondError(c, "TransitionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	auction, err := h.lifecycle.Transition(c.Request.Context(), auctionID, target)
	if err != nil {
		helpers.RespondError(c, "TransitionHandler", err, map[string]any{"auction_id": auctionID, "target": target})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "auction status updated")
	helpers.LogSuccess("TransitionHandler", "auction status updated", map[string]any{
		"auction_id": auction.ID,
		"requested":  target,
		"status":     auction.Status,
	})
}

type validator interface {
	Validate() error
}

// bindJSON binds the body into req and runs its Validate hook
func bindJSON(c *gin.Context, req validator) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return err
	}
	return req.Validate()
}

func bidPageResponse(result model.BidPage) gin.H {
	bids := make([]helpers.BidResponse, 0, len(result.Bids))
	for _, b := range result.Bids {
		bids = append(bids, helpers.NewBidResponse(b))
	}
	return gin.H{
		"bids": bids,
		"pagination": gin.H{
			"total": result.Total,
			"page":  result.Page,
			"pages": result.Pages,
		},
	}
}

func pageQuery(c *gin.Context) (int, int, error) {
	page, err := intQuery(c, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w - query parameter %s must be an integer", biddingerrors.ErrInvalidBid, key)
	}
	return n, nil
}
