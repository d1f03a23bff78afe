package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, biddingerrors.ErrBidNotFound):
		return http.StatusNotFound, "bid not found"
	case errors.Is(err, biddingerrors.ErrNoBids):
		return http.StatusNotFound, "no bids found for auction"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrInvalidAuction):
		return http.StatusBadRequest, "invalid auction details"
	case errors.Is(err, biddingerrors.ErrAuctionExists):
		return http.StatusConflict, "auction already exists"
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, biddingerrors.ErrAuctionNotActive):
		return http.StatusConflict, "auction is not active"
	case errors.Is(err, biddingerrors.ErrAuctionEnded):
		return http.StatusConflict, "auction has ended"
	case errors.Is(err, biddingerrors.ErrSelfBidForbidden):
		return http.StatusConflict, "sellers cannot bid on their own auctions"
	case errors.Is(err, biddingerrors.ErrAuctionNotEditable):
		return http.StatusConflict, "auction can no longer be edited"
	case errors.Is(err, biddingerrors.ErrAuctionNotDeletable):
		return http.StatusConflict, "auction cannot be deleted"
	case errors.Is(err, biddingerrors.ErrInvalidStatusTransition):
		return http.StatusUnprocessableEntity, "invalid status transition"
	case errors.Is(err, biddingerrors.ErrInvalidSchedule):
		return http.StatusUnprocessableEntity, "invalid auction schedule"
	case errors.Is(err, biddingerrors.ErrNoWinningBid):
		return http.StatusUnprocessableEntity, "auction has no winning bid"
	case biddingerrors.IsTransient(err):
		return http.StatusServiceUnavailable, "auction is busy, please retry"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// ErrorDetails returns the machine-readable extras of an error response
func ErrorDetails(err error) gin.H {
	details := gin.H{}
	if minimum, ok := biddingerrors.MinimumBid(err); ok {
		details["minimum_bid"] = minimum.Round(model.MoneyPlaces)
	}
	if biddingerrors.IsTransient(err) {
		details["retryable"] = true
	}
	return details
}

// RespondError writes the mapped error response and logs it; server faults at
// error level, client mistakes at warn level.
func RespondError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := MapErrorToHTTP(err)
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message, ErrorDetails(err))

	logFields := map[string]any{"handler": handlerName, "status": status, "error": err.Error()}
	for k, v := range fields {
		logFields[k] = v
	}
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", logFields)
		return
	}
	utils.Warn(handlerName+": request rejected", logFields)
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
