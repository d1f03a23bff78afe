package biddingerrors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Repository-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrBidNotFound     = errors.New("bid not found")
	ErrNoBids          = errors.New("no bids found for auction")
	ErrAuctionExists   = errors.New("auction already exists")
)

// validation errors, deterministic and never retried
var (
	ErrInvalidBid              = errors.New("invalid bid")
	ErrInvalidAuction          = errors.New("invalid auction")
	ErrBidTooLow               = errors.New("bid amount too low")
	ErrAuctionNotActive        = errors.New("auction is not active")
	ErrAuctionEnded            = errors.New("auction has ended")
	ErrSelfBidForbidden        = errors.New("sellers cannot bid on their own auctions")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrInvalidSchedule         = errors.New("invalid auction schedule")
	ErrNoWinningBid            = errors.New("auction has no winning bid")
	ErrAuctionNotEditable      = errors.New("auction can only be edited before it opens")
	ErrAuctionNotDeletable     = errors.New("active or sold auctions cannot be deleted")
)

// contention errors; the caller may retry the whole operation
var (
	ErrTransient        = errors.New("transient contention")
	ErrLockTimeout      = fmt.Errorf("%w: lock wait timed out", ErrTransient)
	ErrConflict         = fmt.Errorf("%w: concurrent update conflict", ErrTransient)
	ErrRetriesExhausted = fmt.Errorf("%w: retries exhausted", ErrTransient)
)

// BidTooLowError carries the minimum acceptable amount at the time of rejection
type BidTooLowError struct {
	Minimum decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("%s: minimum acceptable bid is %s", ErrBidTooLow, e.Minimum.StringFixed(2))
}

func (e *BidTooLowError) Is(target error) bool { return target == ErrBidTooLow }

// MinimumBid extracts the minimum acceptable amount from a BidTooLow rejection
func MinimumBid(err error) (decimal.Decimal, bool) {
	var tooLow *BidTooLowError
	if errors.As(err, &tooLow) {
		return tooLow.Minimum, true
	}
	return decimal.Decimal{}, false
}

// InvalidStatusTransitionError names the rejected edge of the lifecycle state machine
type InvalidStatusTransitionError struct {
	From string
	To   string
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("%s from %s to %s", ErrInvalidStatusTransition, e.From, e.To)
}

func (e *InvalidStatusTransitionError) Is(target error) bool {
	return target == ErrInvalidStatusTransition
}

// IsTransient reports whether err is a contention failure worth retrying
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
