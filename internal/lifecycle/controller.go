// Package lifecycle owns the auction state machine: DRAFT, SCHEDULED, ACTIVE,
// ENDED, SOLD and CANCELLED, with timer-driven and admin-driven transitions.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/fanout"
	"auction-engine/internal/keylock"
	model "auction-engine/internal/models"
	"auction-engine/internal/notify"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

const DefaultLockTimeout = 2 * time.Second

// transitions lists the allowed edges of the state machine
var transitions = map[model.AuctionStatus][]model.AuctionStatus{
	model.AuctionDraft:     {model.AuctionScheduled, model.AuctionCancelled},
	model.AuctionScheduled: {model.AuctionActive, model.AuctionCancelled},
	model.AuctionActive:    {model.AuctionEnded, model.AuctionCancelled},
	model.AuctionEnded:     {model.AuctionSold, model.AuctionCancelled},
}

// CanTransition reports whether the state machine has an edge from -> to
func CanTransition(from, to model.AuctionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// EventPublisher pushes real-time events to watchers of a topic without blocking
type EventPublisher interface {
	Publish(topic string, ev model.Event)
}

// CacheInvalidator drops the cached views of an auction after a write
type CacheInvalidator interface {
	InvalidateAuction(ctx context.Context, auction model.Auction, bidderIDs ...string) error
	InvalidateBids(ctx context.Context, bidIDs ...string) error
}

// Controller applies lifecycle transitions. It serializes with the bid ledger
// through the shared per-auction locker.
type Controller struct {
	repo        repository.AuctionDB
	locks       *keylock.Locker
	events      EventPublisher
	notifier    notify.Notifier
	invalidator CacheInvalidator
	lockTimeout time.Duration
	now         func() time.Time

	pending sync.WaitGroup
}

// Option configures a Controller
type Option func(*Controller)

func WithLocker(l *keylock.Locker) Option {
	return func(c *Controller) { c.locks = l }
}

func WithEvents(p EventPublisher) Option {
	return func(c *Controller) { c.events = p }
}

func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

func WithInvalidator(i CacheInvalidator) Option {
	return func(c *Controller) { c.invalidator = i }
}

func WithLockTimeout(d time.Duration) Option {
	return func(c *Controller) { c.lockTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a lifecycle controller over repo
func NewController(repo repository.AuctionDB, opts ...Option) *Controller {
	c := &Controller{
		repo:        repo,
		locks:       keylock.New(),
		events:      nopEvents{},
		notifier:    nopNotifier{},
		lockTimeout: DefaultLockTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateAuction stores a new DRAFT auction built from draft
func (c *Controller) CreateAuction(ctx context.Context, draft model.Auction) (model.Auction, error) {
	if err := validateDraft(draft); err != nil {
		return model.Auction{}, err
	}

	now := c.now()
	auction := draft
	if auction.ID == "" {
		auction.ID = utils.GenerateID()
	}
	auction.Status = model.AuctionDraft
	auction.CurrentPrice = auction.StartingPrice
	auction.WinnerID = ""
	auction.TotalBids = 0
	auction.Views = 0
	auction.Version = 0
	auction.CreatedAt = now
	auction.UpdatedAt = now

	if err := c.repo.CreateAuction(ctx, auction); err != nil {
		return model.Auction{}, fmt.Errorf("lifecycle: failed to create auction: %w", err)
	}

	c.invalidate(auction, nil)
	return auction, nil
}

// UpdateAuction edits an auction that has not opened for bidding yet
func (c *Controller) UpdateAuction(ctx context.Context, auctionID string, patch model.AuctionPatch) (model.Auction, error) {
	var before, updated model.Auction
	err := c.locked(ctx, auctionID, func(tx repository.Tx) error {
		before = tx.Auction()
		if before.Status != model.AuctionDraft && before.Status != model.AuctionScheduled {
			return fmt.Errorf("%w - auction is %s", biddingerrors.ErrAuctionNotEditable, before.Status)
		}

		edited := patch.Apply(before)
		if err := validateDraft(edited); err != nil {
			return err
		}
		now := c.now()
		if edited.Status == model.AuctionScheduled {
			if err := checkSchedule(edited, now); err != nil {
				return err
			}
		}
		edited.Version++
		edited.UpdatedAt = now
		if err := tx.SaveAuction(ctx, edited); err != nil {
			return err
		}
		updated = edited
		return nil
	}, func() {
		c.publish(model.EventAuctionUpdated, updated)
	})
	if err != nil {
		return model.Auction{}, fmt.Errorf("lifecycle: update of auction %s failed: %w", auctionID, err)
	}

	c.invalidate(updated, nil)
	if before.CategoryID != updated.CategoryID {
		c.invalidate(before, nil)
	}

	utils.Info("lifecycle: auction updated", map[string]any{
		"auction_id": updated.ID,
		"status":     updated.Status,
		"version":    updated.Version,
	})
	return updated, nil
}

// DeleteAuction removes an auction that is neither open nor sold, together with its bids
func (c *Controller) DeleteAuction(ctx context.Context, auctionID string) error {
	var (
		deleted model.Auction
		bidIDs  []string
		bidders []string
	)
	err := c.locked(ctx, auctionID, func(tx repository.Tx) error {
		deleted = tx.Auction()
		if deleted.Status == model.AuctionActive || deleted.Status == model.AuctionSold {
			return fmt.Errorf("%w - auction is %s", biddingerrors.ErrAuctionNotDeletable, deleted.Status)
		}

		var err error
		if bidders, err = tx.BidderIDs(ctx); err != nil {
			return err
		}
		bidIDs, err = tx.DeleteAuction(ctx)
		return err
	}, func() {
		c.publish(model.EventAuctionDeleted, deleted)
	})
	if err != nil {
		return fmt.Errorf("lifecycle: delete of auction %s failed: %w", auctionID, err)
	}

	c.invalidate(deleted, bidIDs, bidders...)

	utils.Info("lifecycle: auction deleted", map[string]any{
		"auction_id": deleted.ID,
		"status":     deleted.Status,
		"bids":       len(bidIDs),
	})
	return nil
}

// locked runs fn in a transaction on auctionID under the shared auction lock.
// committed runs after a successful commit, before the lock is released.
func (c *Controller) locked(ctx context.Context, auctionID string, fn func(tx repository.Tx) error, committed func()) error {
	if auctionID == "" {
		return fmt.Errorf("%w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	lockCtx, cancel := context.WithTimeout(ctx, c.lockTimeout)
	defer cancel()
	unlock, err := c.locks.Lock(lockCtx, auctionID)
	if err != nil {
		return fmt.Errorf("failed to lock auction %s: %w", auctionID, err)
	}
	defer unlock()

	if err := c.repo.InTx(lockCtx, auctionID, fn); err != nil {
		return err
	}
	committed()
	return nil
}

// publish tells auction watchers about a committed change
func (c *Controller) publish(typ model.EventType, auction model.Auction) {
	c.events.Publish(fanout.AuctionTopic(auction.ID), model.Event{
		Type:      typ,
		AuctionID: auction.ID,
		Version:   auction.Version,
		Auction:   &auction,
		At:        c.now(),
	})
}

func validateDraft(a model.Auction) error {
	switch {
	case a.Title == "":
		return fmt.Errorf("lifecycle: %w - missing title", biddingerrors.ErrInvalidAuction)
	case a.SellerID == "":
		return fmt.Errorf("lifecycle: %w - missing seller", biddingerrors.ErrInvalidAuction)
	case a.StartingPrice.IsNegative():
		return fmt.Errorf("lifecycle: %w - negative starting price", biddingerrors.ErrInvalidAuction)
	case !a.MinBidIncrement.IsPositive():
		return fmt.Errorf("lifecycle: %w - bid increment must be positive", biddingerrors.ErrInvalidAuction)
	case a.ReservePrice.Valid && a.ReservePrice.Decimal.IsNegative():
		return fmt.Errorf("lifecycle: %w - negative reserve price", biddingerrors.ErrInvalidAuction)
	case !a.EndTime.IsZero() && !a.EndTime.After(a.StartTime):
		return fmt.Errorf("lifecycle: %w - end time must be after start time", biddingerrors.ErrInvalidSchedule)
	}

	for _, amount := range []struct {
		name  string
		value string
		ok    bool
	}{
		{"starting price", a.StartingPrice.String(), a.StartingPrice.Equal(a.StartingPrice.Round(model.MoneyPlaces))},
		{"bid increment", a.MinBidIncrement.String(), a.MinBidIncrement.Equal(a.MinBidIncrement.Round(model.MoneyPlaces))},
		{"reserve price", a.ReservePrice.Decimal.String(), a.ReservePrice.Decimal.Equal(a.ReservePrice.Decimal.Round(model.MoneyPlaces))},
	} {
		if !amount.ok {
			return fmt.Errorf("lifecycle: %w - %s %s has more than %d decimal places", biddingerrors.ErrInvalidAuction, amount.name, amount.value, model.MoneyPlaces)
		}
	}
	return nil
}

// outcome collects what a committed transition must announce
type outcome struct {
	auction       model.Auction
	notifications []model.Notification
	bidderIDs     []string
	bidIDs        []string
}

// Transition moves an auction to target. Ending an auction with a leading bid
// settles it straight to SOLD, so the returned status may differ from target.
func (c *Controller) Transition(ctx context.Context, auctionID string, target model.AuctionStatus) (model.Auction, error) {
	var out outcome
	err := c.locked(ctx, auctionID, func(tx repository.Tx) error {
		auction := tx.Auction()
		if !CanTransition(auction.Status, target) {
			return &biddingerrors.InvalidStatusTransitionError{From: string(auction.Status), To: string(target)}
		}

		now := c.now()
		var err error
		switch target {
		case model.AuctionScheduled:
			if err = checkSchedule(auction, now); err == nil {
				auction.Status = model.AuctionScheduled
			}
		case model.AuctionActive:
			auction.Status = model.AuctionActive
		case model.AuctionEnded:
			err = c.end(ctx, tx, &auction, &out)
		case model.AuctionSold:
			err = c.sell(ctx, tx, &auction, &out)
		case model.AuctionCancelled:
			err = c.cancel(ctx, tx, &auction, &out)
		}
		if err != nil {
			return err
		}
		auction.Version++
		auction.UpdatedAt = now
		if err := tx.SaveAuction(ctx, auction); err != nil {
			return err
		}
		out.auction = auction
		return nil
	}, func() {
		c.publish(model.EventAuctionUpdated, out.auction)
		for _, n := range out.notifications {
			c.notifier.Notify(n)
		}
	})
	if err != nil {
		return model.Auction{}, fmt.Errorf("lifecycle: transition of auction %s to %s failed: %w", auctionID, target, err)
	}

	auction := out.auction
	c.invalidate(auction, out.bidIDs, out.bidderIDs...)

	utils.Info("lifecycle: auction transitioned", map[string]any{
		"auction_id": auction.ID,
		"requested":  target,
		"status":     auction.Status,
		"version":    auction.Version,
	})
	return auction, nil
}

func checkSchedule(a model.Auction, now time.Time) error {
	if !a.StartTime.After(now) || !a.EndTime.After(a.StartTime) {
		return fmt.Errorf("%w - need now < start time < end time (start %s, end %s)",
			biddingerrors.ErrInvalidSchedule, a.StartTime.Format(time.RFC3339), a.EndTime.Format(time.RFC3339))
	}
	return nil
}

// end closes bidding. The leading bid, if any, wins at once and the auction is
// SOLD; without bids it stays ENDED.
func (c *Controller) end(ctx context.Context, tx repository.Tx, auction *model.Auction, out *outcome) error {
	auction.Status = model.AuctionEnded

	winning, err := tx.WinningBid(ctx)
	if errors.Is(err, biddingerrors.ErrNoBids) {
		auction.WinnerID = ""
		return nil
	}
	if err != nil {
		return err
	}
	return c.settle(ctx, tx, auction, winning, out)
}

// sell accepts the leading bid of an ENDED auction
func (c *Controller) sell(ctx context.Context, tx repository.Tx, auction *model.Auction, out *outcome) error {
	winning, err := tx.WinningBid(ctx)
	if errors.Is(err, biddingerrors.ErrNoBids) {
		return fmt.Errorf("auction %s: %w", auction.ID, biddingerrors.ErrNoWinningBid)
	}
	if err != nil {
		return err
	}
	return c.settle(ctx, tx, auction, winning, out)
}

func (c *Controller) settle(ctx context.Context, tx repository.Tx, auction *model.Auction, winning model.Bid, out *outcome) error {
	if err := tx.SetBidStatus(ctx, winning.BidID, model.BidWon); err != nil {
		return err
	}
	auction.Status = model.AuctionSold
	auction.WinnerID = winning.BidderID

	var reserveMet *bool
	if auction.ReservePrice.Valid {
		met := auction.ReserveMet(winning.Amount)
		reserveMet = &met
		if !met {
			utils.Info("lifecycle: sold below reserve price", map[string]any{
				"auction_id": auction.ID,
				"amount":     winning.Amount.StringFixed(model.MoneyPlaces),
				"reserve":    auction.ReservePrice.Decimal.StringFixed(model.MoneyPlaces),
			})
		}
	}

	out.bidIDs = append(out.bidIDs, winning.BidID)
	out.bidderIDs = append(out.bidderIDs, winning.BidderID)
	out.notifications = append(out.notifications,
		model.Notification{
			Type:       model.NotifyWinnerDetermined,
			AuctionID:  auction.ID,
			WinnerID:   winning.BidderID,
			Amount:     winning.Amount,
			ReserveMet: reserveMet,
		},
		model.Notification{
			Type:       model.NotifySellerSold,
			AuctionID:  auction.ID,
			SellerID:   auction.SellerID,
			WinnerID:   winning.BidderID,
			Amount:     winning.Amount,
			ReserveMet: reserveMet,
		},
	)
	return nil
}

// cancel withdraws the auction. Once bidding has started every distinct
// bidder is told and the leading bid loses its standing.
func (c *Controller) cancel(ctx context.Context, tx repository.Tx, auction *model.Auction, out *outcome) error {
	hadBidding := auction.Status == model.AuctionActive || auction.Status == model.AuctionEnded
	auction.Status = model.AuctionCancelled
	if !hadBidding {
		return nil
	}

	bidders, err := tx.BidderIDs(ctx)
	if err != nil {
		return err
	}
	winning, err := tx.WinningBid(ctx)
	switch {
	case err == nil:
		if err := tx.SetBidStatus(ctx, winning.BidID, model.BidOutbid); err != nil {
			return err
		}
		out.bidIDs = append(out.bidIDs, winning.BidID)
	case !errors.Is(err, biddingerrors.ErrNoBids):
		return err
	}
	auction.WinnerID = ""

	if len(bidders) > 0 {
		out.bidderIDs = bidders
		out.notifications = append(out.notifications, model.Notification{
			Type:      model.NotifyAuctionCancelled,
			AuctionID: auction.ID,
			SellerID:  auction.SellerID,
			BidderIDs: bidders,
		})
	}
	return nil
}

func (c *Controller) invalidate(auction model.Auction, bidIDs []string, bidderIDs ...string) {
	if c.invalidator == nil {
		return
	}
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		err := errors.Join(
			c.invalidator.InvalidateAuction(context.Background(), auction, bidderIDs...),
			c.invalidator.InvalidateBids(context.Background(), bidIDs...),
		)
		if err != nil {
			utils.Warn("lifecycle: cache invalidation failed", map[string]any{
				"auction_id": auction.ID,
				"error":      err.Error(),
			})
		}
	}()
}

// Flush waits for background cache invalidations to finish
func (c *Controller) Flush() {
	c.pending.Wait()
}

type nopEvents struct{}

func (nopEvents) Publish(string, model.Event) {}

type nopNotifier struct{}

func (nopNotifier) Notify(model.Notification) {}
