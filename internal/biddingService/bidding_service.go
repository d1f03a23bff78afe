package bidding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/cache"
	"auction-engine/internal/fanout"
	"auction-engine/internal/keylock"
	model "auction-engine/internal/models"
	"auction-engine/internal/notify"
	"auction-engine/internal/repository"
	"auction-engine/utils"

	"github.com/shopspring/decimal"
)

const (
	DefaultLockTimeout  = 2 * time.Second
	DefaultMaxRetries   = 3
	defaultRetryBackoff = 10 * time.Millisecond
)

// EventPublisher pushes real-time events to watchers of a topic without blocking
type EventPublisher interface {
	Publish(topic string, ev model.Event)
}

// CacheInvalidator drops the cached views of an auction after a write
type CacheInvalidator interface {
	InvalidateAuction(ctx context.Context, auction model.Auction, bidderIDs ...string) error
	InvalidateBids(ctx context.Context, bidIDs ...string) error
}

// BiddingService is the bid ledger: it accepts bids in a total order per auction
// and serves the read side through the cache.
type BiddingService struct {
	repo        repository.AuctionDB
	locks       *keylock.Locker
	events      EventPublisher
	notifier    notify.Notifier
	loader      *cache.Loader
	invalidator CacheInvalidator

	lockTimeout  time.Duration
	maxRetries   int
	retryBackoff time.Duration
	now          func() time.Time

	pending sync.WaitGroup
}

// Option configures a BiddingService
type Option func(*BiddingService)

// WithLocker shares the per-auction locker with other writers such as the lifecycle controller
func WithLocker(l *keylock.Locker) Option {
	return func(s *BiddingService) { s.locks = l }
}

func WithEvents(p EventPublisher) Option {
	return func(s *BiddingService) { s.events = p }
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *BiddingService) { s.notifier = n }
}

// WithCache enables read-through caching and invalidation on every accepted bid
func WithCache(loader *cache.Loader, invalidator CacheInvalidator) Option {
	return func(s *BiddingService) {
		s.loader = loader
		s.invalidator = invalidator
	}
}

// WithLockTimeout bounds how long PlaceBid waits for the auction lock
func WithLockTimeout(d time.Duration) Option {
	return func(s *BiddingService) { s.lockTimeout = d }
}

// WithMaxRetries sets how many times a conflicting transaction is retried
func WithMaxRetries(n int) Option {
	return func(s *BiddingService) { s.maxRetries = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) { s.now = now }
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:         repo,
		locks:        keylock.New(),
		events:       nopEvents{},
		notifier:     nopNotifier{},
		lockTimeout:  DefaultLockTimeout,
		maxRetries:   DefaultMaxRetries,
		retryBackoff: defaultRetryBackoff,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loader == nil {
		s.loader = cache.NewLoader(cache.NopCache{}, 0, nil)
	}
	if s.maxRetries < 0 {
		s.maxRetries = 0
	}
	return s
}

// placement is the committed outcome of one accepted bid
type placement struct {
	bid      model.Bid
	auction  model.Auction
	previous *model.Bid
}

// PlaceBid validates and records a bid. Accepted bids on one auction are
// totally ordered; rejected bids leave no trace.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (model.Bid, error) {
	if auctionID == "" || bidderID == "" {
		return model.Bid{}, fmt.Errorf("service: %w - missing auctionID or bidderID", biddingerrors.ErrInvalidBid)
	}
	if !amount.IsPositive() {
		return model.Bid{}, fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrInvalidBid)
	}
	if !amount.Equal(amount.Round(model.MoneyPlaces)) {
		return model.Bid{}, fmt.Errorf("service: %w - amount %s has more than %d decimal places", biddingerrors.ErrInvalidBid, amount, model.MoneyPlaces)
	}

	// cheap rejection before queuing on the lock
	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
	}
	if err := ValidateBid(auction, amount, bidderID, s.now()); err != nil {
		return model.Bid{}, fmt.Errorf("service: bid on auction %s rejected: %w", auctionID, err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	unlock, err := s.locks.Lock(lockCtx, auctionID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to lock auction %s: %w", auctionID, err)
	}
	defer unlock()

	var res placement
	for attempt := 0; ; attempt++ {
		res, err = s.placeBidTx(lockCtx, auctionID, bidderID, amount)
		if err == nil {
			break
		}
		if !errors.Is(err, biddingerrors.ErrConflict) {
			return model.Bid{}, fmt.Errorf("service: bid on auction %s rejected: %w", auctionID, err)
		}
		if attempt >= s.maxRetries {
			return model.Bid{}, fmt.Errorf("service: bid on auction %s: %w after %d attempts: %w", auctionID, biddingerrors.ErrRetriesExhausted, attempt+1, err)
		}
		utils.Warn("service: retrying conflicting bid", map[string]any{
			"auction_id": auctionID,
			"bidder_id":  bidderID,
			"attempt":    attempt + 1,
			"error":      err.Error(),
		})
		select {
		case <-time.After(s.retryBackoff * time.Duration(attempt+1)):
		case <-lockCtx.Done():
			return model.Bid{}, fmt.Errorf("service: bid on auction %s: %w", auctionID, biddingerrors.ErrLockTimeout)
		}
	}

	// still under the auction lock, so events leave in commit order
	s.publishPlacement(res)

	bidders := []string{bidderID}
	var demoted []string
	if res.previous != nil {
		demoted = append(demoted, res.previous.BidID)
		if res.previous.BidderID != bidderID {
			bidders = append(bidders, res.previous.BidderID)
		}
	}
	s.invalidate(res.auction, demoted, bidders...)

	return res.bid, nil
}

func (s *BiddingService) placeBidTx(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (placement, error) {
	var res placement
	err := s.repo.InTx(ctx, auctionID, func(tx repository.Tx) error {
		auction := tx.Auction()
		now := s.now()

		if err := ValidateBid(auction, amount, bidderID, now); err != nil {
			return err
		}

		prev, err := tx.WinningBid(ctx)
		switch {
		case err == nil:
			if err := tx.SetBidStatus(ctx, prev.BidID, model.BidOutbid); err != nil {
				return err
			}
			prev.Status = model.BidOutbid
			res.previous = &prev
		case errors.Is(err, biddingerrors.ErrNoBids):
		default:
			return err
		}

		bid := model.Bid{
			BidID:         utils.GenerateID(),
			AuctionID:     auctionID,
			BidderID:      bidderID,
			Amount:        amount,
			PreviousPrice: auction.CurrentPrice,
			Status:        model.BidWinning,
			CreatedAt:     now,
		}
		if err := tx.InsertBid(ctx, bid); err != nil {
			return err
		}

		auction.CurrentPrice = amount
		auction.WinnerID = bidderID
		auction.TotalBids++
		auction.Version++
		auction.UpdatedAt = now
		if err := tx.SaveAuction(ctx, auction); err != nil {
			return err
		}

		res.bid = bid
		res.auction = auction
		return nil
	})
	return res, err
}

func (s *BiddingService) publishPlacement(res placement) {
	topic := fanout.AuctionTopic(res.auction.ID)
	now := s.now()

	bid := res.bid
	auction := res.auction
	s.events.Publish(topic, model.Event{
		Type:      model.EventBidAccepted,
		AuctionID: auction.ID,
		Version:   auction.Version,
		Bid:       &bid,
		At:        now,
	})
	s.events.Publish(topic, model.Event{
		Type:      model.EventAuctionUpdated,
		AuctionID: auction.ID,
		Version:   auction.Version,
		Auction:   &auction,
		At:        now,
	})

	prev := res.previous
	if prev == nil || prev.BidderID == bid.BidderID {
		return
	}
	s.events.Publish(fanout.BidderTopic(prev.BidderID), model.Event{
		Type:      model.EventOutbid,
		AuctionID: auction.ID,
		Version:   auction.Version,
		Outbid: &model.OutbidAlert{
			BidderID:  prev.BidderID,
			AuctionID: auction.ID,
			NewAmount: bid.Amount,
		},
		At: now,
	})
	s.notifier.Notify(model.Notification{
		Type:      model.NotifyOutbid,
		AuctionID: auction.ID,
		BidderID:  prev.BidderID,
		Amount:    bid.Amount,
	})
}

// invalidate drops stale cache entries in the background; failures are logged only
func (s *BiddingService) invalidate(auction model.Auction, bidIDs []string, bidderIDs ...string) {
	if s.invalidator == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		err := errors.Join(
			s.invalidator.InvalidateAuction(context.Background(), auction, bidderIDs...),
			s.invalidator.InvalidateBids(context.Background(), bidIDs...),
		)
		if err != nil {
			utils.Warn("service: cache invalidation failed", map[string]any{
				"auction_id": auction.ID,
				"error":      err.Error(),
			})
		}
	}()
}

// Flush waits for background cache invalidations to finish
func (s *BiddingService) Flush() {
	s.pending.Wait()
}

type nopEvents struct{}

func (nopEvents) Publish(string, model.Event) {}

type nopNotifier struct{}

func (nopNotifier) Notify(model.Notification) {}
