package cache

import (
	"context"
	"errors"
	"time"

	model "auction-engine/internal/models"
)

// Invalidator drops every cached view a write to an auction can make stale
type Invalidator struct {
	cache   Cache
	timeout time.Duration
	loaders []*Loader
}

// NewInvalidator bounds each invalidation by timeout. Loads in flight on any
// of loaders when an invalidation starts are not written back to the cache.
func NewInvalidator(c Cache, timeout time.Duration, loaders ...*Loader) *Invalidator {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Invalidator{cache: c, timeout: timeout, loaders: loaders}
}

// InvalidateAuction removes the auction, its bid pages, the listings it can
// appear in and the bid lists of the given bidders.
func (i *Invalidator) InvalidateAuction(ctx context.Context, auction model.Auction, bidderIDs ...string) error {
	for _, l := range i.loaders {
		l.advance()
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	keys := []string{AuctionKey(auction.ID), WinningBidKey(auction.ID), ActiveAuctionsKey()}
	if auction.CategoryID != "" {
		keys = append(keys, CategoryKey(auction.CategoryID))
	}

	var errs []error
	if err := i.cache.Delete(ctx, keys...); err != nil {
		errs = append(errs, err)
	}

	prefixes := []string{BidPagePrefix(auction.ID), ListPrefix()}
	for _, id := range bidderIDs {
		if id != "" {
			prefixes = append(prefixes, BidderPrefix(id))
		}
	}
	for _, p := range prefixes {
		if err := i.cache.DeletePrefix(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InvalidateBids removes single-bid views whose status changed
func (i *Invalidator) InvalidateBids(ctx context.Context, bidIDs ...string) error {
	keys := make([]string, 0, len(bidIDs))
	for _, id := range bidIDs {
		if id != "" {
			keys = append(keys, BidKey(id))
		}
	}
	if len(keys) == 0 {
		return nil
	}

	for _, l := range i.loaders {
		l.advance()
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()
	return i.cache.Delete(ctx, keys...)
}
