// Package cache holds short-lived read views of hot auction queries. The cache
// is an accelerator only; the repository stays the source of truth.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	model "auction-engine/internal/models"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL matches how long bid pages and listings may be served stale
const DefaultTTL = 5 * time.Minute

// Cache is a key/value store with TTLs and prefix invalidation
type Cache interface {
	// Get decodes the value at key into dst and reports whether it was present.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Key builders

func AuctionKey(auctionID string) string { return "auction:" + auctionID }

func ActiveAuctionsKey() string { return "auctions:active" }

func CategoryKey(categoryID string) string { return "auctions:category:" + categoryID }

func ListPrefix() string { return "auctions:list:" }

func BidPagePrefix(auctionID string) string { return "bids:auction:" + auctionID + ":" }

func BidPageKey(auctionID string, page, limit int) string {
	return fmt.Sprintf("%s%d:%d", BidPagePrefix(auctionID), page, limit)
}

func WinningBidKey(auctionID string) string { return "bids:winning:" + auctionID }

func BidderPrefix(bidderID string) string { return "bids:user:" + bidderID + ":" }

// BidderKey names one page of a bidder's history. Active bids get their own segment.
func BidderKey(filter model.BidderFilter, page, limit int) string {
	s := string(filter.Status)
	switch {
	case filter == model.ActiveBids(filter.BidderID):
		s = "active"
	case s == "":
		s = "all"
	}
	if filter.AuctionStatus != "" && s != "active" {
		s += "@" + string(filter.AuctionStatus)
	}
	return fmt.Sprintf("%s%s:%d:%d", BidderPrefix(filter.BidderID), s, page, limit)
}

func BidKey(bidID string) string { return "bid:" + bidID }

// ListingKey picks the cache key for an auction listing filter
func ListingKey(filter model.AuctionFilter) string {
	switch {
	case filter == (model.AuctionFilter{Status: model.AuctionActive}):
		return ActiveAuctionsKey()
	case filter.CategoryID != "" && filter == (model.AuctionFilter{CategoryID: filter.CategoryID}):
		return CategoryKey(filter.CategoryID)
	}
	return fmt.Sprintf("%s%s:%s:%s", ListPrefix(), filter.Status, filter.CategoryID, filter.SellerID)
}

// Loader reads through a Cache, coalescing concurrent misses on the same key.
// Every invalidation advances the loader's generation; a load that started in
// an older generation is returned to its callers but never stored.
type Loader struct {
	cache       Cache
	ttl         time.Duration
	loadTimeout time.Duration
	group       singleflight.Group
	onErr       func(op, key string, err error)

	mu         sync.RWMutex
	generation uint64
}

// DefaultLoadTimeout bounds a coalesced load once it is detached from its first caller
const DefaultLoadTimeout = 5 * time.Second

// NewLoader creates a Loader. onErr is called for cache failures, which never fail a read.
func NewLoader(c Cache, ttl time.Duration, onErr func(op, key string, err error)) *Loader {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if onErr == nil {
		onErr = func(string, string, error) {}
	}
	return &Loader{cache: c, ttl: ttl, loadTimeout: DefaultLoadTimeout, onErr: onErr}
}

// Generation returns the number of invalidations seen so far
func (l *Loader) Generation() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.generation
}

// advance starts a new generation. It waits for stores already past their
// generation check, so the deletes that follow always land after them.
func (l *Loader) advance() {
	l.mu.Lock()
	l.generation++
	l.mu.Unlock()
}

// store caches value unless an invalidation ran since generation was read
func (l *Loader) store(ctx context.Context, key string, generation uint64, value any) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.generation != generation {
		return
	}
	if err := l.cache.Set(ctx, key, value, l.ttl); err != nil {
		l.onErr("set", key, err)
	}
}

// Fetch returns the cached value at key or loads, stores and returns it.
// An empty key bypasses the cache. The load runs detached from ctx so one
// caller giving up does not fail the others waiting on it.
func Fetch[T any](ctx context.Context, l *Loader, key string, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if key == "" {
		return load(ctx)
	}

	generation := l.Generation()

	var cached T
	hit, err := l.cache.Get(ctx, key, &cached)
	if err != nil {
		l.onErr("get", key, err)
	} else if hit {
		return cached, nil
	}

	// callers from a later generation must not join a load that may predate the write
	flight := key + "#" + strconv.FormatUint(generation, 10)
	ch := l.group.DoChan(flight, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.loadTimeout)
		defer cancel()

		fresh, err := load(loadCtx)
		if err != nil {
			return fresh, err
		}
		l.store(loadCtx, key, generation, fresh)
		return fresh, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// NopCache never stores anything
type NopCache struct{}

func (NopCache) Get(context.Context, string, any) (bool, error) { return false, nil }

func (NopCache) Set(context.Context, string, any, time.Duration) error { return nil }

func (NopCache) Delete(context.Context, ...string) error { return nil }

func (NopCache) DeletePrefix(context.Context, string) error { return nil }
