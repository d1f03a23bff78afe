package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/keylock"
	model "auction-engine/internal/models"
)

type bidRef struct {
	auctionID string
	idx       int
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB.
// Transactions stage their writes and apply them under one write lock on commit.
type MemoryRepo struct {
	mu         sync.RWMutex
	auctions   map[string]model.Auction
	bids       map[string][]model.Bid // key: auctionID -> bids in insertion order
	leader     map[string]int         // key: auctionID -> index of the WINNING or WON bid
	bidIndex   map[string]bidRef      // key: bidID
	bidderBids map[string][]bidRef    // key: bidderID

	locks *keylock.Locker
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:   make(map[string]model.Auction),
		bids:       make(map[string][]model.Bid),
		leader:     make(map[string]int),
		bidIndex:   make(map[string]bidRef),
		bidderBids: make(map[string][]bidRef),
		locks:      keylock.New(),
	}
}

// CreateAuction stores a new auction
func (r *MemoryRepo) CreateAuction(ctx context.Context, auction model.Auction) error {
	if auction.ID == "" {
		return fmt.Errorf("repo: create auction: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[auction.ID]; ok {
		return fmt.Errorf("repo: create auction %s: %w", auction.ID, biddingerrors.ErrAuctionExists)
	}
	r.auctions[auction.ID] = auction
	return nil
}

// AddAuction adds or replaces an auction. This method is intended for tests and seeding only.
func (r *MemoryRepo) AddAuction(auction model.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auctions[auction.ID] = auction
}

// GetAuction returns a single auction
func (r *MemoryRepo) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("repo: get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return a, nil
}

// ListAuctions returns auctions matching filter ordered by end time
func (r *MemoryRepo) ListAuctions(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Auction, 0)
	for _, a := range r.auctions {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.CategoryID != "" && a.CategoryID != filter.CategoryID {
			continue
		}
		if filter.SellerID != "" && a.SellerID != filter.SellerID {
			continue
		}
		out = append(out, a)
	}
	sortByEndTime(out)
	return out, nil
}

// DueAuctions returns auctions whose next timed transition is due
func (r *MemoryRepo) DueAuctions(ctx context.Context, now time.Time) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Auction
	for _, a := range r.auctions {
		switch {
		case a.Status == model.AuctionScheduled && !a.StartTime.After(now):
			out = append(out, a)
		case a.Status == model.AuctionActive && !a.EndTime.After(now):
			out = append(out, a)
		}
	}
	sortByEndTime(out)
	return out, nil
}

func sortByEndTime(auctions []model.Auction) {
	sort.Slice(auctions, func(i, j int) bool {
		if auctions[i].EndTime.Equal(auctions[j].EndTime) {
			return auctions[i].ID < auctions[j].ID
		}
		return auctions[i].EndTime.Before(auctions[j].EndTime)
	})
}

// GetBidsByAuction returns a newest-first page of an auction's bids
func (r *MemoryRepo) GetBidsByAuction(ctx context.Context, auctionID string, offset, limit int) ([]model.Bid, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return nil, 0, fmt.Errorf("repo: get bids for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}

	offset, limit = normalizePage(offset, limit)
	bids := r.bids[auctionID]
	total := len(bids)

	out := make([]model.Bid, 0, limit)
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, bids[i])
	}
	return out, total, nil
}

// GetWinningBid returns the leading bid of an auction
func (r *MemoryRepo) GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return model.Bid{}, fmt.Errorf("repo: get winning bid for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	idx, ok := r.leader[auctionID]
	if !ok {
		return model.Bid{}, fmt.Errorf("repo: get winning bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	return r.bids[auctionID][idx], nil
}

// GetBid returns a single bid
func (r *MemoryRepo) GetBid(ctx context.Context, bidID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ref, ok := r.bidIndex[bidID]
	if !ok {
		return model.Bid{}, fmt.Errorf("repo: get bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	return r.bids[ref.auctionID][ref.idx], nil
}

// GetBidsByBidder returns a newest-first page of a bidder's bids matching filter
func (r *MemoryRepo) GetBidsByBidder(ctx context.Context, filter model.BidderFilter, offset, limit int) ([]model.Bid, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	offset, limit = normalizePage(offset, limit)
	refs := r.bidderBids[filter.BidderID]

	out := make([]model.Bid, 0, limit)
	total := 0
	for i := len(refs) - 1; i >= 0; i-- {
		b := r.bids[refs[i].auctionID][refs[i].idx]
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.AuctionStatus != "" && r.auctions[b.AuctionID].Status != filter.AuctionStatus {
			continue
		}
		if total >= offset && len(out) < limit {
			out = append(out, b)
		}
		total++
	}
	return out, total, nil
}

// InTx runs fn against a staged view of one auction while holding its lock
func (r *MemoryRepo) InTx(ctx context.Context, auctionID string, fn func(tx Tx) error) error {
	unlock, err := r.locks.Lock(ctx, auctionID)
	if err != nil {
		return fmt.Errorf("repo: begin tx for auction %s: %w", auctionID, err)
	}
	defer unlock()

	a, err := r.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}

	tx := &memTx{
		repo:     r,
		auction:  a,
		statuses: make(map[string]model.BidStatus),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("repo: commit tx for auction %s: %w", auctionID, biddingerrors.ErrLockTimeout)
	}

	r.commit(tx)
	return nil
}

func (r *MemoryRepo) commit(tx *memTx) {
	r.mu.Lock()
	defer r.mu.Unlock()

	auctionID := tx.auction.ID
	if tx.deleted {
		r.remove(auctionID)
		return
	}
	bids := r.bids[auctionID]

	for bidID, status := range tx.statuses {
		ref := r.bidIndex[bidID]
		bids[ref.idx].Status = status
		if status == model.BidOutbid {
			if idx, ok := r.leader[auctionID]; ok && idx == ref.idx {
				delete(r.leader, auctionID)
			}
		} else {
			r.leader[auctionID] = ref.idx
		}
	}

	for _, b := range tx.inserted {
		idx := len(bids)
		bids = append(bids, b)
		ref := bidRef{auctionID: auctionID, idx: idx}
		r.bidIndex[b.BidID] = ref
		r.bidderBids[b.BidderID] = append(r.bidderBids[b.BidderID], ref)
		if b.Status != model.BidOutbid {
			r.leader[auctionID] = idx
		}
	}
	r.bids[auctionID] = bids

	if tx.dirty {
		r.auctions[auctionID] = tx.auction
	}
}

// remove drops an auction and every index entry of its bids. r.mu must be held.
func (r *MemoryRepo) remove(auctionID string) {
	for _, b := range r.bids[auctionID] {
		delete(r.bidIndex, b.BidID)

		refs := r.bidderBids[b.BidderID]
		kept := refs[:0]
		for _, ref := range refs {
			if ref.auctionID != auctionID {
				kept = append(kept, ref)
			}
		}
		if len(kept) == 0 {
			delete(r.bidderBids, b.BidderID)
		} else {
			r.bidderBids[b.BidderID] = kept
		}
	}
	delete(r.bids, auctionID)
	delete(r.leader, auctionID)
	delete(r.auctions, auctionID)
}

// memTx stages writes for a single auction until commit
type memTx struct {
	repo     *MemoryRepo
	auction  model.Auction
	dirty    bool
	deleted  bool
	inserted []model.Bid
	statuses map[string]model.BidStatus // committed bids only
}

func (tx *memTx) Auction() model.Auction { return tx.auction }

func (tx *memTx) WinningBid(ctx context.Context) (model.Bid, error) {
	for i := len(tx.inserted) - 1; i >= 0; i-- {
		if tx.inserted[i].Status == model.BidWinning {
			return tx.inserted[i], nil
		}
	}

	tx.repo.mu.RLock()
	defer tx.repo.mu.RUnlock()

	if idx, ok := tx.repo.leader[tx.auction.ID]; ok {
		b := tx.repo.bids[tx.auction.ID][idx]
		if st, staged := tx.statuses[b.BidID]; staged {
			b.Status = st
		}
		if b.Status == model.BidWinning {
			return b, nil
		}
	}
	return model.Bid{}, fmt.Errorf("repo: winning bid for auction %s: %w", tx.auction.ID, biddingerrors.ErrNoBids)
}

func (tx *memTx) BidderIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	tx.repo.mu.RLock()
	for _, b := range tx.repo.bids[tx.auction.ID] {
		add(b.BidderID)
	}
	tx.repo.mu.RUnlock()

	for _, b := range tx.inserted {
		add(b.BidderID)
	}
	return ids, nil
}

func (tx *memTx) InsertBid(ctx context.Context, bid model.Bid) error {
	if bid.AuctionID != tx.auction.ID {
		return fmt.Errorf("repo: insert bid %s: %w - auction %s is not locked", bid.BidID, biddingerrors.ErrInvalidBid, bid.AuctionID)
	}
	tx.inserted = append(tx.inserted, bid)
	return nil
}

func (tx *memTx) SetBidStatus(ctx context.Context, bidID string, status model.BidStatus) error {
	for i := range tx.inserted {
		if tx.inserted[i].BidID == bidID {
			tx.inserted[i].Status = status
			return nil
		}
	}

	tx.repo.mu.RLock()
	ref, ok := tx.repo.bidIndex[bidID]
	tx.repo.mu.RUnlock()
	if !ok || ref.auctionID != tx.auction.ID {
		return fmt.Errorf("repo: set status of bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	tx.statuses[bidID] = status
	return nil
}

func (tx *memTx) SaveAuction(ctx context.Context, auction model.Auction) error {
	if auction.ID != tx.auction.ID {
		return fmt.Errorf("repo: save auction %s: %w - auction %s is locked", auction.ID, biddingerrors.ErrInvalidAuction, tx.auction.ID)
	}
	tx.auction = auction
	tx.dirty = true
	return nil
}

func (tx *memTx) DeleteAuction(ctx context.Context) ([]string, error) {
	tx.repo.mu.RLock()
	committed := tx.repo.bids[tx.auction.ID]
	ids := make([]string, 0, len(committed)+len(tx.inserted))
	for _, b := range committed {
		ids = append(ids, b.BidID)
	}
	tx.repo.mu.RUnlock()

	for _, b := range tx.inserted {
		ids = append(ids, b.BidID)
	}
	tx.inserted = nil
	tx.deleted = true
	return ids, nil
}
