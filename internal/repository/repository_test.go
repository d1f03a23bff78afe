package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Helper to create a new Auction
func newAuction(id string, status model.AuctionStatus, startingPrice int64) model.Auction {
	now := time.Now().UTC()
	return model.Auction{
		ID:              id,
		Title:           fmt.Sprintf("%s title", id),
		SellerID:        "seller1",
		CategoryID:      "cat1",
		StartingPrice:   decimal.NewFromInt(startingPrice),
		CurrentPrice:    decimal.NewFromInt(startingPrice),
		MinBidIncrement: decimal.NewFromInt(10),
		StartTime:       now.Add(-time.Hour),
		EndTime:         now.Add(time.Hour),
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Helper to create a new Bid
func newBid(bidID, auctionID, bidderID string, amount int64, status model.BidStatus) model.Bid {
	return model.Bid{
		BidID:     bidID,
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    decimal.NewFromInt(amount),
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
}

// placeBid is a minimal ledger step used to drive the repo in tests
func placeBid(repo AuctionDB, bid model.Bid) error {
	return repo.InTx(context.Background(), bid.AuctionID, func(tx Tx) error {
		if prev, err := tx.WinningBid(context.Background()); err == nil {
			if err := tx.SetBidStatus(context.Background(), prev.BidID, model.BidOutbid); err != nil {
				return err
			}
		}
		if err := tx.InsertBid(context.Background(), bid); err != nil {
			return err
		}
		a := tx.Auction()
		a.CurrentPrice = bid.Amount
		a.WinnerID = bid.BidderID
		a.TotalBids++
		return tx.SaveAuction(context.Background(), a)
	})
}

func TestMemoryRepo_CreateAndGetAuction(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepo()
	ctx := context.Background()

	require.NoError(t, repo.CreateAuction(ctx, newAuction("a1", model.AuctionDraft, 100)))

	tests := []struct {
		name    string
		auction model.Auction
		wantErr error
	}{
		{name: "duplicate_id", auction: newAuction("a1", model.AuctionDraft, 100), wantErr: biddingerrors.ErrAuctionExists},
		{name: "empty_id", auction: newAuction("", model.AuctionDraft, 100), wantErr: biddingerrors.ErrInvalidAuction},
		{name: "new_id", auction: newAuction("a2", model.AuctionDraft, 50), wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := repo.CreateAuction(ctx, tc.auction)
			if tc.wantErr != nil {
				require.True(t, errors.Is(err, tc.wantErr), "expected %v, got %v", tc.wantErr, err)
				return
			}
			require.NoError(t, err)
			got, err := repo.GetAuction(ctx, tc.auction.ID)
			require.NoError(t, err)
			require.Equal(t, tc.auction.ID, got.ID)
		})
	}

	_, err := repo.GetAuction(ctx, "missing")
	require.True(t, errors.Is(err, biddingerrors.ErrAuctionNotFound))
}

func TestMemoryRepo_InTx_CommitAndRollback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("commit_applies_all_writes", func(t *testing.T) {
		t.Parallel()
		repo := NewMemoryRepo()
		repo.AddAuction(newAuction("a1", model.AuctionActive, 100))

		require.NoError(t, placeBid(repo, newBid("b1", "a1", "u1", 110, model.BidWinning)))
		require.NoError(t, placeBid(repo, newBid("b2", "a1", "u2", 120, model.BidWinning)))

		a, err := repo.GetAuction(ctx, "a1")
		require.NoError(t, err)
		require.True(t, a.CurrentPrice.Equal(decimal.NewFromInt(120)))
		require.Equal(t, "u2", a.WinnerID)
		require.Equal(t, int64(2), a.TotalBids)

		winning, err := repo.GetWinningBid(ctx, "a1")
		require.NoError(t, err)
		require.Equal(t, "b2", winning.BidID)

		bids, total, err := repo.GetBidsByAuction(ctx, "a1", 0, 10)
		require.NoError(t, err)
		require.Equal(t, 2, total)
		require.Equal(t, "b2", bids[0].BidID, "newest first")
		require.Equal(t, model.BidOutbid, bids[1].Status)
	})

	t.Run("error_discards_staged_writes", func(t *testing.T) {
		t.Parallel()
		repo := NewMemoryRepo()
		repo.AddAuction(newAuction("a1", model.AuctionActive, 100))
		require.NoError(t, placeBid(repo, newBid("b1", "a1", "u1", 110, model.BidWinning)))

		boom := errors.New("boom")
		err := repo.InTx(ctx, "a1", func(tx Tx) error {
			require.NoError(t, tx.SetBidStatus(ctx, "b1", model.BidOutbid))
			require.NoError(t, tx.InsertBid(ctx, newBid("b2", "a1", "u2", 200, model.BidWinning)))
			a := tx.Auction()
			a.CurrentPrice = decimal.NewFromInt(200)
			require.NoError(t, tx.SaveAuction(ctx, a))
			return boom
		})
		require.ErrorIs(t, err, boom)

		a, err := repo.GetAuction(ctx, "a1")
		require.NoError(t, err)
		require.True(t, a.CurrentPrice.Equal(decimal.NewFromInt(110)))

		winning, err := repo.GetWinningBid(ctx, "a1")
		require.NoError(t, err)
		require.Equal(t, "b1", winning.BidID)
		require.Equal(t, model.BidWinning, winning.Status)

		_, total, err := repo.GetBidsByAuction(ctx, "a1", 0, 10)
		require.NoError(t, err)
		require.Equal(t, 1, total)
	})

	t.Run("tx_sees_its_own_writes", func(t *testing.T) {
		t.Parallel()
		repo := NewMemoryRepo()
		repo.AddAuction(newAuction("a1", model.AuctionActive, 100))
		require.NoError(t, placeBid(repo, newBid("b1", "a1", "u1", 110, model.BidWinning)))

		err := repo.InTx(ctx, "a1", func(tx Tx) error {
			require.NoError(t, tx.SetBidStatus(ctx, "b1", model.BidOutbid))
			_, err := tx.WinningBid(ctx)
			require.True(t, errors.Is(err, biddingerrors.ErrNoBids))

			require.NoError(t, tx.InsertBid(ctx, newBid("b2", "a1", "u2", 120, model.BidWinning)))
			w, err := tx.WinningBid(ctx)
			require.NoError(t, err)
			require.Equal(t, "b2", w.BidID)

			ids, err := tx.BidderIDs(ctx)
			require.NoError(t, err)
			require.Equal(t, []string{"u1", "u2"}, ids)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("foreign_rows_rejected", func(t *testing.T) {
		t.Parallel()
		repo := NewMemoryRepo()
		repo.AddAuction(newAuction("a1", model.AuctionActive, 100))
		repo.AddAuction(newAuction("a2", model.AuctionActive, 100))
		require.NoError(t, placeBid(repo, newBid("b-other", "a2", "u1", 110, model.BidWinning)))

		err := repo.InTx(ctx, "a1", func(tx Tx) error {
			require.True(t, errors.Is(tx.InsertBid(ctx, newBid("b1", "a2", "u1", 110, model.BidWinning)), biddingerrors.ErrInvalidBid))
			require.True(t, errors.Is(tx.SetBidStatus(ctx, "b-other", model.BidOutbid), biddingerrors.ErrBidNotFound))
			require.True(t, errors.Is(tx.SaveAuction(ctx, newAuction("a2", model.AuctionActive, 1)), biddingerrors.ErrInvalidAuction))
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("missing_auction", func(t *testing.T) {
		t.Parallel()
		repo := NewMemoryRepo()
		err := repo.InTx(ctx, "nope", func(tx Tx) error { return nil })
		require.True(t, errors.Is(err, biddingerrors.ErrAuctionNotFound))
	})
}

func TestMemoryRepo_InTx_LockTimeout(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepo()
	repo.AddAuction(newAuction("a1", model.AuctionActive, 100))

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = repo.InTx(context.Background(), "a1", func(tx Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := repo.InTx(ctx, "a1", func(tx Tx) error { return nil })
	require.True(t, errors.Is(err, biddingerrors.ErrLockTimeout), "got %v", err)
	require.True(t, biddingerrors.IsTransient(err))

	close(release)
}

func TestMemoryRepo_ConcurrentTx(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepo()
	repo.AddAuction(newAuction("a1", model.AuctionActive, 0))

	var wg sync.WaitGroup
	concurrentCount := 50
	for i := 0; i < concurrentCount; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			b := newBid(fmt.Sprintf("bid-%d", i), "a1", fmt.Sprintf("user-%d", i), int64(100+i), model.BidWinning)
			require.NoError(t, placeBid(repo, b))
		}()
	}
	wg.Wait()

	bids, total, err := repo.GetBidsByAuction(context.Background(), "a1", 0, 100)
	require.NoError(t, err)
	require.Equal(t, concurrentCount, total)

	winning := 0
	for _, b := range bids {
		if b.Status == model.BidWinning {
			winning++
		}
	}
	require.Equal(t, 1, winning)

	a, err := repo.GetAuction(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, int64(concurrentCount), a.TotalBids)
}

func TestMemoryRepo_Listings(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepo()
	ctx := context.Background()
	now := time.Now().UTC()

	active := newAuction("active", model.AuctionActive, 100)
	expired := newAuction("expired", model.AuctionActive, 100)
	expired.EndTime = now.Add(-time.Minute)
	due := newAuction("due", model.AuctionScheduled, 100)
	due.StartTime = now.Add(-time.Second)
	future := newAuction("future", model.AuctionScheduled, 100)
	future.StartTime = now.Add(time.Hour)
	future.EndTime = now.Add(2 * time.Hour)
	other := newAuction("other", model.AuctionDraft, 100)
	other.CategoryID = "cat2"
	other.SellerID = "seller2"

	for _, a := range []model.Auction{active, expired, due, future, other} {
		repo.AddAuction(a)
	}

	tests := []struct {
		name   string
		filter model.AuctionFilter
		want   []string
	}{
		{name: "all", filter: model.AuctionFilter{}, want: []string{"expired", "active", "due", "other", "future"}},
		{name: "by_status", filter: model.AuctionFilter{Status: model.AuctionActive}, want: []string{"expired", "active"}},
		{name: "by_category", filter: model.AuctionFilter{CategoryID: "cat2"}, want: []string{"other"}},
		{name: "by_seller", filter: model.AuctionFilter{SellerID: "seller2"}, want: []string{"other"}},
		{name: "no_match", filter: model.AuctionFilter{Status: model.AuctionSold}, want: []string{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := repo.ListAuctions(ctx, tc.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, a := range got {
				ids = append(ids, a.ID)
			}
			require.ElementsMatch(t, tc.want, ids)
		})
	}

	dueList, err := repo.DueAuctions(ctx, now)
	require.NoError(t, err)
	ids := make([]string, 0, len(dueList))
	for _, a := range dueList {
		ids = append(ids, a.ID)
	}
	require.ElementsMatch(t, []string{"expired", "due"}, ids)
}

func TestMemoryRepo_GetBidsByBidder(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepo()
	ctx := context.Background()
	repo.AddAuction(newAuction("a1", model.AuctionActive, 100))
	repo.AddAuction(newAuction("a2", model.AuctionActive, 100))

	require.NoError(t, placeBid(repo, newBid("b1", "a1", "u1", 110, model.BidWinning)))
	require.NoError(t, placeBid(repo, newBid("b2", "a2", "u1", 110, model.BidWinning)))
	require.NoError(t, placeBid(repo, newBid("b3", "a1", "u2", 120, model.BidWinning)))

	all, total, err := repo.GetBidsByBidder(ctx, model.BidderFilter{BidderID: "u1"}, 0, 10)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, all, 2)
	require.Equal(t, "b2", all[0].BidID)

	winning, total, err := repo.GetBidsByBidder(ctx, model.BidderFilter{BidderID: "u1", Status: model.BidWinning}, 0, 10)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "b2", winning[0].BidID)

	second, total, err := repo.GetBidsByBidder(ctx, model.BidderFilter{BidderID: "u1"}, 1, 1)
	require.NoError(t, err)
	require.Equal(t, 2, total, "total counts every match, not just the page")
	require.Len(t, second, 1)
	require.Equal(t, "b1", second[0].BidID)

	none, total, err := repo.GetBidsByBidder(ctx, model.BidderFilter{BidderID: "nobody"}, 0, 10)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, none)

	page, total, err := repo.GetBidsByAuction(ctx, "a1", 1, 1)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, page, 1)
	require.Equal(t, "b1", page[0].BidID)
}
