package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/fanout"
	"auction-engine/internal/keylock"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var allStatuses = []model.AuctionStatus{
	model.AuctionDraft,
	model.AuctionScheduled,
	model.AuctionActive,
	model.AuctionEnded,
	model.AuctionCancelled,
	model.AuctionSold,
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []model.Notification
}

func (n *recordingNotifier) Notify(notification model.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, notification)
}

func (n *recordingNotifier) all() []model.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.Notification(nil), n.got...)
}

// Helper to create an auction at price 100 with increment 5, open for the next hour
func newAuction(id string, status model.AuctionStatus) model.Auction {
	now := time.Now().UTC()
	return model.Auction{
		ID:              id,
		Title:           id + " title",
		SellerID:        "seller1",
		CategoryID:      "cat1",
		StartingPrice:   dec("100"),
		CurrentPrice:    dec("100"),
		MinBidIncrement: dec("5"),
		StartTime:       now.Add(-time.Hour),
		EndTime:         now.Add(time.Hour),
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

type fixture struct {
	repo     *repository.MemoryRepo
	hub      *fanout.Hub
	notifier *recordingNotifier
	ctrl     *Controller
	bids     *bidding.BiddingService
}

func newFixture(opts ...Option) *fixture {
	repo := repository.NewMemoryRepo()
	hub := fanout.NewHub(32)
	notifier := &recordingNotifier{}
	locks := keylock.New()

	opts = append([]Option{WithLocker(locks), WithEvents(hub), WithNotifier(notifier)}, opts...)
	return &fixture{
		repo:     repo,
		hub:      hub,
		notifier: notifier,
		ctrl:     NewController(repo, opts...),
		bids:     bidding.NewBiddingService(repo, bidding.WithLocker(locks), bidding.WithEvents(hub), bidding.WithNotifier(notifier)),
	}
}

func (f *fixture) bid(t *testing.T, auctionID, bidderID, amount string) model.Bid {
	t.Helper()
	b, err := f.bids.PlaceBid(context.Background(), auctionID, bidderID, dec(amount))
	require.NoError(t, err)
	return b
}

func TestController_CreateAuction(t *testing.T) {
	now := time.Now().UTC()
	valid := model.Auction{
		Title:           "lamp",
		SellerID:        "seller1",
		StartingPrice:   dec("10.50"),
		MinBidIncrement: dec("0.50"),
		StartTime:       now.Add(time.Hour),
		EndTime:         now.Add(2 * time.Hour),
	}

	tests := []struct {
		name          string
		mutate        func(a *model.Auction)
		expectedError error
	}{
		{name: "valid_draft"},
		{
			name:   "valid_with_reserve",
			mutate: func(a *model.Auction) { a.ReservePrice = decimal.NewNullDecimal(dec("50")) },
		},
		{
			name:          "missing_title",
			mutate:        func(a *model.Auction) { a.Title = "" },
			expectedError: biddingerrors.ErrInvalidAuction,
		},
		{
			name:          "missing_seller",
			mutate:        func(a *model.Auction) { a.SellerID = "" },
			expectedError: biddingerrors.ErrInvalidAuction,
		},
		{
			name:          "negative_starting_price",
			mutate:        func(a *model.Auction) { a.StartingPrice = dec("-1") },
			expectedError: biddingerrors.ErrInvalidAuction,
		},
		{
			name:          "zero_increment",
			mutate:        func(a *model.Auction) { a.MinBidIncrement = decimal.Zero },
			expectedError: biddingerrors.ErrInvalidAuction,
		},
		{
			name:          "sub_cent_increment",
			mutate:        func(a *model.Auction) { a.MinBidIncrement = dec("0.001") },
			expectedError: biddingerrors.ErrInvalidAuction,
		},
		{
			name:          "negative_reserve",
			mutate:        func(a *model.Auction) { a.ReservePrice = decimal.NewNullDecimal(dec("-5")) },
			expectedError: biddingerrors.ErrInvalidAuction,
		},
		{
			name:          "end_before_start",
			mutate:        func(a *model.Auction) { a.EndTime = a.StartTime.Add(-time.Minute) },
			expectedError: biddingerrors.ErrInvalidSchedule,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			draft := valid
			draft.Status = model.AuctionActive // ignored
			draft.CurrentPrice = dec("999")    // ignored
			if tc.mutate != nil {
				tc.mutate(&draft)
			}

			created, err := f.ctrl.CreateAuction(context.Background(), draft)
			if tc.expectedError != nil {
				require.Error(t, err)
				require.True(t, errors.Is(err, tc.expectedError), "expected error: %v, got: %v", tc.expectedError, err)
				return
			}

			require.NoError(t, err)
			_, parseErr := uuid.Parse(created.ID)
			require.NoError(t, parseErr, "auction ID should be a valid UUID")
			require.Equal(t, model.AuctionDraft, created.Status)
			require.True(t, draft.StartingPrice.Equal(created.CurrentPrice))
			require.Zero(t, created.Version)

			stored, err := f.repo.GetAuction(context.Background(), created.ID)
			require.NoError(t, err)
			require.Equal(t, created.ID, stored.ID)
			require.Equal(t, model.AuctionDraft, stored.Status)
		})
	}
}

func TestController_CreateAuctionDuplicateID(t *testing.T) {
	f := newFixture()
	draft := newAuction("a1", model.AuctionDraft)

	_, err := f.ctrl.CreateAuction(context.Background(), draft)
	require.NoError(t, err)
	_, err = f.ctrl.CreateAuction(context.Background(), draft)
	require.ErrorIs(t, err, biddingerrors.ErrAuctionExists)
}

func TestController_TransitionTable(t *testing.T) {
	allowed := map[[2]model.AuctionStatus]bool{
		{model.AuctionDraft, model.AuctionScheduled}:     true,
		{model.AuctionDraft, model.AuctionCancelled}:     true,
		{model.AuctionScheduled, model.AuctionActive}:    true,
		{model.AuctionScheduled, model.AuctionCancelled}: true,
		{model.AuctionActive, model.AuctionEnded}:        true,
		{model.AuctionActive, model.AuctionCancelled}:    true,
		{model.AuctionEnded, model.AuctionSold}:          true,
		{model.AuctionEnded, model.AuctionCancelled}:     true,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			from, to := from, to
			t.Run(fmt.Sprintf("%s_to_%s", from, to), func(t *testing.T) {
				t.Parallel()

				require.Equal(t, allowed[[2]model.AuctionStatus{from, to}], CanTransition(from, to))
				if CanTransition(from, to) {
					return
				}

				f := newFixture()
				f.repo.AddAuction(newAuction("a1", from))

				_, err := f.ctrl.Transition(context.Background(), "a1", to)
				require.ErrorIs(t, err, biddingerrors.ErrInvalidStatusTransition)

				var transitionErr *biddingerrors.InvalidStatusTransitionError
				require.True(t, errors.As(err, &transitionErr))
				require.Equal(t, string(from), transitionErr.From)
				require.Equal(t, string(to), transitionErr.To)

				stored, err := f.repo.GetAuction(context.Background(), "a1")
				require.NoError(t, err)
				require.Equal(t, from, stored.Status)
				require.Zero(t, stored.Version)
			})
		}
	}
}

func TestController_Schedule(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	future := newAuction("future", model.AuctionDraft)
	future.StartTime = time.Now().UTC().Add(time.Hour)
	future.EndTime = future.StartTime.Add(time.Hour)
	f.repo.AddAuction(future)

	past := newAuction("past", model.AuctionDraft)
	f.repo.AddAuction(past)

	scheduled, err := f.ctrl.Transition(ctx, "future", model.AuctionScheduled)
	require.NoError(t, err)
	require.Equal(t, model.AuctionScheduled, scheduled.Status)
	require.Equal(t, int64(1), scheduled.Version)

	_, err = f.ctrl.Transition(ctx, "past", model.AuctionScheduled)
	require.ErrorIs(t, err, biddingerrors.ErrInvalidSchedule)
	stored, err := f.repo.GetAuction(ctx, "past")
	require.NoError(t, err)
	require.Equal(t, model.AuctionDraft, stored.Status)
}

func TestController_EndWithBidsSells(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.repo.AddAuction(newAuction("a1", model.AuctionActive))

	b1 := f.bid(t, "a1", "userA", "105")
	b2 := f.bid(t, "a1", "userB", "110")

	events := f.hub.Subscribe(fanout.AuctionTopic("a1"))
	defer events.Close()

	closed, err := f.ctrl.Transition(ctx, "a1", model.AuctionEnded)
	require.NoError(t, err)
	require.Equal(t, model.AuctionSold, closed.Status)
	require.Equal(t, "userB", closed.WinnerID)
	require.True(t, dec("110").Equal(closed.CurrentPrice))

	winning, err := f.repo.GetWinningBid(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, b2.BidID, winning.BidID)
	require.Equal(t, model.BidWon, winning.Status)

	lost, total, err := f.repo.GetBidsByBidder(ctx, model.BidderFilter{BidderID: "userA"}, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, lost, 1)
	require.Equal(t, b1.BidID, lost[0].BidID)
	require.Equal(t, model.BidOutbid, lost[0].Status)

	ev := <-events.Events()
	require.Equal(t, model.EventAuctionUpdated, ev.Type)
	require.Equal(t, model.AuctionSold, ev.Auction.Status)
	require.Equal(t, closed.Version, ev.Version)

	var settlement []model.Notification
	for _, n := range f.notifier.all() {
		if n.Type != model.NotifyOutbid {
			settlement = append(settlement, n)
		}
	}
	require.Len(t, settlement, 2)
	require.Equal(t, model.NotifyWinnerDetermined, settlement[0].Type)
	require.Equal(t, "userB", settlement[0].WinnerID)
	require.True(t, dec("110").Equal(settlement[0].Amount))
	require.Equal(t, model.NotifySellerSold, settlement[1].Type)
	require.Equal(t, "seller1", settlement[1].SellerID)
	require.True(t, dec("110").Equal(settlement[1].Amount))

	_, err = f.bids.PlaceBid(ctx, "a1", "userC", dec("500"))
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotActive)
}

func TestController_EndWithoutBids(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.repo.AddAuction(newAuction("a1", model.AuctionActive))

	closed, err := f.ctrl.Transition(ctx, "a1", model.AuctionEnded)
	require.NoError(t, err)
	require.Equal(t, model.AuctionEnded, closed.Status)
	require.Empty(t, closed.WinnerID)
	require.Empty(t, f.notifier.all())

	_, err = f.repo.GetWinningBid(ctx, "a1")
	require.ErrorIs(t, err, biddingerrors.ErrNoBids)

	_, err = f.ctrl.Transition(ctx, "a1", model.AuctionSold)
	require.ErrorIs(t, err, biddingerrors.ErrNoWinningBid)
}

func TestController_ReservePrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		reserve string
		bid     string
		met     *bool
	}{
		{name: "below_reserve", reserve: "200", bid: "110", met: boolPtr(false)},
		{name: "at_reserve", reserve: "110", bid: "110", met: boolPtr(true)},
		{name: "no_reserve", bid: "110"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			ctx := context.Background()
			a := newAuction("a1", model.AuctionActive)
			if tc.reserve != "" {
				a.ReservePrice = decimal.NewNullDecimal(dec(tc.reserve))
			}
			f.repo.AddAuction(a)

			b := f.bid(t, "a1", "userA", tc.bid)

			// the reserve is reported, it never holds the sale back
			closed, err := f.ctrl.Transition(ctx, "a1", model.AuctionEnded)
			require.NoError(t, err)
			require.Equal(t, model.AuctionSold, closed.Status)
			require.Equal(t, "userA", closed.WinnerID)

			won, err := f.repo.GetWinningBid(ctx, "a1")
			require.NoError(t, err)
			require.Equal(t, b.BidID, won.BidID)
			require.Equal(t, model.BidWon, won.Status)

			notifications := f.notifier.all()
			require.Len(t, notifications, 2)
			for _, n := range notifications {
				require.Equal(t, tc.met, n.ReserveMet, n.Type)
			}

			_, err = f.ctrl.Transition(ctx, "a1", model.AuctionSold)
			require.Error(t, err)
		})
	}
}

func boolPtr(b bool) *bool { return &b }

type recordingInvalidator struct {
	mu       sync.Mutex
	auctions []model.Auction
	bidders  []string
	bidIDs   []string
}

func (r *recordingInvalidator) InvalidateAuction(_ context.Context, auction model.Auction, bidderIDs ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auctions = append(r.auctions, auction)
	r.bidders = append(r.bidders, bidderIDs...)
	return nil
}

func (r *recordingInvalidator) InvalidateBids(_ context.Context, bidIDs ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bidIDs = append(r.bidIDs, bidIDs...)
	return nil
}

func TestController_UpdateAuction(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Second)
	title := "Walnut desk"
	category := "furniture"
	price := dec("250.50")
	badIncrement := dec("0")
	pastStart := now.Add(-time.Minute)

	f := newFixture(WithInvalidator(&recordingInvalidator{}))
	ctx := context.Background()

	draft := newAuction("draft", model.AuctionDraft)
	draft.ReservePrice = decimal.NewNullDecimal(dec("300"))
	f.repo.AddAuction(draft)

	scheduled := newAuction("scheduled", model.AuctionScheduled)
	scheduled.StartTime = now.Add(time.Hour)
	scheduled.EndTime = now.Add(2 * time.Hour)
	f.repo.AddAuction(scheduled)

	f.repo.AddAuction(newAuction("active", model.AuctionActive))

	events := f.hub.Subscribe(fanout.AuctionTopic("draft"))
	defer events.Close()

	updated, err := f.ctrl.UpdateAuction(ctx, "draft", model.AuctionPatch{
		Title:         &title,
		StartingPrice: &price,
		ReservePrice:  &decimal.NullDecimal{},
	})
	require.NoError(t, err)
	require.Equal(t, title, updated.Title)
	require.True(t, price.Equal(updated.StartingPrice))
	require.True(t, price.Equal(updated.CurrentPrice))
	require.False(t, updated.ReservePrice.Valid)
	require.Equal(t, draft.Version+1, updated.Version)
	require.Equal(t, draft.CategoryID, updated.CategoryID)

	stored, err := f.repo.GetAuction(ctx, "draft")
	require.NoError(t, err)
	require.Equal(t, updated.Version, stored.Version)
	require.Equal(t, title, stored.Title)

	ev := <-events.Events()
	require.Equal(t, model.EventAuctionUpdated, ev.Type)
	require.Equal(t, updated.Version, ev.Version)

	moved, err := f.ctrl.UpdateAuction(ctx, "scheduled", model.AuctionPatch{CategoryID: &category})
	require.NoError(t, err)
	require.Equal(t, category, moved.CategoryID)
	require.Equal(t, model.AuctionScheduled, moved.Status)

	_, err = f.ctrl.UpdateAuction(ctx, "scheduled", model.AuctionPatch{StartTime: &pastStart})
	require.ErrorIs(t, err, biddingerrors.ErrInvalidSchedule)

	_, err = f.ctrl.UpdateAuction(ctx, "draft", model.AuctionPatch{MinBidIncrement: &badIncrement})
	require.ErrorIs(t, err, biddingerrors.ErrInvalidAuction)

	_, err = f.ctrl.UpdateAuction(ctx, "active", model.AuctionPatch{Title: &title})
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotEditable)

	_, err = f.ctrl.UpdateAuction(ctx, "missing", model.AuctionPatch{Title: &title})
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)

	// rejected edits leave the stored auction alone
	stored, err = f.repo.GetAuction(ctx, "scheduled")
	require.NoError(t, err)
	require.Equal(t, moved.Version, stored.Version)
	require.True(t, scheduled.StartTime.Equal(stored.StartTime))
}

func TestController_UpdateAuctionInvalidatesBothCategories(t *testing.T) {
	t.Parallel()

	inv := &recordingInvalidator{}
	f := newFixture(WithInvalidator(inv))
	f.repo.AddAuction(newAuction("draft", model.AuctionDraft))

	category := "garden"
	_, err := f.ctrl.UpdateAuction(context.Background(), "draft", model.AuctionPatch{CategoryID: &category})
	require.NoError(t, err)
	f.ctrl.Flush()

	inv.mu.Lock()
	defer inv.mu.Unlock()
	var categories []string
	for _, a := range inv.auctions {
		categories = append(categories, a.CategoryID)
	}
	require.ElementsMatch(t, []string{"cat1", "garden"}, categories)
}

func TestController_DeleteAuction(t *testing.T) {
	t.Parallel()

	inv := &recordingInvalidator{}
	f := newFixture(WithInvalidator(inv))
	ctx := context.Background()

	f.repo.AddAuction(newAuction("draft", model.AuctionDraft))
	f.repo.AddAuction(newAuction("active", model.AuctionActive))
	f.repo.AddAuction(newAuction("sold", model.AuctionActive))
	f.repo.AddAuction(newAuction("cancelled", model.AuctionActive))

	f.bid(t, "sold", "userA", "105")
	_, err := f.ctrl.Transition(ctx, "sold", model.AuctionEnded)
	require.NoError(t, err)

	b1 := f.bid(t, "cancelled", "userA", "105")
	b2 := f.bid(t, "cancelled", "userB", "110")
	_, err = f.ctrl.Transition(ctx, "cancelled", model.AuctionCancelled)
	require.NoError(t, err)

	require.NoError(t, f.ctrl.DeleteAuction(ctx, "draft"))
	_, err = f.repo.GetAuction(ctx, "draft")
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)

	require.ErrorIs(t, f.ctrl.DeleteAuction(ctx, "active"), biddingerrors.ErrAuctionNotDeletable)
	require.ErrorIs(t, f.ctrl.DeleteAuction(ctx, "sold"), biddingerrors.ErrAuctionNotDeletable)
	require.ErrorIs(t, f.ctrl.DeleteAuction(ctx, "draft"), biddingerrors.ErrAuctionNotFound)

	events := f.hub.Subscribe(fanout.AuctionTopic("cancelled"))
	defer events.Close()

	require.NoError(t, f.ctrl.DeleteAuction(ctx, "cancelled"))
	_, err = f.repo.GetBid(ctx, b1.BidID)
	require.ErrorIs(t, err, biddingerrors.ErrBidNotFound)
	bids, total, err := f.repo.GetBidsByBidder(ctx, model.BidderFilter{BidderID: "userB"}, 0, 0)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, bids)

	ev := <-events.Events()
	require.Equal(t, model.EventAuctionDeleted, ev.Type)
	require.Equal(t, "cancelled", ev.AuctionID)

	f.ctrl.Flush()
	inv.mu.Lock()
	defer inv.mu.Unlock()
	require.Subset(t, inv.bidIDs, []string{b1.BidID, b2.BidID})
	require.Subset(t, inv.bidders, []string{"userA", "userB"})

	// the sold auction and its winning bid are untouched
	winning, err := f.repo.GetWinningBid(ctx, "sold")
	require.NoError(t, err)
	require.Equal(t, model.BidWon, winning.Status)
}

func TestController_CancelNotifiesBidders(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.repo.AddAuction(newAuction("a1", model.AuctionActive))
	f.repo.AddAuction(newAuction("draft", model.AuctionDraft))

	f.bid(t, "a1", "userA", "105")
	f.bid(t, "a1", "userB", "110")
	f.bid(t, "a1", "userA", "120")

	cancelled, err := f.ctrl.Transition(ctx, "a1", model.AuctionCancelled)
	require.NoError(t, err)
	require.Equal(t, model.AuctionCancelled, cancelled.Status)
	require.Empty(t, cancelled.WinnerID)

	_, err = f.repo.GetWinningBid(ctx, "a1")
	require.ErrorIs(t, err, biddingerrors.ErrNoBids)

	var cancellations []model.Notification
	for _, n := range f.notifier.all() {
		if n.Type == model.NotifyAuctionCancelled {
			cancellations = append(cancellations, n)
		}
	}
	require.Len(t, cancellations, 1)
	require.Equal(t, []string{"userA", "userB"}, cancellations[0].BidderIDs)

	before := len(f.notifier.all())
	_, err = f.ctrl.Transition(ctx, "draft", model.AuctionCancelled)
	require.NoError(t, err)
	require.Len(t, f.notifier.all(), before)
}

func TestController_LockTimeout(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryRepo()
	repo.AddAuction(newAuction("a1", model.AuctionActive))
	locks := keylock.New()
	ctrl := NewController(repo, WithLocker(locks), WithLockTimeout(20*time.Millisecond))

	unlock, err := locks.Lock(context.Background(), "a1")
	require.NoError(t, err)
	defer unlock()

	_, err = ctrl.Transition(context.Background(), "a1", model.AuctionEnded)
	require.ErrorIs(t, err, biddingerrors.ErrLockTimeout)
	require.True(t, biddingerrors.IsTransient(err))
}

func TestController_CloseRacesWithBids(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.repo.AddAuction(newAuction("a1", model.AuctionActive))
	f.bid(t, "a1", "user0", "105")

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(bidderID string) {
			defer wg.Done()
			<-start
			for j := 0; j < 20; j++ {
				a, err := f.repo.GetAuction(ctx, "a1")
				if err != nil {
					t.Errorf("get auction: %v", err)
					return
				}
				_, err = f.bids.PlaceBid(ctx, "a1", bidderID, a.MinimumNextBid())
				switch {
				case err == nil, errors.Is(err, biddingerrors.ErrBidTooLow):
				case errors.Is(err, biddingerrors.ErrAuctionNotActive):
					return
				default:
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}(fmt.Sprintf("user%d", i))
	}

	close(start)
	time.Sleep(2 * time.Millisecond)
	closed, err := f.ctrl.Transition(ctx, "a1", model.AuctionEnded)
	require.NoError(t, err)
	wg.Wait()

	final, err := f.repo.GetAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, model.AuctionSold, final.Status)
	require.True(t, closed.CurrentPrice.Equal(final.CurrentPrice), "no bid may land after the close")
	require.Equal(t, closed.Version, final.Version)

	bids, total, err := f.repo.GetBidsByAuction(ctx, "a1", 0, 1000)
	require.NoError(t, err)
	require.Equal(t, int64(total), final.TotalBids)

	won := 0
	for _, b := range bids {
		require.NotEqual(t, model.BidWinning, b.Status)
		if b.Status == model.BidWon {
			won++
			require.True(t, b.Amount.Equal(final.CurrentPrice))
			require.Equal(t, b.BidderID, final.WinnerID)
		}
	}
	require.Equal(t, 1, won)
}
