package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval    = time.Second
	DefaultParallelism = 8
)

// Scheduler fires the timed transitions: SCHEDULED auctions open at their start
// time and ACTIVE auctions close at their end time.
type Scheduler struct {
	ctrl        *Controller
	repo        repository.AuctionDB
	interval    time.Duration
	parallelism int
	now         func() time.Time
}

// NewScheduler polls repo every interval and applies due transitions through ctrl
func NewScheduler(ctrl *Controller, repo repository.AuctionDB, interval time.Duration, parallelism int) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	return &Scheduler{
		ctrl:        ctrl,
		repo:        repo,
		interval:    interval,
		parallelism: parallelism,
		now:         ctrl.now,
	}
}

// Start runs sweeps until ctx is done
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	utils.Info("scheduler started", map[string]any{"interval": s.interval.String()})
	for {
		select {
		case <-ctx.Done():
			utils.Info("scheduler stopped", nil)
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				utils.Error("scheduler: sweep failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// Tick applies every transition due now and returns how many were applied.
// Auctions that moved on concurrently, for example cancelled by an admin, are skipped.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	due, err := s.repo.DueAuctions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("scheduler: failed to load due auctions: %w", err)
	}

	var applied atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	for _, a := range due {
		a := a
		target := model.AuctionEnded
		if a.Status == model.AuctionScheduled {
			target = model.AuctionActive
		}

		g.Go(func() error {
			updated, err := s.ctrl.Transition(gctx, a.ID, target)
			switch {
			case err == nil:
				applied.Add(1)
				utils.Info("scheduler: timed transition applied", map[string]any{
					"auction_id": a.ID,
					"from":       a.Status,
					"status":     updated.Status,
				})
			case errors.Is(err, biddingerrors.ErrInvalidStatusTransition):
				utils.Info("scheduler: auction already moved on", map[string]any{"auction_id": a.ID, "error": err.Error()})
			default:
				utils.Error("scheduler: timed transition failed", map[string]any{"auction_id": a.ID, "error": err.Error()})
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(applied.Load()), err
	}
	return int(applied.Load()), nil
}
