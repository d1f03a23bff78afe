package server

import (
	"context"
	"fmt"
	"time"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/cache"
	"auction-engine/internal/config"
	"auction-engine/internal/fanout"
	"auction-engine/internal/keylock"
	"auction-engine/internal/lifecycle"
	model "auction-engine/internal/models"
	"auction-engine/internal/notify"
	"auction-engine/internal/repository"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// App is the wired engine: storage, cache, fan-out, notifications, the bid
// ledger, the lifecycle controller and its scheduler, behind one router.
type App struct {
	Router     *gin.Engine
	Bidding    *bidding.BiddingService
	Lifecycle  *lifecycle.Controller
	Scheduler  *lifecycle.Scheduler
	Hub        *fanout.Hub
	Dispatcher *notify.Dispatcher
	Repo       repository.AuctionDB

	closers []func()
}

// Build wires every component from cfg. Empty backend settings select the
// in-memory repository, no cache and log-only notifications.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{}

	repo, err := app.buildRepo(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Repo = repo

	store, err := app.buildCache(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	loader := cache.NewLoader(store, cfg.CacheTTL, func(op, key string, err error) {
		utils.Warn("cache: operation failed", map[string]any{"op": op, "key": key, "error": err.Error()})
	})
	invalidator := cache.NewInvalidator(store, 0, loader)

	publisher, err := app.buildPublisher(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Dispatcher = notify.NewDispatcher(publisher, cfg.NotifyQueueSize, cfg.NotifyTimeout)
	app.Dispatcher.Start(context.Background(), cfg.NotifyWorkers)

	app.Hub = fanout.NewHub(cfg.FanoutBuffer)
	locks := keylock.New()

	app.Bidding = bidding.NewBiddingService(repo,
		bidding.WithLocker(locks),
		bidding.WithEvents(app.Hub),
		bidding.WithNotifier(app.Dispatcher),
		bidding.WithCache(loader, invalidator),
		bidding.WithLockTimeout(cfg.LockTimeout),
		bidding.WithMaxRetries(cfg.MaxBidRetries),
	)
	app.Lifecycle = lifecycle.NewController(repo,
		lifecycle.WithLocker(locks),
		lifecycle.WithEvents(app.Hub),
		lifecycle.WithNotifier(app.Dispatcher),
		lifecycle.WithInvalidator(invalidator),
		lifecycle.WithLockTimeout(cfg.LockTimeout),
	)
	app.Scheduler = lifecycle.NewScheduler(app.Lifecycle, repo, cfg.SchedulerTick, cfg.SchedulerWorkers)

	if mem, ok := repo.(*repository.MemoryRepo); ok && cfg.SeedDemoData {
		SeedDemoAuctions(mem, time.Now().UTC())
	}

	app.Router = SetupRouter(app.Bidding, app.Lifecycle, app.Hub, 0)
	return app, nil
}

func (a *App) buildRepo(ctx context.Context, cfg config.Config) (repository.AuctionDB, error) {
	if cfg.DatabaseURL == "" {
		utils.Info("storage: using in-memory repository", nil)
		return repository.NewMemoryRepo(), nil
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	repo := repository.NewPostgresRepo(pool, cfg.LockTimeout)
	if err := repo.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	utils.Info("storage: connected to postgres", nil)
	return repo, nil
}

func (a *App) buildCache(ctx context.Context, cfg config.Config) (cache.Cache, error) {
	if cfg.RedisAddr == "" {
		utils.Info("cache: disabled", nil)
		return cache.NopCache{}, nil
	}

	client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	utils.Info("cache: connected to redis", map[string]any{"addr": cfg.RedisAddr, "ttl": cfg.CacheTTL.String()})
	return cache.NewRedisCache(client), nil
}

func (a *App) buildPublisher(cfg config.Config) (notify.Publisher, error) {
	if cfg.RabbitMQURL == "" {
		utils.Info("notify: publishing to log", nil)
		return notify.LogPublisher{}, nil
	}

	pub, err := notify.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.RabbitMQQueue, 5)
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	a.closers = append(a.closers, pub.Close)
	return pub, nil
}

// Close drains pending work and releases backend connections in reverse order
func (a *App) Close() {
	if a.Bidding != nil {
		a.Bidding.Flush()
	}
	if a.Lifecycle != nil {
		a.Lifecycle.Flush()
	}
	if a.Dispatcher != nil {
		a.Dispatcher.Close()
		sent, failed, dropped := a.Dispatcher.Stats()
		utils.Info("notify: dispatcher closed", map[string]any{"sent": sent, "failed": failed, "dropped": dropped})
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// SeedDemoAuctions adds a few running auctions to an empty in-memory repository
func SeedDemoAuctions(repo *repository.MemoryRepo, now time.Time) {
	demo := []struct {
		id, title, category string
		start, increment    int64
		reserve             int64
		lasts               time.Duration
	}{
		{"auction1", "Vintage camera", "electronics", 100, 5, 0, 24 * time.Hour},
		{"auction2", "Oak writing desk", "furniture", 200, 10, 400, 48 * time.Hour},
		{"auction3", "Signed first edition", "books", 150, 5, 0, 72 * time.Hour},
	}

	for _, d := range demo {
		a := model.Auction{
			ID:              d.id,
			Title:           d.title,
			CategoryID:      d.category,
			SellerID:        "seller1",
			StartingPrice:   decimal.NewFromInt(d.start),
			CurrentPrice:    decimal.NewFromInt(d.start),
			MinBidIncrement: decimal.NewFromInt(d.increment),
			StartTime:       now,
			EndTime:         now.Add(d.lasts),
			Status:          model.AuctionActive,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if d.reserve > 0 {
			a.ReservePrice = decimal.NewNullDecimal(decimal.NewFromInt(d.reserve))
		}
		repo.AddAuction(a)
	}
	utils.Info("storage: seeded demo auctions", map[string]any{"count": len(demo)})
}
