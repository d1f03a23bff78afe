package server

import (
	"time"

	handler "auction-engine/services/bidding/handler"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures all Gin routes for the application
func SetupRouter(biddingService handler.BiddingServiceInterface, lifecycle handler.LifecycleInterface, hub handler.Subscriber, keepAlive time.Duration) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(biddingService, lifecycle)
	eventsHandler := handler.NewEventsHandler(hub, keepAlive)

	bids := router.Group("/bids")
	{
		bids.POST("", biddingHandler.RecordBidHandler)
		bids.GET("/:bid_id", biddingHandler.GetBidHandler)
	}

	auctions := router.Group("/auctions")
	{
		auctions.POST("", biddingHandler.CreateAuctionHandler)
		auctions.GET("", biddingHandler.ListAuctionsHandler)
		auctions.GET("/:auction_id", biddingHandler.GetAuctionHandler)
		auctions.PATCH("/:auction_id", biddingHandler.UpdateAuctionHandler)
		auctions.DELETE("/:auction_id", biddingHandler.DeleteAuctionHandler)
		auctions.POST("/:auction_id/transitions", biddingHandler.TransitionHandler)
		auctions.GET("/:auction_id/bids", biddingHandler.GetBidsByAuctionHandler)
		auctions.GET("/:auction_id/winning", biddingHandler.GetWinningBidHandler)
		auctions.GET("/:auction_id/events", eventsHandler.AuctionEventsHandler)
	}

	users := router.Group("/users")
	{
		users.GET("/:user_id/bids", biddingHandler.GetBidsByUserHandler)
		users.GET("/:user_id/bids/active", biddingHandler.GetActiveBidsByUserHandler)
		users.GET("/:user_id/events", eventsHandler.UserEventsHandler)
	}

	return router
}
