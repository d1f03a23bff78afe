package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"auction-engine/internal/config"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// testConfig returns an all in-process configuration: memory storage, no cache,
// log-only notifications and no demo data.
func testConfig() config.Config {
	return config.Config{
		CacheTTL:         time.Minute,
		NotifyQueueSize:  64,
		NotifyWorkers:    1,
		NotifyTimeout:    time.Second,
		FanoutBuffer:     16,
		LockTimeout:      2 * time.Second,
		MaxBidRetries:    3,
		SchedulerTick:    time.Second,
		SchedulerWorkers: 2,
	}
}

// SetupTestApp builds the full application from cfg and seeds the in-memory
// repository with auctions.
func SetupTestApp(t *testing.T, cfg config.Config, auctions ...model.Auction) *server.App {
	t.Helper()
	gin.SetMode(gin.TestMode)

	app, err := server.Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	repo, ok := app.Repo.(*repository.MemoryRepo)
	require.True(t, ok, "integration tests run on the in-memory repository")
	for _, a := range auctions {
		repo.AddAuction(a)
	}
	return app
}

// SetupTestRouterWithAuctions initializes the router and seeds the repo with auctions.
func SetupTestRouterWithAuctions(t *testing.T, auctions ...model.Auction) *gin.Engine {
	return SetupTestApp(t, testConfig(), auctions...).Router
}

// ActiveAuction returns a running auction starting at price with the given increment
func ActiveAuction(id string, price, increment int64) model.Auction {
	now := time.Now().UTC()
	return model.Auction{
		ID:              id,
		Title:           id + " title",
		Description:     id + " description",
		CategoryID:      "cat1",
		SellerID:        "seller1",
		StartingPrice:   decimal.NewFromInt(price),
		CurrentPrice:    decimal.NewFromInt(price),
		MinBidIncrement: decimal.NewFromInt(increment),
		StartTime:       now.Add(-time.Hour),
		EndTime:         now.Add(time.Hour),
		Status:          model.AuctionActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response envelope
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}

	return resp, w
}

// Data returns the data object of a success envelope
func Data(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	data, ok := resp["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", resp)
	return data
}

// Amount parses a money literal for request bodies
func Amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
