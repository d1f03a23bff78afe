package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"auction-engine/internal/config"
	"auction-engine/internal/server"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	utils.SetLevel(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := server.Build(ctx, cfg)
	if err != nil {
		utils.Fatal("failed to start auction engine", map[string]any{"error": err.Error()})
	}

	go app.Scheduler.Start(ctx)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: app.Router,
	}

	go func() {
		utils.Info("starting auction server", map[string]any{"addr": cfg.HTTPAddr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Error("server stopped unexpectedly", map[string]any{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	utils.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// event streams only end when their clients leave, so Shutdown may hit the deadline
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Warn("graceful shutdown incomplete, closing connections", map[string]any{"error": err.Error()})
		_ = srv.Close()
	}

	app.Close()
	utils.Info("auction server stopped", nil)
}
