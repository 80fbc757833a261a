// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/lobbyd/internal/auth"
	"github.com/jason-s-yu/lobbyd/internal/cache"
	"github.com/jason-s-yu/lobbyd/internal/config"
	"github.com/jason-s-yu/lobbyd/internal/database"
	"github.com/jason-s-yu/lobbyd/internal/game"
	"github.com/jason-s-yu/lobbyd/internal/handlers"
	"github.com/jason-s-yu/lobbyd/internal/ladder"
	"github.com/jason-s-yu/lobbyd/internal/lobby"
	"github.com/jason-s-yu/lobbyd/internal/policy"
	"github.com/jason-s-yu/lobbyd/internal/rating"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	lvl, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = logrus.DebugLevel
	}
	logger.SetLevel(lvl)

	auth.Init()
	database.ConnectDB()
	defer database.DB.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatalf("migrate: %v", err)
	}

	// Game events are optional; without Redis the historian simply gets nothing.
	if err := cache.ConnectRedis(); err != nil {
		logger.Warnf("game events disabled: %v", err)
		cache.Rdb = nil
	}

	store := database.Store{}
	players := game.NewPlayerService(store, logger)
	settings := game.Settings{
		MinDurationPerPlayer: cfg.MinDurationPerPlayer,
		DesyncLimit:          cfg.DesyncLimit,
		LobbyTimeout:         cfg.LobbyTimeout,
	}
	games := game.NewGameService(settings, cfg.StartingGameID, rating.NewProcessor(store, logger), logger)

	svc := &lobby.Services{
		Players: players,
		Games:   games,
		Ladder:  ladder.NewService(players, logger),
		Store:   store,
		Config:  cfg,
		Logger:  logger,
	}
	if cfg.PolicyServerBaseURL != "" {
		svc.Policy = policy.NewClient(cfg.PolicyServerBaseURL, cfg.PolicyTimeout, logger)
	} else {
		logger.Warn("POLICY_SERVER_BASE_URL not set, logins are not checked for fraud")
	}

	go lobby.Housekeeping(ctx, svc, cfg.CleanupInterval)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handlers.NewRouter(logger, svc),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("shutdown: %v", err)
		}
	}()

	logger.Infof("Running on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server exited: %v", err)
	}
}
