// cmd/historian/main.go runs the historian: it drains game lifecycle events from Redis into PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/lobbyd/internal/cache"
	"github.com/jason-s-yu/lobbyd/internal/config"
	"github.com/jason-s-yu/lobbyd/internal/database"
	"github.com/jason-s-yu/lobbyd/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(config.Load().LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	database.ConnectDB()
	defer database.DB.Close()

	if err := cache.ConnectRedis(); err != nil {
		logger.Fatalf("historian: %v", err)
	}
	defer cache.Rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	historian.New(cache.Rdb, cache.QueueName(), config.LoadHistorian(), logger).Run(ctx)
	logger.Info("historian shutdown complete")
}
