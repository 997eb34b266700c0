package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mehrbod2002/mtdesk/internal/api"
	"github.com/mehrbod2002/mtdesk/internal/config"
	"github.com/mehrbod2002/mtdesk/internal/middleware"
	"github.com/mehrbod2002/mtdesk/internal/models"
	"github.com/mehrbod2002/mtdesk/internal/mtapi"
	"github.com/mehrbod2002/mtdesk/internal/repository"
	"github.com/mehrbod2002/mtdesk/internal/secret"
	"github.com/mehrbod2002/mtdesk/internal/service"
	"github.com/mehrbod2002/mtdesk/internal/ws"

	"github.com/gin-gonic/gin"
	logger "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func SetupLogger(levelStr string) {
	level, err := logger.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		level = logger.InfoLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

type indexed interface {
	EnsureIndexes(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	SetupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.Background())

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		logger.Fatalf("Failed to ping MongoDB: %v", err)
	}

	accountRepo := repository.NewAccountRepository(client, cfg.MongoDatabase, "trading_accounts")
	historyRepo := repository.NewHistoryRepository(client, cfg.MongoDatabase, "order_histories")
	logRepo := repository.NewLogRepository(client, cfg.MongoDatabase, "logs")
	for _, repo := range []indexed{accountRepo, historyRepo} {
		if err := repo.EnsureIndexes(pingCtx); err != nil {
			logger.Fatalf("Failed to create indexes: %v", err)
		}
	}

	secrets, err := secret.New(cfg.CredentialsKey)
	if err != nil {
		logger.Fatalf("Failed to set up credential sealing: %v", err)
	}
	bridge := mtapi.NewClient(cfg.MTAPI())

	hub := ws.NewHub()
	go hub.Run(ctx)
	wsHandler := ws.NewWebSocketHandler(hub)

	logService := service.NewLogService(logRepo)
	connections := service.NewConnectionManager(bridge, accountRepo, secrets, logService, hub, cfg.MTAPITimeout)
	data := service.NewAccountDataService(bridge, accountRepo, historyRepo, logService)
	accountService := service.NewAccountManager(accountRepo, connections, data, secrets, logService, cfg.HistoryWindowDays)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())

	api.SetupRoutes(r, cfg, accountService, logService, wsHandler, hub)

	srv := &http.Server{Addr: cfg.ListenAddr(), Handler: r}
	go func() {
		logger.WithFields(logger.Fields{
			"addr":    cfg.ListenAddr(),
			"mt4_url": bridge.BaseURL(models.PlatformMT4),
			"mt5_url": bridge.BaseURL(models.PlatformMT5),
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
}
