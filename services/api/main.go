package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quickchat/internal/config"
	"github.com/quickchat/internal/handler"
	"github.com/quickchat/internal/logger"
	"github.com/quickchat/internal/media"
	"github.com/quickchat/internal/repository"
	"github.com/quickchat/internal/service"
	"github.com/quickchat/internal/startup"
	"github.com/quickchat/internal/storage"
	"github.com/quickchat/internal/storage/memory"
	"github.com/quickchat/internal/ws"
	"github.com/quickchat/migrations"
)

func main() {
	logger.SetPrefix("api")
	defer logger.Sync()
	migrate := flag.Bool("migrate", false, "apply database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL and in-memory login limiter")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("config: %v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)
	logger.Info("starting API service")

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var dsn string
		embeddedDB, dsn, err = startup.StartEmbeddedPostgres(cfg.EmbeddedDataDir)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			logger.Sync()
			os.Exit(1)
		}
		cfg.Database.URL = dsn
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		logger.Sync()
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 2

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
	defer pool.Close()

	migCtx, migCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = startup.RunMigrations(migCtx, pool, migrations.Files)
	migCancel()
	if err != nil {
		logger.Errorf("migrations: %v", err)
		logger.Sync()
		os.Exit(1)
	}
	if *migrate {
		return
	}
	logger.Info("database connected, migrations applied")

	var limiter storage.LoginLimiter
	if cfg.RedisURL != "" && !*dev {
		limiter = startup.ConnectRedisWithRetry(cfg.RedisURL, cfg.LoginMaxAttempts, cfg.LoginWindow, 30*time.Second, "")
	} else {
		logger.Info("login limiter: in-memory")
		limiter = memory.New(cfg.LoginMaxAttempts, cfg.LoginWindow)
	}
	defer limiter.Close()

	userRepo := repository.NewUserRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)
	images := media.New(cfg.UploadDir, cfg.MaxImageSize)

	hub := ws.NewHub(ws.Config{
		MaxConns:       cfg.MaxWSConnections,
		MaxPerUser:     cfg.MaxWSPerUser,
		SendBufferSize: cfg.WSSendBufferSize,
		WriteWait:      cfg.WSWriteTimeout,
		PongWait:       cfg.WSPongTimeout,
		MaxMessageSize: cfg.WSMaxMessageSize,
	})
	unseen := service.NewUnseenReconciler(msgRepo, hub)
	hub.SetTracker(unseen)
	authSvc := service.NewAuthService(userRepo, limiter, images, cfg.JWTSecret, cfg.TokenTTL)
	delivery := service.NewDeliveryService(userRepo, msgRepo, images, hub, unseen)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	var bgWg sync.WaitGroup
	bgWg.Add(2)
	go func() {
		defer bgWg.Done()
		hub.Run(bgCtx)
	}()
	go func() {
		defer bgWg.Done()
		unseen.Run(bgCtx, cfg.UnseenResyncInterval)
	}()

	srv := &http.Server{
		Addr: cfg.ServerAddr,
		Handler: handler.NewRouter(handler.Deps{
			Cfg:      cfg,
			Auth:     authSvc,
			Users:    userRepo,
			Delivery: delivery,
			Unseen:   unseen,
			Hub:      hub,
			Media:    images,
		}),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server error: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	// WebSocket-соединения hijacked и Shutdown их не ждёт: их закрывает hub.
	bgCancel()
	bgWg.Wait()
	logger.Info("hub stopped")
}
