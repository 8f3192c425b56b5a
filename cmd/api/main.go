package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-cards/internal/audit"
	"github.com/Dan9191/bank-cards/internal/config"
	"github.com/Dan9191/bank-cards/internal/db"
	"github.com/Dan9191/bank-cards/internal/handler"
	"github.com/Dan9191/bank-cards/internal/lock"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/scheduler"
	"github.com/Dan9191/bank-cards/internal/service"
	"github.com/Dan9191/bank-cards/internal/utils"
	"github.com/Dan9191/bank-cards/internal/utils/email"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := config.LoadDotEnv(); err != nil {
		logger.Debugf("No .env file loaded: %v", err)
	}

	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	dialect, err := db.DialectFor(cfg.DBDriver)
	if err != nil {
		logger.Fatalf("Failed to select database dialect: %v", err)
	}
	conn, err := db.Open(cfg.DBDriver, cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()
	if err := db.Migrate(conn, dialect); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	cipher, err := utils.NewCardCipher(cfg.EncryptionKey)
	if err != nil {
		logger.Fatalf("Failed to initialize card cipher: %v", err)
	}

	// Audit sinks
	sinks := audit.Multi{audit.NewLogSink(logger)}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warnf("Redis is not reachable yet: %v", err)
		}
		sinks = append(sinks, audit.NewStreamSink(rdb, cfg.AuditStream, logger))
		logger.Infof("Publishing audit events to stream %s", cfg.AuditStream)
	}

	opts := service.Options{
		Policy:      cfg.TransferPolicy,
		LockTimeout: cfg.LockTimeout,
		CardBIN:     cfg.CardBIN,
		Audit:       sinks,
	}
	if cfg.EmailEnabled() {
		opts.Notifier = email.NewSender(cfg, logger)
	}

	// Initialize layers
	repo := repository.NewRepository(conn, dialect)
	svc := service.NewService(repo, lock.NewLocker(), cipher, logger, opts)

	expiry, err := scheduler.NewExpiryScheduler(svc, logger, cfg.SweepCron, cfg.SweepRecheckCron)
	if err != nil {
		logger.Fatalf("Failed to create expiry scheduler: %v", err)
	}
	expiry.Start()

	h := handler.NewHandler(svc, expiry, logger)
	r := handler.NewRouter(h, cfg.JWTSecret)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Infof("Starting server on %s (driver=%s, policy=%s)", addr, dialect.Name(), svc.Policy())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	expiry.Stop(ctx)
}
