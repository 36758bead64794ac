package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"kasirinaja/fulfillment/internal/cache"
	"kasirinaja/fulfillment/internal/config"
	"kasirinaja/fulfillment/internal/events"
	"kasirinaja/fulfillment/internal/httpapi"
	"kasirinaja/fulfillment/internal/lock"
	"kasirinaja/fulfillment/internal/service"
	"kasirinaja/fulfillment/internal/store"
	"kasirinaja/fulfillment/internal/store/memory"
	pgstore "kasirinaja/fulfillment/internal/store/postgres"
)

func main() {
	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.WithError(err).Fatal("invalid security configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 3)
	repo := openRepository(ctx, cfg, logger, &closers)
	deps := service.Deps{Logger: logger}

	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisOrderCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.WithError(err).Warn("redis unavailable, using in-process cache and locks")
		} else {
			deps.Cache = redisCache
			deps.Locker = lock.NewRedisLocker(redisCache.Client(), cfg.OrderLockTTL)
			closers = append(closers, redisCache.Close)
			logger.Info("cache and order locks: redis")
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, 0, logger.WithField("module", "events"))
		publisher.Start(context.Background())
		deps.Publisher = publisher
		closers = append(closers, publisher.Close)
		logger.WithField("topic", cfg.KafkaTopic).Info("events: kafka")
	} else {
		logger.Info("events: disabled")
	}

	svc := service.New(repo, deps, service.Policy{
		DefaultStoreID:       cfg.StoreID,
		PointsEarnRate:       cfg.PointsEarnRate,
		PointRedemptionValue: cfg.PointRedemptionValue,
		RecheckTimeout:       cfg.RecheckTimeout,
	})
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.ManagerPIN, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Address()).Info("fulfillment engine listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.WithError(err).Error("close error")
		}
	}

	logger.Info("server stopped")
}

// openRepository refuses to fall back to memory when DATABASE_URL is set.
func openRepository(ctx context.Context, cfg config.Config, logger *logrus.Logger, closers *[]func() error) store.Repository {
	if cfg.DatabaseURL == "" {
		logger.Info("repository: in-memory")
		return memory.NewSeeded()
	}

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
	}
	if cfg.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			logger.WithError(err).Fatal("schema migration failed")
		}
	}
	*closers = append(*closers, pg.Close)
	logger.Info("repository: postgres")
	return pg
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects repeated digits, straight runs and a short
// list of common PINs.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"121212": true, "112233": true, "123123": true, "159753": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
