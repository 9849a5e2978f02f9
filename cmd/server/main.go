package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"provisionpos/backend/internal/cache"
	"provisionpos/backend/internal/config"
	"provisionpos/backend/internal/httpapi"
	"provisionpos/backend/internal/migrations"
	"provisionpos/backend/internal/service"
	"provisionpos/backend/internal/store"
	"provisionpos/backend/internal/store/memory"
	pgstore "provisionpos/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var repo store.Repository
	var settings httpapi.SettingsStore
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := migrations.Apply(ctx, pg.DB()); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		if err := bootstrapSettings(ctx, pg, cfg); err != nil {
			log.Fatalf("settings bootstrap failed: %v", err)
		}
		repo = pg
		settings = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		mem := memory.NewSeeded(cfg.LowStockThreshold)
		repo = mem
		settings = mem
		log.Println("repository: in-memory")
	}

	summaries := cache.SummaryCache(cache.NoopSummaryCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSummaryCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			summaries = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	svc := service.New(
		repo,
		nil,
		summaries,
		time.Duration(cfg.UndoWindowSeconds)*time.Second,
		cfg.LowStockThreshold,
		time.Duration(cfg.SummaryCacheTTLSeconds)*time.Second,
	)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, settings)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go runUndoSweeper(sweepCtx, svc, time.Duration(cfg.SweepIntervalSeconds)*time.Second)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stopSweep()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// bootstrapSettings inserts the initial store settings row if one does not
// exist yet. The seed PIN comes from SEED_OPERATOR_PIN, falling back to the
// fixed factory default; either way the operator is expected to change it.
func bootstrapSettings(ctx context.Context, pg *pgstore.Store, cfg config.Config) error {
	pin := cfg.SeedOperatorPIN
	if pin == "" {
		pin = "1234"
		log.Println("WARNING: SEED_OPERATOR_PIN not set, seeding factory default PIN; change it immediately")
	}
	hash, err := httpapi.SeedPINHash(pin)
	if err != nil {
		return err
	}
	return pg.EnsureSettings(ctx, hash, cfg.LowStockThreshold)
}

// runUndoSweeper periodically removes undo entries that have aged past the
// undo window, keeping the undo_entries table from growing unbounded.
func runUndoSweeper(ctx context.Context, svc *service.Service, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.SweepExpiredUndoEntries(ctx)
		}
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
