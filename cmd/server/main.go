package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/DoyleJ11/duel-draft-backend/internal/auth"
	"github.com/DoyleJ11/duel-draft-backend/internal/config"
	"github.com/DoyleJ11/duel-draft-backend/internal/draft"
	"github.com/DoyleJ11/duel-draft-backend/internal/httpapi"
	"github.com/DoyleJ11/duel-draft-backend/internal/hub"
	"github.com/DoyleJ11/duel-draft-backend/internal/logging"
	"github.com/DoyleJ11/duel-draft-backend/internal/storage"
	"github.com/DoyleJ11/duel-draft-backend/internal/storage/pg"
	"github.com/DoyleJ11/duel-draft-backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	logger := zl.Sugar()

	if err := run(cfg, logger); err != nil {
		logger.Fatalw("server stopped", "error", err)
	}
}

func run(cfg config.Config, logger *zap.SugaredLogger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeStore()) }()

	h := hub.NewHub(ctx, logger)
	defer h.Shutdown()

	svc := draft.NewService(ctx, draft.Options{
		Store:       store,
		Hub:         h,
		Logger:      logger,
		Capacity:    cfg.LeagueCapacity,
		InboxSize:   cfg.RoomInboxSize,
		SaveTimeout: cfg.SaveTimeout,
	})
	defer svc.Close()

	var verifier *auth.Verifier
	if cfg.JWTSecret != "" {
		verifier = auth.NewVerifier(cfg.JWTSecret, nil)
	} else {
		logger.Warnw("JWT_SECRET not set, token checks disabled")
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Service:        svc,
			Hub:            h,
			Logger:         logger,
			Verifier:       verifier,
			CORSOrigins:    cfg.CORSOrigins,
			RequestTimeout: cfg.RequestTimeout,
			WS: ws.Options{
				OutboxSize:     cfg.SubscriberBuffer,
				WriteTimeout:   cfg.WSWriteTimeout,
				PingInterval:   cfg.WSPingInterval,
				RequestTimeout: cfg.RequestTimeout,
			},
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infow("listening", "addr", srv.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Infow("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// openStore picks Postgres when a DSN is configured and memory otherwise.
func openStore(cfg config.Config, logger *zap.SugaredLogger) (storage.Store, func() error, error) {
	if cfg.DatabaseDSN == "" {
		mem := storage.NewMemoryStore()
		if cfg.SeedFile == "" {
			logger.Warnw("DATABASE_DSN and SEED_FILE not set, in-memory store starts empty and pairing will fail until it holds a full league")
			return mem, func() error { return nil }, nil
		}
		f, err := os.Open(cfg.SeedFile)
		if err != nil {
			return nil, nil, fmt.Errorf("open seed: %w", err)
		}
		defer f.Close()
		seed, err := mem.LoadSeed(f)
		if err != nil {
			return nil, nil, err
		}
		logger.Infow("in-memory store seeded", "file", cfg.SeedFile, "leagues", len(seed.Leagues), "players", len(seed.Players))
		return mem, func() error { return nil }, nil
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}

	store := pg.NewStore(logger, db)
	if cfg.IsLocal() {
		if err := store.AutoMigrate(); err != nil {
			return nil, nil, multierr.Append(err, sqlDB.Close())
		}
	}
	return store, sqlDB.Close, nil
}
