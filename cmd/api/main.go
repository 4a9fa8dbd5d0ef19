// Command api serves the Hedgehog Learn tracking and progress endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"hedgehog-learn/internal/api"
	"hedgehog-learn/internal/auth"
	"hedgehog-learn/internal/completion"
	"hedgehog-learn/internal/config"
	"hedgehog-learn/internal/content"
	"hedgehog-learn/internal/hubspot"
	"hedgehog-learn/internal/store"
	"hedgehog-learn/internal/tracking"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()

	addr := flag.String("addr", cfg.APIAddr, "listen address")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	zc := zap.NewProductionConfig()
	if *verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	log, err := zc.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *addr, log); err != nil {
		log.Error("api stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, addr string, log *zap.Logger) error {
	meta := completion.NewMetadata(nil, nil)
	if cat, err := content.Load(cfg.ContentDir, log); err != nil {
		log.Warn("content not loaded, completion metadata is empty", zap.String("dir", cfg.ContentDir), zap.Error(err))
	} else {
		meta = completion.FromCatalog(cat, log)
	}

	hub := hubspot.New(cfg.HubSpotBaseURL, cfg.HubSpotToken, log)
	svc := tracking.NewService(hub, meta, cfg.EnableCRMProgress && cfg.HubSpotToken != "", cfg.ProgressProperty, log)
	svc.Quiz = tracking.NewGrader(hub, cfg.QuizPassingScore, log)
	svc.Quiz.TableID = cfg.ModulesTableID

	db, err := store.Open(cfg.ProgressDBDSN)
	if err != nil {
		return fmt.Errorf("open progress store: %w", err)
	}
	defer db.Close()

	deps := api.Deps{
		Tracking: svc,
		Tokens:   auth.NewTokens(cfg.JWTSecret),
		Contacts: hub,
		Store:    db,
		Metadata: meta,
		Origins:  cfg.AllowedOrigins,
		Log:      log,
	}
	if u := cfg.JWKSURL(); u != "" {
		deps.Users = auth.NewCognito(u, cfg.CognitoIssuer, cfg.CognitoClientID, log)
	} else {
		log.Warn("COGNITO_USER_POOL_ID not set, protected routes are disabled")
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.New(deps).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api listening", zap.String("addr", addr), zap.Bool("crm_progress", svc.Enabled))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
