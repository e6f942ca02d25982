// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package main is the entry point for the quillpress content core. It loads
// configuration, connects to PostgreSQL and Valkey, applies migrations,
// builds the content core, runs the scheduled-publish sweeper and serves the
// health endpoint until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"quillpress/internal/app"
	"quillpress/internal/cache"
	"quillpress/internal/config"
	"quillpress/internal/database"
	"quillpress/internal/identity"
	"quillpress/internal/logging"
	"quillpress/internal/router"
	"quillpress/internal/session"
	"quillpress/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("quillpress stopped with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Text output in development, JSON elsewhere.
	logger, logCloser, err := logging.New(logging.Options{
		Level: cfg.LogLevel,
		JSON:  !cfg.IsDev(),
		File:  cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	slog.Info("configuration loaded", "env", cfg.Env, "addr", cfg.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := database.Migrate(ctx, db); err != nil {
		return err
	}

	// Seed the default admin and category (no-op once users exist).
	if cfg.IsDev() {
		if err := database.Seed(ctx, db, cfg.AdminPassword); err != nil {
			return err
		}
	}

	valkeyClient, err := cache.ConnectValkey(ctx, cache.ValkeyOptions{
		Addr:     cfg.ValkeyAddr(),
		Password: cfg.ValkeyPassword,
		DB:       cfg.ValkeyDB,
	})
	if err != nil {
		return err
	}
	defer valkeyClient.Close()

	core := app.New(app.Deps{
		Gateway:   store.New(db),
		Signer:    identity.NewJWTSigner([]byte(cfg.JWTSecret)),
		Hasher:    identity.BcryptHasher{Cost: cfg.BcryptCost},
		Revoker:   session.NewStore(valkeyClient),
		Throttle:  identity.NewThrottle(cfg.LoginRate, cfg.LoginBurst),
		TreeCache: cache.NewTreeCache(valkeyClient, cache.DefaultTreeTTL),
		TokenTTL:  cfg.TokenTTL,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: router.New(logger, map[string]router.Pinger{
			"postgres": router.PingFunc(db.PingContext),
			"valkey": router.PingFunc(func(ctx context.Context) error {
				return valkeyClient.Ping(ctx).Err()
			}),
		}),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		core.Sweeper.Run(gctx, cfg.SweepInterval)
		return nil
	})

	g.Go(func() error {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown: on signal or failure, give active requests up to
	// 30 seconds to complete.
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped gracefully")
	return nil
}
