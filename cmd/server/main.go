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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/engine/internal/config"
	"github.com/kiwari-pos/engine/internal/database"
	"github.com/kiwari-pos/engine/internal/logger"
	"github.com/kiwari-pos/engine/internal/mq"
	"github.com/kiwari-pos/engine/internal/notify"
	"github.com/kiwari-pos/engine/internal/router"
	"github.com/kiwari-pos/engine/internal/service"
	"github.com/kiwari-pos/engine/internal/txn"
	"github.com/kiwari-pos/engine/internal/ws"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	runner, err := txn.NewRunner(pool, cfg.Tx.Isolation, cfg.Tx.MaxRetries, log)
	if err != nil {
		return fmt.Errorf("transaction runner: %w", err)
	}

	hub := ws.NewHub(log.Named("ws"))
	publishers := []notify.Publisher{hub}
	if cfg.RabbitMQ.URL != "" {
		broker, err := mq.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, log.Named("mq"))
		if err != nil {
			return err
		}
		defer broker.Close()
		publishers = append(publishers, broker)
		log.Info("broker publisher enabled", zap.String("exchange", cfg.RabbitMQ.Exchange))
	}
	pub := notify.NewFanout(log, publishers...)

	newStore := func(db database.DBTX) service.Store {
		return database.New(db)
	}
	queries := database.New(pool)
	addons := service.NewAddonService(runner, newStore, pub, log.Named("addons"))
	orders := service.NewOrderService(runner, newStore, addons, pub, log.Named("orders"))

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: router.New(cfg, router.Deps{
			Orders:    orders,
			Addons:    addons,
			Inventory: orders,
			Audit:     queries,
			Staff:     queries,
			Hub:       hub,
			Logger:    log.Named("http"),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		log.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
