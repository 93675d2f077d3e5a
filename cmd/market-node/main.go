package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bazaar-mp/project/internal/app/actionsvc"
	"github.com/bazaar-mp/project/internal/app/notify"
	"github.com/bazaar-mp/project/internal/app/receiver"
	"github.com/bazaar-mp/project/internal/app/rpcapi"
	"github.com/bazaar-mp/project/internal/app/store"
	"github.com/bazaar-mp/project/internal/messaging"
	"github.com/bazaar-mp/project/internal/platform/auth"
	"github.com/bazaar-mp/project/internal/platform/config"
	"github.com/bazaar-mp/project/internal/platform/dbpool"
	"github.com/bazaar-mp/project/internal/platform/logging"
	"github.com/bazaar-mp/project/internal/platform/metrics"
	"github.com/bazaar-mp/project/internal/platform/natsutil"
	"github.com/bazaar-mp/project/internal/platform/wallet"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("market node stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keystore, err := wallet.LoadKeystore(cfg.KeystorePath)
	if err != nil {
		return err
	}
	apiKey, err := auth.NewAPIKey(cfg.APIKeyHash)
	if err != nil {
		return err
	}
	if !apiKey.Enabled() {
		logger.Warn("API_KEY_HASH is empty, rpc endpoints are unauthenticated")
	}

	var (
		st   store.Store
		pool *pgxpool.Pool
	)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		st = store.NewMemory()
	default:
		pool, err = dbpool.NewWithRetry(runCtx, cfg.DatabaseURL, cfg.DB, 30*time.Second)
		if err != nil {
			return err
		}
		defer pool.Close()
		pg := store.NewPostgres(pool)
		if err := pg.EnsureSchema(runCtx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		st = pg
	}

	client, err := natsutil.ConnectJetStreamWithRetry(runCtx, cfg.NATSURL, 20*time.Second, logger.Named("nats"))
	if err != nil {
		return err
	}
	defer client.Close()

	hub := notify.NewHub()
	gateway := messaging.NewJetStreamGateway(client.JS, client.KV, cfg.FeePerKBDay, logger.Named("gateway"))
	service := actionsvc.New(actionsvc.Deps{
		Config:   cfg,
		Wallet:   keystore,
		Gateway:  gateway,
		Store:    st,
		Notifier: notify.Fanout{notify.NewPublisher(client.Conn, logger.Named("notify")), hub},
		Logger:   logger.Named("actions"),
	})

	addresses := cfg.ReceiveAddresses
	if len(addresses) == 0 {
		addresses = keystore.Addresses()
	}
	recv := receiver.NewHandler(service, logger.Named("receiver"))
	recv.RetryDelay = cfg.ReceiveRetryDelay
	recv.MaxDeliver = cfg.ReceiveMaxDeliver
	subs, err := recv.Subscribe(runCtx, client.JS, "market-node", addresses)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer func() {
		for _, sub := range subs {
			_ = sub.Drain()
		}
	}()
	logger.Info("receiving", zap.Strings("addresses", addresses))

	handler := rpcapi.NewHandler(service, gateway, st, apiKey, logger.Named("rpc"))
	handler.Metrics = metrics.Handler()
	handler.Events = hub
	handler.Ready = func(ctx context.Context) error {
		return checkReadiness(ctx, pool, client)
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// no WriteTimeout, /api/v1/events streams are long-lived
		IdleTimeout: 120 * time.Second,
		BaseContext: func(net.Listener) context.Context { return runCtx },
	}

	logger.Info("rpc listening", zap.String("addr", cfg.HTTPAddr))
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	return nil
}

func checkReadiness(ctx context.Context, pool *pgxpool.Pool, client *natsutil.Client) error {
	if err := client.Ready(); err != nil {
		return err
	}
	if pool == nil {
		return nil
	}
	checkCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()
	if err := pool.Ping(checkCtx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}
