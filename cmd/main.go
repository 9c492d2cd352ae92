// Command cryptowallet runs the wallet socket server.
//
// Usage:
//
//	cryptowallet --config config.yaml
//	cryptowallet --port 6666 --ops :9090
//
// The CoinAPI key is read from COINAPI_KEY (a .env file in the working directory is loaded
// first) unless feed_api_key is set in the YAML config.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/vadiminshakov/cryptowallet/config"
	"github.com/vadiminshakov/cryptowallet/internal/clients"
	"github.com/vadiminshakov/cryptowallet/internal/command"
	"github.com/vadiminshakov/cryptowallet/internal/logger"
	"github.com/vadiminshakov/cryptowallet/internal/server"
	"github.com/vadiminshakov/cryptowallet/internal/services/pricecache"
	"github.com/vadiminshakov/cryptowallet/internal/services/users"
	"github.com/vadiminshakov/cryptowallet/internal/storage/journal"
	"github.com/vadiminshakov/cryptowallet/internal/storage/userstate"
	"github.com/vadiminshakov/cryptowallet/internal/web"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	l, closeLog, err := logger.New(logger.Options{Env: cfg.LogEnv, ErrorLog: cfg.ErrorLog})
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	if cfg.FeedAPIKey == "" {
		l.Warn("COINAPI_KEY is not set, price feed requests will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		l.Error("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, l *zap.Logger) error {
	table, err := userstate.NewStore(cfg.UsersFile)
	if err != nil {
		return err
	}

	ledgerJournal, err := journal.NewWALStore(cfg.JournalDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := ledgerJournal.Close(); err != nil {
			l.Error("failed to close journal", zap.Error(err))
		}
	}()

	store, err := users.NewStore(table,
		users.WithJournal(ledgerJournal),
		users.WithHashCost(cfg.HashCost),
		users.WithLogger(l.Named("users")))
	if err != nil {
		return err
	}

	feed := clients.NewCoinAPIClient(cfg.FeedBaseURL, cfg.FeedAPIKey, cfg.FeedTimeout)
	cache, err := pricecache.New(feed,
		pricecache.WithCapacity(cfg.CacheCapacity),
		pricecache.WithStaleAfter(cfg.StaleAfter),
		pricecache.WithLogger(l.Named("pricecache")))
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:         cfg.Addr(),
		WriteTimeout: cfg.WriteTimeout,
		MaxLineSize:  cfg.MaxLineSize,
	}, command.NewDispatcher(store, cache), store, l.Named("server"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	if cfg.OpsAddr != "" {
		ops := web.NewServer(cfg.OpsAddr, ledgerJournal, cache, store, srv, l.Named("ops"))
		g.Go(func() error {
			return ops.Start(gctx)
		})
	}

	return g.Wait()
}
