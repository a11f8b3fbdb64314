// Command demoledger runs the LoyaltyX demo portfolio ledger. It keeps a
// local simulated DeFi portfolio, reconciles it with the remote demo
// authority, serves a web dashboard and drives an interactive terminal
// console.
//
// Usage:
//
//	demoledger --config config.yaml
//	demoledger --authority https://api.example.com (uses CLI arguments)
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/loyaltyx/demoledger/config"
	"github.com/loyaltyx/demoledger/dashboard"
	"github.com/loyaltyx/demoledger/internal/clients"
	"github.com/loyaltyx/demoledger/internal/services/ledger"
	"github.com/loyaltyx/demoledger/internal/services/reconciler"
	"github.com/loyaltyx/demoledger/internal/setup"
	"github.com/loyaltyx/demoledger/internal/storage/ledgerstate"
	"github.com/loyaltyx/demoledger/internal/storage/oplog"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	store, err := ledgerstate.NewStore(cfg.StateDir)
	if err != nil {
		logger.Fatal("failed to open state store", zap.Error(err))
	}

	journal, err := oplog.NewJournal(cfg.JournalDir, logger)
	if err != nil {
		logger.Fatal("failed to open operation journal", zap.Error(err))
	}
	defer journal.Close()

	svc := ledger.NewService(store, journal, logger)

	authority := clients.NewAuthorityClient(cfg.AuthorityURL, cfg.HTTPTimeout)
	demo := reconciler.New(authority, svc, store, journal, logger)
	if err := demo.Restore(); err != nil {
		logger.Warn("failed to restore demo session", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	server := dashboard.NewServer(cfg.ListenAddr, svc, demo, journal)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(cfg.TLSDomains) > 0 {
			return server.StartWithAutoTLS(ctx, cfg.TLSDomains, cfg.CertCacheDir)
		}
		return server.Start(ctx)
	})
	g.Go(func() error {
		demo.RunRefreshLoop(ctx, cfg.RefreshInterval)
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return setup.RunTUI(ctx, svc, demo)
	})

	logger.Info("demoledger started",
		zap.String("authority", cfg.AuthorityURL),
		zap.String("listen", cfg.ListenAddr))

	if err := g.Wait(); err != nil {
		logger.Error(err.Error())
	}
}
