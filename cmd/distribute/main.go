// Command distribute retries commission payouts for every transaction that
// still has pending or failed commissions. Run it from cron.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"Marketplace/internal/config"
	"Marketplace/internal/database"
	"Marketplace/internal/ledger"
	"Marketplace/internal/services"
)

func main() {
	transactionID := flag.String("transaction", "", "only distribute this transaction id")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall deadline for the run")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.PaystackSecretKey == "" {
		logger.Fatal("PAYSTACK_SECRET_KEY is required")
	}

	db, err := database.Connect(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	store := ledger.NewStore(db)
	paystack := services.NewPaystackService(cfg.PaystackSecretKey, cfg.PaystackBaseURL, cfg.PaystackCurrency, cfg.PaystackTimeout)
	notifier := services.NewNotificationService(db, services.NewEmailService(cfg.ResendAPIKey, cfg.FromEmail, logger), logger)
	distributor := services.NewDistributor(store, paystack, notifier, logger.Named("distributor"))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer notifier.Wait()

	if *transactionID != "" {
		report, err := distributor.Distribute(ctx, *transactionID)
		if err != nil {
			logger.Fatal("Distribution failed", zap.String("transaction_id", *transactionID), zap.Error(err))
		}
		logger.Info("Distribution finished",
			zap.Int("paid", report.Paid),
			zap.Int("submitted", report.Submitted),
			zap.Int("skipped", len(report.Skipped)),
		)
		return
	}

	sweep, err := distributor.Sweep(ctx)
	if err != nil {
		logger.Fatal("Sweep failed", zap.Error(err))
	}
	paid, submitted, skipped := 0, 0, 0
	for _, r := range sweep.Reports {
		paid += r.Paid
		submitted += r.Submitted
		skipped += len(r.Skipped)
	}
	logger.Info("Sweep finished",
		zap.Int("transactions", sweep.Transactions),
		zap.Int("paid", paid),
		zap.Int("submitted", submitted),
		zap.Int("skipped", skipped),
		zap.Strings("failed_transactions", sweep.Failed),
	)
}
