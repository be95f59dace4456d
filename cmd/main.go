package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"Marketplace/internal/config"
	"Marketplace/internal/database"
	"Marketplace/internal/handlers"
	"Marketplace/internal/ledger"
	"Marketplace/internal/middleware"
	"Marketplace/internal/routes"
	"Marketplace/internal/services"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	zl, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	if err := cfg.Validate(); err != nil {
		zl.Fatal("Invalid configuration", zap.Error(err))
	}
	zl.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("paystack_base_url", cfg.PaystackBaseURL),
		zap.String("paystack_secret_key", config.Mask(cfg.PaystackSecretKey)),
		zap.String("jwt_secret", config.Mask(cfg.JWTSecret)),
		zap.Duration("paystack_timeout", cfg.PaystackTimeout),
	)

	// Connect to database
	db, err := database.Connect(cfg, zl)
	if err != nil {
		zl.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	// Run migrations
	if err := database.Migrate(db); err != nil {
		zl.Fatal("Failed to migrate database", zap.Error(err))
	}
	zl.Info("Database connected and migrated successfully")

	// Initialize services
	store := ledger.NewStore(db)
	paystack := services.NewPaystackService(cfg.PaystackSecretKey, cfg.PaystackBaseURL, cfg.PaystackCurrency, cfg.PaystackTimeout)
	email := services.NewEmailService(cfg.ResendAPIKey, cfg.FromEmail, zl)
	notifier := services.NewNotificationService(db, email, zl)

	distributor := services.NewDistributor(store, paystack, notifier, zl.Named("distributor"))
	engine := services.NewSettlementEngine(store, distributor, zl.Named("settlement"))
	reconciler := services.NewReconciler(store, notifier, zl.Named("reconcile"))
	withdrawals := services.NewWithdrawalService(store, paystack, notifier, zl.Named("withdrawal"))
	payments := services.NewPaymentService(store, paystack, cfg.CallbackURL, zl.Named("payment"))
	stats := services.NewStatsService(store)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Marketplace API v1.0",
		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.PaystackTimeout * 4,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PATCH, OPTIONS",
	}))
	app.Use(middleware.Metrics())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to the Marketplace API",
			"status":  "running",
			"version": "1.0",
		})
	})
	app.Get("/metrics", middleware.PrometheusHandler())

	// Setup application routes
	routes.SetupRoutes(app, routes.Handlers{
		Webhook:      handlers.NewWebhookHandler(cfg.PaystackSecretKey, engine, reconciler, zl.Named("webhook")),
		Payment:      handlers.NewPaymentHandler(payments),
		Withdrawal:   handlers.NewWithdrawalHandler(withdrawals),
		Stats:        handlers.NewStatsHandler(stats),
		Notification: handlers.NewNotificationHandler(notifier),
		Admin:        handlers.NewAdminHandler(store, withdrawals, distributor, zl.Named("admin")),
		JWTSecret:    cfg.JWTSecret,
		Users:        store,
	})

	go func() {
		zl.Info("Marketplace server starting", zap.String("port", cfg.Port))
		if err := app.Listen(":" + cfg.Port); err != nil {
			zl.Fatal("Server stopped", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("Shutting down server...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		zl.Error("Graceful shutdown failed", zap.Error(err))
	}
	notifier.Wait()
	zl.Info("Server exited")
}
