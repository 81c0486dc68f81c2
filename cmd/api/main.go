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

	"github.com/oklog/ulid/v2"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/elegance-boutique/api/internal/domain"
	"github.com/elegance-boutique/api/internal/handlers"
	"github.com/elegance-boutique/api/internal/payments"
	"github.com/elegance-boutique/api/internal/platform/config"
	"github.com/elegance-boutique/api/internal/platform/observability"
	"github.com/elegance-boutique/api/internal/platform/session"
	"github.com/elegance-boutique/api/internal/repositories/mysql"
	"github.com/elegance-boutique/api/internal/services"
)

func main() {
	app := &cli.App{
		Name:  "boutique-api",
		Usage: "storefront API for the boutique",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API server",
				Action: runServe,
			},
			{
				Name:   "migrate",
				Usage:  "apply pending database migrations",
				Action: runMigrate,
			},
			{
				Name:   "seed",
				Usage:  "insert a demonstration catalogue",
				Action: runSeed,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "boutique-api: %v\n", err)
		os.Exit(1)
	}
}

func runServe(c *cli.Context) error {
	ctx := c.Context

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	baseLogger, err := observability.NewLogger(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	db, err := mysql.Open(ctx, mysql.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	registry, err := mysql.NewRegistry(db)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("initialise repositories: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	sessionManager, err := session.NewManager(session.Config{
		CookieName:   cfg.Session.CookieName,
		HashKey:      []byte(cfg.Session.HashKey),
		BlockKey:     sessionBlockKey(cfg.Session.BlockKey),
		CookieSecure: cfg.Session.CookieSecure,
		Lifetime:     cfg.Session.Lifetime,
	})
	if err != nil {
		return fmt.Errorf("initialise session manager: %w", err)
	}

	gateway, err := payments.NewManager(
		map[string]payments.Provider{
			payments.ProviderCard: payments.NewCardProvider(),
		},
		payments.WithDefaultProvider(cfg.Payments.DefaultProvider),
	)
	if err != nil {
		return fmt.Errorf("initialise payment gateway: %w", err)
	}

	svcLogger := serviceEventLogger(logger)

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Repository: registry.Products(),
		Clock:      time.Now,
		Logger:     svcLogger,
	})
	if err != nil {
		return fmt.Errorf("initialise catalog service: %w", err)
	}

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Repository: registry.Carts(),
		Catalog:    registry.Products(),
		Clock:      time.Now,
		Logger:     svcLogger,
	})
	if err != nil {
		return fmt.Errorf("initialise cart service: %w", err)
	}

	deliveryService, err := services.NewDeliveryService(services.DeliveryServiceDeps{
		Repository: registry.Deliveries(),
		Orders:     registry.Orders(),
		Clock:      time.Now,
		Carrier:    cfg.Delivery.Carrier,
		Logger:     svcLogger,
	})
	if err != nil {
		return fmt.Errorf("initialise delivery service: %w", err)
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     registry.Orders(),
		Products:   registry.Products(),
		Payments:   registry.Payments(),
		Invoices:   registry.Invoices(),
		Deliveries: deliveryService,
		Gateway:    gateway,
		UnitOfWork: registry,
		Clock:      time.Now,
		Currency:   cfg.Payments.Currency,
		Logger:     svcLogger,
	})
	if err != nil {
		return fmt.Errorf("initialise order service: %w", err)
	}

	systemService, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: registry.Health(),
		Clock:            time.Now,
	})
	if err != nil {
		return fmt.Errorf("initialise system service: %w", err)
	}

	catalogHandlers := handlers.NewCatalogHandlers(catalogService)
	cartHandlers := handlers.NewCartHandlers(cartService)
	checkoutHandlers := handlers.NewCheckoutHandlers(orderService, cartService)
	orderHandlers := handlers.NewOrderHandlers(orderService)
	trackingHandlers := handlers.NewTrackingHandlers(deliveryService,
		handlers.WithTrackingRateLimit(60, time.Minute))
	authHandlers := handlers.NewAuthHandlers()
	adminHandlers := handlers.NewAdminHandlers(catalogService, orderService)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
			session.Middleware(sessionManager),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(systemService)),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithTrackingRoutes(trackingHandlers.Routes),
		handlers.WithAuthRoutes(authHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)

	server := &http.Server{
		Addr:         net.JoinHostPort("", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	stopCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-stopCtx.Done():
	}

	logger.Info("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return <-errCh
}

func runMigrate(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	baseLogger, err := observability.NewLogger(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	db, err := mysql.Open(c.Context, mysql.Config{
		DSN:            cfg.Database.DSN,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	migrationLogger := observability.NewPrintfAdapter(baseLogger.Named("migrate"), false)
	if err := mysql.Migrate(db, migrationLogger); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	baseLogger.Info("migrations applied")
	return nil
}

func runSeed(c *cli.Context) error {
	ctx := c.Context

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	baseLogger, err := observability.NewLogger(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	db, err := mysql.Open(ctx, mysql.Config{
		DSN:            cfg.Database.DSN,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	registry, err := mysql.NewRegistry(db)
	if err != nil {
		return fmt.Errorf("initialise repositories: %w", err)
	}

	now := time.Now().UTC()
	for _, product := range seedProducts(now) {
		if err := registry.Products().Insert(ctx, product); err != nil {
			baseLogger.Warn("seed insert skipped", zap.String("product", product.Name), zap.Error(err))
			continue
		}
		baseLogger.Info("seeded product", zap.String("id", product.ID), zap.String("name", product.Name))
	}
	return nil
}

func seedProducts(now time.Time) []domain.Product {
	mk := func(name, description, category string, priceCents int64, stock int) domain.Product {
		return domain.Product{
			ID:          "prd_" + ulid.Make().String(),
			Name:        name,
			Description: description,
			Category:    category,
			PriceCents:  priceCents,
			StockQty:    stock,
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	return []domain.Product{
		mk("Silk scarf", "Hand-rolled silk twill scarf", "accessories", 8900, 40),
		mk("Leather tote", "Full-grain leather tote bag", "bags", 24900, 15),
		mk("Cashmere sweater", "Two-ply cashmere crew neck", "knitwear", 19900, 25),
		mk("Wool coat", "Double-faced wool winter coat", "outerwear", 45900, 8),
		mk("Evening dress", "Pleated midi dress", "dresses", 31900, 12),
	}
}

// serviceEventLogger adapts the zap logger to the event callback the services accept.
func serviceEventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	sugar := logger.Sugar()
	return func(_ context.Context, event string, fields map[string]any) {
		args := make([]any, 0, len(fields)*2)
		for key, value := range fields {
			args = append(args, key, value)
		}
		sugar.Infow(event, args...)
	}
}

func sessionBlockKey(key string) []byte {
	if key == "" {
		return nil
	}
	return []byte(key)
}
