package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/adapter/stripe"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

func main() {
	app := &cli.App{
		Name:  "storefront",
		Usage: "product catalog cache and cart validation in front of the commerce provider",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP and gRPC servers",
				Action: serve,
			},
			{
				Name:   "catalog",
				Usage:  "fetch the catalog once and print it as JSON",
				Action: printCatalog,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("storefront failed")
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return config.Config{}, err
	}
	log.SetLevel(level)
	log.SetFormatter(&log.JSONFormatter{})

	return cfg, cfg.Validate()
}

func newProvider(cfg config.Config) *stripe.Client {
	return stripe.NewClient(stripe.Config{
		BaseURL: cfg.StripeBaseURL,
		APIKey:  cfg.StripeKey,
		Timeout: cfg.RemoteTimeout,
		Logger:  log.WithField("component", "stripe"),

		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
	})
}

func newCatalog(cfg config.Config, provider port.CommerceProvider) *service.CatalogService {
	return service.NewCatalogService(provider, service.CatalogConfig{
		TTL:         cfg.CatalogTTL,
		PageSize:    cfg.CatalogPageSize,
		PriceFanOut: cfg.PriceFanOut,
		Logger:      log.WithField("component", "catalog"),
	})
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	provider := newProvider(cfg)

	// Redis is optional; without it checkout requests are not deduplicated.
	var (
		rdb           *redis.Client
		checkoutCache port.CheckoutCacheRepository
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 20,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		log.WithField("addr", cfg.RedisAddr).Info("connected to redis")
		checkoutCache = storage.NewRedisAdapter(rdb)
	}

	catalog := newCatalog(cfg, provider)
	validator := service.NewCartValidator(provider, log.WithField("component", "validator"))
	checkout := service.NewCheckoutService(validator, provider, checkoutCache, service.CheckoutConfig{
		SiteURL:             cfg.SiteURL,
		AllowedCountries:    cfg.AllowedCountries,
		AutomaticTax:        cfg.AutomaticTax,
		AllowPromotionCodes: cfg.AllowPromotionCodes,
	}, log.WithField("component", "checkout"))

	// Initialize gRPC server
	grpcServer := handler.NewGRPCServer(handler.NewGRPCHandler(catalog, validator, checkout, log.WithField("component", "grpc")))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	go func() {
		log.WithField("addr", cfg.GRPCAddr).Info("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.WithError(err).Error("gRPC server error")
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(catalog, validator, checkout, log.WithField("component", "http"), cfg.MaxBodyBytes)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.NewRouter(httpHandler, cfg.RequestTimeout),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server forced to shutdown")
	}
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	if rdb != nil {
		rdb.Close()
	}
	log.Info("connections closed")
	return nil
}

func printCatalog(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, cfg.RequestTimeout)
	defer cancel()

	products, err := newCatalog(cfg, newProvider(cfg)).GetCatalog(ctx)
	if err != nil {
		return err
	}

	out := make([]map[string]any, len(products))
	for i, p := range products {
		out[i] = map[string]any{
			"id":       p.ID,
			"name":     p.Name,
			"price_id": p.PriceID,
			"price":    p.UnitPrice,
			"metadata": p.PublicMetadata(),
		}
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
