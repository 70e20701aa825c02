package main

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"MiTienda/internal/config"
	"MiTienda/internal/products"
	"MiTienda/internal/storefront"
	"MiTienda/pkg/kit"
)

func main() {
	service := "storefront"

	cfg, err := config.LoadStorefront()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := kit.NewLogger(service, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	client := products.NewCatalogClient(cfg.CatalogURL)
	svc := products.NewService(client, products.ServiceConfig{
		TTL:                  cfg.CacheTTL,
		StaleWhileRevalidate: cfg.StaleWhileRevalidate,
		Log:                  logger.Named("cache"),
		Metrics:              products.NewMetrics(reg),
	})

	s := &storefront.Server{
		Store:   products.NewStore(svc, products.StoreOptions{Log: logger.Named("store")}),
		Catalog: client,
		Log:     logger,
	}

	h := storefront.NewHandler(s, storefront.HTTPDeps{
		Log:                 logger,
		Service:             service,
		Registry:            reg,
		MetricsEnabled:      true,
		MetricsToken:        cfg.MetricsToken,
		MutationLimitPerMin: cfg.MutationLimitPerMin,
	})

	logger.Info("catalog cache configured",
		zap.String("catalog_url", cfg.CatalogURL),
		zap.Duration("ttl", cfg.CacheTTL),
		zap.Bool("stale_while_revalidate", cfg.StaleWhileRevalidate),
	)

	if err := kit.RunHTTPServer(":"+cfg.Port, h, logger, svc.Wait); err != nil {
		logger.Fatal("http server stopped", zap.Error(err))
	}
}
