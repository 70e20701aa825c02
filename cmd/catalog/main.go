package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"MiTienda/internal/catalog"
	"MiTienda/internal/config"
	"MiTienda/pkg/kit"
)

func main() {
	service := "catalog"

	cfg, err := config.LoadCatalog()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := kit.NewLogger(service, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	store, db, err := openStore(cfg)
	if err != nil {
		logger.Fatal("init store failed", zap.Error(err))
	}

	s := &catalog.Server{Store: store, Log: logger}
	h := catalog.NewHandler(s, catalog.HTTPDeps{
		Log:            logger,
		Service:        service,
		Registry:       prometheus.NewRegistry(),
		MetricsEnabled: true,
		MetricsToken:   cfg.MetricsToken,
	})

	closeDB := func() {
		if db != nil {
			_ = db.Close()
		}
	}
	if err := kit.RunHTTPServer(":"+cfg.Port, h, logger, closeDB); err != nil {
		logger.Fatal("http server stopped", zap.Error(err))
	}
}

func openStore(cfg config.Catalog) (catalog.Store, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		return catalog.NewMemStore(), nil, nil
	}

	db, err := catalog.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := catalog.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, db, nil
}
