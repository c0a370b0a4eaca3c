package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/staysure/service-reservation/internal/config"
	bookingDomain "github.com/staysure/service-reservation/internal/domain/booking"
	"github.com/staysure/service-reservation/internal/platform/database"
	"github.com/staysure/service-reservation/internal/platform/mongodb"
	"github.com/staysure/service-reservation/internal/repository"
)

// ledgerStore is a BookingRepository the readiness probe can ping.
type ledgerStore interface {
	bookingDomain.BookingRepository
	Ping(ctx context.Context) error
}

// openStore connects the configured storage driver and prepares its schema.
// The returned close func releases the connection.
func openStore(ctx context.Context, cfg *config.ServiceConfig, log *zap.Logger) (ledgerStore, func(), error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		return openPostgres(cfg, log)
	case config.StorageMongo:
		return openMongo(ctx, cfg, log)
	case config.StorageMemory:
		log.Warn("using in-memory booking ledger; data is lost on restart")
		return repository.NewMemoryBookingRepository(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func openPostgres(cfg *config.ServiceConfig, log *zap.Logger) (ledgerStore, func(), error) {
	dbConfig := database.PostgresConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.DBName,
		SSLMode:  cfg.DBConfig.SSLMode,
	}
	db, err := database.Connect(dbConfig, log)
	if err != nil {
		return nil, nil, err
	}

	repo := repository.NewGormBookingRepository(db)
	if cfg.AppEnv == "development" {
		if err := repo.AutoMigrate(); err != nil {
			return nil, nil, fmt.Errorf("failed to run auto-migration: %w", err)
		}
		log.Info("database migration completed (dev auto-migrate)")
	} else if err := database.RunMigrations(dbConfig.DatabaseURL(), "migrations", log); err != nil {
		return nil, nil, err
	}

	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return repo, closeFn, nil
}

func openMongo(ctx context.Context, cfg *config.ServiceConfig, log *zap.Logger) (ledgerStore, func(), error) {
	client, err := mongodb.Connect(ctx, cfg.MongoConfig.URI, cfg.MongoConfig.Database, log)
	if err != nil {
		return nil, nil, err
	}

	repo := repository.NewMongoBookingRepository(client.DB)
	if err := repo.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}

	closeFn := func() { _ = client.Disconnect(context.Background()) }
	return repo, closeFn, nil
}
