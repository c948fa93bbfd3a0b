// Package app wires storage, caches and services from a Config. The HTTP
// server and mlmctl share it.
package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/HSouheill/barrim_mlm/config"
	"github.com/HSouheill/barrim_mlm/repositories"
	"github.com/HSouheill/barrim_mlm/routes"
	"github.com/HSouheill/barrim_mlm/services"
)

// Stores holds the storage backends selected by STORAGE_DRIVER.
type Stores struct {
	Tree      repositories.TreeStore
	Ledger    repositories.CommissionLedger
	Directory repositories.ParticipantDirectory
	Checks    map[string]routes.HealthCheck

	closers []func(ctx context.Context) error
}

// OpenStores connects to the configured backend and prepares its schema.
func OpenStores(cfg config.Config, logger logrus.FieldLogger) (*Stores, error) {
	s := &Stores{Checks: make(map[string]routes.HealthCheck)}

	switch cfg.StorageDriver {
	case config.DriverMongo:
		client, err := config.ConnectDB(cfg, logger)
		if err != nil {
			return nil, err
		}
		s.Tree = repositories.NewMongoTreeStore(client, cfg.DBName)
		s.Ledger = repositories.NewMongoCommissionLedger(client, cfg.DBName)
		s.Directory = repositories.NewParticipantRepository(client, cfg.DBName)
		s.Checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		s.closers = append(s.closers, client.Disconnect)

	case config.DriverPostgres:
		db, err := config.ConnectPostgres(cfg, logger)
		if err != nil {
			return nil, err
		}
		s.Tree = repositories.NewPostgresTreeStore(db)
		s.Ledger = repositories.NewPostgresCommissionLedger(db)
		s.Directory = repositories.NewPostgresParticipantDirectory(db)
		s.Checks["postgres"] = db.PingContext
		s.closers = append(s.closers, func(context.Context) error { return db.Close() })

	case config.DriverMemory:
		directory := repositories.NewMemoryParticipantDirectory()
		directory.EnableAutoRegister()
		s.Tree = repositories.NewMemoryTreeStore()
		s.Ledger = repositories.NewMemoryCommissionLedger()
		s.Directory = directory
		logger.Warn("using in-memory storage, data is lost on exit")

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
	return s, nil
}

// Close releases the backend connections.
func (s *Stores) Close(ctx context.Context) error {
	var firstErr error
	for _, closeFn := range s.closers {
		if err := closeFn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Services are the engines built on top of Stores.
type Services struct {
	Placement   *services.PlacementService
	Commissions *services.CommissionService
	Reporting   *services.ReportingService
	Referrals   *services.ReferralService
}

// NewServices builds the engines. A nil redisClient disables report caching.
func NewServices(cfg config.Config, stores *Stores, redisClient *redis.Client, logger logrus.FieldLogger) (*Services, error) {
	rates, err := services.ParseRateTable(cfg.CommissionRates)
	if err != nil {
		return nil, fmt.Errorf("COMMISSION_RATES: %w", err)
	}

	var cache services.ReportCache
	if redisClient != nil {
		cache = services.NewRedisReportCache(redisClient)
	}

	reporting := services.NewReportingService(stores.Tree, stores.Ledger, stores.Directory, cache,
		cfg.LeaderboardCacheTTL, cfg.DashboardCacheTTL, logger.WithField("component", "reporting"))

	placement := services.NewPlacementService(stores.Tree, stores.Directory, cfg.PlacementTxTimeout,
		logger.WithField("component", "placement"))
	placement.SetInvalidator(reporting)

	commissions := services.NewCommissionService(stores.Tree, stores.Ledger, rates, cfg.CommissionMaxDepth,
		cfg.DistributionTxTimeout, logger.WithField("component", "commission"))
	commissions.SetInvalidator(reporting)

	referrals := services.NewReferralService(stores.Directory, cfg.AppURL, logger.WithField("component", "referral"))

	return &Services{
		Placement:   placement,
		Commissions: commissions,
		Reporting:   reporting,
		Referrals:   referrals,
	}, nil
}
