package config

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/HSouheill/barrim_mlm/repositories"
)

// ConnectPostgres opens the Postgres pool and applies the MLM schema.
func ConnectPostgres(cfg Config, logger logrus.FieldLogger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("connected to Postgres")

	if err := repositories.ApplyPostgresSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
