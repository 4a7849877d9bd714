// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package connectors

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rapidaai/voice-gateway/config"
	"github.com/rapidaai/voice-gateway/pkg/commons"
)

// DatabaseConnector hands out request-scoped gorm handles for the relational
// store holding call logs and agent definitions.
type DatabaseConnector interface {
	DB(ctx context.Context) *gorm.DB
	Ping(ctx context.Context) error
	Close() error
}

type databaseConnector struct {
	db     *gorm.DB
	logger commons.Logger
}

// NewDatabaseConnector opens the store selected by DATABASE__DRIVER. sqlite
// serves single-node deployments; postgres serves shared ones. AutoMigrate is
// left to the stores that own the entities.
func NewDatabaseConnector(cfg *config.AppConfig, logger commons.Logger) (DatabaseConnector, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseConfig.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseConfig.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DatabaseConfig.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseConfig.Driver)
	}

	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.DatabaseConfig.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access underlying sql.DB: %w", err)
	}
	if cfg.DatabaseConfig.MaxOpenConnections > 0 {
		sqlDB.SetMaxOpenConns(cfg.DatabaseConfig.MaxOpenConnections)
	}
	if cfg.DatabaseConfig.MaxIdleConnections > 0 {
		sqlDB.SetMaxIdleConns(cfg.DatabaseConfig.MaxIdleConnections)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	logger.Infof("database connected: driver=%s", cfg.DatabaseConfig.Driver)
	return &databaseConnector{db: db, logger: logger}, nil
}

func (c *databaseConnector) DB(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx)
}

func (c *databaseConnector) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *databaseConnector) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
