package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/zulandar/rapidaid/internal/config"
	"github.com/zulandar/rapidaid/internal/db"
	"github.com/zulandar/rapidaid/internal/store"
)

const defaultConfigPath = "rapidaid.yaml"

func addConfigFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", defaultConfigPath, "path to RapidAid config file")
}

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}

	return cfg, gormDB, nil
}

func storeTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Database.TimeoutSec) * time.Second
}

func newStore(cfg *config.Config, gormDB *gorm.DB) *store.Gorm {
	return store.New(gormDB, storeTimeout(cfg))
}
