package main

import (
	"context"

	"github.com/shardkeep/shardkeep/pkg/database"
	"github.com/spf13/cobra"
)

// openDatabase builds storage and opens a Database for a single
// one-shot CLI command. Unlike serve, it does not start the metrics
// HTTP server or the task queue — those are serve's concern.
func openDatabase(ctx context.Context, cmd *cobra.Command) (*database.Database, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	cfg.InitLogging()

	store, err := cfg.BuildStorage(ctx)
	if err != nil {
		return nil, err
	}
	return database.Open(ctx, store, cfg.CollectionConfig())
}
