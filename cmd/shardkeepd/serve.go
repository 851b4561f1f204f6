package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shardkeep/shardkeep/pkg/database"
	"github.com/shardkeep/shardkeep/pkg/log"
	"github.com/shardkeep/shardkeep/pkg/metrics"
	"github.com/shardkeep/shardkeep/pkg/scheduler"
	"github.com/shardkeep/shardkeep/pkg/taskqueue"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open a database directory and serve metrics/health endpoints",
	Long: `serve opens the configured storage backend as a database,
rebuilding the database Merkle tree from the collection directories if
db.dat is unreadable, then blocks serving Prometheus
metrics and health/readiness endpoints until interrupted.

It does not expose a network API for records itself (spec section 6
non-goals) — use the insert/get/update/delete/list subcommands against
the same storage root from another process or a cron job.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg.InitLogging()
		metrics.SetVersion(Version)

		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			cfg.Metrics.Addr = addr
		}

		logger := log.WithComponent("serve")
		ctx := context.Background()

		store, err := cfg.BuildStorage(ctx)
		if err != nil {
			metrics.RegisterComponent("storage", false, err.Error())
			return fmt.Errorf("build storage: %w", err)
		}
		metrics.RegisterComponent("storage", true, "")

		db, err := database.Open(ctx, store, cfg.CollectionConfig())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close(ctx)

		queue := taskqueue.New(cfg.TaskQueueConfig())
		defer queue.Close(ctx)
		metrics.RegisterComponent("taskqueue", true, "")

		collector := metrics.NewCollector(db)
		collector.Start()
		defer collector.Stop()

		compactInterval, _ := cmd.Flags().GetDuration("compact-interval")
		compactor := scheduler.NewCompactor(db, compactInterval)
		compactor.Start()
		defer compactor.Stop()

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", metrics.HealthHandler())
		mux.HandleFunc("/ready", metrics.ReadyHandler())
		mux.HandleFunc("/live", metrics.LivenessHandler())

		server := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics server listening")
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()

		root, err := db.RootHash(ctx)
		if err != nil {
			return fmt.Errorf("compute database root hash: %w", err)
		}
		logger.Info().
			Str("root_path", cfg.RootPath).
			Str("backend", cfg.Storage.Backend).
			Strs("collections", db.Collections()).
			Str("root_hash", fmt.Sprintf("%x", root)).
			Msg("database ready")

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", "", "Metrics HTTP listen address (overrides config)")
	serveCmd.Flags().Duration("compact-interval", scheduler.DefaultInterval, "Background compaction pass interval")
}
