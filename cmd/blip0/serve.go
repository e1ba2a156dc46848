package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blip0/blip0/pkg/api"
	"github.com/blip0/blip0/pkg/cache"
	"github.com/blip0/blip0/pkg/config"
	"github.com/blip0/blip0/pkg/log"
	"github.com/blip0/blip0/pkg/pubsub"
	"github.com/blip0/blip0/pkg/quota"
	"github.com/blip0/blip0/pkg/service"
	"github.com/blip0/blip0/pkg/storage"
	"github.com/blip0/blip0/pkg/validator"
)

var serveCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the control-plane API server",
	Long: `Start the HTTP API server backed by PostgreSQL and Redis.

Configuration comes from BLIP0_* environment variables (a .env file in
the working directory is honored). The server drains in-flight requests
on SIGINT/SIGTERM before exiting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSON,
		})
		logger := log.WithComponent("serve")
		logger.Info().Str("version", Version).Msg("starting blip0 control plane")

		store, err := storage.NewPostgres(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer store.Close()

		redisClient, err := cache.New(cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()

		engine := quota.NewEngine(store)
		if planFile, _ := cmd.Flags().GetString("plan-file"); planFile != "" {
			if err := engine.LoadPlanFile(planFile); err != nil {
				return err
			}
			logger.Info().Str("path", planFile).Msg("loaded plan overrides")
		}

		publisher := pubsub.NewPublisher(redisClient)
		probe := validator.New(cfg.Validator)

		server := api.New(cfg.Server, api.Services{
			Tenants:     service.NewTenantService(store, engine),
			Monitors:    service.NewMonitorService(store, engine, redisClient, publisher),
			Networks:    service.NewNetworkService(store, engine, redisClient, probe, publisher),
			Triggers:    service.NewTriggerService(store, engine, redisClient, publisher),
			BlockStates: service.NewBlockStateService(store),
			Missed:      service.NewMissedBlockService(store),
			Matches:     service.NewMatchService(store),
			Executions:  service.NewExecutionService(store),
		})

		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil {
				errCh <- fmt.Errorf("api server error: %w", err)
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
		case err := <-errCh:
			logger.Error().Err(err).Msg("server failed")
			return err
		}

		if err := server.Stop(context.Background()); err != nil {
			return fmt.Errorf("failed to shut down cleanly: %w", err)
		}
		logger.Info().Msg("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("plan-file", "", "YAML file overriding built-in plan limits")
}
