package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shizukutanaka/resalloc/internal/api"
	"github.com/shizukutanaka/resalloc/internal/automation"
	"github.com/shizukutanaka/resalloc/internal/config"
	"github.com/shizukutanaka/resalloc/internal/logging"
	"github.com/shizukutanaka/resalloc/internal/monitoring"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the control loop and API server",
	Long: `Run the control loop with the API server and metrics exporter.

Examples:
  # Defaults, loop disabled until POST /api/v1/system/start
  resalloc run

  # Start the loop immediately and reload thresholds on file change
  resalloc run --config resalloc.yaml --start --watch`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("start", false, "Enable the control loop at startup")
	runCmd.Flags().Bool("watch", false, "Reload the config file when it changes")
}

func runRun(cmd *cobra.Command, args []string) error {
	startLoop, _ := cmd.Flags().GetBool("start")
	watch, _ := cmd.Flags().GetBool("watch")

	started := time.Now()
	manager, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg := manager.Get()
	logger.Info("Starting resalloc",
		zap.String("version", Version),
		zap.String("config", cfgFile),
		zap.String("sampler", cfg.Sampler.Source),
	)

	controller, err := automation.NewController(logging.WithComponent(logger, "automation"), cfg.Automation,
		automation.WithSampler(buildSampler(logger, cfg)))
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}
	defer controller.Close()

	var opts []api.Option
	if cfg.Monitoring.Enabled {
		exporter, err := monitoring.NewMetricsExporter(logger.Named("metrics"), cfg.Monitoring, controller)
		if err != nil {
			return fmt.Errorf("failed to create metrics exporter: %w", err)
		}
		defer exporter.Close()
		opts = append(opts, api.WithMetricsHandler(exporter.Handler()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := api.NewServer(cfg.API, logging.WithComponent(logger, "api"), controller, opts...)
	switch {
	case errors.Is(err, api.ErrDisabled):
		logger.Info("API server disabled")
	case err != nil:
		return fmt.Errorf("failed to create API server: %w", err)
	default:
		if err := server.Start(ctx); err != nil {
			return err
		}
	}

	manager.OnChange(func(next *config.Config) {
		if err := controller.ApplyConfig(next.Automation); err != nil {
			logger.Error("Failed to apply reloaded configuration", zap.Error(err))
		}
	})
	if watch {
		if err := manager.StartWatcher(); err != nil {
			return fmt.Errorf("failed to start config watcher: %w", err)
		}
		defer manager.StopWatcher()
	}

	if startLoop {
		controller.Start()
	}

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	controller.Stop()
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shutdown API server gracefully", zap.Error(err))
			return err
		}
	}

	logger.Info("resalloc stopped", zap.Duration("uptime", time.Since(started)))
	return nil
}

func buildSampler(logger *zap.Logger, cfg *config.Config) automation.Sampler {
	if cfg.Sampler.Source == config.SamplerHost {
		return automation.NewHostSampler(logger.Named("sampler"), cfg.Sampler.Host, nil)
	}
	return automation.NewSimulatedSampler(nil)
}
