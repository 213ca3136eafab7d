package commands

import (
	"fmt"
	"os"

	"github.com/shizukutanaka/resalloc/internal/config"
	"github.com/shizukutanaka/resalloc/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Set at build time with -ldflags "-X .../commands.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "resalloc",
	Short: "Autonomous resource allocation control loop",
	Long: `resalloc samples resource utilization, keeps a load balancer pool sized to
demand and activates pending optimizations when the response time degrades.
The control loop is exposed over an HTTP API with a WebSocket event stream
and Prometheus metrics.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults and RESALLOC_* environment when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.SetVersionTemplate(`resalloc {{.Version}}
`)
}

// loadConfig builds the config manager using a bootstrap logger. The
// application logger is built from the loaded configuration afterwards.
func loadConfig() (*config.Manager, *zap.Logger, error) {
	bootstrap, err := zap.NewProduction()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	manager, err := config.NewManager(bootstrap, cfgFile)
	if err != nil {
		return nil, nil, err
	}

	logCfg := manager.Get().Logging
	if verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return manager, logger, nil
}
