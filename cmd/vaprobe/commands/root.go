package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/VAProbe/internal/config"
	"github.com/bryanchriswhite/VAProbe/internal/logger"
	"github.com/bryanchriswhite/VAProbe/internal/probe"
)

var (
	cfgFile   string
	configMgr *config.Manager

	// env builds displays for every command that needs one.
	env = probe.DefaultEnv()

	rootCmd = &cobra.Command{
		Use:   "vaprobe",
		Short: "VAProbe - inspect and exercise VA-API hardware video acceleration",
		Long: `VAProbe loads libva at runtime and reports what the GPU driver can do.

Features:
  • List profiles, entrypoints and their attributes
  • Discover DRM render nodes and their kernel drivers
  • Diagnose why hardware acceleration is (or is not) available
  • Round-trip a test card through a GPU surface
  • REST API, Prometheus metrics and a live MJPEG preview`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadConfig,
	}
)

// flagKeys maps persistent flags to the config keys they override.
var flagKeys = map[string]string{
	"log-level": "log_level",
	"device":    "device.path",
	"source":    "device.source",
	"driver":    "device.driver_name",
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/vaprobe/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("device", "", "DRM render node to open (default is the first one found)")
	rootCmd.PersistentFlags().String("source", "", "display source (auto, drm, x11)")
	rootCmd.PersistentFlags().String("driver", "", "VA driver name override (LIBVA_DRIVER_NAME)")
}

// loadConfig runs before every command: it reads the config file, lets the
// flags that were given override it and sets up logging.
func loadConfig(cmd *cobra.Command, args []string) error {
	mgr, err := config.NewManager(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := mgr.BindFlag(key, flag); err != nil {
			return fmt.Errorf("failed to apply --%s: %w", name, err)
		}
	}
	cfg := mgr.Get()
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	logger.WithComponent("config").Debug().
		Str("path", mgr.Path()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	configMgr = mgr
	return nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
