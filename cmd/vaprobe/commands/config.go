package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/VAProbe/internal/cli/styles"
	"github.com/bryanchriswhite/VAProbe/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage VAProbe configuration",
	Long:  `View and manage VAProbe configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current VAProbe configuration.`,
	Example: `  # Show configuration as YAML (default)
  vaprobe config show

  # Show configuration as JSON
  vaprobe config show --format json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value. The value is parsed according to the
type of the key and the whole configuration is validated before it is saved.`,
	Example: `  # Set server port
  vaprobe config set server.port 9090

  # Prefer a specific render node
  vaprobe config set device.path /dev/dri/renderD129

  # Extra libva locations, comma separated
  vaprobe config set library.paths /opt/libva/lib/libva.so.2`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: config.Keys(),
	RunE:      runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Long:  `Get a specific configuration value.`,
	Example: `  # Get server port
  vaprobe config get server.port

  # Get log level
  vaprobe config get log_level`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: config.Keys(),
	RunE:      runConfigGet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List configuration keys",
	Args:  cobra.NoArgs,
	RunE:  runConfigKeys,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configKeysCmd)

	addFormatFlag(configShowCmd, &formatFlag, "yaml", "json")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := configMgr.Get()

	switch formatFlag {
	case "json":
		return writeJSON(cmd.OutOrStdout(), cfg)
	case "yaml":
		return writeYAML(cmd.OutOrStdout(), cfg)
	default:
		return unsupportedFormat(formatFlag, "yaml", "json")
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	if err := configMgr.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Configuration updated: %s = %s\n",
		theme.SuccessStyle.Render(styles.IconCheck), key, value)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	val, err := configMgr.GetValue(args[0])
	if err != nil {
		return err
	}
	switch v := val.(type) {
	case []string:
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(v, ","))
	case []any:
		parts := make([]string, len(v))
		for i, p := range v {
			parts[i] = fmt.Sprint(p)
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(parts, ","))
	default:
		fmt.Fprintln(cmd.OutOrStdout(), v)
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(cmd.OutOrStdout(), configMgr.Path())
	return nil
}

func runConfigKeys(cmd *cobra.Command, args []string) error {
	for _, k := range config.Keys() {
		fmt.Fprintln(cmd.OutOrStdout(), k)
	}
	return nil
}
