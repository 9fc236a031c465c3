package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/VAProbe/internal/cli/styles"
	"github.com/bryanchriswhite/VAProbe/internal/device"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List DRM render nodes",
	Long: `List the render nodes under /dev/dri together with the kernel driver
behind each one, its version and date.`,
	Example: `  vaprobe devices
  vaprobe devices --format json`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

var devicesFormat string

// discover is swapped in tests.
var discover = device.Discover

func init() {
	rootCmd.AddCommand(devicesCmd)
	addFormatFlag(devicesCmd, &devicesFormat, "table", "json")
}

func runDevices(cmd *cobra.Command, args []string) error {
	if devicesFormat != "table" && devicesFormat != "json" {
		return unsupportedFormat(devicesFormat, "table", "json")
	}
	nodes, err := discover()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	if devicesFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), nodes)
	}
	fmt.Fprintln(cmd.OutOrStdout(), styles.NewReportRenderer(theme).Devices(nodes))
	return nil
}
