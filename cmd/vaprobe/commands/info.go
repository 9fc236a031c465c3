package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/VAProbe/internal/cli/styles"
	"github.com/bryanchriswhite/VAProbe/internal/probe"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the driver's profiles and entrypoints",
	Long: `Open the configured device and print the VA-API version, the driver's
vendor string and every profile with the entrypoints it supports.`,
	Example: `  # Summary of the default device
  vaprobe info

  # A specific render node
  vaprobe info --device /dev/dri/renderD129

  # Machine readable
  vaprobe info --format json`,
	Args: cobra.NoArgs,
	RunE: runInfo,
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Show every attribute the driver reports",
	Long: `Print the config and surface attributes of every profile/entrypoint pair,
the image formats the driver can map and the display attributes.`,
	Example: `  # Everything, as tables
  vaprobe dump

  # Everything, as JSON
  vaprobe dump --format json`,
	Args: cobra.NoArgs,
	RunE: runDump,
}

var (
	infoFormat string
	dumpFormat string
)

func init() {
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(dumpCmd)

	addFormatFlag(infoCmd, &infoFormat, "table", "json")
	addFormatFlag(dumpCmd, &dumpFormat, "table", "json")
}

// probeDisplay opens the configured display, probes it and closes it again.
func probeDisplay() (*probe.Report, error) {
	d, err := openDisplay()
	if err != nil {
		return nil, err
	}
	defer closeDisplay(d)
	return probe.Probe(d)
}

func runInfo(cmd *cobra.Command, args []string) error {
	return runReport(cmd, infoFormat, (*styles.ReportRenderer).Info)
}

func runDump(cmd *cobra.Command, args []string) error {
	return runReport(cmd, dumpFormat, (*styles.ReportRenderer).Dump)
}

func runReport(cmd *cobra.Command, format string, render func(*styles.ReportRenderer, *probe.Report) string) error {
	if format != "table" && format != "json" {
		return unsupportedFormat(format, "table", "json")
	}
	rep, err := probeDisplay()
	if err != nil {
		return err
	}
	if format == "json" {
		return writeJSON(cmd.OutOrStdout(), rep)
	}
	fmt.Fprintln(cmd.OutOrStdout(), render(styles.NewReportRenderer(theme), rep))
	return nil
}
