package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/VAProbe/internal/cli/styles"
	"github.com/bryanchriswhite/VAProbe/internal/probe"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Round-trip a test card through a GPU surface",
	Long: `Upload a test card to a surface, read it back and compare the pixels.
Size and format default to the selftest section of the config.`,
	Example: `  # Defaults from the config file
  vaprobe selftest

  # A 1080p NV12 round trip
  vaprobe selftest --width 1920 --height 1080 --fourcc NV12`,
	Args: cobra.NoArgs,
	RunE: runSelfTest,
}

var selftestFormat string

func init() {
	rootCmd.AddCommand(selftestCmd)
	selftestCmd.Flags().Int("width", 0, "surface width")
	selftestCmd.Flags().Int("height", 0, "surface height")
	selftestCmd.Flags().String("fourcc", "", "image format (RGBA, BGRA, NV12, ...)")
	addFormatFlag(selftestCmd, &selftestFormat, "table", "json")
}

func runSelfTest(cmd *cobra.Command, args []string) error {
	if selftestFormat != "table" && selftestFormat != "json" {
		return unsupportedFormat(selftestFormat, "table", "json")
	}
	cfg := configMgr.Get().SelfTest
	if w, _ := cmd.Flags().GetInt("width"); w != 0 {
		cfg.Width = w
	}
	if h, _ := cmd.Flags().GetInt("height"); h != 0 {
		cfg.Height = h
	}
	if f, _ := cmd.Flags().GetString("fourcc"); f != "" {
		cfg.Format = f
	}

	d, err := openDisplay()
	if err != nil {
		return err
	}
	defer closeDisplay(d)

	res, err := probe.RunSelfTest(cmd.Context(), d, cfg)
	if selftestFormat == "json" && res != nil {
		if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	} else if selftestFormat == "table" {
		fmt.Fprintln(cmd.OutOrStdout(), styles.NewReportRenderer(theme).SelfTest(res, err))
	}
	switch {
	case err != nil:
		return fmt.Errorf("self-test failed: %w", err)
	case !res.Passed:
		return &exitError{code: 2, msg: fmt.Sprintf("self-test failed: %d pixels differ", res.Mismatches)}
	}
	return nil
}
