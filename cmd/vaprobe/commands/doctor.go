package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/VAProbe/internal/cli/styles"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check whether hardware acceleration works",
	Long: `Walk every step from loading libva to a surface round trip and report
which one breaks. Exits non-zero when callers should use a software fallback.`,
	Example: `  vaprobe doctor
  vaprobe doctor --source x11
  vaprobe doctor --format json`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

var doctorFormat string

func init() {
	rootCmd.AddCommand(doctorCmd)
	addFormatFlag(doctorCmd, &doctorFormat, "table", "json")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	if doctorFormat != "table" && doctorFormat != "json" {
		return unsupportedFormat(doctorFormat, "table", "json")
	}
	g := env.Diagnose(cmd.Context(), configMgr.Get())

	if doctorFormat == "json" {
		if err := writeJSON(cmd.OutOrStdout(), g); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), styles.NewDoctorRenderer(theme).Render(g))
	}
	if !g.Accelerated {
		return &exitError{code: 2, msg: "hardware acceleration unavailable"}
	}
	return nil
}
