package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/VAProbe/internal/cli/styles"
	"github.com/bryanchriswhite/VAProbe/internal/logger"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
)

// exitError carries a process exit code for checks that ran but failed.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

var theme = styles.DefaultTheme()

// addFormatFlag registers --format with the given choices, the first being the
// default.
func addFormatFlag(cmd *cobra.Command, target *string, choices ...string) {
	cmd.Flags().StringVarP(target, "format", "f", choices[0],
		fmt.Sprintf("output format (%s)", joinOr(choices)))
}

func joinOr(choices []string) string {
	out := ""
	for i, c := range choices {
		switch {
		case i == 0:
		case i == len(choices)-1:
			out += " or "
		default:
			out += ", "
		}
		out += c
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return err
	}
	return encoder.Close()
}

func unsupportedFormat(format string, choices ...string) error {
	return fmt.Errorf("unsupported format: %s (use %s)", format, joinOr(choices))
}

// openDisplay opens the configured display. The caller closes it.
func openDisplay(opts ...vaapi.Option) (*vaapi.Display, error) {
	return env.Open(configMgr.Get(), opts...)
}

// closeDisplay is deferred by commands; a failed close only gets logged.
func closeDisplay(d *vaapi.Display) {
	if err := d.Close(); err != nil {
		logger.WithComponent("vaapi").Warn().Err(err).Msg("ignoring error in display close")
	}
}
