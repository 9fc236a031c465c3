package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bryanchriswhite/VAProbe/internal/api"
	"github.com/bryanchriswhite/VAProbe/internal/config"
	"github.com/bryanchriswhite/VAProbe/internal/logger"
	"github.com/bryanchriswhite/VAProbe/internal/metrics"
	"github.com/bryanchriswhite/VAProbe/internal/preview"
	"github.com/bryanchriswhite/VAProbe/internal/probe"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the VAProbe HTTP server",
	Long: `Open the configured device and keep it open behind a REST API.

The server answers capability queries, runs self-tests on request, streams
handle statistics over a websocket, exports Prometheus metrics at /metrics
and shows a live MJPEG preview of GPU round trips at /preview.`,
	Example: `  # Start server on default port (8080)
  vaprobe serve

  # Start server on custom port
  vaprobe serve --port 9090

  # Start with specific config file
  vaprobe serve --config /path/to/config.yaml

  # Start with debug logging
  vaprobe serve --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("port", 0, "server port (default is 8080)")
	serveCmd.Flags().Bool("no-preview", false, "disable the MJPEG preview")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	if flag := cmd.Flags().Lookup("port"); flag.Changed {
		if err := configMgr.BindFlag("server.port", flag); err != nil {
			return fmt.Errorf("failed to apply --port: %w", err)
		}
	}
	started := configMgr.Get()
	cfg := configMgr.Get()
	if off, _ := cmd.Flags().GetBool("no-preview"); off {
		cfg.Preview.Enabled = false
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	var opts []vaapi.Option
	if cfg.Server.Metrics {
		m = metrics.New()
		opts = append(opts, vaapi.WithObserver(m))
	}

	d, err := openDisplay(opts...)
	if err != nil {
		return err
	}
	defer closeDisplay(d)
	log.Info().
		Str("source", d.Source()).
		Str("version", d.Version().String()).
		Str("vendor", d.Vendor()).
		Msg("Display initialized")

	apiOpts := api.Options{
		Config:        configMgr,
		StatsInterval: cfg.Server.StatsInterval,
	}
	if m != nil {
		if err := m.WatchDisplay(d); err != nil {
			return fmt.Errorf("failed to register display metrics: %w", err)
		}
		apiOpts.Metrics = m.Handler()
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Preview.Enabled {
		trip, err := preview.DisplayRoundTrip(d, cfg.SelfTest)
		if err != nil {
			return fmt.Errorf("failed to set up preview: %w", err)
		}
		stream := preview.NewStream(cfg.Preview.Quality)
		loop := preview.NewLoop(stream, trip, cfg.Preview)
		apiOpts.Stream = stream
		g.Go(func() error { return loop.Run(ctx) })
	}

	configMgr.Watch(func(next *config.Config) {
		logger.Init(next.LogLevel, next.LogPretty)
		if restartNeeded(started, next) {
			logger.WithComponent("config").Warn().
				Msg("Device, server and preview changes take effect after a restart")
		}
	})

	server := api.NewServer(probe.NewSession(d, cfg.SelfTest), apiOpts)
	g.Go(func() error { return server.Start(ctx, cfg.Server.Port) })

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Shut down cleanly")
	return nil
}

// restartNeeded reports whether next changes settings that are only read at
// startup.
func restartNeeded(cur, next *config.Config) bool {
	return cur.Device != next.Device ||
		cur.Server != next.Server ||
		cur.Preview != next.Preview ||
		cur.SelfTest != next.SelfTest
}
