package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bryanchriswhite/VAProbe/internal/config"
	"github.com/bryanchriswhite/VAProbe/internal/logger"
	"github.com/bryanchriswhite/VAProbe/internal/selftest"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
)

// Status is the outcome of one check.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// Check is one line of a diagnosis.
type Check struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail"`
}

// Diagnosis is the doctor's answer. Accelerated is false when the caller
// should fall back to software.
type Diagnosis struct {
	Checks      []Check `json:"checks"`
	Accelerated bool    `json:"accelerated"`
	Report      *Report `json:"report,omitempty"`
}

func (g *Diagnosis) add(name string, st Status, format string, args ...any) {
	g.Checks = append(g.Checks, Check{Name: name, Status: st, Detail: fmt.Sprintf(format, args...)})
}

func (g *Diagnosis) skip(names ...string) {
	for _, n := range names {
		g.add(n, StatusSkip, "not reached")
	}
}

// Doctor check names, in the order they run.
const (
	CheckLibrary  = "library"
	CheckDRM      = "libva-drm"
	CheckDevice   = "device"
	CheckDisplay  = "display"
	CheckProfiles = "profiles"
	CheckSelfTest = "selftest"
)

// Diagnose walks from loading libva to a self-test, stopping at the first
// failure that makes the rest meaningless. Acceleration is available when the
// display initializes with at least one profile and the self-test passes.
func (e Env) Diagnose(ctx context.Context, cfg *config.Config) *Diagnosis {
	log := logger.WithComponent("probe")
	g := &Diagnosis{}

	lib, err := e.LoadLibrary(cfg)
	if err != nil {
		g.add(CheckLibrary, StatusFail, "%v", err)
		g.skip(CheckDRM, CheckDevice, CheckDisplay, CheckProfiles, CheckSelfTest)
		return g
	}
	g.add(CheckLibrary, StatusPass, "%s", lib.Name())

	if _, err := lib.DRM(); err != nil {
		g.add(CheckDRM, StatusFail, "%v", err)
		g.skip(CheckDevice, CheckDisplay, CheckProfiles, CheckSelfTest)
		return g
	}
	g.add(CheckDRM, StatusPass, "vaGetDisplayDRM resolved")

	opts, err := Options(cfg)
	if err != nil {
		g.add(CheckDevice, StatusFail, "%v", err)
		g.skip(CheckDisplay, CheckProfiles, CheckSelfTest)
		return g
	}
	src, err := e.Select(cfg.Device)
	if err != nil {
		g.add(CheckDevice, StatusFail, "%v", err)
		g.skip(CheckDisplay, CheckProfiles, CheckSelfTest)
		return g
	}
	g.add(CheckDevice, StatusPass, "%s", src.Name())

	d, err := vaapi.Open(lib, src, opts...)
	if err != nil {
		g.add(CheckDisplay, StatusFail, "%v", err)
		g.skip(CheckProfiles, CheckSelfTest)
		return g
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Warn().Err(err).Msg("ignoring error in display close")
		}
	}()
	g.add(CheckDisplay, StatusPass, "VA-API %s, %s", d.Version(), d.Vendor())

	report, err := Probe(d)
	switch {
	case err != nil:
		g.add(CheckProfiles, StatusFail, "%v", err)
		g.skip(CheckSelfTest)
		return g
	case len(report.Profiles) == 0:
		g.Report = report
		g.add(CheckProfiles, StatusFail, "the driver advertises no profiles")
		g.skip(CheckSelfTest)
		return g
	case len(report.Warnings) > 0:
		g.add(CheckProfiles, StatusWarn, "%d profiles, %d entrypoints, %d warnings",
			len(report.Profiles), report.Pairs(), len(report.Warnings))
	default:
		g.add(CheckProfiles, StatusPass, "%d profiles, %d entrypoints", len(report.Profiles), report.Pairs())
	}
	g.Report = report

	res, err := RunSelfTest(ctx, d, cfg.SelfTest)
	switch {
	case err != nil:
		g.add(CheckSelfTest, StatusFail, "%v", err)
		return g
	case !res.Passed:
		g.add(CheckSelfTest, StatusFail, "%d of %d pixels differ", res.Mismatches, res.Width*res.Height)
		return g
	}
	how := "copied"
	if res.Derived {
		how = "derived"
	}
	g.add(CheckSelfTest, StatusPass, "%s %dx%d round trip in %s (%s readback)",
		res.Format, res.Width, res.Height, res.Elapsed.Round(time.Microsecond), how)

	g.Accelerated = true
	return g
}

// RunSelfTest runs the round trip with the configured size and format.
func RunSelfTest(ctx context.Context, d *vaapi.Display, cfg config.SelfTestConfig) (*selftest.Result, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.New("selftest size must be positive")
	}
	f, err := vaapi.ParseFourCC(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("invalid selftest format: %w", err)
	}
	return selftest.Run(ctx, d, selftest.Options{
		Width:  uint32(cfg.Width),
		Height: uint32(cfg.Height),
		Format: f,
	})
}
