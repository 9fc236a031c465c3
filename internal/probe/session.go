package probe

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/bryanchriswhite/VAProbe/internal/config"
	"github.com/bryanchriswhite/VAProbe/internal/selftest"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
)

// Session shares one open display between concurrent callers. Capabilities do
// not change while a display is open, so the report is probed once.
type Session struct {
	d        *vaapi.Display
	selftest config.SelfTestConfig

	group  singleflight.Group
	mu     sync.RWMutex
	report *Report
}

// NewSession wraps d. defaults sizes self-tests that do not say otherwise.
func NewSession(d *vaapi.Display, defaults config.SelfTestConfig) *Session {
	return &Session{d: d, selftest: defaults}
}

// Display returns the wrapped display.
func (s *Session) Display() *vaapi.Display { return s.d }

// Report probes the display on first use and returns the cached report after.
func (s *Session) Report(ctx context.Context) (*Report, error) {
	s.mu.RLock()
	r := s.report
	s.mu.RUnlock()
	if r != nil {
		return r, nil
	}

	ch := s.group.DoChan("report", func() (any, error) {
		r, err := Probe(s.d)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.report = r
		s.mu.Unlock()
		return r, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Report), nil
	}
}

// Stats snapshots the display's handle table.
func (s *Session) Stats() vaapi.Stats { return s.d.Stats() }

// SelfTest runs a round trip. Zero fields in cfg take the session defaults.
func (s *Session) SelfTest(ctx context.Context, cfg config.SelfTestConfig) (*selftest.Result, error) {
	if cfg.Width == 0 {
		cfg.Width = s.selftest.Width
	}
	if cfg.Height == 0 {
		cfg.Height = s.selftest.Height
	}
	if cfg.Format == "" {
		cfg.Format = s.selftest.Format
	}
	return RunSelfTest(ctx, s.d, cfg)
}
