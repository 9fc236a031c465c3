// Package selftest pushes a test card through a VA surface and reads it back,
// which is the cheapest end-to-end proof that a driver really works.
package selftest

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/VAProbe/internal/logger"
	"github.com/bryanchriswhite/VAProbe/internal/pattern"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
)

// Options sizes the round trip.
type Options struct {
	Width  uint32
	Height uint32
	Format vaapi.FourCC
	// Card defaults to pattern.Standard.
	Card *pattern.Card
	// Frame is the card frame to render.
	Frame int
}

// Step records one stage of the round trip.
type Step struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

// Result is the outcome of Run. Image is what the GPU returned.
type Result struct {
	Format     string        `json:"format"`
	Width      uint32        `json:"width"`
	Height     uint32        `json:"height"`
	Derived    bool          `json:"derived"`
	Mismatches int           `json:"mismatches"`
	Passed     bool          `json:"passed"`
	Steps      []Step        `json:"steps"`
	Elapsed    time.Duration `json:"elapsed"`
	Image      *image.RGBA   `json:"-"`
}

type runner struct {
	res *Result
	ctx context.Context
	log *zerolog.Logger
}

// step times fn and records it. A cancelled context stops the run before fn.
func (r *runner) step(name string, fn func() error) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := fn()
	s := Step{Name: name, Duration: time.Since(start)}
	if err != nil {
		s.Err = err.Error()
	}
	r.res.Steps = append(r.res.Steps, s)
	r.log.Debug().Str("step", name).Dur("duration", s.Duration).Err(err).Msg("selftest step")
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Run uploads a card to a new surface, syncs, reads it back and compares
// pixels. A round trip that completes with differences returns a Result with
// Passed false and no error. A failing step returns the partial Result with
// the error. Every handle Run creates is destroyed before Run returns.
func Run(ctx context.Context, d *vaapi.Display, opts Options) (*Result, error) {
	if !Supported(opts.Format) {
		return nil, fmt.Errorf("%w: %s", ErrFormat, opts.Format)
	}
	rt := opts.Format.RTFormat()
	card := opts.Card
	if card == nil {
		card = pattern.Standard(int(opts.Width), int(opts.Height), "vaprobe #%d")
	}

	r := &runner{
		res: &Result{Format: opts.Format.String(), Width: opts.Width, Height: opts.Height},
		ctx: ctx,
		log: logger.WithComponent("selftest"),
	}
	start := time.Now()
	defer func() { r.res.Elapsed = time.Since(start) }()

	var (
		surface    *vaapi.Surface
		input, out *vaapi.Image
		want       *image.RGBA
	)
	defer func() {
		for _, release := range []struct {
			name string
			fn   func() error
			live bool
		}{
			{"readback image", func() error { return out.Destroy() }, out != nil},
			{"input image", func() error { return input.Destroy() }, input != nil},
			{"surface", func() error { return surface.Destroy() }, surface != nil},
		} {
			if !release.live {
				continue
			}
			if err := release.fn(); err != nil {
				r.log.Warn().Err(err).Msgf("ignoring error in %s destroy", release.name)
			}
		}
	}()

	if err := r.step("create surface", func() (err error) {
		surface, err = d.CreateSurface(rt, opts.Width, opts.Height, vaapi.PixelFormatHint(opts.Format))
		return err
	}); err != nil {
		return r.res, err
	}

	if err := r.step("create image", func() (err error) {
		input, err = d.CreateImage(vaapi.NewImageFormat(opts.Format), opts.Width, opts.Height)
		return err
	}); err != nil {
		return r.res, err
	}

	if err := r.step("upload", func() error {
		m, err := input.Map()
		if err != nil {
			return err
		}
		l := layoutOf(input)
		if err := encode(m.Bytes(), l, card.Render(opts.Frame)); err != nil {
			m.Unmap()
			return err
		}
		// The reference goes through the same packing, so lossy formats
		// compare against what was actually sent.
		if want, err = decode(m.Bytes(), l); err != nil {
			m.Unmap()
			return err
		}
		return m.Unmap()
	}); err != nil {
		return r.res, err
	}

	if err := r.step("put image", func() error { return surface.PutImage(input) }); err != nil {
		return r.res, err
	}
	if err := r.step("sync", surface.Sync); err != nil {
		return r.res, err
	}

	if err := r.step("readback", func() (err error) {
		out, r.res.Derived, err = surface.Readback(opts.Format)
		return err
	}); err != nil {
		return r.res, err
	}

	if err := r.step("compare", func() error {
		m, err := out.Map()
		if err != nil {
			return err
		}
		defer m.Unmap()
		got, err := decode(m.Bytes(), layoutOf(out))
		if err != nil {
			return err
		}
		r.res.Image = got
		r.res.Mismatches = diff(want, got)
		return nil
	}); err != nil {
		return r.res, err
	}

	r.res.Passed = r.res.Mismatches == 0
	r.log.Info().
		Str("format", r.res.Format).
		Bool("derived", r.res.Derived).
		Int("mismatches", r.res.Mismatches).
		Bool("passed", r.res.Passed).
		Msg("selftest finished")
	return r.res, nil
}
