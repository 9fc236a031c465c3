package preview

import (
	"context"
	"fmt"
	"image"
	"time"

	"golang.org/x/image/draw"

	"github.com/bryanchriswhite/VAProbe/internal/config"
	"github.com/bryanchriswhite/VAProbe/internal/logger"
	"github.com/bryanchriswhite/VAProbe/internal/pattern"
	"github.com/bryanchriswhite/VAProbe/internal/selftest"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
)

// RoundTrip pushes one card frame through the GPU and returns what came back.
type RoundTrip func(ctx context.Context, frame int) (*image.RGBA, error)

// DisplayRoundTrip runs the self-test on d with an animated card.
func DisplayRoundTrip(d *vaapi.Display, cfg config.SelfTestConfig) (RoundTrip, error) {
	f, err := vaapi.ParseFourCC(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("invalid selftest format: %w", err)
	}
	card := pattern.Standard(cfg.Width, cfg.Height, "vaprobe frame %d")
	return func(ctx context.Context, frame int) (*image.RGBA, error) {
		res, err := selftest.Run(ctx, d, selftest.Options{
			Width:  uint32(cfg.Width),
			Height: uint32(cfg.Height),
			Format: f,
			Card:   card,
			Frame:  frame,
		})
		if err != nil {
			return nil, err
		}
		return res.Image, nil
	}, nil
}

// Loop feeds a Stream at a fixed rate. It only touches the GPU while someone
// is watching.
type Loop struct {
	stream *Stream
	trip   RoundTrip
	width  int
	height int
	period time.Duration
}

// NewLoop scales each round trip to the preview size.
func NewLoop(stream *Stream, trip RoundTrip, cfg config.PreviewConfig) *Loop {
	return &Loop{
		stream: stream,
		trip:   trip,
		width:  cfg.Width,
		height: cfg.Height,
		period: time.Second / time.Duration(max(1, cfg.FPS)),
	}
}

// Run produces frames until ctx is done, then stops the stream.
func (l *Loop) Run(ctx context.Context) error {
	log := logger.WithComponent("preview")
	if err := l.stream.Start(); err != nil {
		return err
	}
	defer l.stream.Stop()

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if l.stream.Clients() == 0 {
			continue
		}
		if err := l.Frame(ctx, frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.stream.frameFailed()
			log.Warn().Err(err).Int("frame", frame).Msg("preview frame failed")
		}
		frame++
	}
}

// Frame runs one round trip and writes it to the stream.
func (l *Loop) Frame(ctx context.Context, frame int) error {
	img, err := l.trip(ctx, frame)
	if err != nil {
		return err
	}
	return l.stream.WriteFrame(Scale(img, l.width, l.height))
}

// Scale fits src into width x height, keeping its aspect ratio and padding
// with black.
func Scale(src image.Image, width, height int) *image.RGBA {
	sb := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if sb.Dx() == width && sb.Dy() == height {
		draw.Copy(dst, image.Point{}, src, sb, draw.Src, nil)
		return dst
	}
	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)

	w, h := width, sb.Dy()*width/max(1, sb.Dx())
	if h > height {
		w, h = sb.Dx()*height/max(1, sb.Dy()), height
	}
	x, y := (width-w)/2, (height-h)/2
	draw.ApproxBiLinear.Scale(dst, image.Rect(x, y, x+w, y+h), src, sb, draw.Src, nil)
	return dst
}
