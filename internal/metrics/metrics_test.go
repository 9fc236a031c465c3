package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi/fakeva"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

func TestObserveCall(t *testing.T) {
	m := New()
	m.ObserveCall("vaSyncSurface", native.StatusSuccess, 2*time.Millisecond)
	m.ObserveCall("vaSyncSurface", native.StatusSuccess, 3*time.Millisecond)
	m.ObserveCall("vaSyncSurface", native.StatusOperationFailed, time.Millisecond)

	ok := native.StatusSuccess.Text()
	failed := native.StatusOperationFailed.Text()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.calls.WithLabelValues("vaSyncSurface", ok)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("vaSyncSurface", failed)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.latency, "vaprobe_native_call_seconds"))
}

func TestDisplayMetrics(t *testing.T) {
	drv := fakeva.New()
	lib, err := drv.Library()
	require.NoError(t, err)

	m := New()
	d, err := vaapi.Open(lib, drv.NewSource(), vaapi.WithLogger(zerolog.Nop()), vaapi.WithObserver(m))
	require.NoError(t, err)
	require.NoError(t, m.WatchDisplay(d))
	assert.Error(t, m.WatchDisplay(d), "gauges register once")

	s1, err := d.CreateSurface(vaapi.RTFormatYUV420, 64, 64)
	require.NoError(t, err)
	_, err = d.CreateSurface(vaapi.RTFormatYUV420, 64, 64)
	require.NoError(t, err)
	require.NoError(t, s1.Destroy())

	ok := native.StatusSuccess.Text()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("vaInitialize", ok)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.calls.WithLabelValues("vaCreateSurfaces", ok)))

	expected := `
# HELP vaprobe_live_handles Handles currently owned by the display.
# TYPE vaprobe_live_handles gauge
vaprobe_live_handles{kind="buffer"} 0
vaprobe_live_handles{kind="config"} 0
vaprobe_live_handles{kind="context"} 0
vaprobe_live_handles{kind="image"} 0
vaprobe_live_handles{kind="surface"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "vaprobe_live_handles"))

	require.NoError(t, d.Close())
	closed := `
# HELP vaprobe_display_closed 1 once the display has been closed.
# TYPE vaprobe_display_closed gauge
vaprobe_display_closed 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(closed), "vaprobe_display_closed"))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveCall("vaInitialize", native.StatusSuccess, time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `vaprobe_native_calls_total{function="vaInitialize"`)
	assert.Contains(t, string(body), "vaprobe_native_call_seconds_bucket")
	assert.Contains(t, string(body), "go_goroutines")
}
