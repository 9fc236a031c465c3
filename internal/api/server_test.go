package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/VAProbe/internal/config"
	"github.com/bryanchriswhite/VAProbe/internal/preview"
	"github.com/bryanchriswhite/VAProbe/internal/probe"
	"github.com/bryanchriswhite/VAProbe/internal/selftest"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
)

type mockProber struct {
	mock.Mock
}

func (m *mockProber) Report(ctx context.Context) (*probe.Report, error) {
	args := m.Called(ctx)
	r, _ := args.Get(0).(*probe.Report)
	return r, args.Error(1)
}

func (m *mockProber) Stats() vaapi.Stats {
	return m.Called().Get(0).(vaapi.Stats)
}

func (m *mockProber) SelfTest(ctx context.Context, cfg config.SelfTestConfig) (*selftest.Result, error) {
	args := m.Called(ctx, cfg)
	r, _ := args.Get(0).(*selftest.Result)
	return r, args.Error(1)
}

type staticConfig struct{ cfg *config.Config }

func (c staticConfig) Get() *config.Config { return c.cfg }

var testReport = &probe.Report{
	Source:  "drm:/dev/dri/renderD128",
	Version: "1.20",
	Vendor:  "Test Vendor",
	Profiles: []probe.Profile{
		{Name: "H264High", Value: int32(vaapi.ProfileH264High), Entrypoints: []probe.Entrypoint{
			{Name: "VLD", Value: int32(vaapi.EntrypointVLD), Kind: "decode"},
			{Name: "EncSlice", Value: int32(vaapi.EntrypointEncSlice), Kind: "encode"},
		}},
		{Name: "HEVCMain", Value: int32(vaapi.ProfileHEVCMain), Entrypoints: []probe.Entrypoint{
			{Name: "VLD", Value: int32(vaapi.EntrypointVLD), Kind: "decode"},
		}},
	},
	ImageFormats: []probe.Format{{FourCC: "NV12", BitsPerPixel: 12}},
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := NewServer(new(mockProber), Options{})
	rec := do(t, s, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "healthy", body["status"])
}

func TestCapabilityRoutes(t *testing.T) {
	p := new(mockProber)
	p.On("Report", mock.Anything).Return(testReport, nil)
	s := NewServer(p, Options{})

	t.Run("info", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/info", "")
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[probe.Report](t, rec)
		assert.Equal(t, "Test Vendor", got.Vendor)
		assert.Len(t, got.Profiles, 2)
	})

	t.Run("profiles", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/profiles", "")
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[[]profileSummary](t, rec)
		require.Len(t, got, 2)
		assert.Equal(t, []string{"VLD", "EncSlice"}, got[0].Entrypoints)
	})

	t.Run("entrypoints", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/profiles/VAProfileHEVCMain/entrypoints", "")
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[[]probe.Entrypoint](t, rec)
		require.Len(t, got, 1)
		assert.Equal(t, "decode", got[0].Kind)
	})

	t.Run("unsupported profile", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/profiles/VP9Profile0/entrypoints", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, decode[map[string]string](t, rec)["error"], "VP9Profile0")
	})

	t.Run("formats", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/formats", "")
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[[]probe.Format](t, rec)
		assert.Equal(t, "NV12", got[0].FourCC)
	})

	p.AssertNumberOfCalls(t, "Report", 5)
}

func TestReportError(t *testing.T) {
	p := new(mockProber)
	p.On("Report", mock.Anything).Return(nil, vaapi.ErrClosed)
	rec := do(t, NewServer(p, Options{}), http.MethodGet, "/api/info", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "display closed")
}

func TestStats(t *testing.T) {
	p := new(mockProber)
	p.On("Stats").Return(vaapi.Stats{Surfaces: 2, Images: 1, NativeCalls: 40})
	stream := preview.NewStream(80)
	s := NewServer(p, Options{Stream: stream})

	rec := do(t, s, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[statsMessage](t, rec)
	assert.Equal(t, 3, got.Live)
	assert.Equal(t, uint64(40), got.Display.NativeCalls)
	require.NotNil(t, got.Preview)
	assert.False(t, got.Preview.Running)
}

func TestSelfTest(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := new(mockProber)
		p.On("SelfTest", mock.Anything, config.SelfTestConfig{}).
			Return(&selftest.Result{Format: "RGBA", Passed: true}, nil)
		rec := do(t, NewServer(p, Options{}), http.MethodPost, "/api/selftest", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[selftest.Result](t, rec).Passed)
		p.AssertExpectations(t)
	})

	t.Run("body", func(t *testing.T) {
		p := new(mockProber)
		want := config.SelfTestConfig{Width: 64, Height: 32, Format: "NV12"}
		p.On("SelfTest", mock.Anything, want).Return(&selftest.Result{Format: "NV12", Passed: true}, nil)
		rec := do(t, NewServer(p, Options{}), http.MethodPost, "/api/selftest", `{"width":64,"height":32,"format":"NV12"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		p.AssertExpectations(t)
	})

	t.Run("bad requests", func(t *testing.T) {
		p := new(mockProber)
		s := NewServer(p, Options{})
		for _, body := range []string{`{`, `{"format":"TOOLONG"}`, `{"format":"YUY2"}`, `{"width":-1}`,
			`{"width":16384,"height":16384}`, `{"width":4097}`} {
			rec := do(t, s, http.MethodPost, "/api/selftest", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		}
		p.AssertNotCalled(t, "SelfTest", mock.Anything, mock.Anything)
	})

	t.Run("failure keeps the partial result", func(t *testing.T) {
		p := new(mockProber)
		partial := &selftest.Result{Format: "RGBA", Steps: []selftest.Step{{Name: "create surface", Err: "boom"}}}
		p.On("SelfTest", mock.Anything, mock.Anything).Return(partial, errors.New("create surface: boom"))
		rec := do(t, NewServer(p, Options{}), http.MethodPost, "/api/selftest", "")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		got := decode[selfTestFailure](t, rec)
		assert.Equal(t, "create surface: boom", got.Error)
		require.NotNil(t, got.Result)
		assert.Len(t, got.Result.Steps, 1)
	})
}

func TestOptionalRoutes(t *testing.T) {
	bare := NewServer(new(mockProber), Options{})
	assert.Equal(t, http.StatusNotFound, do(t, bare, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, bare, http.MethodGet, "/api/config", "").Code)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("vaprobe_up 1\n")) })
	full := NewServer(new(mockProber), Options{
		Metrics: metrics,
		Config:  staticConfig{config.Defaults()},
		Stream:  preview.NewStream(80),
	})
	rec := do(t, full, http.MethodGet, "/metrics", "")
	assert.Equal(t, "vaprobe_up 1\n", rec.Body.String())

	rec = do(t, full, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 8080, decode[config.Config](t, rec).Server.Port)

	assert.Contains(t, do(t, full, http.MethodGet, "/preview", "").Body.String(), "/stream")
	assert.Equal(t, http.StatusServiceUnavailable, do(t, full, http.MethodGet, "/stream", "").Code)
}

func TestStatsWebSocket(t *testing.T) {
	p := new(mockProber)
	p.On("Stats").Return(vaapi.Stats{Configs: 1})
	s := NewServer(p, Options{StatsInterval: 10 * time.Millisecond})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/stats"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 3; i++ {
		var msg statsMessage
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, 1, msg.Live)
	}
}

func TestStartStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(new(mockProber), Options{}).Start(ctx, 0) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
