package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/VAProbe/internal/config"
	"github.com/bryanchriswhite/VAProbe/internal/logger"
	"github.com/bryanchriswhite/VAProbe/internal/preview"
	"github.com/bryanchriswhite/VAProbe/internal/probe"
	"github.com/bryanchriswhite/VAProbe/internal/selftest"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
)

// Version is reported by /api/health.
var Version = "0.1.0"

// Prober answers questions about one open display.
type Prober interface {
	Report(ctx context.Context) (*probe.Report, error)
	Stats() vaapi.Stats
	SelfTest(ctx context.Context, cfg config.SelfTestConfig) (*selftest.Result, error)
}

// ConfigSource exposes the running configuration.
type ConfigSource interface {
	Get() *config.Config
}

// Options wires the optional parts of the server.
type Options struct {
	// Config is served at /api/config when set.
	Config ConfigSource
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Stream is mounted at /stream and /preview when set.
	Stream *preview.Stream
	// StatsInterval paces /api/ws/stats. Zero means two seconds.
	StatsInterval time.Duration
}

// Server represents the HTTP API server
type Server struct {
	router   *mux.Router
	prober   Prober
	opts     Options
	upgrader websocket.Upgrader
}

// NewServer creates a new API server
func NewServer(prober Prober, opts Options) *Server {
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = 2 * time.Second
	}
	s := &Server{
		router: mux.NewRouter(),
		prober: prober,
		opts:   opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local diagnostics tool
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Capabilities
	api.HandleFunc("/info", s.handleInfo).Methods("GET")
	api.HandleFunc("/profiles", s.handleProfiles).Methods("GET")
	api.HandleFunc("/profiles/{profile}/entrypoints", s.handleEntrypoints).Methods("GET")
	api.HandleFunc("/formats", s.handleFormats).Methods("GET")

	// Live state
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/ws/stats", s.handleStatsStream)
	api.HandleFunc("/selftest", s.handleSelfTest).Methods("POST")

	if s.opts.Config != nil {
		api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	}
	if s.opts.Metrics != nil {
		s.router.Handle("/metrics", s.opts.Metrics).Methods("GET")
	}
	if s.opts.Stream != nil {
		s.router.HandleFunc("/stream", s.opts.Stream.Handler()).Methods("GET")
		s.router.HandleFunc("/preview", s.opts.Stream.ViewerHandler()).Methods("GET")
	}

	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

// Handler returns the routed handler with CORS headers.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on port until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	log := logger.WithComponent("api")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on http://localhost:%d", port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// HTTP Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) (*probe.Report, bool) {
	report, err := s.prober.Report(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return report, true
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if report, ok := s.report(w, r); ok {
		writeJSON(w, http.StatusOK, report)
	}
}

type profileSummary struct {
	Name        string   `json:"name"`
	Value       int32    `json:"value"`
	Entrypoints []string `json:"entrypoints"`
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	report, ok := s.report(w, r)
	if !ok {
		return
	}
	out := make([]profileSummary, 0, len(report.Profiles))
	for _, p := range report.Profiles {
		sum := profileSummary{Name: p.Name, Value: p.Value, Entrypoints: make([]string, 0, len(p.Entrypoints))}
		for _, e := range p.Entrypoints {
			sum.Entrypoints = append(sum.Entrypoints, e.Name)
		}
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEntrypoints(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["profile"]
	report, ok := s.report(w, r)
	if !ok {
		return
	}
	p, found := report.Profile(name)
	if !found {
		writeError(w, http.StatusNotFound, fmt.Errorf("profile %q is not supported", name))
		return
	}
	writeJSON(w, http.StatusOK, p.Entrypoints)
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	if report, ok := s.report(w, r); ok {
		writeJSON(w, http.StatusOK, report.ImageFormats)
	}
}

type statsMessage struct {
	Time    time.Time      `json:"time"`
	Display vaapi.Stats    `json:"display"`
	Live    int            `json:"live"`
	Preview *preview.Stats `json:"preview,omitempty"`
}

func (s *Server) stats() statsMessage {
	st := s.prober.Stats()
	msg := statsMessage{Time: time.Now(), Display: st, Live: st.Live()}
	if s.opts.Stream != nil {
		ps := s.opts.Stream.Stats()
		msg.Preview = &ps
	}
	return msg
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats())
}

func (s *Server) handleStatsStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	// The client only ever closes; reading surfaces that.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.opts.StatsInterval)
	defer ticker.Stop()
	for {
		if err := conn.WriteJSON(s.stats()); err != nil {
			log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			return
		case <-ticker.C:
		}
	}
}

type selfTestFailure struct {
	Error  string           `json:"error"`
	Result *selftest.Result `json:"result,omitempty"`
}

func (s *Server) handleSelfTest(w http.ResponseWriter, r *http.Request) {
	var req config.SelfTestConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Width < 0 || req.Height < 0 {
		writeError(w, http.StatusBadRequest, errors.New("width and height must not be negative"))
		return
	}
	if req.Width > config.MaxSelfTestDimension || req.Height > config.MaxSelfTestDimension {
		writeError(w, http.StatusBadRequest, fmt.Errorf("width and height must not exceed %d", config.MaxSelfTestDimension))
		return
	}
	if req.Format != "" {
		f, err := vaapi.ParseFourCC(req.Format)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if !selftest.Supported(f) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %s", selftest.ErrFormat, f))
			return
		}
	}

	res, err := s.prober.SelfTest(r.Context(), req)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, selfTestFailure{Error: err.Error(), Result: res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Config.Get())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>VAProbe</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Ubuntu, sans-serif;
            max-width: 800px;
            margin: 50px auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .container { background: white; padding: 30px; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #333; margin-top: 0; }
        a { color: #1976d2; text-decoration: none; }
        a:hover { text-decoration: underline; }
        code { background: #f5f5f5; padding: 2px 6px; border-radius: 3px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>VAProbe</h1>
        <h3>API Endpoints:</h3>
        <ul>
            <li><a href="/api/health">/api/health</a> - Server health check</li>
            <li><a href="/api/info">/api/info</a> - Full capability report</li>
            <li><a href="/api/profiles">/api/profiles</a> - Profiles and entrypoints</li>
            <li><a href="/api/formats">/api/formats</a> - Image formats</li>
            <li><a href="/api/stats">/api/stats</a> - Live handles and native calls</li>
            <li><code>POST /api/selftest</code> - Surface round trip</li>
            <li><a href="/preview">/preview</a> - Round trip preview, when enabled</li>
            <li><a href="/metrics">/metrics</a> - Prometheus metrics, when enabled</li>
        </ul>
    </div>
</body>
</html>`
