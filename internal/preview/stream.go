// Package preview streams what the GPU hands back from the self-test round
// trip as Motion JPEG over HTTP.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/VAProbe/internal/logger"
)

// ErrNotRunning is returned by WriteFrame before Start or after Stop.
var ErrNotRunning = errors.New("preview stream not running")

// Stats describes the stream.
type Stats struct {
	Running    bool      `json:"running"`
	Frames     uint64    `json:"frames"`
	Errors     uint64    `json:"errors"`
	Clients    int       `json:"clients"`
	FPS        float64   `json:"fps"`
	LastUpdate time.Time `json:"last_update"`
}

// Stream broadcasts JPEG frames to every connected client.
type Stream struct {
	quality int

	mu        sync.RWMutex
	running   bool
	frames    uint64
	errors    uint64
	startTime time.Time
	last      time.Time

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}
}

// NewStream returns a stopped stream encoding at quality (1-100).
func NewStream(quality int) *Stream {
	return &Stream{
		quality: quality,
		clients: make(map[chan []byte]struct{}),
	}
}

// Start accepts frames.
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("preview stream already running")
	}
	s.running = true
	s.startTime = time.Now()
	s.frames = 0
	s.errors = 0
	logger.WithComponent("preview").Info().Int("quality", s.quality).Msg("preview stream started")
	return nil
}

// Stop disconnects every client.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false

	s.clientsMu.Lock()
	for ch := range s.clients {
		close(ch)
	}
	s.clients = make(map[chan []byte]struct{})
	s.clientsMu.Unlock()

	logger.WithComponent("preview").Info().Uint64("frames", s.frames).Msg("preview stream stopped")
	return nil
}

// IsRunning reports whether the stream accepts frames.
func (s *Stream) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Clients returns the number of connected clients.
func (s *Stream) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// WriteFrame encodes frame and hands it to every client. Slow clients drop
// frames rather than stall the others.
func (s *Stream) WriteFrame(frame image.Image) error {
	if !s.IsRunning() {
		return ErrNotRunning
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: s.quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	data := buf.Bytes()

	s.mu.Lock()
	s.frames++
	s.last = time.Now()
	s.mu.Unlock()

	s.clientsMu.RLock()
	for ch := range s.clients {
		select {
		case ch <- data:
		default:
		}
	}
	s.clientsMu.RUnlock()
	return nil
}

func (s *Stream) frameFailed() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

// Stats snapshots the stream counters.
func (s *Stream) Stats() Stats {
	s.mu.RLock()
	st := Stats{
		Running:    s.running,
		Frames:     s.frames,
		Errors:     s.errors,
		LastUpdate: s.last,
	}
	if s.running {
		if elapsed := time.Since(s.startTime).Seconds(); elapsed > 0 {
			st.FPS = float64(s.frames) / elapsed
		}
	}
	s.mu.RUnlock()
	st.Clients = s.Clients()
	return st
}

func (s *Stream) subscribe() (chan []byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return nil, false
	}
	ch := make(chan []byte, 2)
	s.clientsMu.Lock()
	s.clients[ch] = struct{}{}
	s.clientsMu.Unlock()
	return ch, true
}

func (s *Stream) unsubscribe(ch chan []byte) int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	delete(s.clients, ch)
	return len(s.clients)
}

// Handler serves multipart/x-mixed-replace JPEG frames until the client goes
// away or the stream stops.
func (s *Stream) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.WithComponent("preview")

		ch, ok := s.subscribe()
		if !ok {
			http.Error(w, ErrNotRunning.Error(), http.StatusServiceUnavailable)
			return
		}
		defer func() {
			log.Info().Int("remaining", s.unsubscribe(ch)).Msg("preview client disconnected")
		}()
		log.Info().Int("clients", s.Clients()).Str("remote", r.RemoteAddr).Msg("preview client connected")

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		for {
			var data []byte
			select {
			case <-r.Context().Done():
				return
			case data, ok = <-ch:
				if !ok {
					return
				}
			}
			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data)); err != nil {
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			if _, err := fmt.Fprint(w, "\r\n"); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}

// ViewerHandler serves a bare page showing the stream.
func (s *Stream) ViewerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(viewerHTML))
	}
}

const viewerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>VAProbe preview</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            background: #000;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
        }
        img { width: 100vw; height: 100vh; object-fit: contain; display: block; }
    </style>
</head>
<body>
    <img src="/stream" alt="VA-API round trip">
</body>
</html>`
