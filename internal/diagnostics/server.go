// Package diagnostics serves the audio engine's latency telemetry over a
// local websocket so an external UI can sample it (see audioengine's
// "Latency reporting" in spec.md §4.E and design notes §9). It owns no part
// of the core: it only reads the latency ring and report callback the
// engine already exposes.
package diagnostics

import (
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Snapshot is what's pushed to each connected client.
type Snapshot struct {
	CurrentOffsetMS float64   `json:"current_offset_ms"`
	DeviceLatencyMS float64   `json:"device_latency_ms"`
	TotalLatencyMS  float64   `json:"total_latency_ms"`
	RecentTotalsMS  []float32 `json:"recent_totals_ms,omitempty"`
}

// Server streams Snapshots to connected websocket clients. Construct with
// New and call ListenAndServe; feed it updates with Publish.
type Server struct {
	addr     string
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan Snapshot

	updateEveryN uint32
	counter      atomic.Uint32
}

// New returns a Server that will listen on addr. updateEveryN rate-limits
// how often a Publish call actually reaches clients, per §4.E's
// "rate-limit external UI updates via a simple counter modulo N"; 0 or 1
// means every update is forwarded.
func New(addr string, updateEveryN int) *Server {
	if updateEveryN < 1 {
		updateEveryN = 1
	}
	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		clients:      make(map[*websocket.Conn]chan Snapshot),
		updateEveryN: uint32(updateEveryN),
	}
}

// Handler returns the http.Handler serving the websocket endpoint at
// "/latency", for embedding in a test server or a larger mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/latency", s.handleWebSocket)
	return mux
}

// ListenAndServe blocks serving the websocket endpoint at "/latency" until
// the process exits or the listener fails. Run it in its own goroutine.
func (s *Server) ListenAndServe() error {
	log.Printf("[diagnostics] listening on %s", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[diagnostics] upgrade: %v", err)
		return
	}

	ch := make(chan Snapshot, 4)
	s.mu.Lock()
	s.clients[conn] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for snap := range ch {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(snap); err != nil {
			return
		}
	}
}

// Publish fans out snap to every connected client, subject to the
// configured rate limit. A client whose outgoing queue is full is dropped
// for this update rather than blocking the audio producer thread that
// (indirectly, via the engine's LatencyCallback) calls Publish.
func (s *Server) Publish(snap Snapshot) {
	if s.counter.Add(1)%s.updateEveryN != 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, ch := range s.clients {
		select {
		case ch <- snap:
		default:
			log.Printf("[diagnostics] client %s backlogged, dropping update", conn.RemoteAddr())
		}
	}
}

// Close disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, ch := range s.clients {
		close(ch)
		conn.Close()
		delete(s.clients, conn)
	}
}
