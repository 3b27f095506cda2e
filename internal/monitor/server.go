// Package monitor serves pipeline health over HTTP and streams diagnostics
// and accepts operator controls over websockets.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/strandlight/internal/config"
	diag "github.com/coreman2200/strandlight/internal/diagnostics"
	"github.com/coreman2200/strandlight/internal/led"
	"github.com/coreman2200/strandlight/internal/render"
	"github.com/coreman2200/strandlight/internal/stats"
)

// Engine is the part of render.Engine the monitor drives.
type Engine interface {
	Status() render.Status
	RunPattern(name string, hold int) error
	StopPattern()
}

// Link reports on the controller connection; tcl.Controller implements it.
type Link interface {
	SessionID() string
	Address() string
	DelaySummary() stats.Summary
}

// Options wires a Server. Mapper and Config are needed only for gamma
// control; ConfigPath enables persisting it.
type Options struct {
	Engine     Engine
	Link       Link
	Mapper     *led.Mapper
	Config     *config.Config
	ConfigPath string
	// PatternHold is how many frames each pattern step is shown.
	PatternHold int
}

// Server implements diag.Sink; diagnostics are queued and broadcast to
// /diag clients by Run.
type Server struct {
	opts      Options
	startTime time.Time
	events    chan diag.Diagnostic
	upgrader  websocket.Upgrader

	mu          sync.RWMutex
	diagClients map[*websocket.Conn]bool
}

var _ diag.Sink = (*Server)(nil)

func NewServer(o Options) *Server {
	if o.PatternHold <= 0 {
		o.PatternHold = 15
	}
	return &Server{
		opts:        o,
		startTime:   time.Now(),
		events:      make(chan diag.Diagnostic, 64),
		upgrader:    websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		diagClients: map[*websocket.Conn]bool{},
	}
}

// SetEngine attaches the engine after construction, for when the engine
// itself needs the server as its diagnostics sink.
func (s *Server) SetEngine(e Engine) {
	s.mu.Lock()
	s.opts.Engine = e
	s.mu.Unlock()
}

// SetLink attaches the controller reported by /health.
func (s *Server) SetLink(l Link) {
	s.mu.Lock()
	s.opts.Link = l
	s.mu.Unlock()
}

func (s *Server) link() Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts.Link
}

func (s *Server) engine() Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts.Engine
}

// Emit queues d for broadcast, dropping it when the queue is full.
func (s *Server) Emit(d diag.Diagnostic) {
	if d.Time.IsZero() {
		d.Time = time.Now()
	}
	select {
	case s.events <- d:
	default:
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.HandleHealth)
	mux.HandleFunc("/diag", s.HandleDiagWS)
	mux.HandleFunc("/control", s.HandleControlWS)
	return mux
}

// Run broadcasts queued diagnostics until ctx is done.
func (s *Server) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.closeClients()
			return
		case d := <-s.events:
			s.broadcast(d)
		}
	}
}

// ListenAndServe serves Handler on addr and broadcasts diagnostics until
// ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go s.Run(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", addr).Msg("monitor listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Health is the /health document.
type Health struct {
	render.Status
	UptimeS    float64        `json:"uptime_s"`
	SessionID  string         `json:"session_id,omitempty"`
	Controller string         `json:"controller,omitempty"`
	DelayMS    *stats.Summary `json:"delay_ms,omitempty"`
}

func (s *Server) health() Health {
	h := Health{UptimeS: time.Since(s.startTime).Seconds()}
	if e := s.engine(); e != nil {
		h.Status = e.Status()
	}
	if l := s.link(); l != nil {
		d := l.DelaySummary()
		h.SessionID = l.SessionID()
		h.Controller = l.Address()
		h.DelayMS = &d
	}
	return h
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.health())
}

func (s *Server) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.diagClients[conn] = true
	s.mu.Unlock()
	go func() {
		defer s.dropClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) dropClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.diagClients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.diagClients {
		c.Close()
		delete(s.diagClients, c)
	}
}

// DiagClients is the number of connected /diag websockets.
func (s *Server) DiagClients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.diagClients)
}

func (s *Server) broadcast(d diag.Diagnostic) {
	b, err := json.Marshal(d)
	if err != nil {
		log.Debug().Err(err).Msg("marshal diagnostic")
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.diagClients {
		c.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Debug().Err(err).Msg("write diagnostic")
		}
	}
}
