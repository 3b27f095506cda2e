package monitor

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/strandlight/internal/config"
	diag "github.com/coreman2200/strandlight/internal/diagnostics"
	"github.com/coreman2200/strandlight/internal/led"
)

// Control is one message on /control. Unset fields are ignored.
type Control struct {
	// Gamma applies one exponent to all channels.
	Gamma *float64 `json:"gamma,omitempty"`
	// GammaRanges sets per-channel curves.
	GammaRanges *config.Gamma `json:"gammaRanges,omitempty"`
	// RunPattern starts a calibration pattern by name.
	RunPattern  string `json:"runPattern,omitempty"`
	StopPattern bool   `json:"stopPattern,omitempty"`
}

// Reply acknowledges a Control message.
type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (s *Server) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		reply := Reply{OK: true}
		var msg Control
		if err := json.Unmarshal(data, &msg); err != nil {
			reply = Reply{Error: "bad control message: " + err.Error()}
		} else if err := s.applyControl(msg); err != nil {
			reply = Reply{Error: err.Error()}
		}
		b, _ := json.Marshal(reply)
		_ = conn.WriteMessage(websocket.TextMessage, b)
	}
}

func (s *Server) applyControl(msg Control) error {
	if msg.Gamma != nil {
		g := *msg.Gamma
		if err := s.setGamma(config.Gamma{R: led.FullRange(g), G: led.FullRange(g), B: led.FullRange(g)}); err != nil {
			return err
		}
	}
	if msg.GammaRanges != nil {
		if err := s.setGamma(*msg.GammaRanges); err != nil {
			return err
		}
	}
	eng := s.engine()
	if eng == nil {
		return nil
	}
	if msg.StopPattern {
		eng.StopPattern()
	}
	if msg.RunPattern != "" {
		if err := eng.RunPattern(msg.RunPattern, s.opts.PatternHold); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) setGamma(g config.Gamma) error {
	if s.opts.Mapper == nil {
		return nil
	}
	if err := s.opts.Mapper.SetGammaRanges(g.R, g.G, g.B); err != nil {
		s.Emit(diag.Diagnostic{
			Severity: diag.Warn, Code: diag.GammaRejected, Summary: "gamma update rejected",
			Detail: err.Error(),
		})
		return err
	}
	s.saveConfig(g)
	return nil
}

// saveConfig persists the gamma curves after a successful change.
func (s *Server) saveConfig(g config.Gamma) {
	if s.opts.ConfigPath == "" || s.opts.Config == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Config.Gamma = g
	if err := config.Save(s.opts.ConfigPath, s.opts.Config); err != nil {
		log.Warn().Err(err).Str("path", s.opts.ConfigPath).Msg("config save failed")
	}
}
