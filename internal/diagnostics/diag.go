// Package diagnostics carries structured operator-facing events from the
// pipeline to whoever is listening (logs, the monitor websocket, tests).
package diagnostics

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

// Event codes.
const (
	CacheBehind    = "CACHE.BEHIND"
	CacheAhead     = "CACHE.AHEAD"
	CacheSkipped   = "CACHE.SKIPPED"
	FrameSize      = "FRAME.SIZE"
	SendFailed     = "TCL.SEND_FAILED"
	GammaRejected  = "GAMMA.REJECTED"
	PatternRunning = "PATTERN.RUNNING"
	PatternDone    = "PATTERN.DONE"
	PatternUnknown = "PATTERN.UNKNOWN"
)

type Diagnostic struct {
	Time           time.Time      `json:"time"`
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
}

// Sink receives diagnostics. Emit must not block the render loop.
type Sink interface {
	Emit(d Diagnostic)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Emit(Diagnostic) {}

// Log writes diagnostics to a zerolog logger at a matching level.
type Log struct{ L zerolog.Logger }

func (s Log) Emit(d Diagnostic) {
	var ev *zerolog.Event
	switch d.Severity {
	case Err:
		ev = s.L.Error()
	case Warn:
		ev = s.L.Warn()
	default:
		ev = s.L.Info()
	}
	if d.Detail != "" {
		ev = ev.Str("detail", d.Detail)
	}
	if len(d.Evidence) > 0 {
		ev = ev.Fields(d.Evidence)
	}
	ev.Str("code", d.Code).Msg(d.Summary)
}

// Fanout emits to every sink in order.
type Fanout []Sink

func (f Fanout) Emit(d Diagnostic) {
	for _, s := range f {
		s.Emit(d)
	}
}

// Recorder keeps the last N diagnostics in memory.
type Recorder struct {
	mu     sync.Mutex
	max    int
	events []Diagnostic
}

func NewRecorder(max int) *Recorder { return &Recorder{max: max} }

func (r *Recorder) Emit(d Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 && len(r.events) == r.max {
		r.events = r.events[1:]
	}
	r.events = append(r.events, d)
}

// Events returns a copy, oldest first.
func (r *Recorder) Events() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Diagnostic(nil), r.events...)
}

// Codes lists the recorded codes, oldest first.
func (r *Recorder) Codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Code
	}
	return out
}
