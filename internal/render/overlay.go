package render

import (
	"context"

	"github.com/coreman2200/strandlight/internal/clock"
	diag "github.com/coreman2200/strandlight/internal/diagnostics"
	"github.com/coreman2200/strandlight/internal/patterns"
)

// RunPattern replaces clip frames with the named calibration pattern until
// it completes or StopPattern is called. Each pattern step is held for hold
// frames.
func (e *Engine) RunPattern(name string, hold int) error {
	p, err := e.reg.New(name)
	if err != nil {
		e.sink.Emit(diag.Diagnostic{
			Severity: diag.Warn, Code: diag.PatternUnknown, Summary: "unknown pattern name",
			Evidence: map[string]any{"name": name, "known": e.reg.List()},
		})
		return err
	}
	e.mu.Lock()
	e.overlay = patterns.NewRunner(p, hold)
	e.mu.Unlock()
	e.sink.Emit(diag.Diagnostic{Severity: diag.Info, Code: diag.PatternRunning, Summary: "running pattern", Detail: name})
	return nil
}

func (e *Engine) StopPattern() {
	e.mu.Lock()
	e.overlay = nil
	e.mu.Unlock()
}

func (e *Engine) activePattern() *patterns.Runner {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.overlay
}

func (e *Engine) tickPattern(ctx context.Context, r *patterns.Runner) error {
	img := r.Frame(e.layout)
	if img == nil {
		e.mu.Lock()
		if e.overlay == r {
			e.overlay = nil
		}
		e.mu.Unlock()
		e.sink.Emit(diag.Diagnostic{Severity: diag.Info, Code: diag.PatternDone, Summary: "pattern complete", Detail: r.Name()})
		return nil
	}
	return e.sendImage(ctx, img, clock.Millis(e.clk.Now()))
}
