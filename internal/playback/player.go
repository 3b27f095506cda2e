// Package playback keeps the show timeline: which clip is current and how
// far into it playback is.
package playback

import (
	"errors"
	"math"
	"sync"
)

// Player owns a Program and a position within it. It is safe for
// concurrent use.
type Player struct {
	mu    sync.Mutex
	state State
	prog  Program
	nowS  float64 // position within program
	idx   int     // current clip index
	hooks Hooks
}

func NewPlayer(h Hooks) *Player {
	return &Player{state: Idle, hooks: h}
}

// Load replaces the program and resets to the start, Idle.
func (p *Player) Load(prog Program) error {
	if len(prog.Clips) == 0 {
		return errors.New("program has no clips")
	}
	for _, c := range prog.Clips {
		if c.Name == "" {
			return errors.New("clip without a name")
		}
		if !(c.DurationS > 0) {
			return errors.New("clip " + c.Name + " needs a positive duration")
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prog = prog
	p.nowS = 0
	p.idx = 0
	p.state = Idle
	return nil
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start moves to Running from Idle.
func (p *Player) Start() {
	p.mu.Lock()
	if p.state != Idle || len(p.prog.Clips) == 0 {
		p.mu.Unlock()
		return
	}
	p.state = Running
	name := p.prog.Clips[p.idx].Name
	p.mu.Unlock()
	p.clipChanged(name)
}

func (p *Player) Pause() {
	p.mu.Lock()
	if p.state == Running {
		p.state = Paused
	}
	p.mu.Unlock()
}

func (p *Player) Resume() {
	p.mu.Lock()
	if p.state == Paused {
		p.state = Running
	}
	p.mu.Unlock()
}

// Stop goes Idle and rewinds.
func (p *Player) Stop() {
	p.mu.Lock()
	p.state = Idle
	p.nowS = 0
	p.idx = 0
	p.mu.Unlock()
}

// Seek jumps to absolute program time t, clamped into [0, total).
func (p *Player) Seek(t float64) {
	p.mu.Lock()
	if len(p.prog.Clips) == 0 {
		p.mu.Unlock()
		return
	}
	if t < 0 {
		t = 0
	}
	if total := p.totalDuration(); t >= total {
		t = math.Nextafter(total, -1)
	}
	prev := p.idx
	p.nowS = t
	p.idx = p.indexAt(t)
	name, changed := p.prog.Clips[p.idx].Name, p.idx != prev
	p.mu.Unlock()
	if changed {
		p.clipChanged(name)
	}
}

// Tick advances a running player by dt seconds.
func (p *Player) Tick(dt float64) {
	p.mu.Lock()
	if p.state != Running || len(p.prog.Clips) == 0 || dt <= 0 {
		p.mu.Unlock()
		return
	}
	p.nowS += dt
	total := p.totalDuration()
	finished := false
	if p.nowS >= total {
		if p.prog.Loop {
			p.nowS = math.Mod(p.nowS, total)
		} else {
			p.nowS = total
			p.state = Idle
			finished = true
		}
	}
	prev := p.idx
	if !finished {
		p.idx = p.indexAt(p.nowS)
	}
	name, changed := p.prog.Clips[p.idx].Name, p.idx != prev
	p.mu.Unlock()

	if finished {
		if p.hooks.Finished != nil {
			p.hooks.Finished()
		}
		return
	}
	if changed {
		p.clipChanged(name)
	}
}

// Position reports the current clip and the seconds elapsed within it.
// ok is false unless the player is running or paused.
func (p *Player) Position() (clip string, elapsed float64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Idle || len(p.prog.Clips) == 0 {
		return "", 0, false
	}
	return p.prog.Clips[p.idx].Name, p.nowS - p.clipStart(p.idx), true
}

// Now is the absolute program time.
func (p *Player) Now() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nowS
}

func (p *Player) indexAt(t float64) int {
	acc := 0.0
	for i, c := range p.prog.Clips {
		if t < acc+c.DurationS {
			return i
		}
		acc += c.DurationS
	}
	return len(p.prog.Clips) - 1
}

func (p *Player) clipStart(idx int) float64 {
	acc := 0.0
	for i := 0; i < idx; i++ {
		acc += p.prog.Clips[i].DurationS
	}
	return acc
}

func (p *Player) totalDuration() float64 {
	total := 0.0
	for _, c := range p.prog.Clips {
		total += c.DurationS
	}
	return total
}

func (p *Player) clipChanged(name string) {
	if p.hooks.ClipChanged != nil {
		p.hooks.ClipChanged(name)
	}
}
