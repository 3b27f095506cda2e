// Package stats keeps bounded rolling windows of timing samples.
package stats

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/coreman2200/strandlight/internal/clock"
)

// Window holds the most recent samples, oldest first. It is safe for
// concurrent use.
type Window struct {
	mu     sync.Mutex
	clk    clock.Clock
	max    int
	values []float64
	times  []time.Time
}

// NewWindow returns a window of at most max samples. A nil clock uses wall time.
func NewWindow(max int, clk clock.Clock) *Window {
	if max < 1 {
		max = 1
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Window{clk: clk, max: max}
}

// Add appends v, evicting the oldest sample when full.
func (w *Window) Add(v float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.values) == w.max {
		w.values = w.values[1:]
		w.times = w.times[1:]
	}
	w.values = append(w.values, v)
	w.times = append(w.times, w.clk.Now())
}

// Reset drops every sample.
func (w *Window) Reset() {
	w.mu.Lock()
	w.values, w.times = nil, nil
	w.mu.Unlock()
}

// Drain returns the samples and empties the window.
func (w *Window) Drain() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.values
	w.values, w.times = nil, nil
	if out == nil {
		out = []float64{}
	}
	return out
}

// Values returns a copy of the samples, oldest first.
func (w *Window) Values() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]float64{}, w.values...)
}

func (w *Window) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.values)
}

// Earliest is the time of the oldest sample, or now when empty.
func (w *Window) Earliest() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.times) == 0 {
		return w.clk.Now()
	}
	return w.times[0]
}

// Mean is 0 for an empty window.
func (w *Window) Mean() float64 {
	m, _ := w.MeanStdDev()
	return m
}

// MeanStdDev returns the mean and population standard deviation.
func (w *Window) MeanStdDev() (mean, std float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.values) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(w.values, nil)
}

// Quantile returns the empirical p-quantile (0 <= p <= 1), 0 when empty.
func (w *Window) Quantile(p float64) float64 {
	vals := w.Values()
	if len(vals) == 0 {
		return 0
	}
	sort.Float64s(vals)
	return stat.Quantile(p, stat.Empirical, vals, nil)
}

// Summary is a point-in-time digest for logs and the monitor.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	P95    float64 `json:"p95"`
	Max    float64 `json:"max"`
}

func (w *Window) Summary() Summary {
	vals := w.Values()
	if len(vals) == 0 {
		return Summary{}
	}
	sort.Float64s(vals)
	mean, std := stat.PopMeanStdDev(vals, nil)
	return Summary{
		Count:  len(vals),
		Mean:   mean,
		StdDev: std,
		P95:    stat.Quantile(0.95, stat.Empirical, vals, nil),
		Max:    vals[len(vals)-1],
	}
}
