package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/strandlight/internal/clock"
)

func TestWindowEvictsOldest(t *testing.T) {
	clk := clock.NewManual(time.Unix(10, 0))
	w := NewWindow(3, clk)
	for i := 1; i <= 5; i++ {
		w.Add(float64(i))
		clk.Advance(time.Second)
	}
	assert.Equal(t, []float64{3, 4, 5}, w.Values())
	assert.Equal(t, time.Unix(12, 0), w.Earliest())
	assert.Equal(t, 3, w.Count())
}

func TestWindowMeanStdDev(t *testing.T) {
	w := NewWindow(10, nil)
	m, s := w.MeanStdDev()
	assert.Zero(t, m)
	assert.Zero(t, s)

	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		w.Add(v)
	}
	m, s = w.MeanStdDev()
	assert.InDelta(t, 5.0, m, 1e-9)
	assert.InDelta(t, 2.0, s, 1e-9)
}

func TestWindowQuantileAndSummary(t *testing.T) {
	w := NewWindow(100, nil)
	for i := 100; i >= 1; i-- {
		w.Add(float64(i))
	}
	assert.Equal(t, 95.0, w.Quantile(0.95))
	assert.Equal(t, 1.0, w.Quantile(0))

	s := w.Summary()
	assert.Equal(t, 100, s.Count)
	assert.InDelta(t, 50.5, s.Mean, 1e-9)
	assert.Equal(t, 95.0, s.P95)
	assert.Equal(t, 100.0, s.Max)
}

func TestWindowDrain(t *testing.T) {
	w := NewWindow(4, nil)
	require.Equal(t, []float64{}, w.Drain())
	w.Add(1.5)
	w.Add(-2)
	assert.Equal(t, []float64{1.5, -2}, w.Drain())
	assert.Zero(t, w.Count())
}
