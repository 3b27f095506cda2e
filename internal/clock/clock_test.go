package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualSleepAdvances(t *testing.T) {
	start := time.Unix(1000, 0)
	c := NewManual(start)
	c.Sleep(1500 * time.Microsecond)
	c.Sleep(100 * time.Millisecond)

	assert.Equal(t, []time.Duration{1500 * time.Microsecond, 100 * time.Millisecond}, c.Sleeps())
	assert.Equal(t, start.Add(101500*time.Microsecond), c.Now())
	assert.Equal(t, int64(1000101), Millis(c.Now()))
}

func TestManualTicker(t *testing.T) {
	c := NewManual(time.Unix(0, 0))
	tk := c.NewTicker(10 * time.Millisecond)

	c.Advance(5 * time.Millisecond)
	select {
	case <-tk.C():
		t.Fatal("ticked early")
	default:
	}

	c.Advance(5 * time.Millisecond)
	select {
	case got := <-tk.C():
		assert.Equal(t, time.Unix(0, 0).Add(10*time.Millisecond), got)
	default:
		t.Fatal("expected tick")
	}

	tk.Reset(50 * time.Millisecond)
	require.Equal(t, 50*time.Millisecond, tk.(*ManualTicker).Period())
	c.Advance(40 * time.Millisecond)
	assert.Len(t, tk.C(), 0)
	c.Advance(10 * time.Millisecond)
	assert.Len(t, tk.C(), 1)

	<-tk.C()
	tk.Stop()
	c.Advance(time.Second)
	assert.Len(t, tk.C(), 0)
}
