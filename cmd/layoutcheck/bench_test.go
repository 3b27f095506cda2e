package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/spi/spitest"

	"github.com/coreman2200/strandlight/internal/led"
)

func TestBenchStripShowsOneStrand(t *testing.T) {
	var buf bytes.Buffer
	b, err := newBench(spitest.NewRecordRaw(&buf), 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, b.dev.Bounds().Dx())

	before := buf.Len()
	var s led.Strands
	s[0] = []led.RGB{{255, 255, 255}, {255, 255, 255}}
	require.NoError(t, b.Show(&s))
	assert.Equal(t, before, buf.Len(), "other strands are ignored")

	s[3] = []led.RGB{{255, 0, 0}, {0, 0, 255}}
	require.NoError(t, b.Show(&s))
	assert.Greater(t, buf.Len(), before)

	require.NoError(t, b.Close())
}
