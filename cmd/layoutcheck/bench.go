package main

import (
	"fmt"
	"image"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"

	"github.com/coreman2200/strandlight/internal/led"
	"github.com/coreman2200/strandlight/internal/preview"
)

// benchStrip mirrors one strand onto an NRZ strip wired to a local SPI
// port, for checking colours on the bench without the controller.
type benchStrip struct {
	strand int
	port   spi.PortCloser
	dev    *nrzled.Dev
}

func openBench(spiPort string, strand, leds int) (*benchStrip, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	p, err := spireg.Open(spiPort)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", spiPort, err)
	}
	b, err := newBench(p, strand, leds)
	if err != nil {
		p.Close()
		return nil, err
	}
	return b, nil
}

func newBench(p spi.PortCloser, strand, leds int) (*benchStrip, error) {
	d, err := nrzled.NewSPI(p, &nrzled.Opts{
		NumPixels: leds,
		Channels:  3,
		Freq:      2500 * physic.KiloHertz,
	})
	if err != nil {
		return nil, err
	}
	return &benchStrip{strand: strand, port: p, dev: d}, nil
}

func (b *benchStrip) Show(s *led.Strands) error {
	px := s[b.strand]
	if len(px) == 0 {
		return nil
	}
	return b.dev.Draw(b.dev.Bounds(), preview.Strip(px), image.Point{})
}

func (b *benchStrip) Close() error {
	_ = b.dev.Halt()
	return b.port.Close()
}
