// Command layoutcheck loads a DXF layout, prints its strands and plays a
// calibration pattern on the terminal and, with -send, on the controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/extra/devices/screen"

	"github.com/coreman2200/strandlight/internal/clock"
	"github.com/coreman2200/strandlight/internal/layout"
	"github.com/coreman2200/strandlight/internal/led"
	"github.com/coreman2200/strandlight/internal/patterns"
	"github.com/coreman2200/strandlight/internal/preview"
	"github.com/coreman2200/strandlight/internal/tcl"
)

func main() {
	var (
		layoutPath = flag.String("layout", "layout.dxf", "DXF layout file")
		width      = flag.Int("width", 512, "screen width in pixels")
		height     = flag.Int("height", 64, "screen height in pixels")
		maskPath   = flag.String("mask", "", "write the layout mask PNG here")
		pattern    = flag.String("pattern", "", "calibration pattern to play")
		fps        = flag.Int("fps", 2, "pattern frames per second")
		gamma      = flag.Float64("gamma", 1, "gamma exponent")
		send       = flag.Bool("send", false, "also send the pattern to the controller")
		controller = flag.Int("controller", 0, "controller id for -send")
		list       = flag.Bool("list", false, "list the available patterns")
		benchPort  = flag.String("bench-spi", "", "mirror -bench-strand on an NRZ strip at this SPI port (\"default\" for the first one)")
		benchID    = flag.Int("bench-strand", 0, "strand shown on the bench strip")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	reg := patterns.Builtins()
	if *list {
		for _, n := range reg.List() {
			fmt.Println(n)
		}
		return
	}

	l, err := layout.Load(*layoutPath, *width, *height)
	if err != nil {
		log.Fatal().Err(err).Str("path", *layoutPath).Msg("layout load failed")
	}
	for _, s := range l.Strands() {
		if s.Len() == 0 {
			fmt.Printf("strand %d: empty\n", s.ID())
			continue
		}
		first, last := s.At(0), s.At(s.Len()-1)
		fmt.Printf("strand %d: %4d leds  first=(%d,%d) last=(%d,%d)\n", s.ID(), s.Len(), first.X, first.Y, last.X, last.Y)
	}
	fmt.Printf("%d leds on %d strands\n", l.LEDCount(), len(l.Strands()))

	if *maskPath != "" {
		if err := writeMask(*maskPath, l); err != nil {
			log.Fatal().Err(err).Msg("mask")
		}
	}
	if *pattern == "" {
		return
	}

	p, err := reg.New(*pattern)
	if err != nil {
		log.Fatal().Err(err).Msg("pattern")
	}
	mapper, err := led.NewMapper(*gamma)
	if err != nil {
		log.Fatal().Err(err).Msg("gamma")
	}

	var ctrl *tcl.Controller
	if *send {
		ctrl = tcl.NewController(tcl.Options{ID: *controller})
		defer ctrl.Close()
	}

	var bench *benchStrip
	if *benchPort != "" {
		port := *benchPort
		if port == "default" {
			port = ""
		}
		s := l.Strand(*benchID)
		if s == nil || s.Len() == 0 {
			log.Fatal().Int("strand", *benchID).Msg("bench strand not in layout")
		}
		if bench, err = openBench(port, *benchID, s.Len()); err != nil {
			log.Fatal().Err(err).Msg("bench strip")
		}
		defer bench.Close()
	}

	con := preview.New(os.Stdout, func(n int) preview.Drawer { return screen.New(n) })
	defer con.Halt()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := patterns.NewRunner(p, 1)
	tk := time.NewTicker(time.Second / time.Duration(max(*fps, 1)))
	defer tk.Stop()
	for {
		img := runner.Frame(l)
		if img == nil {
			return
		}
		strands, err := mapper.MapImageToStrands(img, l)
		if err != nil {
			log.Fatal().Err(err).Msg("map")
		}
		if err := con.Show(strands); err != nil {
			log.Fatal().Err(err).Msg("preview")
		}
		if bench != nil {
			if err := bench.Show(strands); err != nil {
				log.Error().Err(err).Msg("bench strip")
			}
		}
		if ctrl != nil {
			if err := ctrl.SendFrame(ctx, tcl.EncodeFrame(strands), clock.Millis(time.Now())); err != nil {
				log.Error().Err(err).Msg("send")
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
		}
	}
}

func writeMask(path string, l *layout.Layout) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, l.Mask(0xFF)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
