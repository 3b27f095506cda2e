package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/coreman2200/strandlight/internal/clock"
	"github.com/coreman2200/strandlight/internal/config"
	diag "github.com/coreman2200/strandlight/internal/diagnostics"
	"github.com/coreman2200/strandlight/internal/framecache"
	"github.com/coreman2200/strandlight/internal/layout"
	"github.com/coreman2200/strandlight/internal/led"
	"github.com/coreman2200/strandlight/internal/monitor"
	"github.com/coreman2200/strandlight/internal/playback"
	"github.com/coreman2200/strandlight/internal/render"
	"github.com/coreman2200/strandlight/internal/tcl"
)

func main() {
	// ---- Flags (config.yaml overrides them) ----
	var (
		configPath   = flag.String("config", "config.yaml", "path to config.yaml")
		controllerID = flag.Int("controller", 0, "controller id; address defaults to 192.168.60.(49+id):5000")
		address      = flag.String("address", "", "controller host:port, overrides the id-derived address")
		width        = flag.Int("width", 512, "screen width in pixels")
		height       = flag.Int("height", 64, "screen height in pixels")
		fps          = flag.Int("fps", 30, "frames per second")
		layoutPath   = flag.String("layout", "layout.dxf", "DXF layout file")
		clipsDir     = flag.String("clips", "clips", "directory of decoded clip frames")
		clip         = flag.String("clip", "", "clip to loop when no playlist is configured")
		clipDuration = flag.Float64("clip-duration", 60, "loop length (s) of -clip")
		composition  = flag.String("composition", "split_sides", "frame composition: split_sides | mirror | none")
		gamma        = flag.Float64("gamma", led.DefaultGamma, "gamma exponent for all channels")
		monitorAddr  = flag.String("monitor", ":8080", "monitor HTTP listen address, empty to disable")
		pattern      = flag.String("pattern", "", "run a calibration pattern before the clips")
		statsEvery   = flag.Duration("stats-every", 10*time.Second, "frame delay report interval")
		debug        = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// ---- Effective config: flags, then config.yaml on top ----
	cfg := config.Default()
	cfg.ControllerID = *controllerID
	cfg.Address = *address
	cfg.Width, cfg.Height, cfg.FPS = *width, *height, *fps
	cfg.LayoutPath, cfg.ClipsDir, cfg.Clip = *layoutPath, *clipsDir, *clip
	cfg.Composition = framecache.Composition(*composition)
	cfg.Gamma = config.Gamma{R: led.FullRange(*gamma), G: led.FullRange(*gamma), B: led.FullRange(*gamma)}
	cfg.MonitorAddr = *monitorAddr
	if err := cfg.Merge(*configPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Info().Str("path", *configPath).Msg("no config file; using flags")
		} else {
			log.Fatal().Err(err).Str("path", *configPath).Msg("config load failed")
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// ---- Pipeline ----
	l, err := layout.Load(cfg.LayoutPath, cfg.Width, cfg.Height)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.LayoutPath).Msg("layout load failed")
	}
	log.Info().Int("strands", len(l.Strands())).Int("leds", l.LEDCount()).Msg("layout loaded")

	mapper, err := led.NewMapper(led.DefaultGamma)
	if err != nil {
		log.Fatal().Err(err).Msg("mapper")
	}
	if err := mapper.SetGammaRanges(cfg.Gamma.R, cfg.Gamma.G, cfg.Gamma.B); err != nil {
		log.Fatal().Err(err).Msg("gamma")
	}

	clk := clock.Real{}
	mon := monitor.NewServer(monitor.Options{Mapper: mapper, Config: cfg, ConfigPath: *configPath})
	sink := diag.Fanout{diag.Log{L: log.With().Str("component", "diag").Logger()}, mon}

	ctrl := tcl.NewController(tcl.Options{ID: cfg.ControllerID, Address: cfg.ControllerAddress(), Clock: clk})
	mon.SetLink(ctrl)

	loader, err := framecache.NewFileLoader(cfg.ClipsDir, cfg.ClipWidth(), cfg.Height, cfg.Width, cfg.Composition)
	if err != nil {
		log.Fatal().Err(err).Msg("frame loader")
	}
	cache := framecache.New(cfg.FPS, loader, framecache.WithClock(clk), framecache.WithDiagnostics(sink))

	eng, err := render.NewEngine(render.Config{
		Layout:    l,
		Mapper:    mapper,
		Cache:     cache,
		Transport: ctrl,
		FPS:       cfg.Rate(),
		Clock:     clk,
		Sink:      sink,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("engine")
	}
	mon.SetEngine(eng)

	prog, err := cfg.Program(*clipDuration)
	if err != nil {
		log.Fatal().Err(err).Msg("nothing to play")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	player := playback.NewPlayer(playback.Hooks{
		ClipChanged: func(name string) { log.Info().Str("clip", name).Msg("clip") },
		Finished: func() {
			log.Info().Msg("playlist finished")
			stop()
		},
	})
	if err := player.Load(prog); err != nil {
		log.Fatal().Err(err).Msg("playlist")
	}
	if *pattern != "" {
		if err := eng.RunPattern(*pattern, max(cfg.FPS/2, 1)); err != nil {
			log.Fatal().Err(err).Msg("pattern")
		}
	}
	player.Start()

	// ---- Run ----
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx, player) })
	g.Go(func() error {
		reportDelays(gctx, ctrl, *statsEvery)
		return nil
	})
	if cfg.MonitorAddr != "" {
		g.Go(func() error { return mon.ListenAndServe(gctx, cfg.MonitorAddr) })
	}
	log.Info().Str("controller", ctrl.Address()).Int("fps", cfg.FPS).Msg("running")

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("stopped with error")
	}
	log.Info().Uint64("frames", ctrl.FramesSent()).Msg("shutting down")
	_ = ctrl.Close()
}

// reportDelays logs the frame delays recorded since the previous report.
func reportDelays(ctx context.Context, ctrl *tcl.Controller, every time.Duration) {
	if every <= 0 {
		return
	}
	tk := time.NewTicker(every)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			d := ctrl.FrameDelays()
			if len(d) == 0 {
				continue
			}
			mean, std := stat.PopMeanStdDev(d, nil)
			log.Info().
				Int("frames", len(d)).
				Float64("mean_ms", mean).
				Float64("std_ms", std).
				Float64("min_ms", floats.Min(d)).
				Float64("max_ms", floats.Max(d)).
				Msg("frame delays")
		}
	}
}
