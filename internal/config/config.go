// Package config loads and saves the YAML runtime configuration.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/strandlight/internal/framecache"
	"github.com/coreman2200/strandlight/internal/led"
	"github.com/coreman2200/strandlight/internal/playback"
	"github.com/coreman2200/strandlight/internal/tcl"
)

// Gamma holds one curve per colour channel.
type Gamma struct {
	R led.Range `yaml:"r" json:"r"`
	G led.Range `yaml:"g" json:"g"`
	B led.Range `yaml:"b" json:"b"`
}

type Config struct {
	ControllerID int    `yaml:"controller_id"`
	Address      string `yaml:"address,omitempty"` // default 192.168.60.(49+id):5000
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	FrameWidth   int    `yaml:"frame_width,omitempty"` // decoded clip width; defaults to Width
	FPS          int    `yaml:"fps"`

	LayoutPath  string                 `yaml:"layout_path"`
	ClipsDir    string                 `yaml:"clips_dir"`
	Clip        string                 `yaml:"clip,omitempty"`
	Composition framecache.Composition `yaml:"composition,omitempty"`
	Playlist    *playback.Program      `yaml:"playlist,omitempty"`

	Gamma       Gamma  `yaml:"gamma"`
	MonitorAddr string `yaml:"monitor_addr,omitempty"`
}

// Default returns the settings used when no file is present.
func Default() *Config {
	return &Config{
		Width:       512,
		Height:      64,
		FPS:         30,
		LayoutPath:  "layout.dxf",
		ClipsDir:    "clips",
		Composition: framecache.CompositionSplitSides,
		Gamma: Gamma{
			R: led.FullRange(led.DefaultGamma),
			G: led.FullRange(led.DefaultGamma),
			B: led.FullRange(led.DefaultGamma),
		},
		MonitorAddr: ":8080",
	}
}

// Load reads path over the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if err := c.Merge(path); err != nil {
		return nil, err
	}
	return c, nil
}

// Merge overwrites c with the keys present in path.
func (c *Config) Merge(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Validate checks the values the pipeline cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.ControllerID < 0 || c.ControllerID > 205 {
		errs = append(errs, fmt.Errorf("controller_id %d out of range", c.ControllerID))
	}
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("invalid size %dx%d", c.Width, c.Height))
	}
	if c.FPS <= 0 {
		errs = append(errs, fmt.Errorf("fps must be positive, got %d", c.FPS))
	}
	if c.LayoutPath == "" {
		errs = append(errs, errors.New("layout_path is required"))
	}
	if _, err := led.NewGammaTable(c.Gamma.R, c.Gamma.G, c.Gamma.B); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Rate is FPS as a frequency.
func (c *Config) Rate() physic.Frequency {
	return physic.Frequency(c.FPS) * physic.Hertz
}

// ControllerAddress resolves the default address when none is set.
func (c *Config) ControllerAddress() string {
	if c.Address != "" {
		return c.Address
	}
	return tcl.DefaultAddress(c.ControllerID)
}

// ClipWidth is the width of decoded clip frames.
func (c *Config) ClipWidth() int {
	if c.FrameWidth > 0 {
		return c.FrameWidth
	}
	if c.Composition == framecache.CompositionMirror {
		return c.Width / 2
	}
	return c.Width
}

// Program returns the playlist, or a single looping clip when only Clip is
// set. durationS applies to that single clip.
func (c *Config) Program(durationS float64) (playback.Program, error) {
	if c.Playlist != nil && len(c.Playlist.Clips) > 0 {
		return *c.Playlist, nil
	}
	if c.Clip == "" {
		return playback.Program{}, errors.New("neither playlist nor clip configured")
	}
	return playback.Program{Loop: true, Clips: []playback.Clip{{Name: c.Clip, DurationS: durationS}}}, nil
}
