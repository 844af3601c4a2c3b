//////////////////////////////////////////////////////////////////////////////
//
// Config contains configuration data for Pipeline
//
// Copyright 2019 Lanikai Labs. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package multicam

import (
	"image"
	"time"

	"github.com/lanikai/multicam/internal/camera"
	"github.com/lanikai/multicam/internal/compositor"
	"github.com/lanikai/multicam/internal/media"
	"github.com/lanikai/multicam/internal/storage"
	"github.com/lanikai/multicam/internal/worker"
)

const (
	DefaultTries         = 6
	DefaultRetryInterval = 10 * time.Second
)

type Config struct {
	// Source specs of the form "driver:path", e.g. "sim:2", "v4l2:/dev/video0"
	// or "udp:239.0.0.1:5000".
	Sources []string

	// FrameBufferPool capacity per source.
	Buffers int

	// Pull timeout, and consecutive timeouts tolerated before a source is
	// considered disconnected.
	Timeout     time.Duration
	MaxTimeouts int

	// Enumeration attempts, RetryInterval apart.
	Tries         int
	RetryInterval time.Duration

	// Features written to every writable source before streaming.
	Features []camera.Feature

	// Save root; each source saves under Output/{Model}-{Serial}.
	Output        string
	Format        storage.Format
	SaveComposite bool

	// SQLite catalog of saved files. Disabled when empty.
	Catalog string

	// Composite layout.
	Tile    image.Point
	Columns int
	Labels  bool

	// Display kind ("none", "window"), live view address and multicast relay
	// group. Empty disables the live view and the relay.
	Display string
	Listen  string
	Relay   string

	// Dispatcher refresh period of the composite.
	Refresh time.Duration
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Sources:       []string{"sim:2"},
		Buffers:       media.DefaultPoolSize,
		Timeout:       worker.DefaultTimeout,
		MaxTimeouts:   worker.DefaultMaxTimeouts,
		Tries:         DefaultTries,
		RetryInterval: DefaultRetryInterval,
		Features:      camera.DefaultFeatures(),
		Output:        ".",
		Format:        storage.PNG,
		Tile:          compositor.DefaultTile,
		Labels:        true,
		Display:       "none",
		Refresh:       50 * time.Millisecond,
	}
}

func (cfg Config) withDefaults() Config {
	def := DefaultConfig()
	if cfg.Buffers <= 0 {
		cfg.Buffers = def.Buffers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxTimeouts <= 0 {
		cfg.MaxTimeouts = def.MaxTimeouts
	}
	if cfg.Tries <= 0 {
		cfg.Tries = 1
	}
	if cfg.Output == "" {
		cfg.Output = def.Output
	}
	if cfg.Format == "" {
		cfg.Format = def.Format
	}
	if cfg.Tile.X <= 0 || cfg.Tile.Y <= 0 {
		cfg.Tile = def.Tile
	}
	if cfg.Refresh <= 0 {
		cfg.Refresh = def.Refresh
	}
	return cfg
}
