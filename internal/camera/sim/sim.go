// Package sim provides synthetic cameras. They behave like networked
// cameras (writable nodemap, circular buffer pool, chunk data, disconnects)
// and are used for demos and tests.
package sim

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/multicam/internal/camera"
	"github.com/lanikai/multicam/internal/logging"
	"github.com/lanikai/multicam/internal/media"
)

var log = logging.DefaultLogger.WithTag("sim")

const (
	Model  = "SIM-CAM"
	Vendor = "Lanikai"

	maxWidth  = 1224
	maxHeight = 1024
)

func init() {
	camera.RegisterDriver("sim", &Driver{})
}

// Config controls a synthetic camera.
type Config struct {
	// Sensor geometry after configuration. Zero means the sensor maximum
	// once Width=max / Height=max is applied, 64x48 otherwise.
	Width  int
	Height int

	Format media.PixelFormat

	// Time between frames. Ignored when Gate is set.
	Interval time.Duration

	// Frames to emit, in order. When exhausted the camera goes quiet.
	// Each entry must have Format.FrameSize(Width, Height) bytes. When
	// empty, a moving test pattern is generated.
	Script [][]byte

	// If set, one frame is emitted per value received.
	Gate <-chan struct{}

	// Returned by Start, to simulate a camera that cannot stream.
	StartErr error

	// Reject writes to these features.
	Reject map[string]bool

	// Report a disconnect after this many frames (0 = never).
	DisconnectAfter int

	// Attach chunk data to each buffer.
	Chunks bool
}

func (cfg Config) withDefaults() Config {
	if cfg.Width <= 0 {
		cfg.Width = 64
	}
	if cfg.Height <= 0 {
		cfg.Height = 48
	}
	if cfg.Format == "" {
		cfg.Format = media.Mono8
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 33 * time.Millisecond
	}
	return cfg
}

// Driver enumerates synthetic cameras. The path is a device count followed
// by optional settings, e.g. "sim:2?format=Mono8&width=320&height=240&fps=15".
type Driver struct {
	// Base configuration for enumerated cameras; path settings override it.
	Config Config

	mu      sync.Mutex
	configs map[string]Config
}

func (d *Driver) Enumerate(path string) ([]camera.DeviceInfo, error) {
	count, cfg, err := d.parse(path)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.configs == nil {
		d.configs = make(map[string]Config)
	}

	infos := make([]camera.DeviceInfo, count)
	for i := range infos {
		serial := fmt.Sprintf("SIM%06d", i+1)
		infos[i] = camera.DeviceInfo{
			ID:      serial,
			Serial:  serial,
			Model:   Model,
			Vendor:  Vendor,
			Address: fmt.Sprintf("169.254.0.%d", i+1),
		}
		d.configs[serial] = cfg
	}
	return infos, nil
}

func (d *Driver) Open(info camera.DeviceInfo) (camera.Source, error) {
	d.mu.Lock()
	cfg, ok := d.configs[info.ID]
	d.mu.Unlock()
	if !ok {
		cfg = d.Config
	}
	return New(info, cfg), nil
}

func (d *Driver) parse(path string) (int, Config, error) {
	cfg := d.Config
	countStr, query := path, ""
	if i := strings.IndexByte(path, '?'); i >= 0 {
		countStr, query = path[:i], path[i+1:]
	}

	count := 1
	if countStr != "" {
		n, err := strconv.Atoi(countStr)
		if err != nil || n < 0 {
			return 0, cfg, errors.Errorf("sim: invalid device count %q", countStr)
		}
		count = n
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return 0, cfg, errors.Wrap(err, "sim: invalid settings")
	}
	for key := range values {
		v := values.Get(key)
		switch key {
		case "format":
			cfg.Format = media.PixelFormat(v)
		case "width":
			cfg.Width, err = strconv.Atoi(v)
		case "height":
			cfg.Height, err = strconv.Atoi(v)
		case "fps":
			var fps float64
			if fps, err = strconv.ParseFloat(v, 64); err == nil && fps > 0 {
				cfg.Interval = time.Duration(float64(time.Second) / fps)
			}
		case "chunks":
			cfg.Chunks, err = strconv.ParseBool(v)
		case "disconnect":
			cfg.DisconnectAfter, err = strconv.Atoi(v)
		default:
			return 0, cfg, errors.Errorf("sim: unknown setting %q", key)
		}
		if err != nil {
			return 0, cfg, errors.Wrapf(err, "sim: setting %s", key)
		}
	}
	return count, cfg, nil
}
