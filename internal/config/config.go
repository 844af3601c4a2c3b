// Package config assembles a multicam.Config from, in increasing order of
// precedence: built-in defaults, an optional .env file, MULTICAM_*
// environment variables and command-line flags.
package config

import (
	"fmt"
	"image"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"

	"github.com/lanikai/multicam"
	"github.com/lanikai/multicam/internal/camera"
	"github.com/lanikai/multicam/internal/storage"
)

const (
	EnvPrefix = "MULTICAM_"

	// Feature list entry that stands for the default acquisition features.
	DefaultFeaturesToken = "default"
	NoFeaturesToken      = "none"
)

// ErrInvalid wraps every configuration error.
var ErrInvalid = errors.New("config: invalid")

// Settings are the loaded configuration and the flags that are not part of
// it.
type Settings struct {
	multicam.Config

	Help    bool
	Version bool
}

// Loader reads configuration. The zero value reads ".env" and the process
// environment.
type Loader struct {
	// .env file; a missing file is not an error. Defaults to ".env".
	EnvFile string

	// Environment lookup. Defaults to os.LookupEnv.
	Lookup func(key string) (string, bool)

	// Destination of flag parse errors. Defaults to stderr.
	Output io.Writer
}

// Load parses args (without the program name).
func Load(args []string) (*Settings, error) {
	return (&Loader{}).Load(args)
}

func (l *Loader) Load(args []string) (*Settings, error) {
	lookup, err := l.loadEnvFile()
	if err != nil {
		return nil, err
	}

	s := &Settings{Config: multicam.DefaultConfig()}
	e := &env{lookup: lookup}

	sources := e.list("SOURCES", ",", s.Sources)
	features := e.list("FEATURES", ";", nil)
	format := e.str("FORMAT", string(s.Format))
	tile := e.str("TILE", fmt.Sprintf("%dx%d", s.Tile.X, s.Tile.Y))
	s.Buffers = e.integer("BUFFERS", s.Buffers)
	s.Timeout = e.duration("TIMEOUT", s.Timeout)
	s.MaxTimeouts = e.integer("MAX_TIMEOUTS", s.MaxTimeouts)
	s.Tries = e.integer("TRIES", s.Tries)
	s.RetryInterval = e.duration("RETRY_INTERVAL", s.RetryInterval)
	s.Output = e.str("OUTPUT", s.Output)
	s.SaveComposite = e.boolean("SAVE_COMPOSITE", s.SaveComposite)
	s.Catalog = e.str("CATALOG", s.Catalog)
	s.Columns = e.integer("COLUMNS", s.Columns)
	s.Labels = e.boolean("LABELS", s.Labels)
	s.Display = e.str("DISPLAY", s.Display)
	s.Listen = e.str("LISTEN", s.Listen)
	s.Relay = e.str("RELAY", s.Relay)
	s.Refresh = e.duration("REFRESH", s.Refresh)
	if e.err != nil {
		return nil, e.err
	}

	fs := flag.NewFlagSet("multicamd", flag.ContinueOnError)
	fs.SetOutput(l.output())
	fs.Usage = func() {}
	fs.StringArrayVarP(&sources, "source", "s", sources, "Source spec driver:path (repeatable)")
	fs.IntVarP(&s.Buffers, "buffers", "n", s.Buffers, "Frame buffers per source")
	fs.DurationVar(&s.Timeout, "timeout", s.Timeout, "Frame pull timeout")
	fs.IntVar(&s.MaxTimeouts, "max-timeouts", s.MaxTimeouts, "Consecutive timeouts before a source is disconnected")
	fs.IntVar(&s.Tries, "tries", s.Tries, "Enumeration attempts")
	fs.DurationVar(&s.RetryInterval, "retry-interval", s.RetryInterval, "Wait between enumeration attempts")
	fs.StringArrayVarP(&features, "feature", "f", features, "Camera feature Name=Value (repeatable)")
	fs.StringVarP(&s.Output, "output", "o", s.Output, "Save directory")
	fs.StringVar(&format, "format", format, "Image format: png, jpg, tiff, bmp")
	fs.BoolVar(&s.SaveComposite, "save-composite", s.SaveComposite, "Also save the composite")
	fs.StringVar(&s.Catalog, "catalog", s.Catalog, "SQLite catalog of saved files")
	fs.StringVarP(&tile, "tile", "g", tile, "Tile size per source, WxH")
	fs.IntVar(&s.Columns, "columns", s.Columns, "Tiles per row")
	fs.BoolVar(&s.Labels, "labels", s.Labels, "Draw source and plane labels")
	fs.StringVar(&s.Display, "display", s.Display, "Display: none, window")
	fs.StringVar(&s.Listen, "listen", s.Listen, "Live view HTTP address")
	fs.StringVar(&s.Relay, "relay", s.Relay, "Multicast group ip:port to relay frames to")
	fs.DurationVar(&s.Refresh, "refresh", s.Refresh, "Composite refresh period")
	fs.BoolVarP(&s.Help, "help", "h", false, "Print usage information and exit")
	fs.BoolVarP(&s.Version, "version", "v", false, "Print version information and exit")

	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(ErrInvalid, err.Error())
	}
	if fs.NArg() > 0 {
		return nil, errors.Wrapf(ErrInvalid, "unexpected arguments %v", fs.Args())
	}
	if s.Help || s.Version {
		return s, nil
	}

	s.Sources = sources
	if s.Features, err = ParseFeatures(features); err != nil {
		return nil, errors.Wrap(ErrInvalid, err.Error())
	}
	if s.Format, err = storage.ParseFormat(format); err != nil {
		return nil, errors.Wrap(ErrInvalid, err.Error())
	}
	if s.Tile, err = ParseSize(tile); err != nil {
		return nil, errors.Wrap(ErrInvalid, err.Error())
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	switch {
	case len(s.Sources) == 0:
		return errors.Wrap(ErrInvalid, "no source given")
	case s.Buffers <= 0:
		return errors.Wrapf(ErrInvalid, "buffers must be positive, got %d", s.Buffers)
	case s.Timeout <= 0:
		return errors.Wrapf(ErrInvalid, "timeout must be positive, got %v", s.Timeout)
	case s.MaxTimeouts <= 0:
		return errors.Wrapf(ErrInvalid, "max-timeouts must be positive, got %d", s.MaxTimeouts)
	case s.Tries <= 0:
		return errors.Wrapf(ErrInvalid, "tries must be positive, got %d", s.Tries)
	case s.RetryInterval < 0:
		return errors.Wrapf(ErrInvalid, "negative retry interval %v", s.RetryInterval)
	case s.Columns < 0:
		return errors.Wrapf(ErrInvalid, "negative columns %d", s.Columns)
	case s.Refresh <= 0:
		return errors.Wrapf(ErrInvalid, "refresh must be positive, got %v", s.Refresh)
	}
	for _, spec := range s.Sources {
		if tag, _ := camera.SplitSpec(spec); tag == "" {
			return errors.Wrapf(ErrInvalid, "source %q has no driver", spec)
		}
	}
	return nil
}

// ParseFeatures parses a feature list. An empty list, or the entry
// "default", stands for camera.DefaultFeatures(); "none" alone configures
// nothing.
func ParseFeatures(list []string) ([]camera.Feature, error) {
	switch {
	case len(list) == 0:
		return camera.DefaultFeatures(), nil
	case len(list) == 1 && strings.TrimSpace(list[0]) == NoFeaturesToken:
		return nil, nil
	}
	var features []camera.Feature
	for _, s := range list {
		s = strings.TrimSpace(s)
		switch s {
		case "":
			continue
		case DefaultFeaturesToken:
			features = append(features, camera.DefaultFeatures()...)
			continue
		}
		f, err := camera.ParseFeature(s)
		if err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	return features, nil
}

// ParseSize parses "WxH", e.g. "612x512".
func ParseSize(s string) (image.Point, error) {
	parts := strings.SplitN(strings.ToLower(s), "x", 2)
	if len(parts) != 2 {
		return image.Point{}, errors.Errorf("config: size %q is not WxH", s)
	}
	w, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return image.Point{}, errors.Errorf("config: invalid size %q", s)
	}
	return image.Pt(w, h), nil
}

// loadEnvFile returns the lookup used for MULTICAM_* variables: the
// environment first, then the .env file.
func (l *Loader) loadEnvFile() (func(string) (string, bool), error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	path := l.EnvFile
	if path == "" {
		path = ".env"
	}
	values, err := godotenv.Read(path)
	if os.IsNotExist(err) {
		return lookup, nil
	}
	if err != nil {
		return nil, errors.Wrapf(ErrInvalid, "%s: %v", path, err)
	}
	return func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, ok
		}
		v, ok := values[key]
		return v, ok
	}, nil
}

func (l *Loader) output() io.Writer {
	if l.Output != nil {
		return l.Output
	}
	return os.Stderr
}

// env reads MULTICAM_* variables, keeping the first error.
type env struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *env) get(key string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *env) fail(key, value string, err error) {
	if e.err == nil {
		e.err = errors.Wrapf(ErrInvalid, "%s%s=%q: %v", EnvPrefix, key, value, err)
	}
}

func (e *env) str(key, def string) string {
	if v, ok := e.get(key); ok {
		return v
	}
	return def
}

func (e *env) list(key, sep string, def []string) []string {
	v, ok := e.get(key)
	if !ok {
		return def
	}
	var list []string
	for _, s := range strings.Split(v, sep) {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	return list
}

func (e *env) integer(key string, def int) int {
	v, ok := e.get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return n
}

func (e *env) boolean(key string, def bool) bool {
	v, ok := e.get(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v, ok := e.get(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return d
}
