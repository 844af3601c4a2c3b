// Package display shows composed frames and reports the keys pressed in the
// display: 'q' to quit, 's' to save.
package display

import (
	"image"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/multicam/internal/logging"
)

var log = logging.DefaultLogger.WithTag("display")

// A Command requested by the user.
type Command int

const (
	None Command = iota
	Quit
	Save
)

func (c Command) String() string {
	switch c {
	case Quit:
		return "quit"
	case Save:
		return "save"
	}
	return "none"
}

// KeyCommand maps a key press to a command.
func KeyCommand(key int) Command {
	switch key {
	case 'q', 'Q', 27: // Esc
		return Quit
	case 's', 'S':
		return Save
	}
	return None
}

// ParseCommand reads a typed command: "s" or "save", "q", "quit" or "exit".
func ParseCommand(s string) Command {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s", "save":
		return Save
	case "q", "quit", "exit":
		return Quit
	}
	return None
}

// A Display renders images. Poll waits up to wait for user input; it must be
// called from the goroutine that calls Show.
type Display interface {
	Show(img image.Image) error
	Poll(wait time.Duration) Command
	Close() error
}

// An Opener creates a display with a window title.
type Opener func(title string) (Display, error)

var (
	registry   = map[string]Opener{"none": openHeadless}
	registryMu sync.Mutex
)

func Register(kind string, open Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = open
}

// Kinds lists the available display kinds.
func Kinds() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	var kinds []string
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Open creates a display of the given kind ("none", "window").
func Open(kind, title string) (Display, error) {
	if kind == "" {
		kind = "none"
	}
	registryMu.Lock()
	open, ok := registry[kind]
	registryMu.Unlock()
	if !ok {
		return nil, errors.Errorf("display: '%s' not available (have %v)", kind, Kinds())
	}
	return open(title)
}

// Headless shows nothing and never reports a key.
type Headless struct {
	frames uint64
}

func openHeadless(title string) (Display, error) {
	log.Debug("Headless display for %s", title)
	return &Headless{}, nil
}

func (h *Headless) Show(img image.Image) error {
	h.frames++
	return nil
}

func (h *Headless) Poll(wait time.Duration) Command {
	time.Sleep(wait)
	return None
}

func (h *Headless) Close() error {
	return nil
}
