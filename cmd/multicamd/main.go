package main

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/lanikai/multicam"
	"github.com/lanikai/multicam/internal/config"
	"github.com/lanikai/multicam/internal/dispatch"
	"github.com/lanikai/multicam/internal/display"
	"github.com/lanikai/multicam/internal/liveview"
	"github.com/lanikai/multicam/internal/logging"

	// Drivers. Hardware backends only register themselves when built with
	// their tag (aravis, webcam, gocv).
	_ "github.com/lanikai/multicam/internal/aravis"
	_ "github.com/lanikai/multicam/internal/camera/sim"
	_ "github.com/lanikai/multicam/internal/multicast"
	_ "github.com/lanikai/multicam/internal/v4l2"
	_ "github.com/lanikai/multicam/internal/webcam"
)

var log = logging.DefaultLogger.WithTag("multicamd")

// Populated via -ldflags="-X main.GitRevisionId=...".
var GitRevisionId string

// Exit codes.
const (
	exitOK = iota
	exitFailure
	exitConfig
	exitSourcesLost
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin))
}

func run(args []string, stdin io.Reader) int {
	settings, err := config.Load(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "Try 'multicamd --help' for more information.")
		return exitConfig
	}
	if settings.Help {
		help()
		return exitOK
	}
	if settings.Version {
		version()
		return exitOK
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	p, err := multicam.New(settings.Config)
	if err != nil {
		log.Error("%v", err)
		return exitFailure
	}

	if err := p.Open(ctx); err != nil {
		log.Error("%v", err)
		p.Shutdown()
		return exitCode(err)
	}
	if err := p.Start(); err != nil {
		if errors.Is(err, multicam.ErrAllSourcesLost) {
			log.Error("%v", err)
			p.Shutdown()
			return exitSourcesLost
		}
		log.Warn("%v", err)
	}

	disp, err := display.Open(settings.Display, p.Title())
	if err != nil {
		log.Error("%v", err)
		p.Shutdown()
		return exitConfig
	}

	d := &dispatch.Dispatcher{
		Target:  p,
		Display: disp,
		Inputs:  []<-chan display.Command{dispatch.Terminal(ctx, stdin)},
		Refresh: settings.Refresh,
	}

	if settings.Listen != "" {
		lv := liveview.New(p.Title())
		if err := lv.Listen(settings.Listen); err != nil {
			log.Error("%v", err)
			disp.Close()
			p.Shutdown()
			return exitFailure
		}
		defer lv.Close()
		d.Inputs = append(d.Inputs, lv.Commands())
		d.Publish = func(img *image.RGBA) { lv.Publish(img) }
	}

	log.Info("Streaming %d sources. Type 's' to save, 'q' to quit.", p.Streaming())
	return exitCode(d.Run(ctx))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, multicam.ErrAllSourcesLost):
		return exitSourcesLost
	case errors.Is(err, config.ErrInvalid):
		return exitConfig
	}
	// Enumeration failures (camera.ErrDeviceUnavailable, multicam.ErrNoSources)
	// and everything else.
	return exitFailure
}
