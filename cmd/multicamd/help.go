package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/lanikai/multicam/internal/camera"
	"github.com/lanikai/multicam/internal/display"
)

const helpString = `Synchronized acquisition from multiple cameras

Usage: multicamd [OPTION]...

Sources:
  -s, --source=SPEC        Source spec driver:path, repeatable (default: sim:2)
                             sim:N[?width=W&height=H&format=F&fps=R]
                             v4l2:[/dev/videoN]
                             aravis:[ID]          (built with -tags aravis)
                             webcam:[DEVICEID]    (built with -tags webcam)
                             udp:GROUP:PORT[?serial=A,B&wait=2s]
      --tries=NUM          Enumeration attempts (default: 6)
      --retry-interval=D   Wait between enumeration attempts (default: 10s)
  -f, --feature=F          Camera feature, repeatable: Name=Value, Name=max,
                             Name=min, Name! (command), ?Name=Value (optional).
                             "default" expands to the acquisition defaults,
                             "none" writes nothing (default: default)

Acquisition:
  -n, --buffers=NUM        Frame buffers per source (default: 10)
      --timeout=D          Frame pull timeout (default: 2s)
      --max-timeouts=NUM   Consecutive timeouts before a source counts as
                             disconnected (default: 10)
      --relay=GROUP:PORT   Relay every frame to a multicast group

Saving:
  -o, --output=DIR         Save directory (default: .)
      --format=FMT         png, jpg, tiff or bmp (default: png)
      --save-composite     Also save the composite image
      --catalog=FILE       Record saved files in a SQLite catalog

Display:
  -g, --tile=WxH           Tile size per source (default: 612x512)
      --columns=NUM        Tiles per row (default: all in one row)
      --labels             Draw source and plane labels (default: true)
      --display=KIND       none, or window (built with -tags gocv)
      --listen=ADDR        Serve a live view at http://ADDR/
      --refresh=D          Composite refresh period (default: 50ms)

Miscellaneous:
  -h, --help               Prints this help message and exits
  -v, --version            Prints version information and exits

Every option can also be set with a MULTICAM_* environment variable, e.g.
MULTICAM_SOURCES=sim:1,v4l2:/dev/video0 or MULTICAM_FEATURES="Gain=2;ExposureTime=5000",
or in a .env file. Log levels are set with LOGLEVEL, e.g. LOGLEVEL=debug,worker/*=trace.

Commands, typed in the terminal, the display window or the live view:
  s  Save the latest frame of every source
  q  Quit

Exit status: 0 on clean shutdown, 1 if no source could be opened, 2 on
invalid options, 3 if every source was lost.`

// "multicam" in figlet's standard font, one glyph per letter.
var banner = [][]string{
	{"           ", " _ __ ___  ", "| '_ ` _ \\ ", "| | | | | |", "|_| |_| |_|"}, // m
	{"       ", " _   _ ", "| | | |", "| |_| |", " \\__,_|"},                   // u
	{" _ ", "| |", "| |", "| |", "|_|"},                                         // l
	{" _   ", "| |_ ", "| __|", "| |_ ", " \\__|"},                             // t
	{" _ ", "(_)", "| |", "| |", "|_|"},                                         // i
	{"      ", "  ___ ", " / __|", "| (__ ", " \\___|"},                        // c
	{"       ", "  __ _ ", " / _` |", "| (_| |", " \\__,_|"},                   // a
	{"           ", " _ __ ___  ", "| '_ ` _ \\ ", "| | | | | |", "|_| |_| |_|"}, // m
}

// Help information is printed and program exits
func help() {
	colors := []*color.Color{
		color.New(color.FgRed),
		color.New(color.FgYellow),
		color.New(color.FgCyan),
	}

	for line := range banner[0] {
		for i, glyph := range banner {
			colors[i%len(colors)].Print(glyph[line])
		}
		fmt.Println()
	}

	fmt.Println(helpString)
}

func version() {
	rev := GitRevisionId
	if rev == "" {
		rev = "(devel)"
	}
	fmt.Println("multicamd", rev)
	fmt.Println("Copyright 2019 Lanikai Labs LLC. All rights reserved.")
	fmt.Println("Drivers:", strings.Join(camera.Drivers(), ", "))
	fmt.Println("Displays:", strings.Join(display.Kinds(), ", "))
}
