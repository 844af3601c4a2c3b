package logging

import (
	"fmt"
	"os"
)

// These ease migration from the standard 'log' package in command-line tools.
// Prefer the explicitly leveled API, e.g. log.Error().

func (log *Logger) Fatal(v ...interface{}) {
	log.Log(Error, 1, "%s", fmt.Sprint(v...))
	os.Exit(1)
}

func (log *Logger) Fatalf(format string, v ...interface{}) {
	log.Log(Error, 1, format, v...)
	os.Exit(1)
}

func (log *Logger) Printf(format string, v ...interface{}) {
	log.Log(Info, 1, format, v...)
}
