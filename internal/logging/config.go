package logging

import (
	"fmt"
	"os"
	"strings"
)

const envVar = "LOGLEVEL"

type tagLevel struct {
	tag   string
	level Level
}

var tagLevels []tagLevel

func init() {
	Configure(os.Getenv(envVar))
}

// Configure parses comma-separated "tag=level" directives. A directive
// without "tag=" sets the default level. Tags match exactly, or by prefix
// when the directive ends in '*' (e.g. "worker/*=debug").
func Configure(directives string) {
	tagLevels = nil
	defaultLevel = Info
	for _, d := range strings.Split(directives, ",") {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		v := strings.SplitN(d, "=", 2)
		level, err := ParseLevel(v[len(v)-1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid %s directive '%s': %s\n", envVar, d, err)
			continue
		}
		if len(v) == 1 {
			defaultLevel = level
		} else {
			tagLevels = append(tagLevels, tagLevel{v[0], level})
		}
	}

	DefaultLogger.Level = defaultLevel
}

func determineLevel(tag string, fallback Level) Level {
	for _, e := range tagLevels {
		if e.tag == tag {
			return e.level
		}
		if strings.HasSuffix(e.tag, "*") && strings.HasPrefix(tag, strings.TrimSuffix(e.tag, "*")) {
			return e.level
		}
	}
	return fallback
}
