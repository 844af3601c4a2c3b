package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for s, want := range map[string]Level{
		"e": Error, "WARN": Warn, "info": Info, "D": Debug, "trace": MaxLevel, "5": Level(5),
	} {
		got, err := ParseLevel(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
	_, err = ParseLevel("12")
	assert.Error(t, err)
}

func TestLogLevelFiltering(t *testing.T) {
	color.NoColor = true

	var out bytes.Buffer
	log := New(&out, Info).WithTag("worker/A1")
	log.Debug("hidden %d", 1)
	log.Info("shown %d", 2)

	s := out.String()
	assert.NotContains(t, s, "hidden")
	assert.Contains(t, s, "I/worker/A1[logger_test.go:")
	assert.True(t, strings.HasSuffix(s, "shown 2\n"))
}

func TestConfigureTagPrefix(t *testing.T) {
	defer Configure("")

	Configure("warn,worker/*=debug")
	assert.Equal(t, Debug, determineLevel("worker/123", Info))
	assert.Equal(t, Info, determineLevel("storage", Info))
	assert.Equal(t, Warn, DefaultLogger.Level)
}
