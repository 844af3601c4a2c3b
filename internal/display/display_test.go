package display

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyCommand(t *testing.T) {
	assert.Equal(t, Quit, KeyCommand('q'))
	assert.Equal(t, Save, KeyCommand('s'))
	assert.Equal(t, None, KeyCommand(-1))
	assert.Equal(t, "save", Save.String())
}

func TestParseCommand(t *testing.T) {
	assert.Equal(t, Save, ParseCommand("s"))
	assert.Equal(t, Save, ParseCommand(" SAVE\n"))
	assert.Equal(t, Quit, ParseCommand("Exit"))
	assert.Equal(t, None, ParseCommand("stop"))
}

func TestHeadless(t *testing.T) {
	d, err := Open("none", "A || B")
	require.NoError(t, err)
	defer d.Close()

	assert.NoError(t, d.Show(image.NewRGBA(image.Rect(0, 0, 4, 4))))
	begin := time.Now()
	assert.Equal(t, None, d.Poll(5*time.Millisecond))
	assert.True(t, time.Since(begin) >= 5*time.Millisecond)
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open("hologram", "x")
	assert.Error(t, err)
	assert.Contains(t, Kinds(), "none")
}
