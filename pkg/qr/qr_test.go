package qr

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addr = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

func TestTerminal(t *testing.T) {
	out, err := Terminal(addr)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Greater(t, len(lines), 10)
	assert.Contains(t, out, "█")
}

func TestPNG(t *testing.T) {
	data, err := PNG(addr, 200)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
}

func TestPNG_DefaultSize(t *testing.T) {
	data, err := PNG(addr, 0)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultSize, img.Bounds().Dx())
}

func TestEmpty(t *testing.T) {
	_, err := Terminal("")
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = PNG("", 100)
	assert.ErrorIs(t, err, ErrEmpty)
}
