// Package qr renders the signed address as a QR code, either as block
// characters for the terminal or as a PNG for the HTTP surface.
package qr

import (
	"errors"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 160

var ErrEmpty = errors.New("nothing to encode")

// Terminal returns text encoded with half-block characters, two modules per
// line, suitable for a monospace terminal.
func Terminal(text string) (string, error) {
	if text == "" {
		return "", ErrEmpty
	}
	code, err := qrcode.New(text, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return code.ToSmallString(false), nil
}

// PNG encodes text as a size x size image. A non-positive size falls back
// to DefaultSize.
func PNG(text string, size int) ([]byte, error) {
	if text == "" {
		return nil, ErrEmpty
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(text, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
