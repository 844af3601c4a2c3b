package storage

import (
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Format is an image file format.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpg"
	TIFF Format = "tiff"
	BMP  Format = "bmp"
)

var encoders = map[Format]func(io.Writer, image.Image) error{
	PNG: png.Encode,
	JPEG: func(w io.Writer, img image.Image) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	},
	TIFF: func(w io.Writer, img image.Image) error {
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	},
	BMP: bmp.Encode,
}

// ParseFormat accepts a format name or common file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "png", "":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "tif", "tiff":
		return TIFF, nil
	case "bmp":
		return BMP, nil
	}
	return "", ErrUnknownFormat
}

// Ext is the file extension, without the dot.
func (f Format) Ext() string {
	return string(f)
}

// Encode writes img in this format.
func (f Format) Encode(w io.Writer, img image.Image) error {
	enc, ok := encoders[f]
	if !ok {
		return ErrUnknownFormat
	}
	return enc(w, img)
}
