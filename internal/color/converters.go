// Copyright 2019 Lanikai Labs. All rights reserved.

// Package color converts camera pixel layouts into RGB8 on the host, for
// formats the device cannot convert itself.
package color

import (
	"image/color"
)

// BayerRGToRGB demosaics an RGGB Bayer image into packed RGB8. Every 2x2
// cell is reconstructed from its own four samples, with the two greens
// averaged. dst must hold 3*w*h bytes.
func BayerRGToRGB(dst, src []byte, w, h int) {
	for y := 0; y < h; y += 2 {
		y1 := y + 1
		if y1 >= h {
			y1 = y
		}
		for x := 0; x < w; x += 2 {
			x1 := x + 1
			if x1 >= w {
				x1 = x
			}
			r := src[y*w+x]
			g := byte((int(src[y*w+x1]) + int(src[y1*w+x])) / 2)
			b := src[y1*w+x1]

			for _, p := range [4]int{y*w + x, y*w + x1, y1*w + x, y1*w + x1} {
				dst[3*p] = r
				dst[3*p+1] = g
				dst[3*p+2] = b
			}
		}
	}
}

// YUYVToRGB converts packed YUYV (YUY2) into packed RGB8. dst must hold
// 3*w*h bytes; w must be even.
func YUYVToRGB(dst, src []byte, w, h int) {
	for i, j := 0, 0; i+3 < len(src) && j+5 < len(dst); i, j = i+4, j+6 {
		y0, cb, y1, cr := src[i], src[i+1], src[i+2], src[i+3]
		dst[j], dst[j+1], dst[j+2] = color.YCbCrToRGB(y0, cb, cr)
		dst[j+3], dst[j+4], dst[j+5] = color.YCbCrToRGB(y1, cb, cr)
	}
}

// BGRToRGB swaps the first and third byte of every pixel.
func BGRToRGB(dst, src []byte) {
	for i := 0; i+2 < len(src); i += 3 {
		dst[i], dst[i+1], dst[i+2] = src[i+2], src[i+1], src[i]
	}
}
