// pixels.go: Pixel buffer codec used by the steganography operations.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"bytes"
	"image"
	"image/draw"
	"image/png"
)

// PixelBuffer is a decoded image as non-premultiplied RGBA bytes, four per
// pixel, row-major.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// Capacity returns how many payload bytes fit in the buffer at one bit per
// channel byte.
func (b *PixelBuffer) Capacity() int {
	return len(b.Pix) / 8
}

// PixelCodec converts between encoded images and pixel buffers. The encoding
// must be lossless or embedded bits are destroyed.
type PixelCodec interface {
	Decode(data []byte) (*PixelBuffer, error)
	Encode(buf *PixelBuffer) ([]byte, error)
}

// PNGCodec is the default PixelCodec.
type PNGCodec struct{}

// Decode implements PixelCodec.
func (PNGCodec) Decode(data []byte) (*PixelBuffer, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, wrapError(ErrInvalidInput, err, ErrCodeInvalidInput, "failed to decode PNG")
	}
	bounds := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Stride != 4*bounds.Dx() || bounds.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)
	}
	return &PixelBuffer{Width: bounds.Dx(), Height: bounds.Dy(), Pix: nrgba.Pix}, nil
}

// Encode implements PixelCodec.
func (PNGCodec) Encode(buf *PixelBuffer) ([]byte, error) {
	if buf == nil || buf.Width <= 0 || buf.Height <= 0 || len(buf.Pix) != 4*buf.Width*buf.Height {
		return nil, newError(ErrInvalidInput, ErrCodeInvalidInput, "pixel buffer does not match its dimensions")
	}
	img := &image.NRGBA{
		Pix:    buf.Pix,
		Stride: 4 * buf.Width,
		Rect:   image.Rect(0, 0, buf.Width, buf.Height),
	}
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, wrapError(ErrIO, err, ErrCodeIO, "failed to encode PNG")
	}
	return out.Bytes(), nil
}
