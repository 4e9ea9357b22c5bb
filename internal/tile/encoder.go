// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package tile

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	DefaultTileWidth  = 256
	DefaultTileHeight = 256
	DefaultQuality    = 80
)

// Config controls pyramid encoding.
type Config struct {
	TileWidth   int
	TileHeight  int
	Compression string // CompressionJPEG or CompressionPNG
	Quality     int    // jpeg quality, ignored for png
}

func (c Config) withDefaults() Config {
	if c.TileWidth <= 0 {
		c.TileWidth = DefaultTileWidth
	}
	if c.TileHeight <= 0 {
		c.TileHeight = DefaultTileHeight
	}
	if c.Compression == "" {
		c.Compression = CompressionJPEG
	}
	if c.Quality <= 0 {
		c.Quality = DefaultQuality
	}
	return c
}

// ConversionError is returned when a source cannot be turned into a
// pyramid tile container.
type ConversionError struct {
	Reason string
	Err    error
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("conversion failed: %s: %v", e.Reason, e.Err)
	}
	return "conversion failed: " + e.Reason
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// IsConversionError returns true if the error is a ConversionError.
func IsConversionError(err error) bool {
	_, ok := err.(*ConversionError)
	return ok
}

// Encode converts a single decodable image read from r into a pyramid
// tile container written to w, returning the base resolution width
// and height. The whole container is built in memory before anything
// is written, so on error nothing will have been written to w.
func Encode(r io.Reader, w io.Writer, cfg Config) (int, int, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return 0, 0, &ConversionError{Reason: "could not decode source", Err: err}
	}
	return EncodeImage(img, w, cfg)
}

// EncodeImage is Encode for an already-decoded image, used for PDF
// pages which are rasterized rather than decoded.
func EncodeImage(img image.Image, w io.Writer, cfg Config) (int, int, error) {
	cfg = cfg.withDefaults()

	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return 0, 0, &ConversionError{Reason: "source has zero area"}
	}

	hdr := Header{
		Width:       width,
		Height:      height,
		TileWidth:   cfg.TileWidth,
		TileHeight:  cfg.TileHeight,
		Compression: cfg.Compression,
		Quality:     cfg.Quality,
	}

	var data bytes.Buffer
	level := img
	for {
		lb := level.Bounds()
		l, err := encodeLevel(level, &data, cfg)
		if err != nil {
			return 0, 0, err
		}
		hdr.Levels = append(hdr.Levels, l)

		if lb.Dx() < cfg.TileWidth && lb.Dy() < cfg.TileHeight {
			break
		}
		level = halve(level)
	}

	var out bytes.Buffer
	if err := hdr.encode(&out); err != nil {
		return 0, 0, &ConversionError{Reason: "could not encode header", Err: err}
	}
	if _, err := data.WriteTo(&out); err != nil {
		return 0, 0, &ConversionError{Reason: "could not assemble container", Err: err}
	}
	if _, err := out.WriteTo(w); err != nil {
		return 0, 0, &ConversionError{Reason: "write failed", Err: err}
	}
	return width, height, nil
}

// encodeLevel cuts one resolution level into tiles, appending each
// encoded tile to data and returning the level description.
func encodeLevel(img image.Image, data *bytes.Buffer, cfg Config) (Level, error) {
	b := img.Bounds()
	l := Level{
		Width:  b.Dx(),
		Height: b.Dy(),
		Cols:   ceilDiv(b.Dx(), cfg.TileWidth),
		Rows:   ceilDiv(b.Dy(), cfg.TileHeight),
	}

	for row := 0; row < l.Rows; row++ {
		for col := 0; col < l.Cols; col++ {
			x0 := b.Min.X + col*cfg.TileWidth
			y0 := b.Min.Y + row*cfg.TileHeight
			x1 := min(x0+cfg.TileWidth, b.Max.X)
			y1 := min(y0+cfg.TileHeight, b.Max.Y)

			t := image.NewRGBA(image.Rect(0, 0, x1-x0, y1-y0))
			draw.Draw(t, t.Bounds(), img, image.Point{x0, y0}, draw.Src)

			off := int64(data.Len())
			var err error
			switch cfg.Compression {
			case CompressionPNG:
				err = png.Encode(data, t)
			default:
				err = jpeg.Encode(data, t, &jpeg.Options{Quality: cfg.Quality})
			}
			if err != nil {
				return Level{}, &ConversionError{Reason: "could not encode tile", Err: err}
			}
			l.Tiles = append(l.Tiles, TileRef{Offset: off, Length: int64(data.Len()) - off})
		}
	}
	return l, nil
}

// halve scales an image to half size, rounding dimensions up so that
// odd dimensions never collapse to zero at the coarsest level.
func halve(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, ceilDiv(b.Dx(), 2), ceilDiv(b.Dy(), 2)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
