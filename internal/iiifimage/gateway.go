// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package iiifimage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"github.com/scantile/iiifpipeline/internal/status"
	"github.com/scantile/iiifpipeline/internal/store"
	"github.com/scantile/iiifpipeline/internal/tile"
)

const jpegQuality = 85

// NotReadyError is returned for artifacts that exist but have not
// finished converting, so the HTTP layer can fall back to a
// thumbnail or a retry hint rather than a hard failure.
type NotReadyError struct {
	RecordID, Key string
	State         status.State
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("artifact %q/%q not ready: state %s", e.RecordID, e.Key, e.State)
}

// IsNotReady returns true if the error is a NotReadyError.
func IsNotReady(err error) bool {
	_, ok := err.(*NotReadyError)
	return ok
}

// Gateway answers Image API requests from the tile store, consulting
// the status registry for existence and access level.
type Gateway struct {
	Status status.Store
	Tiles  store.TileStore
}

// lookup resolves an artifact, requiring it to be finished.
func (g *Gateway) lookup(ctx context.Context, recordID, key string) (status.Artifact, error) {
	a, err := g.Status.Get(ctx, recordID, key)
	if err != nil {
		return status.Artifact{}, err
	}
	switch a.State {
	case status.StateFinished:
		return a, nil
	case status.StateFailed:
		// a failed conversion has no artifact to serve and never will
		// until the source is replaced
		return status.Artifact{}, &status.NotFoundError{RecordID: recordID, Key: key}
	}
	return status.Artifact{}, &NotReadyError{RecordID: recordID, Key: key, State: a.State}
}

// Artifact exposes the registry entry backing an image, for callers
// that need the access level or pending state, such as the thumbnail
// fallback.
func (g *Gateway) Artifact(ctx context.Context, recordID, key string) (status.Artifact, error) {
	return g.Status.Get(ctx, recordID, key)
}

// Info builds the info.json document for an artifact. id is the full
// image identifier URL the document describes.
func (g *Gateway) Info(ctx context.Context, recordID, key, id string) (*Info, error) {
	a, err := g.lookup(ctx, recordID, key)
	if err != nil {
		return nil, err
	}
	rac, err := g.Tiles.Open(recordID, a.Access, key)
	if err != nil {
		return nil, err
	}
	defer rac.Close()
	r, err := tile.NewReader(rac)
	if err != nil {
		return nil, err
	}
	return BuildInfo(r.Header(), id), nil
}

// Render derives an image per the request parameters, returning the
// encoded bytes and their content type.
func (g *Gateway) Render(ctx context.Context, recordID, key string, p Params) ([]byte, string, error) {
	a, err := g.lookup(ctx, recordID, key)
	if err != nil {
		return nil, "", err
	}
	rac, err := g.Tiles.Open(recordID, a.Access, key)
	if err != nil {
		return nil, "", err
	}
	defer rac.Close()
	r, err := tile.NewReader(rac)
	if err != nil {
		return nil, "", err
	}
	hdr := r.Header()

	rect, err := p.Region.resolve(hdr.Width, hdr.Height)
	if err != nil {
		return nil, "", err
	}
	outW, outH, err := p.Size.resolve(rect.Dx(), rect.Dy())
	if err != nil {
		return nil, "", err
	}

	level, factor := pickLevel(hdr, rect, outW, outH)
	lrect := levelRect(hdr, level, factor, rect)

	img, err := r.Region(level, lrect)
	if err != nil {
		return nil, "", err
	}

	if img.Bounds().Dx() != outW || img.Bounds().Dy() != outH {
		dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		img = dst
	}

	img = rotate(img, p.Rotation)
	img = applyQuality(img, p.Quality)

	var buf bytes.Buffer
	switch p.Format {
	case FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality})
	case FormatPNG:
		err = png.Encode(&buf, img)
	case FormatGIF:
		err = gif.Encode(&buf, img, nil)
	case FormatTIFF:
		err = tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return nil, "", &BadRequestError{Param: "format", Value: string(p.Format)}
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode %s output: %v", p.Format, err)
	}
	return buf.Bytes(), p.Format.ContentType(), nil
}

// Thumb returns the pre-generated thumbnail for an artifact, used as
// a serving fallback while conversion is pending.
func (g *Gateway) Thumb(ctx context.Context, recordID, key string) ([]byte, error) {
	a, err := g.Status.Get(ctx, recordID, key)
	if err != nil {
		return nil, err
	}
	rc, err := g.Tiles.ReadThumb(recordID, a.Access, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// pickLevel chooses the coarsest pyramid level whose rendition of the
// region is still at least the requested output size, so output is
// never upsampled while a finer level exists.
func pickLevel(hdr *tile.Header, rect image.Rectangle, outW, outH int) (int, int) {
	level, factor := 0, 1
	f := 1
	for i := range hdr.Levels {
		lw := (rect.Dx() + f - 1) / f
		lh := (rect.Dy() + f - 1) / f
		if lw >= outW && lh >= outH {
			level, factor = i, f
		} else {
			break
		}
		f *= 2
	}
	return level, factor
}

// levelRect maps a base-resolution rectangle onto a level, clipping
// to the level bounds and guaranteeing a non-empty result.
func levelRect(hdr *tile.Header, level, factor int, rect image.Rectangle) image.Rectangle {
	l := hdr.Levels[level]
	lr := image.Rect(
		rect.Min.X/factor,
		rect.Min.Y/factor,
		(rect.Max.X+factor-1)/factor,
		(rect.Max.Y+factor-1)/factor,
	).Intersect(image.Rect(0, 0, l.Width, l.Height))
	if lr.Dx() < 1 {
		lr.Max.X = lr.Min.X + 1
	}
	if lr.Dy() < 1 {
		lr.Max.Y = lr.Min.Y + 1
	}
	return lr
}

// rotate turns an image by a quarter-turn multiple clockwise.
func rotate(img image.Image, degrees int) image.Image {
	if degrees == 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.RGBA
	if degrees == 180 {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			switch degrees {
			case 90:
				dst.Set(h-1-y, x, c)
			case 180:
				dst.Set(w-1-x, h-1-y, c)
			case 270:
				dst.Set(y, w-1-x, c)
			}
		}
	}
	return dst
}

func applyQuality(img image.Image, q Quality) image.Image {
	switch q {
	case QualityGray:
		return toGray(img)
	case QualityBitonal:
		g := toGray(img)
		b := g.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				if g.GrayAt(x, y).Y < 128 {
					g.SetGray(x, y, color.Gray{0})
				} else {
					g.SetGray(x, y, color.Gray{255})
				}
			}
		}
		return g
	}
	return img
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	g := image.NewGray(b)
	draw.Draw(g, b, img, b.Min, draw.Src)
	return g
}
