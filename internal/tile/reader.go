// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package tile

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"golang.org/x/image/draw"
)

// Reader reads tiles and regions back out of a pyramid tile
// container. Reads are limited to the header plus the tile blobs
// actually needed, never the whole container.
type Reader struct {
	ra  io.ReaderAt
	hdr *Header
}

// NewReader parses the container header from ra and returns a Reader
// for it.
func NewReader(ra io.ReaderAt) (*Reader, error) {
	hdr, err := ReadHeader(io.NewSectionReader(ra, 0, 1<<31))
	if err != nil {
		return nil, err
	}
	return &Reader{ra: ra, hdr: hdr}, nil
}

func (r *Reader) Header() *Header {
	return r.hdr
}

// Tile decodes a single tile of a level. col and row are zero based.
func (r *Reader) Tile(level, col, row int) (image.Image, error) {
	if level < 0 || level >= len(r.hdr.Levels) {
		return nil, fmt.Errorf("No such level %d", level)
	}
	l := r.hdr.Levels[level]
	if col < 0 || col >= l.Cols || row < 0 || row >= l.Rows {
		return nil, fmt.Errorf("No such tile %d,%d in level %d", col, row, level)
	}
	ref := l.Tiles[row*l.Cols+col]
	b := make([]byte, ref.Length)
	if _, err := r.ra.ReadAt(b, r.hdr.DataOffset()+ref.Offset); err != nil {
		return nil, fmt.Errorf("Failed to read tile %d,%d of level %d: %v", col, row, level, err)
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("Failed to decode tile %d,%d of level %d: %v", col, row, level, err)
	}
	return img, nil
}

// Region assembles a rectangular region of a level, given in that
// level's pixel coordinates, from the tiles covering it.
func (r *Reader) Region(level int, rect image.Rectangle) (image.Image, error) {
	if level < 0 || level >= len(r.hdr.Levels) {
		return nil, fmt.Errorf("No such level %d", level)
	}
	l := r.hdr.Levels[level]
	bounds := image.Rect(0, 0, l.Width, l.Height)
	if !rect.In(bounds) || rect.Empty() {
		return nil, fmt.Errorf("Region %v outside level bounds %v", rect, bounds)
	}

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))

	col0 := rect.Min.X / r.hdr.TileWidth
	col1 := (rect.Max.X - 1) / r.hdr.TileWidth
	row0 := rect.Min.Y / r.hdr.TileHeight
	row1 := (rect.Max.Y - 1) / r.hdr.TileHeight

	for row := row0; row <= row1; row++ {
		for col := col0; col <= col1; col++ {
			t, err := r.Tile(level, col, row)
			if err != nil {
				return nil, err
			}
			// tile origin in level coordinates
			tx := col * r.hdr.TileWidth
			ty := row * r.hdr.TileHeight
			tr := t.Bounds().Add(image.Point{tx, ty}).Intersect(rect)
			draw.Draw(dst, tr.Sub(rect.Min), t, tr.Min.Sub(image.Point{tx, ty}).Add(t.Bounds().Min), draw.Src)
		}
	}
	return dst, nil
}

// BestLevel returns the index of the coarsest level that is still at
// least as large as the requested output size, so that regions are
// never upsampled when a finer level exists. Requests larger than the
// base resolution get level 0.
func (r *Reader) BestLevel(outW, outH int) int {
	best := 0
	for i, l := range r.hdr.Levels {
		if l.Width >= outW && l.Height >= outH {
			best = i
		} else {
			break
		}
	}
	return best
}
