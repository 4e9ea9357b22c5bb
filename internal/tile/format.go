// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

// tile implements the pyramid tile container used to store converted
// images. A container holds the full resolution image and successive
// half resolution levels, each cut into fixed size tiles that can be
// read and decoded independently, so a region of the image can be
// served without decoding the whole pyramid.
//
// The on-disk layout is a small magic, a length-prefixed JSON header
// describing every level and tile, then the tile blobs. Dimensions
// can be read from the header alone.
package tile

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

var magic = [4]byte{'P', 'T', 'C', '1'}

// HeaderPrefixLen is the number of bytes before the JSON header: the
// magic plus a big-endian uint32 header length.
const HeaderPrefixLen = 8

const (
	CompressionJPEG = "jpeg"
	CompressionPNG  = "png"
)

// TileRef locates one tile blob within the container's data section.
type TileRef struct {
	Offset int64 `json:"offset"`
	Length int64 `json:"length"`
}

// Level describes one resolution level of the pyramid. Level 0 is the
// full resolution; each subsequent level halves the dimensions,
// rounding up. Tiles are stored row-major.
type Level struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Cols   int       `json:"cols"`
	Rows   int       `json:"rows"`
	Tiles  []TileRef `json:"tiles"`
}

// Header describes a pyramid tile container.
type Header struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	TileWidth   int     `json:"tileWidth"`
	TileHeight  int     `json:"tileHeight"`
	Compression string  `json:"compression"`
	Quality     int     `json:"quality"`
	Levels      []Level `json:"levels"`

	// headerLen is the byte length of the encoded JSON header, kept
	// so offsets into the data section can be resolved.
	headerLen uint32
}

// DataOffset returns the offset of the data section from the start
// of the container.
func (h *Header) DataOffset() int64 {
	return HeaderPrefixLen + int64(h.headerLen)
}

// ScaleFactors returns the power-of-two scale factor of each level,
// coarsest last, as used by IIIF Image API info documents.
func (h *Header) ScaleFactors() []int {
	factors := make([]int, len(h.Levels))
	f := 1
	for i := range h.Levels {
		factors[i] = f
		f *= 2
	}
	return factors
}

func (h *Header) encode(w io.Writer) error {
	b, err := json.Marshal(h)
	if err != nil {
		return err
	}
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// ReadHeader reads a container header from r, which must be
// positioned at the start of the container. Only the header bytes are
// consumed, so it is safe to use on a partial read of a container.
func ReadHeader(r io.Reader) (*Header, error) {
	var pre [HeaderPrefixLen]byte
	if _, err := io.ReadFull(r, pre[:]); err != nil {
		return nil, fmt.Errorf("Failed to read container prefix: %v", err)
	}
	if [4]byte(pre[:4]) != magic {
		return nil, fmt.Errorf("Not a pyramid tile container")
	}
	hlen := binary.BigEndian.Uint32(pre[4:])
	b := make([]byte, hlen)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("Failed to read container header: %v", err)
	}
	var h Header
	if err := json.Unmarshal(b, &h); err != nil {
		return nil, fmt.Errorf("Failed to parse container header: %v", err)
	}
	h.headerLen = hlen
	return &h, nil
}

// HeaderLenFromPrefix parses the header length from the first
// HeaderPrefixLen bytes of a container, for callers that fetch the
// header with ranged reads.
func HeaderLenFromPrefix(pre []byte) (uint32, error) {
	if len(pre) < HeaderPrefixLen {
		return 0, fmt.Errorf("Container prefix too short")
	}
	if [4]byte(pre[:4]) != magic {
		return 0, fmt.Errorf("Not a pyramid tile container")
	}
	return binary.BigEndian.Uint32(pre[4:]), nil
}
