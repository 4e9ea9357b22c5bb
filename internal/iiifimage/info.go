// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package iiifimage

import (
	"encoding/json"

	"github.com/scantile/iiifpipeline/internal/tile"
)

const (
	infoContext  = "http://iiif.io/api/image/2/context.json"
	infoProtocol = "http://iiif.io/api/image"
	infoLevel    = "http://iiif.io/api/image/2/level1"
)

// Info is an Image API 2.0 info.json document.
type Info struct {
	Context  string        `json:"@context"`
	ID       string        `json:"@id"`
	Protocol string        `json:"protocol"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Profile  []interface{} `json:"profile"`
	Tiles    []TileSet     `json:"tiles"`
	Sizes    []InfoSize    `json:"sizes"`
}

// TileSet advertises the tiling a client can request efficiently.
type TileSet struct {
	Width        int   `json:"width"`
	Height       int   `json:"height"`
	ScaleFactors []int `json:"scaleFactors"`
}

type InfoSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type profileDetail struct {
	Formats   []string `json:"formats"`
	Qualities []string `json:"qualities"`
	Supports  []string `json:"supports"`
}

// BuildInfo derives an info document from a container header. id is
// the image identifier URL.
func BuildInfo(hdr *tile.Header, id string) *Info {
	info := &Info{
		Context:  infoContext,
		ID:       id,
		Protocol: infoProtocol,
		Width:    hdr.Width,
		Height:   hdr.Height,
		Profile: []interface{}{
			infoLevel,
			profileDetail{
				Formats:   []string{"jpg", "png", "gif", "tif"},
				Qualities: []string{"default", "color", "gray", "bitonal"},
				Supports:  []string{"regionSquare", "rotationBy90s", "sizeByWhListed"},
			},
		},
		Tiles: []TileSet{{
			Width:        hdr.TileWidth,
			Height:       hdr.TileHeight,
			ScaleFactors: hdr.ScaleFactors(),
		}},
	}
	// sizes list the full dimensions of each level, coarsest first,
	// as preferred by viewers picking preview resolutions
	for i := len(hdr.Levels) - 1; i >= 0; i-- {
		l := hdr.Levels[i]
		info.Sizes = append(info.Sizes, InfoSize{Width: l.Width, Height: l.Height})
	}
	return info
}

// Encode serialises an info document with stable field order.
func (i *Info) Encode() ([]byte, error) {
	return json.MarshalIndent(i, "", "  ")
}
