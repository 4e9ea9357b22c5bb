// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

// iiifimage serves IIIF Image API 2.0 requests from pyramid tile
// containers: info documents and region/size/rotation/quality/format
// image derivations.
package iiifimage

import (
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"
)

// BadRequestError marks a syntactically or semantically invalid
// request parameter, which the HTTP layer maps to a 400 response.
type BadRequestError struct {
	Param, Value string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("invalid %s parameter %q", e.Param, e.Value)
}

// IsBadRequest returns true if the error is a BadRequestError.
func IsBadRequest(err error) bool {
	_, ok := err.(*BadRequestError)
	return ok
}

type regionKind int

const (
	regionFull regionKind = iota
	regionSquare
	regionPixel
	regionPercent
)

// Region is a parsed IIIF region parameter.
type Region struct {
	kind       regionKind
	x, y, w, h float64
}

// ParseRegion parses "full", "square", "x,y,w,h" or "pct:x,y,w,h".
func ParseRegion(s string) (Region, error) {
	switch s {
	case "full":
		return Region{kind: regionFull}, nil
	case "square":
		return Region{kind: regionSquare}, nil
	}
	kind := regionPixel
	rest := s
	if strings.HasPrefix(s, "pct:") {
		kind = regionPercent
		rest = s[len("pct:"):]
	}
	parts := strings.Split(rest, ",")
	if len(parts) != 4 {
		return Region{}, &BadRequestError{Param: "region", Value: s}
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return Region{}, &BadRequestError{Param: "region", Value: s}
		}
		vals[i] = v
	}
	if vals[2] <= 0 || vals[3] <= 0 {
		return Region{}, &BadRequestError{Param: "region", Value: s}
	}
	return Region{kind: kind, x: vals[0], y: vals[1], w: vals[2], h: vals[3]}, nil
}

// resolve turns the region into a pixel rectangle on an image of the
// given dimensions, clipping to the image bounds. A region lying
// entirely outside the image is a bad request.
func (r Region) resolve(width, height int) (image.Rectangle, error) {
	bounds := image.Rect(0, 0, width, height)
	switch r.kind {
	case regionFull:
		return bounds, nil
	case regionSquare:
		side := width
		if height < side {
			side = height
		}
		x := (width - side) / 2
		y := (height - side) / 2
		return image.Rect(x, y, x+side, y+side), nil
	case regionPercent:
		r.x = r.x * float64(width) / 100
		r.y = r.y * float64(height) / 100
		r.w = r.w * float64(width) / 100
		r.h = r.h * float64(height) / 100
	}
	rect := image.Rect(int(math.Round(r.x)), int(math.Round(r.y)),
		int(math.Round(r.x+r.w)), int(math.Round(r.y+r.h)))
	rect = rect.Intersect(bounds)
	if rect.Empty() {
		return image.Rectangle{}, &BadRequestError{Param: "region",
			Value: fmt.Sprintf("%g,%g,%g,%g", r.x, r.y, r.w, r.h)}
	}
	return rect, nil
}

type sizeKind int

const (
	sizeFull sizeKind = iota
	sizeWidth
	sizeHeight
	sizeExact
	sizeBestFit
	sizePercent
)

// Size is a parsed IIIF size parameter.
type Size struct {
	kind sizeKind
	w, h int
	pct  float64
}

// ParseSize parses "full", "max", "w,", ",h", "w,h", "!w,h" or
// "pct:n". A "^" prefix marks explicit upscaling consent and is
// accepted on any of these; output larger than the source is allowed
// either way, as Image API 2 permits.
func ParseSize(s string) (Size, error) {
	s = strings.TrimPrefix(s, "^")
	switch s {
	case "full", "max":
		return Size{kind: sizeFull}, nil
	}
	if strings.HasPrefix(s, "pct:") {
		pct, err := strconv.ParseFloat(s[len("pct:"):], 64)
		if err != nil || pct <= 0 || pct > 100 {
			return Size{}, &BadRequestError{Param: "size", Value: s}
		}
		return Size{kind: sizePercent, pct: pct}, nil
	}
	kind := sizeExact
	rest := s
	if strings.HasPrefix(s, "!") {
		kind = sizeBestFit
		rest = s[1:]
	}
	parts := strings.Split(rest, ",")
	if len(parts) != 2 {
		return Size{}, &BadRequestError{Param: "size", Value: s}
	}
	var w, h int
	var err error
	if parts[0] != "" {
		w, err = strconv.Atoi(parts[0])
		if err != nil || w <= 0 {
			return Size{}, &BadRequestError{Param: "size", Value: s}
		}
	}
	if parts[1] != "" {
		h, err = strconv.Atoi(parts[1])
		if err != nil || h <= 0 {
			return Size{}, &BadRequestError{Param: "size", Value: s}
		}
	}
	switch {
	case w > 0 && h > 0:
		return Size{kind: kind, w: w, h: h}, nil
	case w > 0 && kind == sizeExact:
		return Size{kind: sizeWidth, w: w}, nil
	case h > 0 && kind == sizeExact:
		return Size{kind: sizeHeight, h: h}, nil
	}
	return Size{}, &BadRequestError{Param: "size", Value: s}
}

// resolve turns the size into exact output dimensions for a region of
// the given dimensions.
func (s Size) resolve(regionW, regionH int) (int, int, error) {
	scale := func(f float64) (int, int) {
		w := int(math.Round(float64(regionW) * f))
		h := int(math.Round(float64(regionH) * f))
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		return w, h
	}
	switch s.kind {
	case sizeFull:
		return regionW, regionH, nil
	case sizeWidth:
		_, h := scale(float64(s.w) / float64(regionW))
		return s.w, h, nil
	case sizeHeight:
		w, _ := scale(float64(s.h) / float64(regionH))
		return w, s.h, nil
	case sizeExact:
		return s.w, s.h, nil
	case sizeBestFit:
		f := math.Min(float64(s.w)/float64(regionW), float64(s.h)/float64(regionH))
		w, h := scale(f)
		return w, h, nil
	case sizePercent:
		w, h := scale(s.pct / 100)
		return w, h, nil
	}
	return 0, 0, &BadRequestError{Param: "size", Value: "unresolvable"}
}

// ParseRotation parses the rotation parameter. Only quarter turns are
// supported; mirroring is not.
func ParseRotation(s string) (int, error) {
	switch s {
	case "0", "90", "180", "270":
		n, _ := strconv.Atoi(s)
		return n, nil
	}
	return 0, &BadRequestError{Param: "rotation", Value: s}
}

type Quality string

const (
	QualityDefault Quality = "default"
	QualityColor   Quality = "color"
	QualityGray    Quality = "gray"
	QualityBitonal Quality = "bitonal"
)

func ParseQuality(s string) (Quality, error) {
	switch Quality(s) {
	case QualityDefault, QualityColor, QualityGray, QualityBitonal:
		return Quality(s), nil
	}
	return "", &BadRequestError{Param: "quality", Value: s}
}

type Format string

const (
	FormatJPEG Format = "jpg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatTIFF Format = "tif"
)

// ParseFormat parses the output format extension. webp is recognised
// as input only, so it is rejected here like any unknown format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJPEG, FormatPNG, FormatGIF, FormatTIFF:
		return Format(s), nil
	}
	return "", &BadRequestError{Param: "format", Value: s}
}

// ContentType returns the MIME type for a format.
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatGIF:
		return "image/gif"
	case FormatTIFF:
		return "image/tiff"
	}
	return "application/octet-stream"
}

// Params is a fully parsed image request.
type Params struct {
	Region   Region
	Size     Size
	Rotation int
	Quality  Quality
	Format   Format
}

// WholeImage reports whether the request asks for the whole picture
// (or its centered square) at no particular scale. Only such requests
// can be answered from a pending artifact's fallback thumbnail; a
// cropped or exactly-sized request cannot.
func (p Params) WholeImage() bool {
	if p.Region.kind != regionFull && p.Region.kind != regionSquare {
		return false
	}
	return p.Size.kind == sizeFull
}

// ParseParams parses the four path segments and the format extension
// of an image request URL.
func ParseParams(region, size, rotation, qualityFormat string) (Params, error) {
	var p Params
	var err error
	if p.Region, err = ParseRegion(region); err != nil {
		return Params{}, err
	}
	if p.Size, err = ParseSize(size); err != nil {
		return Params{}, err
	}
	if p.Rotation, err = ParseRotation(rotation); err != nil {
		return Params{}, err
	}
	q, f, ok := strings.Cut(qualityFormat, ".")
	if !ok {
		return Params{}, &BadRequestError{Param: "quality", Value: qualityFormat}
	}
	if p.Quality, err = ParseQuality(q); err != nil {
		return Params{}, err
	}
	if p.Format, err = ParseFormat(f); err != nil {
		return Params{}, err
	}
	return p, nil
}
