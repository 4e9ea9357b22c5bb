// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package tile

import (
	"image"

	"github.com/gen2brain/go-fitz"
)

// PageCount returns the number of pages in a PDF (or other paged
// document format supported by mupdf) held in b.
func PageCount(b []byte) (int, error) {
	doc, err := fitz.NewFromMemory(b)
	if err != nil {
		return 0, &ConversionError{Reason: "could not open document", Err: err}
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

// RenderPage rasterizes one page (zero based) of a paged document to
// an image, ready for EncodeImage. Each page becomes an independent
// tile artifact.
func RenderPage(b []byte, page int) (image.Image, error) {
	doc, err := fitz.NewFromMemory(b)
	if err != nil {
		return nil, &ConversionError{Reason: "could not open document", Err: err}
	}
	defer doc.Close()

	if page < 0 || page >= doc.NumPage() {
		return nil, &ConversionError{Reason: "no such page"}
	}
	img, err := doc.Image(page)
	if err != nil {
		return nil, &ConversionError{Reason: "could not rasterize page", Err: err}
	}
	return img, nil
}
