// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package iiifpipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/jung-kurt/gofpdf"

	"github.com/scantile/iiifpipeline/internal/status"
	"github.com/scantile/iiifpipeline/internal/store"
	"github.com/scantile/iiifpipeline/internal/tile"
)

const pageWidth = 5 // pageWidth in inches

// pdfMaxSide bounds the pixel dimensions of embedded pages, so
// exports use a mid pyramid level rather than full resolution scans.
const pdfMaxSide = 2000

const pdfJpegQuality = 85

// pxToPt converts a pixel value into a pt value (72 pts per inch)
// This uses pageWidth to determine the appropriate value
func pxToPt(i int) float64 {
	return float64(i) / pageWidth
}

type Fpdf struct {
	fpdf *gofpdf.Fpdf
}

// Setup creates a new PDF with appropriate settings
func (p *Fpdf) Setup() error {
	p.fpdf = gofpdf.New("P", "pt", "A4", "")
	p.fpdf.SetAutoPageBreak(false, float64(0))
	return p.fpdf.Error()
}

// AddPage adds a page to the pdf containing a single image scaled to
// fill it. name must be unique within the pdf.
func (p *Fpdf) AddPage(name string, img image.Image) error {
	b := img.Bounds()
	p.fpdf.AddPageFormat("P", gofpdf.SizeType{Wd: pxToPt(b.Dx()), Ht: pxToPt(b.Dy())})

	var buf bytes.Buffer
	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: pdfJpegQuality})
	if err != nil {
		return fmt.Errorf("Could not encode image for page %s: %v", name, err)
	}

	opts := gofpdf.ImageOptions{ImageType: "JPG"}
	p.fpdf.RegisterImageOptionsReader(name, opts, &buf)
	p.fpdf.ImageOptions(name, 0, 0, pxToPt(b.Dx()), pxToPt(b.Dy()), false, opts, 0, "")

	return p.fpdf.Error()
}

// Save saves the PDF to the file at path
func (p *Fpdf) Save(path string) error {
	return p.fpdf.OutputFileAndClose(path)
}

// ExportPDF builds a PDF of every finished artifact of a record, one
// page per artifact in upload order, reading a suitably sized pyramid
// level of each from the tile store.
func ExportPDF(ctx context.Context, st status.Store, tiles store.TileStore, recordID string, path string) error {
	arts, err := st.ListRecord(ctx, recordID)
	if err != nil {
		return err
	}

	p := new(Fpdf)
	err = p.Setup()
	if err != nil {
		return fmt.Errorf("Could not set up PDF: %v", err)
	}

	added := 0
	for _, a := range arts {
		if a.State != status.StateFinished {
			continue
		}
		img, err := readPageImage(tiles, recordID, a)
		if err != nil {
			return fmt.Errorf("Could not read artifact %s: %v", a.Key, err)
		}
		err = p.AddPage(a.Key, img)
		if err != nil {
			return err
		}
		added++
	}
	if added == 0 {
		return fmt.Errorf("No finished artifacts for record %s", recordID)
	}

	return p.Save(path)
}

func readPageImage(tiles store.TileStore, recordID string, a status.Artifact) (image.Image, error) {
	rac, err := tiles.Open(recordID, a.Access, a.Key)
	if err != nil {
		return nil, err
	}
	defer rac.Close()

	r, err := tile.NewReader(rac)
	if err != nil {
		return nil, err
	}
	capW, capH := a.Width, a.Height
	if capW > pdfMaxSide {
		capW = pdfMaxSide
	}
	if capH > pdfMaxSide {
		capH = pdfMaxSide
	}
	level := r.BestLevel(capW, capH)
	l := r.Header().Levels[level]
	return r.Region(level, image.Rect(0, 0, l.Width, l.Height))
}
