// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package tile

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// testImage creates a simple gradient so tile boundaries are visible
// in decoded output.
func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 100, 255})
		}
	}
	return img
}

func TestEncodeLevels(t *testing.T) {
	cases := []struct {
		name   string
		w, h   int
		levels [][2]int
	}{
		{"fitsonetile", 200, 100, [][2]int{{200, 100}}},
		{"even", 600, 400, [][2]int{{600, 400}, {300, 200}, {150, 100}}},
		{"odddims", 515, 3, [][2]int{{515, 3}, {258, 2}, {129, 1}}},
		// exact tile-size levels still get halved; the coarsest level
		// must be strictly smaller than one tile in both dimensions
		{"square", 1024, 1024, [][2]int{{1024, 1024}, {512, 512}, {256, 256}, {128, 128}}},
		{"exacttile", 256, 256, [][2]int{{256, 256}, {128, 128}}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var buf bytes.Buffer
			w, h, err := EncodeImage(testImage(c.w, c.h), &buf, Config{})
			if err != nil {
				t.Fatalf("EncodeImage failed: %v", err)
			}
			if w != c.w || h != c.h {
				t.Fatalf("Wrong base size, expected %dx%d, got %dx%d", c.w, c.h, w, h)
			}

			hdr, err := ReadHeader(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("ReadHeader failed: %v", err)
			}
			if len(hdr.Levels) != len(c.levels) {
				t.Fatalf("Expected %d levels, got %d", len(c.levels), len(hdr.Levels))
			}
			for i, want := range c.levels {
				got := hdr.Levels[i]
				if got.Width != want[0] || got.Height != want[1] {
					t.Errorf("Level %d: expected %dx%d, got %dx%d", i, want[0], want[1], got.Width, got.Height)
				}
				if len(got.Tiles) != got.Cols*got.Rows {
					t.Errorf("Level %d: expected %d tiles, got %d", i, got.Cols*got.Rows, len(got.Tiles))
				}
			}
		})
	}
}

func TestEncodeIdempotent(t *testing.T) {
	img := testImage(600, 400)
	var a, b bytes.Buffer
	if _, _, err := EncodeImage(img, &a, Config{}); err != nil {
		t.Fatalf("First encode failed: %v", err)
	}
	if _, _, err := EncodeImage(img, &b, Config{}); err != nil {
		t.Fatalf("Second encode failed: %v", err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatal("Encoding the same image twice produced different bytes")
	}
}

func TestEncodeErrors(t *testing.T) {
	var buf bytes.Buffer
	_, _, err := Encode(bytes.NewReader([]byte("not an image")), &buf, Config{})
	if err == nil {
		t.Fatal("Expected error decoding garbage")
	}
	if !IsConversionError(err) {
		t.Fatalf("Expected a ConversionError, got %T", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("Expected nothing written on failure, got %d bytes", buf.Len())
	}

	_, _, err = EncodeImage(image.NewRGBA(image.Rect(0, 0, 0, 0)), &buf, Config{})
	if err == nil || !IsConversionError(err) {
		t.Fatalf("Expected a ConversionError for zero area image, got %v", err)
	}
}

func TestEncodePNGSource(t *testing.T) {
	var src bytes.Buffer
	if err := png.Encode(&src, testImage(300, 200)); err != nil {
		t.Fatalf("Failed to encode test png: %v", err)
	}
	var buf bytes.Buffer
	w, h, err := Encode(&src, &buf, Config{Compression: CompressionPNG})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if w != 300 || h != 200 {
		t.Fatalf("Wrong base size, got %dx%d", w, h)
	}
}

func TestRegionRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	// png compression so pixel values survive exactly
	_, _, err := EncodeImage(testImage(600, 400), &buf, Config{Compression: CompressionPNG})
	if err != nil {
		t.Fatalf("EncodeImage failed: %v", err)
	}

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	full, err := r.Region(0, image.Rect(0, 0, 600, 400))
	if err != nil {
		t.Fatalf("Region failed: %v", err)
	}
	if full.Bounds().Dx() != 600 || full.Bounds().Dy() != 400 {
		t.Fatalf("Full region wrong size: %v", full.Bounds())
	}

	// a region spanning a tile boundary keeps the source pixels
	reg, err := r.Region(0, image.Rect(250, 100, 270, 120))
	if err != nil {
		t.Fatalf("Region failed: %v", err)
	}
	want := testImage(600, 400)
	for _, p := range []image.Point{{0, 0}, {10, 10}, {19, 19}} {
		wr, wg, wb, _ := want.At(250+p.X, 100+p.Y).RGBA()
		gr, gg, gb, _ := reg.At(p.X, p.Y).RGBA()
		if wr != gr || wg != gg || wb != gb {
			t.Errorf("Pixel %v differs: want %v,%v,%v got %v,%v,%v", p, wr, wg, wb, gr, gg, gb)
		}
	}

	if _, err = r.Region(0, image.Rect(0, 0, 601, 400)); err == nil {
		t.Error("Expected error for region outside bounds")
	}
}

func TestBestLevel(t *testing.T) {
	var buf bytes.Buffer
	if _, _, err := EncodeImage(testImage(1000, 800), &buf, Config{}); err != nil {
		t.Fatalf("EncodeImage failed: %v", err)
	}
	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	// levels are 1000x800, 500x400, 250x200
	cases := []struct {
		outW, outH, level int
	}{
		{1000, 800, 0},
		{2000, 1600, 0},
		{500, 400, 1},
		{400, 300, 1},
		{250, 200, 2},
		{10, 10, 2},
	}
	for _, c := range cases {
		if got := r.BestLevel(c.outW, c.outH); got != c.level {
			t.Errorf("BestLevel(%d,%d): expected %d, got %d", c.outW, c.outH, c.level, got)
		}
	}
}

func TestHeaderOnlyRead(t *testing.T) {
	var buf bytes.Buffer
	if _, _, err := EncodeImage(testImage(600, 400), &buf, Config{}); err != nil {
		t.Fatalf("EncodeImage failed: %v", err)
	}
	full := buf.Bytes()

	hlen, err := HeaderLenFromPrefix(full[:HeaderPrefixLen])
	if err != nil {
		t.Fatalf("HeaderLenFromPrefix failed: %v", err)
	}
	// truncate to just the header; dimensions must still be readable
	trunc := full[:HeaderPrefixLen+int(hlen)]
	hdr, err := ReadHeader(bytes.NewReader(trunc))
	if err != nil {
		t.Fatalf("ReadHeader on truncated container failed: %v", err)
	}
	if hdr.Width != 600 || hdr.Height != 400 {
		t.Fatalf("Wrong dimensions from header: %dx%d", hdr.Width, hdr.Height)
	}
}
