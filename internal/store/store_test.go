// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package store

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/scantile/iiifpipeline/internal/tile"
)

func TestShardedPath(t *testing.T) {
	cases := []struct {
		recordID string
		access   AccessLevel
		key      string
		want     string
	}{
		{"216", AccessPublic, "page-001.tif", "public/21/6_/page-001.tif.tile"},
		{"216", AccessRestricted, "page-001.tif", "restricted/21/6_/page-001.tif.tile"},
		{"12", AccessPublic, "a.png", "public/12/__/a.png.tile"},
		{"1200", AccessPublic, "a.png", "public/12/00/a.png.tile"},
		{"1234567", AccessPublic, "scan.jpg", "public/12/34/56/7/scan.jpg.tile"},
		{"12345678", AccessPublic, "scan.jpg", "public/12/34/56/78/scan.jpg.tile"},
		{"x", AccessPublic, "a.png", "public/x_/__/a.png.tile"},
	}

	for _, c := range cases {
		got, err := ShardedPath(c.access, c.recordID, c.key)
		if err != nil {
			t.Errorf("ShardedPath(%q) failed: %v", c.recordID, err)
			continue
		}
		if got != c.want {
			t.Errorf("ShardedPath(%q): expected %q, got %q", c.recordID, c.want, got)
		}
		// determinism
		again, _ := ShardedPath(c.access, c.recordID, c.key)
		if again != got {
			t.Errorf("ShardedPath(%q) not deterministic: %q then %q", c.recordID, got, again)
		}
	}

	for _, bad := range []struct{ record, key string }{
		{"", "a.png"},
		{"..", "a.png"},
		{"12/34", "a.png"},
		{"216", ""},
		{"216", "../../etc/passwd"},
	} {
		if _, err := ShardedPath(AccessPublic, bad.record, bad.key); err == nil {
			t.Errorf("Expected error for record %q key %q", bad.record, bad.key)
		}
	}
}

// container returns an encoded pyramid for a small test image.
func container(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, _, err := tile.EncodeImage(testImage(w, h), &buf, tile.Config{})
	if err != nil {
		t.Fatalf("Could not encode test container: %v", err)
	}
	return buf.Bytes()
}

func testStores(t *testing.T) map[string]TileStore {
	t.Helper()
	local, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Could not create local store: %v", err)
	}
	return map[string]TileStore{
		"local":  local,
		"object": &ObjectStore{Conn: newMemConn(), Bucket: "tiles"},
	}
}

func TestWriteReadDimensions(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			c := container(t, 600, 400)

			if _, err := s.Write("216", AccessPublic, "page-001.tif", bytes.NewReader(c)); err != nil {
				t.Fatalf("Write failed: %v", err)
			}

			ok, err := s.Exists("216", AccessPublic, "page-001.tif")
			if err != nil || !ok {
				t.Fatalf("Exists: expected true, got %v (err %v)", ok, err)
			}

			r, err := s.Read("216", AccessPublic, "page-001.tif")
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			got, err := io.ReadAll(r)
			r.Close()
			if err != nil || !bytes.Equal(got, c) {
				t.Fatalf("Read returned different bytes (err %v)", err)
			}

			w, h, err := s.Dimensions("216", AccessPublic, "page-001.tif")
			if err != nil {
				t.Fatalf("Dimensions failed: %v", err)
			}
			if w != 600 || h != 400 {
				t.Fatalf("Dimensions: expected 600x400, got %dx%d", w, h)
			}

			// rewriting the same key must land at the same path
			p1, err := s.Write("216", AccessPublic, "page-001.tif", bytes.NewReader(c))
			if err != nil {
				t.Fatalf("Second write failed: %v", err)
			}
			p2, err := s.Write("216", AccessPublic, "page-001.tif", bytes.NewReader(c))
			if err != nil {
				t.Fatalf("Third write failed: %v", err)
			}
			if p1 != p2 {
				t.Fatalf("Rewrite moved the artifact: %q then %q", p1, p2)
			}
		})
	}
}

func TestAccessPartition(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			c := container(t, 100, 100)
			if _, err := s.Write("216", AccessRestricted, "secret.png", bytes.NewReader(c)); err != nil {
				t.Fatalf("Write failed: %v", err)
			}

			// must not be reachable through the public partition
			if _, err := s.Read("216", AccessPublic, "secret.png"); !IsNotFound(err) {
				t.Fatalf("Expected NotFoundError through public partition, got %v", err)
			}
			if ok, _ := s.Exists("216", AccessPublic, "secret.png"); ok {
				t.Fatal("Restricted artifact visible through public partition")
			}

			if _, err := s.Read("216", AccessRestricted, "secret.png"); err != nil {
				t.Fatalf("Read through restricted partition failed: %v", err)
			}
		})
	}
}

func TestMove(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			c := container(t, 100, 100)
			if _, err := s.Write("99", AccessRestricted, "a.png", bytes.NewReader(c)); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			if err := s.WriteThumb("99", AccessRestricted, "a.png", strings.NewReader("thumbbytes")); err != nil {
				t.Fatalf("WriteThumb failed: %v", err)
			}

			if err := s.Move("99", AccessRestricted, AccessPublic, "a.png"); err != nil {
				t.Fatalf("Move failed: %v", err)
			}

			if ok, _ := s.Exists("99", AccessRestricted, "a.png"); ok {
				t.Fatal("Artifact still present at old access level after move")
			}
			w, h, err := s.Dimensions("99", AccessPublic, "a.png")
			if err != nil || w != 100 || h != 100 {
				t.Fatalf("Artifact not readable after move: %dx%d, %v", w, h, err)
			}
			if _, err := s.ReadThumb("99", AccessPublic, "a.png"); err != nil {
				t.Fatalf("Thumbnail not moved: %v", err)
			}

			if err := s.Move("99", AccessRestricted, AccessPublic, "a.png"); !IsNotFound(err) {
				t.Fatalf("Expected NotFoundError moving absent artifact, got %v", err)
			}

			// an unconverted artifact has only its thumbnail; moving
			// it must still clear the old partition
			if err := s.WriteThumb("99", AccessPublic, "pending.png", strings.NewReader("thumbbytes")); err != nil {
				t.Fatalf("WriteThumb failed: %v", err)
			}
			if err := s.Move("99", AccessPublic, AccessRestricted, "pending.png"); err != nil {
				t.Fatalf("Thumb-only move failed: %v", err)
			}
			if _, err := s.ReadThumb("99", AccessPublic, "pending.png"); !IsNotFound(err) {
				t.Fatalf("Thumbnail still readable through the old partition: %v", err)
			}
			if _, err := s.ReadThumb("99", AccessRestricted, "pending.png"); err != nil {
				t.Fatalf("Thumbnail not readable after thumb-only move: %v", err)
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Read("404", AccessPublic, "nope.png"); !IsNotFound(err) {
				t.Errorf("Read: expected NotFoundError, got %v", err)
			}
			if _, _, err := s.Dimensions("404", AccessPublic, "nope.png"); !IsNotFound(err) {
				t.Errorf("Dimensions: expected NotFoundError, got %v", err)
			}
			if _, err := s.Open("404", AccessPublic, "nope.png"); !IsNotFound(err) {
				t.Errorf("Open: expected NotFoundError, got %v", err)
			}
		})
	}
}

func TestOpenRandomAccess(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			c := container(t, 600, 400)
			if _, err := s.Write("7", AccessPublic, "img.png", bytes.NewReader(c)); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			ra, err := s.Open("7", AccessPublic, "img.png")
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer ra.Close()

			r, err := tile.NewReader(ra)
			if err != nil {
				t.Fatalf("NewReader over store failed: %v", err)
			}
			if r.Header().Width != 600 {
				t.Fatalf("Wrong header width %d", r.Header().Width)
			}
			if _, err := r.Tile(0, 0, 0); err != nil {
				t.Fatalf("Tile read over store failed: %v", err)
			}
		})
	}
}
