// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load with no path failed: %v", err)
	}
	if c.Backend != "local" {
		t.Errorf("Default backend is %q, want local", c.Backend)
	}
	if c.Tiles.Width != 256 || c.Tiles.Height != 256 {
		t.Errorf("Default tile size is %dx%d, want 256x256", c.Tiles.Width, c.Tiles.Height)
	}
	if c.Tiles.Compression != "jpeg" || c.Tiles.Quality != 80 {
		t.Errorf("Default compression %q quality %d", c.Tiles.Compression, c.Tiles.Quality)
	}
	if c.Listen != ":8080" {
		t.Errorf("Default listen is %q", c.Listen)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
backend: aws
region: us-east-1
baseurl: https://tiles.example.org/iiif
redis: localhost:6379
tiles:
  width: 512
  height: 512
  compression: png
thumbmax: 256
extensions: [png, pdf]
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Backend != "aws" || c.Region != "us-east-1" {
		t.Errorf("Wrong backend settings: %q %q", c.Backend, c.Region)
	}
	if c.Tiles.Width != 512 || c.Tiles.Compression != "png" {
		t.Errorf("Wrong tile settings: %d %q", c.Tiles.Width, c.Tiles.Compression)
	}
	// unset quality still gets defaulted
	if c.Tiles.Quality != 80 {
		t.Errorf("Quality not defaulted, got %d", c.Tiles.Quality)
	}
	if len(c.Extensions) != 2 || c.Extensions[0] != "png" {
		t.Errorf("Wrong extensions %v", c.Extensions)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name, content, wanterr string
	}{
		{"unknown field", "bakcend: local\n", "field bakcend not found"},
		{"bad backend", "backend: gcs\n", "invalid backend"},
		{"bad compression", "tiles:\n  compression: webp\n", "invalid tile compression"},
		{"bad quality", "tiles:\n  quality: 200\n", "invalid tile quality"},
		{"trailing slash", "baseurl: http://x/iiif/\n", "must not end with a slash"},
	}
	for _, c := range cases {
		_, err := Load(writeConfig(t, c.content))
		if err == nil || !strings.Contains(err.Error(), c.wanterr) {
			t.Errorf("%s: expected error containing %q, got %v", c.name, c.wanterr, err)
		}
	}
}
