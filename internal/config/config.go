// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

// config loads and validates the YAML configuration shared by the
// serving and worker commands.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration for the pipeline commands. Zero
// values fall back to the documented defaults in ApplyDefaults.
type Config struct {
	// Backend selects the storage and queue implementation, "local"
	// or "aws".
	Backend string `yaml:"backend"`

	// Region is the AWS region, used when Backend is "aws".
	Region string `yaml:"region"`

	// TempDir is the base directory of the local backend.
	TempDir string `yaml:"tempdir"`

	// Listen is the address the IIIF server binds to.
	Listen string `yaml:"listen"`

	// BaseURL is the externally visible URL prefix used in manifests
	// and info documents, without a trailing slash.
	BaseURL string `yaml:"baseurl"`

	// Redis is the address of the status registry. Empty selects the
	// in-process registry, which only works when a single command
	// runs the whole pipeline.
	Redis string `yaml:"redis"`

	Tiles TileSettings `yaml:"tiles"`

	// ThumbMax bounds the longest side of fallback thumbnails.
	ThumbMax int `yaml:"thumbmax"`

	// Extensions overrides the conversion eligibility allow-list.
	Extensions []string `yaml:"extensions"`
}

// TileSettings configure the pyramid containers written by workers.
type TileSettings struct {
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	Compression string `yaml:"compression"`
	Quality     int    `yaml:"quality"`
}

// Load reads and validates a config file. A missing path returns the
// defaults.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ApplyDefaults fills in defaults for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = "local"
	}
	if c.Region == "" {
		c.Region = "eu-west-2"
	}
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8080/iiif"
	}
	if c.Tiles.Width == 0 {
		c.Tiles.Width = 256
	}
	if c.Tiles.Height == 0 {
		c.Tiles.Height = 256
	}
	if c.Tiles.Compression == "" {
		c.Tiles.Compression = "jpeg"
	}
	if c.Tiles.Quality == 0 {
		c.Tiles.Quality = 80
	}
	if c.ThumbMax == 0 {
		c.ThumbMax = 512
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Backend != "local" && c.Backend != "aws" {
		return fmt.Errorf("invalid backend %q, must be \"local\" or \"aws\"", c.Backend)
	}
	if c.Tiles.Width < 1 || c.Tiles.Height < 1 {
		return fmt.Errorf("invalid tile size %dx%d", c.Tiles.Width, c.Tiles.Height)
	}
	if c.Tiles.Compression != "jpeg" && c.Tiles.Compression != "png" {
		return fmt.Errorf("invalid tile compression %q, must be \"jpeg\" or \"png\"", c.Tiles.Compression)
	}
	if c.Tiles.Quality < 1 || c.Tiles.Quality > 100 {
		return fmt.Errorf("invalid tile quality %d, must be 1-100", c.Tiles.Quality)
	}
	if c.ThumbMax < 16 {
		return fmt.Errorf("invalid thumbmax %d, must be at least 16", c.ThumbMax)
	}
	if len(c.BaseURL) > 0 && c.BaseURL[len(c.BaseURL)-1] == '/' {
		return fmt.Errorf("baseurl must not end with a slash")
	}
	return nil
}
