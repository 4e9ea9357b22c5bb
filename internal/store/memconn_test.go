// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package store

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"
)

// memConn is an in-memory ObjectConn so the ObjectStore can be tested
// without any cloud account, in the same spirit as the LocalConn.
type memConn struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemConn() *memConn {
	return &memConn{objects: make(map[string][]byte)}
}

func (c *memConn) okey(bucket, key string) string {
	return bucket + "/" + key
}

func (c *memConn) UploadStream(bucket string, key string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[c.okey(bucket, key)] = b
	return nil
}

func (c *memConn) DownloadStream(bucket string, key string) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.objects[c.okey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (c *memConn) DownloadRange(bucket string, key string, from int64, to int64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.objects[c.okey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", key)
	}
	if from >= int64(len(b)) {
		return nil, io.EOF
	}
	if to >= int64(len(b)) {
		to = int64(len(b)) - 1
	}
	out := make([]byte, to-from+1)
	copy(out, b[from:to+1])
	return out, nil
}

func (c *memConn) ObjectExists(bucket string, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.objects[c.okey(bucket, key)]
	return ok, nil
}

func (c *memConn) CopyObject(bucket string, from string, to string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.objects[c.okey(bucket, from)]
	if !ok {
		return fmt.Errorf("NoSuchKey: %s", from)
	}
	c.objects[c.okey(bucket, to)] = append([]byte(nil), b...)
	return nil
}

func (c *memConn) DeleteObject(bucket string, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, c.okey(bucket, key))
	return nil
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 50, 255})
		}
	}
	return img
}
