// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

// store maps (record id, access level, file key) triples to
// deterministic sharded storage paths and performs atomic reads and
// writes of pyramid tile containers at those paths. The sharding
// layout is a compatibility contract; external tile servers read the
// same layout directly, so it must never change shape.
package store

import (
	"fmt"
	"io"
	"strings"
)

type AccessLevel string

const (
	AccessPublic     AccessLevel = "public"
	AccessRestricted AccessLevel = "restricted"
)

// ParseAccessLevel validates an access level string.
func ParseAccessLevel(s string) (AccessLevel, error) {
	switch AccessLevel(s) {
	case AccessPublic, AccessRestricted:
		return AccessLevel(s), nil
	}
	return "", fmt.Errorf("unknown access level %q", s)
}

// NotFoundError is returned when no artifact exists for a triple.
type NotFoundError struct {
	RecordID, Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no tile artifact for record %q key %q", e.RecordID, e.Key)
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// ReaderAtCloser is what Open returns: random access into a tile
// container plus a way to release it.
type ReaderAtCloser interface {
	io.ReaderAt
	io.Closer
}

// TileStore persists tile containers under the sharded layout.
// Implementations must write atomically: a reader may never observe a
// partially written container at its final path.
type TileStore interface {
	Write(recordID string, access AccessLevel, key string, r io.Reader) (string, error)
	Read(recordID string, access AccessLevel, key string) (io.ReadCloser, error)
	Open(recordID string, access AccessLevel, key string) (ReaderAtCloser, error)
	Exists(recordID string, access AccessLevel, key string) (bool, error)
	Dimensions(recordID string, access AccessLevel, key string) (int, int, error)
	Move(recordID string, from, to AccessLevel, key string) error

	WriteThumb(recordID string, access AccessLevel, key string, r io.Reader) error
	ReadThumb(recordID string, access AccessLevel, key string) (io.ReadCloser, error)
}

const tileSuffix = ".tile"
const thumbSuffix = ".thumb.jpg"

// shardParts splits a record id into the 2-character directory groups
// of the sharded layout. The id is padded with '_' to a minimum of 4
// characters first, so short ids like "12" occupy "12/__" and can
// never collide with longer ids like "1200" at "12/00".
func shardParts(recordID string) []string {
	padded := recordID
	for len(padded) < 4 {
		padded += "_"
	}
	var parts []string
	for i := 0; i < len(padded); i += 2 {
		end := i + 2
		if end > len(padded) {
			end = len(padded)
		}
		parts = append(parts, padded[i:end])
	}
	return parts
}

// ShardedPath derives the storage path of a file relative to the
// store base, using '/' separators. For record "216", access public
// and key "page-001.tif" this is "public/21/6_/page-001.tif.tile".
func ShardedPath(access AccessLevel, recordID string, key string) (string, error) {
	if err := validateComponent(recordID, "record id"); err != nil {
		return "", err
	}
	if err := validateComponent(key, "key"); err != nil {
		return "", err
	}
	parts := append([]string{string(access)}, shardParts(recordID)...)
	parts = append(parts, key+tileSuffix)
	return strings.Join(parts, "/"), nil
}

// ShardedThumbPath is ShardedPath for the thumbnail stored beside a
// tile container.
func ShardedThumbPath(access AccessLevel, recordID string, key string) (string, error) {
	p, err := ShardedPath(access, recordID, key)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(p, tileSuffix) + thumbSuffix, nil
}

func validateComponent(s string, what string) error {
	if s == "" {
		return fmt.Errorf("empty %s", what)
	}
	if strings.ContainsAny(s, "/\\") || s == "." || s == ".." {
		return fmt.Errorf("invalid %s %q", what, s)
	}
	return nil
}
