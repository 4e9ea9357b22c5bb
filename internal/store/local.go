// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/scantile/iiifpipeline/internal/tile"
)

// LocalStore keeps tile containers on the local filesystem under
// BasePath. Writes go to a temporary file in the destination
// directory and are renamed into place, so concurrent readers and
// other writer processes never see partial containers.
type LocalStore struct {
	BasePath string
}

func NewLocalStore(base string) (*LocalStore, error) {
	if base == "" {
		return nil, fmt.Errorf("empty store base path")
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("could not create store base %s: %v", base, err)
	}
	return &LocalStore{BasePath: base}, nil
}

func (s *LocalStore) fullPath(access AccessLevel, recordID, key string) (string, error) {
	rel, err := ShardedPath(access, recordID, key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.BasePath, filepath.FromSlash(rel)), nil
}

func (s *LocalStore) writeAtomic(path string, r io.Reader) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("could not create directory %s: %v", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("could not create temporary file in %s: %v", dir, err)
	}
	_, err = io.Copy(tmp, r)
	if err == nil {
		err = tmp.Close()
	} else {
		tmp.Close()
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("could not write %s: %v", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("could not commit %s: %v", path, err)
	}
	return nil
}

func (s *LocalStore) Write(recordID string, access AccessLevel, key string, r io.Reader) (string, error) {
	path, err := s.fullPath(access, recordID, key)
	if err != nil {
		return "", err
	}
	if err = s.writeAtomic(path, r); err != nil {
		return "", err
	}
	return path, nil
}

func (s *LocalStore) open(recordID string, access AccessLevel, key string) (*os.File, error) {
	path, err := s.fullPath(access, recordID, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{RecordID: recordID, Key: key}
		}
		return nil, err
	}
	return f, nil
}

func (s *LocalStore) Read(recordID string, access AccessLevel, key string) (io.ReadCloser, error) {
	return s.open(recordID, access, key)
}

func (s *LocalStore) Open(recordID string, access AccessLevel, key string) (ReaderAtCloser, error) {
	return s.open(recordID, access, key)
}

func (s *LocalStore) Exists(recordID string, access AccessLevel, key string) (bool, error) {
	path, err := s.fullPath(access, recordID, key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Dimensions reads the base width and height from the container
// header without touching the pixel data.
func (s *LocalStore) Dimensions(recordID string, access AccessLevel, key string) (int, int, error) {
	f, err := s.open(recordID, access, key)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	hdr, err := tile.ReadHeader(f)
	if err != nil {
		return 0, 0, err
	}
	return hdr.Width, hdr.Height, nil
}

// Move relocates an artifact between access level partitions without
// re-conversion. The container and the thumbnail may each be absent,
// as an unconverted artifact has only its thumbnail to move; only
// when neither exists is the artifact NotFound.
func (s *LocalStore) Move(recordID string, from, to AccessLevel, key string) error {
	src, err := s.fullPath(from, recordID, key)
	if err != nil {
		return err
	}
	dst, err := s.fullPath(to, recordID, key)
	if err != nil {
		return err
	}
	var moved bool
	if _, err = os.Stat(src); err == nil {
		if err = os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		if err = os.Rename(src, dst); err != nil {
			return err
		}
		moved = true
	} else if !os.IsNotExist(err) {
		return err
	}

	srcThumb, err := s.thumbPath(from, recordID, key)
	if err != nil {
		return err
	}
	dstThumb, err := s.thumbPath(to, recordID, key)
	if err != nil {
		return err
	}
	if _, err = os.Stat(srcThumb); err == nil {
		if err = os.MkdirAll(filepath.Dir(dstThumb), 0755); err != nil {
			return err
		}
		if err = os.Rename(srcThumb, dstThumb); err != nil {
			return err
		}
		moved = true
	} else if !os.IsNotExist(err) {
		return err
	}

	if !moved {
		return &NotFoundError{RecordID: recordID, Key: key}
	}
	return nil
}

func (s *LocalStore) thumbPath(access AccessLevel, recordID, key string) (string, error) {
	rel, err := ShardedThumbPath(access, recordID, key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.BasePath, filepath.FromSlash(rel)), nil
}

func (s *LocalStore) WriteThumb(recordID string, access AccessLevel, key string, r io.Reader) error {
	path, err := s.thumbPath(access, recordID, key)
	if err != nil {
		return err
	}
	return s.writeAtomic(path, r)
}

func (s *LocalStore) ReadThumb(recordID string, access AccessLevel, key string) (io.ReadCloser, error) {
	path, err := s.thumbPath(access, recordID, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{RecordID: recordID, Key: key}
		}
		return nil, err
	}
	return f, nil
}
