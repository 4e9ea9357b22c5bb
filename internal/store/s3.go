// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package store

import (
	"bytes"
	"io"

	"github.com/scantile/iiifpipeline/internal/tile"
)

// ObjectConn is the part of a cloud connection the object store
// needs. Both iiifpipeline.AwsConn and iiifpipeline.LocalConn
// satisfy it.
type ObjectConn interface {
	UploadStream(bucket string, key string, r io.Reader) error
	DownloadStream(bucket string, key string) (io.ReadCloser, error)
	DownloadRange(bucket string, key string, from int64, to int64) ([]byte, error)
	ObjectExists(bucket string, key string) (bool, error)
	CopyObject(bucket string, from string, to string) error
	DeleteObject(bucket string, key string) error
}

// ObjectStore keeps tile containers in an object storage bucket,
// under the same sharded key layout the LocalStore uses on disk.
// Object storage puts are already atomic, so no rename discipline is
// needed.
type ObjectStore struct {
	Conn   ObjectConn
	Bucket string
}

func (s *ObjectStore) Write(recordID string, access AccessLevel, key string, r io.Reader) (string, error) {
	okey, err := ShardedPath(access, recordID, key)
	if err != nil {
		return "", err
	}
	if err = s.Conn.UploadStream(s.Bucket, okey, r); err != nil {
		return "", err
	}
	return okey, nil
}

func (s *ObjectStore) Read(recordID string, access AccessLevel, key string) (io.ReadCloser, error) {
	okey, err := s.present(recordID, access, key)
	if err != nil {
		return nil, err
	}
	return s.Conn.DownloadStream(s.Bucket, okey)
}

func (s *ObjectStore) Open(recordID string, access AccessLevel, key string) (ReaderAtCloser, error) {
	okey, err := s.present(recordID, access, key)
	if err != nil {
		return nil, err
	}
	return &rangeReader{conn: s.Conn, bucket: s.Bucket, key: okey}, nil
}

func (s *ObjectStore) Exists(recordID string, access AccessLevel, key string) (bool, error) {
	okey, err := ShardedPath(access, recordID, key)
	if err != nil {
		return false, err
	}
	return s.Conn.ObjectExists(s.Bucket, okey)
}

// present resolves the object key, returning NotFoundError if the
// object is absent.
func (s *ObjectStore) present(recordID string, access AccessLevel, key string) (string, error) {
	okey, err := ShardedPath(access, recordID, key)
	if err != nil {
		return "", err
	}
	ok, err := s.Conn.ObjectExists(s.Bucket, okey)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &NotFoundError{RecordID: recordID, Key: key}
	}
	return okey, nil
}

// Dimensions fetches only the container header with ranged reads.
func (s *ObjectStore) Dimensions(recordID string, access AccessLevel, key string) (int, int, error) {
	okey, err := s.present(recordID, access, key)
	if err != nil {
		return 0, 0, err
	}
	pre, err := s.Conn.DownloadRange(s.Bucket, okey, 0, tile.HeaderPrefixLen-1)
	if err != nil {
		return 0, 0, err
	}
	hlen, err := tile.HeaderLenFromPrefix(pre)
	if err != nil {
		return 0, 0, err
	}
	b, err := s.Conn.DownloadRange(s.Bucket, okey, 0, tile.HeaderPrefixLen+int64(hlen)-1)
	if err != nil {
		return 0, 0, err
	}
	hdr, err := tile.ReadHeader(bytes.NewReader(b))
	if err != nil {
		return 0, 0, err
	}
	return hdr.Width, hdr.Height, nil
}

// Move relocates an artifact between access level partitions. The
// container and the thumbnail may each be absent, as an unconverted
// artifact has only its thumbnail to move; only when neither exists
// is the artifact NotFound.
func (s *ObjectStore) Move(recordID string, from, to AccessLevel, key string) error {
	src, err := ShardedPath(from, recordID, key)
	if err != nil {
		return err
	}
	dst, err := ShardedPath(to, recordID, key)
	if err != nil {
		return err
	}
	srcThumb, err := ShardedThumbPath(from, recordID, key)
	if err != nil {
		return err
	}
	dstThumb, err := ShardedThumbPath(to, recordID, key)
	if err != nil {
		return err
	}

	moved, err := s.moveObject(src, dst)
	if err != nil {
		return err
	}
	thumbMoved, err := s.moveObject(srcThumb, dstThumb)
	if err != nil {
		return err
	}
	if !moved && !thumbMoved {
		return &NotFoundError{RecordID: recordID, Key: key}
	}
	return nil
}

// moveObject copies an object to its new key and deletes the old one,
// reporting whether the object existed at all.
func (s *ObjectStore) moveObject(src, dst string) (bool, error) {
	ok, err := s.Conn.ObjectExists(s.Bucket, src)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err = s.Conn.CopyObject(s.Bucket, src, dst); err != nil {
		return false, err
	}
	if err = s.Conn.DeleteObject(s.Bucket, src); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ObjectStore) WriteThumb(recordID string, access AccessLevel, key string, r io.Reader) error {
	okey, err := ShardedThumbPath(access, recordID, key)
	if err != nil {
		return err
	}
	return s.Conn.UploadStream(s.Bucket, okey, r)
}

func (s *ObjectStore) ReadThumb(recordID string, access AccessLevel, key string) (io.ReadCloser, error) {
	okey, err := ShardedThumbPath(access, recordID, key)
	if err != nil {
		return nil, err
	}
	ok, err := s.Conn.ObjectExists(s.Bucket, okey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotFoundError{RecordID: recordID, Key: key}
	}
	return s.Conn.DownloadStream(s.Bucket, okey)
}

// rangeReader adapts ranged object downloads to io.ReaderAt, so the
// tile reader can pull individual tiles without fetching the whole
// container.
type rangeReader struct {
	conn   ObjectConn
	bucket string
	key    string
}

func (r *rangeReader) ReadAt(p []byte, off int64) (int, error) {
	b, err := r.conn.DownloadRange(r.bucket, r.key, off, off+int64(len(p))-1)
	if err != nil {
		return 0, err
	}
	n := copy(p, b)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *rangeReader) Close() error {
	return nil
}
