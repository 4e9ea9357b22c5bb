// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package iiifpipeline

import (
	"fmt"
	"io"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/scantile/iiifpipeline/internal/config"
	"github.com/scantile/iiifpipeline/internal/orchestrate"
	"github.com/scantile/iiifpipeline/internal/status"
	"github.com/scantile/iiifpipeline/internal/store"
	"github.com/scantile/iiifpipeline/internal/tile"
)

// Pipeliner is the full cloud connection interface used by the
// commands, implemented by AwsConn and LocalConn.
type Pipeliner interface {
	MinimalInit() error
	Init() error
	CheckQueue(url string, timeout int64) (Qmsg, error)
	QueueHeartbeat(msg Qmsg, qurl string, duration int64) (Qmsg, error)
	GetQueueDetails(url string) (string, string, error)
	AddToQueue(url string, msg string) error
	DelFromQueue(url string, handle string) error
	ConvertQueueId() string
	TileStorageId() string
	SourceStorageId() string
	ListObjects(bucket string, prefix string) ([]string, error)
	UploadStream(bucket string, key string, r io.Reader) error
	DownloadStream(bucket string, key string) (io.ReadCloser, error)
	DownloadRange(bucket string, key string, from int64, to int64) ([]byte, error)
	ObjectExists(bucket string, key string) (bool, error)
	CopyObject(bucket string, from string, to string) error
	DeleteObject(bucket string, key string) error
	GetLogger() *log.Logger
	Log(v ...interface{})
	MkPipeline() error
}

// NewConn builds the cloud connection selected by the configuration.
// The returned connection still needs Init or MinimalInit called.
func NewConn(c *config.Config, logger *log.Logger) (Pipeliner, error) {
	switch c.Backend {
	case "local":
		return &LocalConn{TempDir: c.TempDir, Logger: logger}, nil
	case "aws":
		return &AwsConn{Region: c.Region, Logger: logger}, nil
	}
	return nil, fmt.Errorf("Unknown backend %q", c.Backend)
}

// NewStatusStore builds the conversion status registry. Without a
// Redis address the registry is process local, which only suits
// running every command in one process.
func NewStatusStore(c *config.Config) status.Store {
	if c.Redis == "" {
		return status.NewMemoryStore()
	}
	return status.NewRedisStore(redis.NewClient(&redis.Options{Addr: c.Redis}))
}

// NewTileStore builds the tile store on top of a connection's tile
// bucket.
func NewTileStore(conn Pipeliner) store.TileStore {
	return &store.ObjectStore{Conn: conn, Bucket: conn.TileStorageId()}
}

// NewOrchestrator wires up a conversion orchestrator from the
// configuration and a connection.
func NewOrchestrator(c *config.Config, conn Pipeliner, st status.Store) *orchestrate.Orchestrator {
	return &orchestrate.Orchestrator{
		Status:     st,
		Tiles:      NewTileStore(conn),
		Sources:    orchestrate.ConnSources{Conn: conn},
		Queue:      conn,
		Extensions: c.Extensions,
		TileConfig: tile.Config{
			TileWidth:   c.Tiles.Width,
			TileHeight:  c.Tiles.Height,
			Compression: c.Tiles.Compression,
			Quality:     c.Tiles.Quality,
		},
		ThumbMax: c.ThumbMax,
		Logger:   conn.GetLogger(),
	}
}
