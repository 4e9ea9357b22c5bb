// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

// orchestrate decides which uploaded source files need (re)conversion
// into pyramid tiles, dispatches that work onto a queue, and performs
// it when a worker picks a job up. It owns the artifact state
// transitions; the actual pixel work is done by the tile package and
// the results live in the tile store.
package orchestrate

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"github.com/scantile/iiifpipeline/internal/status"
	"github.com/scantile/iiifpipeline/internal/store"
	"github.com/scantile/iiifpipeline/internal/tile"
)

// DefaultExtensions is the conversion eligibility allow-list. Files
// with any other extension are silently ignored.
var DefaultExtensions = []string{"jpg", "jpeg", "png", "gif", "tif", "tiff", "bmp", "webp", "pdf"}

const defaultThumbMax = 512

// Queuer is the part of a cloud connection the orchestrator needs to
// dispatch conversion jobs.
type Queuer interface {
	AddToQueue(url string, msg string) error
	ConvertQueueId() string
}

// SourceStore holds uploaded source files between upload notification
// and conversion.
type SourceStore interface {
	PutSource(recordID, key string, r io.Reader) error
	FetchSource(recordID, key string) (io.ReadCloser, error)
}

// SourceInfo describes one uploaded file when sweeping a record.
type SourceInfo struct {
	Key           string
	Access        store.AccessLevel
	SourceVersion string
}

// Orchestrator ties the status registry, tile store, source store and
// convert queue together.
type Orchestrator struct {
	Status  status.Store
	Tiles   store.TileStore
	Sources SourceStore
	Queue   Queuer

	// Extensions overrides DefaultExtensions when non-nil.
	Extensions []string
	TileConfig tile.Config
	// ThumbMax bounds the longest side of fallback thumbnails.
	ThumbMax int
	Logger   *log.Logger
}

func (o *Orchestrator) log(v ...interface{}) {
	if o.Logger != nil {
		o.Logger.Println(v...)
	}
}

// Eligible reports whether a file key is on the conversion
// allow-list.
func (o *Orchestrator) Eligible(key string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(key), "."))
	if ext == "" {
		return false
	}
	exts := o.Extensions
	if exts == nil {
		exts = DefaultExtensions
	}
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}

func isPaged(key string) bool {
	return strings.EqualFold(filepath.Ext(key), ".pdf")
}

// NotifyFileUploaded is the entry point for the record-management
// collaborator: a source file has been uploaded (or re-uploaded). The
// source is stashed in the source store, artifact entries are
// registered (one per page for paged documents) and conversion jobs
// are queued for whatever is not already converted at this version.
// Ineligible files are skipped without error.
func (o *Orchestrator) NotifyFileUploaded(ctx context.Context, recordID, key string, access store.AccessLevel, sourceVersion string, r io.Reader) error {
	if !o.Eligible(key) {
		o.log("Skipping ineligible file", key, "for record", recordID)
		return nil
	}

	if err := o.Sources.PutSource(recordID, key, r); err != nil {
		return fmt.Errorf("could not store source %s/%s: %v", recordID, key, err)
	}

	keys := []string{key}
	if isPaged(key) {
		n, err := o.pageCount(recordID, key)
		if err != nil {
			o.log("Could not determine page count for", key, "-", err)
			n = 1
		}
		keys = keys[:0]
		for i := 0; i < n; i++ {
			keys = append(keys, pageKey(key, i))
		}
	}

	for _, ak := range keys {
		if err := o.registerAndSchedule(ctx, recordID, ak, access, sourceVersion); err != nil {
			return err
		}
	}

	if err := o.writeThumb(recordID, key, access); err != nil {
		// the thumbnail is a best-effort preview; conversion proper
		// is unaffected by its failure
		o.log("Could not write thumbnail for", key, "-", err)
	}
	return nil
}

// Sweep re-examines a record's uploaded files and queues conversion
// for anything missing or stale, assuming the sources are already in
// the source store. Used for batch reconversion of existing records.
func (o *Orchestrator) Sweep(ctx context.Context, recordID string, files []SourceInfo) error {
	for _, f := range files {
		if !o.Eligible(f.Key) {
			continue
		}
		keys := []string{f.Key}
		if isPaged(f.Key) {
			n, err := o.pageCount(recordID, f.Key)
			if err != nil {
				o.log("Could not determine page count for", f.Key, "-", err)
				continue
			}
			keys = keys[:0]
			for i := 0; i < n; i++ {
				keys = append(keys, pageKey(f.Key, i))
			}
		}
		for _, ak := range keys {
			if err := o.registerAndSchedule(ctx, recordID, ak, f.Access, f.SourceVersion); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) registerAndSchedule(ctx context.Context, recordID, artifactKey string, access store.AccessLevel, sourceVersion string) error {
	needs, err := o.Status.Register(ctx, status.Artifact{
		RecordID:      recordID,
		Key:           artifactKey,
		Access:        access,
		SourceVersion: sourceVersion,
	})
	if err != nil {
		return fmt.Errorf("could not register artifact %s/%s: %v", recordID, artifactKey, err)
	}
	if !needs {
		o.log("Artifact", artifactKey, "already converted at version", sourceVersion)
		return nil
	}

	j := newJob(recordID, artifactKey, sourceVersion)
	msg, err := j.encode()
	if err != nil {
		return err
	}
	if err = o.Queue.AddToQueue(o.Queue.ConvertQueueId(), msg); err != nil {
		return fmt.Errorf("could not queue conversion for %s/%s: %v", recordID, artifactKey, err)
	}
	o.log("Queued conversion", j.ID, "for", recordID, artifactKey)
	return nil
}

// Process performs one conversion job. It is idempotent: if the
// artifact is no longer in init at this source version (already
// converted, superseded, or being processed elsewhere) nothing
// happens. Conversion failures are recorded on the artifact and do
// not propagate, so one bad file never blocks a record's other files.
func (o *Orchestrator) Process(ctx context.Context, j Job) error {
	started, err := o.Status.StartProcessing(ctx, j.RecordID, j.ArtifactKey, j.SourceVersion)
	if err != nil {
		if status.IsNotFound(err) {
			o.log("Dropping job for unknown artifact", j.RecordID, j.ArtifactKey)
			return nil
		}
		return err
	}
	if !started {
		o.log("Skipping job", j.ID, "- artifact not awaiting conversion at this version")
		return nil
	}

	a, err := o.Status.Get(ctx, j.RecordID, j.ArtifactKey)
	if err != nil {
		return err
	}

	width, height, err := o.convert(j.RecordID, j.ArtifactKey, a.Access)
	if err != nil {
		o.log("Conversion failed for", j.RecordID, j.ArtifactKey, "-", err)
		if ferr := o.Status.SetFailed(ctx, j.RecordID, j.ArtifactKey, j.SourceVersion, err.Error()); ferr != nil && !status.IsStale(ferr) {
			return ferr
		}
		return nil
	}

	err = o.Status.SetFinished(ctx, j.RecordID, j.ArtifactKey, j.SourceVersion, width, height)
	if status.IsStale(err) {
		// the source was re-uploaded while converting; the fresh
		// version has its own job queued
		o.log("Conversion of", j.RecordID, j.ArtifactKey, "superseded during processing")
		return nil
	}
	if err != nil {
		return err
	}
	o.log("Converted", j.RecordID, j.ArtifactKey, "to", fmt.Sprintf("%dx%d", width, height))
	return nil
}

// convert encodes one artifact into the tile store, returning its
// base dimensions.
func (o *Orchestrator) convert(recordID, artifactKey string, access store.AccessLevel) (int, int, error) {
	srcKey, page := splitPageKey(artifactKey)
	src, err := o.Sources.FetchSource(recordID, srcKey)
	if err != nil {
		return 0, 0, &tile.ConversionError{Reason: "source unavailable", Err: err}
	}
	defer src.Close()

	var buf bytes.Buffer
	var width, height int
	if page >= 0 {
		b, err := io.ReadAll(src)
		if err != nil {
			return 0, 0, &tile.ConversionError{Reason: "could not read source", Err: err}
		}
		img, err := tile.RenderPage(b, page)
		if err != nil {
			return 0, 0, err
		}
		width, height, err = tile.EncodeImage(img, &buf, o.TileConfig)
		if err != nil {
			return 0, 0, err
		}
	} else {
		width, height, err = tile.Encode(src, &buf, o.TileConfig)
		if err != nil {
			return 0, 0, err
		}
	}

	if _, err = o.Tiles.Write(recordID, access, artifactKey, &buf); err != nil {
		return 0, 0, &tile.ConversionError{Reason: "could not store container", Err: err}
	}
	return width, height, nil
}

// HandleMessage parses and processes one queue message body.
func (o *Orchestrator) HandleMessage(ctx context.Context, body string) error {
	j, err := ParseJob(body)
	if err != nil {
		o.log("Dropping malformed queue message:", err)
		return nil
	}
	return o.Process(ctx, j)
}

// ChangeAccess relocates all of a source file's artifacts to a new
// access level partition and records it, without re-conversion. An
// artifact that is not yet converted still has its fallback thumbnail
// moved, so nothing stays readable through the old partition.
func (o *Orchestrator) ChangeAccess(ctx context.Context, recordID, key string, to store.AccessLevel) error {
	arts, err := o.Status.ListRecord(ctx, recordID)
	if err != nil {
		return err
	}
	for _, a := range arts {
		base, _ := splitPageKey(a.Key)
		if base != key || a.Access == to {
			continue
		}
		if err := o.Tiles.Move(recordID, a.Access, to, a.Key); err != nil && !store.IsNotFound(err) {
			return err
		}
		if err := o.Status.SetAccess(ctx, recordID, a.Key, to); err != nil {
			return err
		}
	}
	return nil
}

// ResetStuck recovers conversions whose worker died while they were
// in processing, making them dispatchable again.
func (o *Orchestrator) ResetStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	return o.Status.ResetStuck(ctx, olderThan)
}

func (o *Orchestrator) pageCount(recordID, key string) (int, error) {
	src, err := o.Sources.FetchSource(recordID, key)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	b, err := io.ReadAll(src)
	if err != nil {
		return 0, err
	}
	return tile.PageCount(b)
}

// writeThumb derives bounded thumbnails straight from the source so
// the gateway has something to serve while the pyramids are pending.
// A paged document gets one thumbnail per page, beside each future
// page artifact.
func (o *Orchestrator) writeThumb(recordID, key string, access store.AccessLevel) error {
	src, err := o.Sources.FetchSource(recordID, key)
	if err != nil {
		return err
	}
	defer src.Close()

	if isPaged(key) {
		b, err := io.ReadAll(src)
		if err != nil {
			return err
		}
		n, err := tile.PageCount(b)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			img, err := tile.RenderPage(b, i)
			if err != nil {
				return err
			}
			if err = o.storeThumb(recordID, pageKey(key, i), access, img); err != nil {
				return err
			}
		}
		return nil
	}

	img, _, err := image.Decode(src)
	if err != nil {
		return err
	}
	return o.storeThumb(recordID, key, access, img)
}

// storeThumb scales an image down to the thumbnail bound and writes
// it to the tile store.
func (o *Orchestrator) storeThumb(recordID, key string, access store.AccessLevel, img image.Image) error {
	max := o.ThumbMax
	if max <= 0 {
		max = defaultThumbMax
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > max || h > max {
		if w >= h {
			h = h * max / w
			w = max
		} else {
			w = w * max / h
			h = max
		}
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return err
	}
	return o.Tiles.WriteThumb(recordID, access, key, &buf)
}

// ConnSources adapts a cloud connection to the SourceStore interface,
// keeping sources under recordID/key in the source bucket.
type ConnSources struct {
	Conn interface {
		UploadStream(bucket string, key string, r io.Reader) error
		DownloadStream(bucket string, key string) (io.ReadCloser, error)
		SourceStorageId() string
	}
}

func (c ConnSources) PutSource(recordID, key string, r io.Reader) error {
	return c.Conn.UploadStream(c.Conn.SourceStorageId(), recordID+"/"+key, r)
}

func (c ConnSources) FetchSource(recordID, key string) (io.ReadCloser, error) {
	rc, err := c.Conn.DownloadStream(c.Conn.SourceStorageId(), recordID+"/"+key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("source %s/%s not found", recordID, key)
		}
		return nil, err
	}
	return rc, nil
}
