// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

// status tracks the conversion state of every tile artifact. Each
// (record id, file key) pair moves through init → processing →
// finished or failed, and drops back to init whenever the source file
// is re-uploaded with a new version. The registry is the single place
// this state lives; nothing infers state from directory scans.
package status

import (
	"context"
	"fmt"
	"time"

	"github.com/scantile/iiifpipeline/internal/store"
)

type State string

const (
	StateInit       State = "init"
	StateProcessing State = "processing"
	StateFinished   State = "finished"
	StateFailed     State = "failed"
)

// Artifact is the persisted conversion state of one tile artifact.
type Artifact struct {
	RecordID      string
	Key           string
	Access        store.AccessLevel
	SourceVersion string
	State         State
	Width         int
	Height        int
	Reason        string // failure reason, kept for observability
	Updated       time.Time

	// Started/Finished bound the most recent conversion, for the
	// timing graphs.
	Started  time.Time
	Finished time.Time
}

// NotFoundError is returned when no artifact entry exists.
type NotFoundError struct {
	RecordID, Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no artifact entry for record %q key %q", e.RecordID, e.Key)
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// StaleArtifactError is returned when a state transition is attempted
// against a source version that has since been replaced. It is
// handled internally by resetting to init, never surfaced to callers
// of the HTTP API.
type StaleArtifactError struct {
	RecordID, Key    string
	Expected, Stored string
}

func (e *StaleArtifactError) Error() string {
	return fmt.Sprintf("artifact %q/%q is stale: version %q superseded by %q",
		e.RecordID, e.Key, e.Expected, e.Stored)
}

// IsStale returns true if the error is a StaleArtifactError.
func IsStale(err error) bool {
	_, ok := err.(*StaleArtifactError)
	return ok
}

// Store persists artifact states. All transitions are conditional on
// the stored source version, so concurrent workers and re-uploads
// cannot interleave into an inconsistent state.
type Store interface {
	// Register ensures an init entry exists for the given source
	// version. If an entry already exists for the same version it is
	// left alone (whatever state it is in); a differing version
	// resets the entry to init. Returns true if the entry is (now)
	// in init and needs conversion.
	Register(ctx context.Context, a Artifact) (bool, error)

	Get(ctx context.Context, recordID, key string) (Artifact, error)

	// StartProcessing moves init → processing for the given version.
	// Returns false without error if the entry is not in init for
	// that version, making duplicate dispatch a no-op.
	StartProcessing(ctx context.Context, recordID, key, sourceVersion string) (bool, error)

	// SetFinished moves processing → finished, recording dimensions.
	// Returns StaleArtifactError (and resets to init) if the source
	// version changed while processing.
	SetFinished(ctx context.Context, recordID, key, sourceVersion string, width, height int) error

	// SetFailed moves processing → failed, retaining the reason.
	SetFailed(ctx context.Context, recordID, key, sourceVersion, reason string) error

	// Reset forces an entry back to init regardless of state, used
	// to recover conversions stuck in processing.
	Reset(ctx context.Context, recordID, key string) error

	// SetAccess records a changed access level, after the stored
	// artifact has been moved between partitions.
	SetAccess(ctx context.Context, recordID, key string, access store.AccessLevel) error

	// ResetStuck resets every processing entry older than the cutoff
	// back to init, returning how many were reset.
	ResetStuck(ctx context.Context, olderThan time.Duration) (int, error)

	// ListRecord returns a record's artifact entries in first-seen
	// order.
	ListRecord(ctx context.Context, recordID string) ([]Artifact, error)
}
