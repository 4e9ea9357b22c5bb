// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package status

import (
	"context"
	"sync"
	"time"

	"github.com/scantile/iiifpipeline/internal/store"
)

// MemoryStore is an in-process Store, used in tests and for running
// the whole pipeline on a single machine without Redis.
type MemoryStore struct {
	mu        sync.Mutex
	artifacts map[string]*Artifact
	order     map[string][]string // record id -> keys in first-seen order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		artifacts: make(map[string]*Artifact),
		order:     make(map[string][]string),
	}
}

func memKey(recordID, key string) string {
	return recordID + "\x00" + key
}

func (s *MemoryStore) Register(ctx context.Context, a Artifact) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memKey(a.RecordID, a.Key)
	existing, ok := s.artifacts[k]
	if ok && existing.SourceVersion == a.SourceVersion {
		return existing.State == StateInit, nil
	}

	a.State = StateInit
	a.Width, a.Height = 0, 0
	a.Reason = ""
	a.Updated = time.Now()
	a.Started, a.Finished = time.Time{}, time.Time{}
	s.artifacts[k] = &a
	if !ok {
		s.order[a.RecordID] = append(s.order[a.RecordID], a.Key)
	}
	return true, nil
}

func (s *MemoryStore) Get(ctx context.Context, recordID, key string) (Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[memKey(recordID, key)]
	if !ok {
		return Artifact{}, &NotFoundError{RecordID: recordID, Key: key}
	}
	return *a, nil
}

func (s *MemoryStore) StartProcessing(ctx context.Context, recordID, key, sourceVersion string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[memKey(recordID, key)]
	if !ok {
		return false, &NotFoundError{RecordID: recordID, Key: key}
	}
	if a.SourceVersion != sourceVersion || a.State != StateInit {
		return false, nil
	}
	a.State = StateProcessing
	a.Updated = time.Now()
	a.Started = a.Updated
	return true, nil
}

func (s *MemoryStore) SetFinished(ctx context.Context, recordID, key, sourceVersion string, width, height int) error {
	return s.complete(recordID, key, sourceVersion, StateFinished, width, height, "")
}

func (s *MemoryStore) SetFailed(ctx context.Context, recordID, key, sourceVersion, reason string) error {
	return s.complete(recordID, key, sourceVersion, StateFailed, 0, 0, reason)
}

func (s *MemoryStore) complete(recordID, key, sourceVersion string, state State, width, height int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[memKey(recordID, key)]
	if !ok {
		return &NotFoundError{RecordID: recordID, Key: key}
	}
	if a.SourceVersion != sourceVersion {
		a.State = StateInit
		a.Updated = time.Now()
		return &StaleArtifactError{RecordID: recordID, Key: key,
			Expected: sourceVersion, Stored: a.SourceVersion}
	}
	a.State = state
	a.Width, a.Height = width, height
	a.Reason = reason
	a.Updated = time.Now()
	a.Finished = a.Updated
	return nil
}

func (s *MemoryStore) Reset(ctx context.Context, recordID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[memKey(recordID, key)]
	if !ok {
		return &NotFoundError{RecordID: recordID, Key: key}
	}
	a.State = StateInit
	a.Updated = time.Now()
	return nil
}

func (s *MemoryStore) SetAccess(ctx context.Context, recordID, key string, access store.AccessLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[memKey(recordID, key)]
	if !ok {
		return &NotFoundError{RecordID: recordID, Key: key}
	}
	a.Access = access
	a.Updated = time.Now()
	return nil
}

func (s *MemoryStore) ResetStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	reset := 0
	for _, a := range s.artifacts {
		if a.State == StateProcessing && a.Updated.Before(cutoff) {
			a.State = StateInit
			a.Updated = time.Now()
			reset++
		}
	}
	return reset, nil
}

func (s *MemoryStore) ListRecord(ctx context.Context, recordID string) ([]Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Artifact
	for _, key := range s.order[recordID] {
		if a, ok := s.artifacts[memKey(recordID, key)]; ok {
			out = append(out, *a)
		}
	}
	return out, nil
}
