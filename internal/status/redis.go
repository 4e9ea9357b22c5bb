// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package status

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scantile/iiifpipeline/internal/store"
)

// RedisStore keeps artifact state in Redis: one hash per artifact and
// one list per record preserving first-seen key order. All state
// transitions run inside optimistic WATCH transactions keyed on the
// artifact hash, so concurrent workers cannot interleave.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func artifactKey(recordID, key string) string {
	return "artifact:" + recordID + ":" + key
}

func recordKey(recordID string) string {
	return "record:" + recordID
}

func artifactFromHash(recordID, key string, h map[string]string) Artifact {
	a := Artifact{
		RecordID:      recordID,
		Key:           key,
		Access:        store.AccessLevel(h["access"]),
		SourceVersion: h["version"],
		State:         State(h["state"]),
		Reason:        h["reason"],
	}
	a.Width, _ = strconv.Atoi(h["width"])
	a.Height, _ = strconv.Atoi(h["height"])
	a.Updated, _ = time.Parse(time.RFC3339Nano, h["updated"])
	a.Started, _ = time.Parse(time.RFC3339Nano, h["started"])
	a.Finished, _ = time.Parse(time.RFC3339Nano, h["finished"])
	return a
}

func hashFromArtifact(a Artifact) map[string]interface{} {
	h := map[string]interface{}{
		"access":  string(a.Access),
		"version": a.SourceVersion,
		"state":   string(a.State),
		"width":   strconv.Itoa(a.Width),
		"height":  strconv.Itoa(a.Height),
		"reason":  a.Reason,
		"updated": a.Updated.Format(time.RFC3339Nano),
	}
	if !a.Started.IsZero() {
		h["started"] = a.Started.Format(time.RFC3339Nano)
	}
	if !a.Finished.IsZero() {
		h["finished"] = a.Finished.Format(time.RFC3339Nano)
	}
	return h
}

func (s *RedisStore) Register(ctx context.Context, a Artifact) (bool, error) {
	akey := artifactKey(a.RecordID, a.Key)
	needs := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		h, err := tx.HGetAll(ctx, akey).Result()
		if err != nil {
			return err
		}

		if len(h) != 0 && h["version"] == a.SourceVersion {
			// same source version; leave whatever state it reached
			needs = State(h["state"]) == StateInit
			return nil
		}

		needs = true
		a.State = StateInit
		a.Width, a.Height = 0, 0
		a.Reason = ""
		a.Updated = time.Now()

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, akey)
			pipe.HSet(ctx, akey, hashFromArtifact(a))
			if len(h) == 0 {
				pipe.RPush(ctx, recordKey(a.RecordID), a.Key)
			}
			return nil
		})
		return err
	}, akey)
	if err != nil {
		return false, fmt.Errorf("failed to register artifact: %w", err)
	}
	return needs, nil
}

func (s *RedisStore) Get(ctx context.Context, recordID, key string) (Artifact, error) {
	h, err := s.client.HGetAll(ctx, artifactKey(recordID, key)).Result()
	if err != nil {
		return Artifact{}, err
	}
	if len(h) == 0 {
		return Artifact{}, &NotFoundError{RecordID: recordID, Key: key}
	}
	return artifactFromHash(recordID, key, h), nil
}

func (s *RedisStore) StartProcessing(ctx context.Context, recordID, key, sourceVersion string) (bool, error) {
	akey := artifactKey(recordID, key)
	started := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		h, err := tx.HGetAll(ctx, akey).Result()
		if err != nil {
			return err
		}
		if len(h) == 0 {
			return &NotFoundError{RecordID: recordID, Key: key}
		}
		if h["version"] != sourceVersion || State(h["state"]) != StateInit {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			now := time.Now().Format(time.RFC3339Nano)
			pipe.HSet(ctx, akey,
				"state", string(StateProcessing),
				"updated", now,
				"started", now)
			return nil
		})
		if err == nil {
			started = true
		}
		return err
	}, akey)
	return started, err
}

func (s *RedisStore) SetFinished(ctx context.Context, recordID, key, sourceVersion string, width, height int) error {
	return s.complete(ctx, recordID, key, sourceVersion, StateFinished, width, height, "")
}

func (s *RedisStore) SetFailed(ctx context.Context, recordID, key, sourceVersion, reason string) error {
	return s.complete(ctx, recordID, key, sourceVersion, StateFailed, 0, 0, reason)
}

func (s *RedisStore) complete(ctx context.Context, recordID, key, sourceVersion string, state State, width, height int, reason string) error {
	akey := artifactKey(recordID, key)

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		h, err := tx.HGetAll(ctx, akey).Result()
		if err != nil {
			return err
		}
		if len(h) == 0 {
			return &NotFoundError{RecordID: recordID, Key: key}
		}
		if h["version"] != sourceVersion {
			// the source was re-uploaded while we were converting;
			// drop back to init so the new version gets converted
			_, perr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, akey,
					"state", string(StateInit),
					"updated", time.Now().Format(time.RFC3339Nano))
				return nil
			})
			if perr != nil {
				return perr
			}
			return &StaleArtifactError{RecordID: recordID, Key: key,
				Expected: sourceVersion, Stored: h["version"]}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			now := time.Now().Format(time.RFC3339Nano)
			pipe.HSet(ctx, akey,
				"state", string(state),
				"width", strconv.Itoa(width),
				"height", strconv.Itoa(height),
				"reason", reason,
				"updated", now,
				"finished", now)
			return nil
		})
		return err
	}, akey)
}

func (s *RedisStore) Reset(ctx context.Context, recordID, key string) error {
	akey := artifactKey(recordID, key)
	n, err := s.client.Exists(ctx, akey).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return &NotFoundError{RecordID: recordID, Key: key}
	}
	return s.client.HSet(ctx, akey,
		"state", string(StateInit),
		"updated", time.Now().Format(time.RFC3339Nano)).Err()
}

func (s *RedisStore) SetAccess(ctx context.Context, recordID, key string, access store.AccessLevel) error {
	akey := artifactKey(recordID, key)
	n, err := s.client.Exists(ctx, akey).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return &NotFoundError{RecordID: recordID, Key: key}
	}
	return s.client.HSet(ctx, akey,
		"access", string(access),
		"updated", time.Now().Format(time.RFC3339Nano)).Err()
}

func (s *RedisStore) ResetStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	reset := 0

	iter := s.client.Scan(ctx, 0, "artifact:*", 100).Iterator()
	for iter.Next(ctx) {
		akey := iter.Val()
		h, err := s.client.HGetAll(ctx, akey).Result()
		if err != nil {
			return reset, err
		}
		if State(h["state"]) != StateProcessing {
			continue
		}
		updated, err := time.Parse(time.RFC3339Nano, h["updated"])
		if err != nil || updated.After(cutoff) {
			continue
		}
		err = s.client.HSet(ctx, akey,
			"state", string(StateInit),
			"updated", time.Now().Format(time.RFC3339Nano)).Err()
		if err != nil {
			return reset, err
		}
		reset++
	}
	if err := iter.Err(); err != nil {
		return reset, err
	}
	return reset, nil
}

func (s *RedisStore) ListRecord(ctx context.Context, recordID string) ([]Artifact, error) {
	keys, err := s.client.LRange(ctx, recordKey(recordID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	var out []Artifact
	for _, key := range keys {
		a, err := s.Get(ctx, recordID, key)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
