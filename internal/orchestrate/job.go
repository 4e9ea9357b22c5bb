// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package orchestrate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Job is one conversion work item as carried on the convert queue.
type Job struct {
	ID            string `json:"id"`
	RecordID      string `json:"record"`
	ArtifactKey   string `json:"key"`
	SourceVersion string `json:"version"`
}

func newJob(recordID, artifactKey, sourceVersion string) Job {
	return Job{
		ID:            uuid.NewString(),
		RecordID:      recordID,
		ArtifactKey:   artifactKey,
		SourceVersion: sourceVersion,
	}
}

func (j Job) encode() (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseJob decodes a queue message body back into a Job.
func ParseJob(body string) (Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(body), &j); err != nil {
		return Job{}, fmt.Errorf("could not parse job message %q: %v", body, err)
	}
	if j.RecordID == "" || j.ArtifactKey == "" {
		return Job{}, fmt.Errorf("incomplete job message %q", body)
	}
	return j, nil
}

const pageSep = ":p"

// pageKey derives the artifact key of one page of a paged document,
// e.g. "scan.pdf" page 0 becomes "scan.pdf:p1".
func pageKey(key string, page int) string {
	return key + pageSep + strconv.Itoa(page+1)
}

// splitPageKey reverses pageKey. The returned page is -1 when the key
// does not refer to a document page.
func splitPageKey(artifactKey string) (string, int) {
	i := strings.LastIndex(artifactKey, pageSep)
	if i < 0 {
		return artifactKey, -1
	}
	n, err := strconv.Atoi(artifactKey[i+len(pageSep):])
	if err != nil || n < 1 {
		return artifactKey, -1
	}
	return artifactKey[:i], n - 1
}
