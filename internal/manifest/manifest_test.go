// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package manifest

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/scantile/iiifpipeline/internal/status"
)

func testArtifacts() []status.Artifact {
	return []status.Artifact{
		{RecordID: "216", Key: "page-001.tif", State: status.StateFinished, Width: 2000, Height: 3000},
		{RecordID: "216", Key: "page-002.tif", State: status.StateProcessing},
		{RecordID: "216", Key: "broken.jpg", State: status.StateFailed, Reason: "not an image"},
		{RecordID: "216", Key: "page-003.tif", State: status.StateFinished, Width: 1900, Height: 2800},
	}
}

func TestBuild(t *testing.T) {
	a := Assembler{BaseURL: "https://tiles.example.org/iiif"}
	m := a.Build("216", "A Sample Record", testArtifacts())

	if m.ID != "https://tiles.example.org/iiif/manifest/216" {
		t.Fatalf("Wrong manifest id %s", m.ID)
	}
	if m.Type != "sc:Manifest" || m.Label != "A Sample Record" {
		t.Fatalf("Wrong manifest type or label: %s %s", m.Type, m.Label)
	}
	if len(m.Sequences) != 1 {
		t.Fatalf("Expected 1 sequence, got %d", len(m.Sequences))
	}

	canvases := m.Sequences[0].Canvases
	if len(canvases) != 2 {
		t.Fatalf("Expected 2 canvases for 2 finished artifacts, got %d", len(canvases))
	}
	// upload order must be preserved
	if canvases[0].Label != "page-001.tif" || canvases[1].Label != "page-003.tif" {
		t.Fatalf("Canvases out of order: %s, %s", canvases[0].Label, canvases[1].Label)
	}

	c := canvases[0]
	if c.Width != 2000 || c.Height != 3000 {
		t.Fatalf("Wrong canvas dimensions %dx%d", c.Width, c.Height)
	}
	if len(c.Images) != 1 {
		t.Fatalf("Expected 1 image annotation, got %d", len(c.Images))
	}
	img := c.Images[0]
	if img.On != c.ID {
		t.Fatalf("Annotation not attached to its canvas: %s vs %s", img.On, c.ID)
	}
	wantSvc := "https://tiles.example.org/iiif/216/page-001.tif"
	if img.Resource.Service.ID != wantSvc {
		t.Fatalf("Wrong service id %s, want %s", img.Resource.Service.ID, wantSvc)
	}
	if img.Resource.ID != wantSvc+"/full/full/0/default.jpg" {
		t.Fatalf("Wrong resource id %s", img.Resource.ID)
	}
}

func TestBuildEmptyRecord(t *testing.T) {
	a := Assembler{BaseURL: "https://tiles.example.org/iiif"}
	m := a.Build("999", "", nil)

	if m.Label != "999" {
		t.Fatalf("Expected record id as fallback label, got %q", m.Label)
	}
	b, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// a record with nothing converted still yields a valid manifest
	// with an empty canvas list, never null
	if !bytes.Contains(b, []byte(`"canvases": []`)) {
		t.Fatalf("Expected empty canvases array, got %s", b)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	a := Assembler{BaseURL: "https://tiles.example.org/iiif"}
	b1, err := a.Build("216", "x", testArtifacts()).Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	b2, err := a.Build("216", "x", testArtifacts()).Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Equal(b1, b2) {
		t.Fatal("Equal manifests encoded to different bytes")
	}

	var m map[string]interface{}
	if err := json.Unmarshal(b1, &m); err != nil {
		t.Fatalf("Encoded manifest is not valid JSON: %v", err)
	}
	if m["@context"] != "http://iiif.io/api/presentation/2/context.json" {
		t.Fatalf("Wrong @context %v", m["@context"])
	}
}

func TestKeyEscaping(t *testing.T) {
	a := Assembler{BaseURL: "https://tiles.example.org/iiif"}
	arts := []status.Artifact{
		{RecordID: "216", Key: "scan one.pdf:p1", State: status.StateFinished, Width: 100, Height: 100},
	}
	m := a.Build("216", "x", arts)
	got := m.Sequences[0].Canvases[0].Images[0].Resource.Service.ID
	want := "https://tiles.example.org/iiif/216/scan%20one.pdf:p1"
	if got != want {
		t.Fatalf("Service id not escaped: %s, want %s", got, want)
	}
}
