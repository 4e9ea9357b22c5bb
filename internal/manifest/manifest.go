// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

// manifest assembles IIIF Presentation 2 manifests for records from
// the conversion registry. A manifest lists one canvas per finished
// tile artifact, in upload order, each pointing at the record's image
// service.
package manifest

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/scantile/iiifpipeline/internal/status"
)

const (
	presentationContext = "http://iiif.io/api/presentation/2/context.json"
	imageContext        = "http://iiif.io/api/image/2/context.json"
	imageProfile        = "http://iiif.io/api/image/2/level1"
)

// Manifest is an IIIF Presentation API 2 manifest.
type Manifest struct {
	Context   string     `json:"@context"`
	ID        string     `json:"@id"`
	Type      string     `json:"@type"`
	Label     string     `json:"label"`
	Metadata  []Metadata `json:"metadata,omitempty"`
	Sequences []Sequence `json:"sequences"`
}

type Metadata struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Sequence struct {
	Type     string   `json:"@type"`
	Canvases []Canvas `json:"canvases"`
}

type Canvas struct {
	ID     string       `json:"@id"`
	Type   string       `json:"@type"`
	Label  string       `json:"label"`
	Width  int          `json:"width"`
	Height int          `json:"height"`
	Images []Annotation `json:"images"`
}

type Annotation struct {
	Type       string   `json:"@type"`
	Motivation string   `json:"motivation"`
	Resource   Resource `json:"resource"`
	On         string   `json:"on"`
}

type Resource struct {
	ID      string  `json:"@id"`
	Type    string  `json:"@type"`
	Format  string  `json:"format"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	Service Service `json:"service"`
}

type Service struct {
	Context string `json:"@context"`
	ID      string `json:"@id"`
	Profile string `json:"profile"`
}

// Assembler builds manifests against a serving base URL, e.g.
// "https://tiles.example.org/iiif".
type Assembler struct {
	BaseURL string
}

// imageID is the image service base for one artifact. Keys appear in
// URL paths, so they are escaped.
func (a Assembler) imageID(recordID, key string) string {
	return fmt.Sprintf("%s/%s/%s", a.BaseURL,
		url.PathEscape(recordID), url.PathEscape(key))
}

// Build assembles the manifest for one record. Only finished
// artifacts get canvases; pending and failed ones are left out, so a
// record mid-conversion yields a valid, shorter manifest.
func (a Assembler) Build(recordID, label string, arts []status.Artifact) *Manifest {
	m := &Manifest{
		Context:   presentationContext,
		ID:        fmt.Sprintf("%s/manifest/%s", a.BaseURL, url.PathEscape(recordID)),
		Type:      "sc:Manifest",
		Label:     label,
		Sequences: []Sequence{{Type: "sc:Sequence", Canvases: []Canvas{}}},
	}
	if label == "" {
		m.Label = recordID
	}

	for _, art := range arts {
		if art.State != status.StateFinished {
			continue
		}
		imgID := a.imageID(recordID, art.Key)
		canvasID := imgID + "/canvas"
		m.Sequences[0].Canvases = append(m.Sequences[0].Canvases, Canvas{
			ID:     canvasID,
			Type:   "sc:Canvas",
			Label:  art.Key,
			Width:  art.Width,
			Height: art.Height,
			Images: []Annotation{{
				Type:       "oa:Annotation",
				Motivation: "sc:painting",
				On:         canvasID,
				Resource: Resource{
					ID:     imgID + "/full/full/0/default.jpg",
					Type:   "dctypes:Image",
					Format: "image/jpeg",
					Width:  art.Width,
					Height: art.Height,
					Service: Service{
						Context: imageContext,
						ID:      imgID,
						Profile: imageProfile,
					},
				},
			}},
		})
	}
	return m
}

// Encode serialises a manifest. Field order is fixed by the struct
// definitions, so equal inputs produce byte-identical output.
func (m *Manifest) Encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
