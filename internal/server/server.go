// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

// server exposes the IIIF HTTP surface: presentation manifests, image
// info documents and image derivations.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/scantile/iiifpipeline/internal/iiifimage"
	"github.com/scantile/iiifpipeline/internal/manifest"
	"github.com/scantile/iiifpipeline/internal/status"
	"github.com/scantile/iiifpipeline/internal/store"
)

// Server handles the IIIF routes. BaseURL is the externally visible
// prefix used in the documents it produces.
type Server struct {
	Gateway   *iiifimage.Gateway
	Manifests manifest.Assembler
	Status    status.Store
	Log       *zap.SugaredLogger

	// Label resolves a record's manifest label from the record
	// management collaborator. Optional; the record id is used when
	// unset or on error.
	Label func(ctx context.Context, recordID string) (string, error)
}

// Handler returns the route handler, with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /manifest/{record}", s.handleManifest)
	mux.HandleFunc("GET /{record}/{key}/info.json", s.handleInfo)
	mux.HandleFunc("GET /{record}/{key}/{region}/{size}/{rotation}/{qualityformat}", s.handleImage)
	return s.logged(mux)
}

// statusRecorder captures the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.Log.Infow("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.code,
			"duration", time.Since(start),
		)
	})
}

// fail maps service errors onto HTTP responses.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case iiifimage.IsBadRequest(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case status.IsNotFound(err), store.IsNotFound(err), errors.Is(err, os.ErrNotExist):
		http.Error(w, "not found", http.StatusNotFound)
	case iiifimage.IsNotReady(err):
		// conversion is underway; tell clients when to come back
		w.Header().Set("Retry-After", "10")
		http.Error(w, "conversion in progress", http.StatusServiceUnavailable)
	default:
		s.Log.Errorw("request failed", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	record := r.PathValue("record")
	arts, err := s.Status.ListRecord(r.Context(), record)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var label string
	if s.Label != nil {
		label, err = s.Label(r.Context(), record)
		if err != nil {
			s.Log.Warnw("label lookup failed", "record", record, "error", err)
			label = ""
		}
	}

	// a record with nothing converted yet still gets a valid, empty
	// manifest rather than an error
	b, err := s.Manifests.Build(record, label, arts).Encode()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/ld+json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Write(b)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	record := r.PathValue("record")
	key := r.PathValue("key")

	id := s.Manifests.BaseURL + "/" + record + "/" + key
	info, err := s.Gateway.Info(r.Context(), record, key, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	b, err := info.Encode()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/ld+json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Write(b)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	record := r.PathValue("record")
	key := r.PathValue("key")

	p, err := iiifimage.ParseParams(
		r.PathValue("region"),
		r.PathValue("size"),
		r.PathValue("rotation"),
		r.PathValue("qualityformat"),
	)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	b, ctype, err := s.Gateway.Render(r.Context(), record, key, p)
	if iiifimage.IsNotReady(err) && p.WholeImage() {
		// serve the upload-time thumbnail for whole-image requests
		// while the pyramid converts; region and size requests cannot
		// be answered from it and get the usual 503
		tb, terr := s.Gateway.Thumb(r.Context(), record, key)
		if terr == nil {
			w.Header().Set("Content-Type", "image/jpeg")
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Cache-Control", "no-cache")
			w.Write(tb)
			return
		}
		s.fail(w, r, err)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Write(b)
}
