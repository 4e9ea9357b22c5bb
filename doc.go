// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

/*
Package iiifpipeline contains various tools and functions for running
an IIIF tile conversion pipeline: turning uploaded images and PDF
pages into multi-resolution pyramid tile containers, storing them
under a sharded directory layout, and serving IIIF Image and
Presentation API requests against them.

The core functionality is in the internal packages:

	internal/tile        pyramid tile encoding and reading
	internal/store       sharded tile storage (local and S3 backed)
	internal/status      per-artifact conversion state registry
	internal/orchestrate conversion scheduling and processing
	internal/iiifimage   IIIF Image API request handling
	internal/manifest    IIIF Presentation API manifest assembly
	internal/server      the HTTP surface tying the above together

This package provides the cloud connections used to tie the pipeline
together across machines. The LocalConn connection mirrors the AwsConn
connection using the local filesystem, so everything can be run and
tested without any cloud account.

Several commands are in the cmd directory:

	iiifserve    serve manifests and Image API requests over HTTP
	tileworker   watch the conversion queue and process jobs
	uploadtiles  upload source files and schedule their conversion
	mkpipeline   create the buckets and queues the pipeline needs
	unsticktiles reset conversions stuck in the processing state
	convgraph    graph conversion durations for a record
	tilespdf     export a record's finished tiles as a PDF
*/
package iiifpipeline
