// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package iiifpipeline

// This file contains various cloud account specific settings.
// The names set here are used by both the AWS and local connections,
// and by mkpipeline when creating the infrastructure.

// Queue names
const queueConvert = "tileconvert"

// Storage locations. storageTiles holds finished pyramid tile
// containers and thumbnails, storageSources holds uploaded source
// files awaiting (re)conversion.
const storageTiles = "iiiftiles"
const storageSources = "iiifsources"
