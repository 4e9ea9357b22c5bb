// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/scantile/iiifpipeline"
	"github.com/scantile/iiifpipeline/internal/config"
	"github.com/scantile/iiifpipeline/internal/orchestrate"
	"github.com/scantile/iiifpipeline/internal/store"
)

const usage = `Usage: uploadtiles [-c config.yaml] [-v] [-access level] [-version id] recordid file [file...]
       uploadtiles [-c config.yaml] [-v] [-access level] [-version id] -r recordid

uploadtiles notifies the pipeline of uploaded record files. Each file
is stored in source storage, registered in the conversion registry,
and queued for conversion into pyramid tiles. Files with extensions
outside the conversion allow-list are skipped.

The version id marks which upload of the file the conversion belongs
to; re-running with a new version queues reconversion, while
re-running with the same version is a no-op for anything already
converted.

With -r no files are uploaded; instead the record's existing sources
in source storage are swept, and conversion is queued for anything
missing or stale at the given version. This is how records uploaded
before the pipeline existed get their tiles generated.
`

// null writer to enable non-verbose logging to be discarded
type NullWriter bool

func (w NullWriter) Write(p []byte) (n int, err error) {
	return len(p), nil
}

func main() {
	conf := flag.String("c", "", "path to config file")
	verbose := flag.Bool("v", false, "verbose")
	access := flag.String("access", "public", "access level (public or restricted)")
	version := flag.String("version", "1", "source version id of the upload")
	resweep := flag.Bool("r", false, "sweep the record's stored sources instead of uploading")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if (*resweep && flag.NArg() != 1) || (!*resweep && flag.NArg() < 2) {
		flag.Usage()
		return
	}

	var verboselog *log.Logger
	if *verbose {
		verboselog = log.New(os.Stdout, "", 0)
	} else {
		var n NullWriter
		verboselog = log.New(n, "", 0)
	}

	level, err := store.ParseAccessLevel(*access)
	if err != nil {
		log.Fatalln(err)
	}

	c, err := config.Load(*conf)
	if err != nil {
		log.Fatalln("Error loading config:", err)
	}

	conn, err := iiifpipeline.NewConn(c, verboselog)
	if err != nil {
		log.Fatalln(err)
	}
	err = conn.Init()
	if err != nil {
		log.Fatalln("Error setting up cloud connection:", err)
	}

	o := iiifpipeline.NewOrchestrator(c, conn, iiifpipeline.NewStatusStore(c))
	ctx := context.Background()

	recordid := flag.Arg(0)

	if *resweep {
		keys, err := conn.ListObjects(conn.SourceStorageId(), recordid+"/")
		if err != nil {
			log.Fatalln("Error listing record sources:", err)
		}
		var files []orchestrate.SourceInfo
		for _, k := range keys {
			files = append(files, orchestrate.SourceInfo{
				Key:           strings.TrimPrefix(k, recordid+"/"),
				Access:        level,
				SourceVersion: *version,
			})
		}
		verboselog.Println("Sweeping", len(files), "source(s) for record", recordid)
		err = o.Sweep(ctx, recordid, files)
		if err != nil {
			log.Fatalln("Error sweeping record:", err)
		}
		return
	}

	for _, path := range flag.Args()[1:] {
		f, err := os.Open(path)
		if err != nil {
			log.Fatalln("Error opening file:", err)
		}
		key := filepath.Base(path)
		verboselog.Println("Uploading", key, "to record", recordid)
		err = o.NotifyFileUploaded(ctx, recordid, key, level, *version, f)
		f.Close()
		if err != nil {
			log.Fatalln("Error uploading file:", err)
		}
	}
}
