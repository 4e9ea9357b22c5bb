// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"

	"go.uber.org/zap"

	"github.com/scantile/iiifpipeline"
	"github.com/scantile/iiifpipeline/internal/config"
	"github.com/scantile/iiifpipeline/internal/iiifimage"
	"github.com/scantile/iiifpipeline/internal/manifest"
	"github.com/scantile/iiifpipeline/internal/server"
)

const usage = `Usage: iiifserve [-c config.yaml] [-v]

iiifserve serves the IIIF HTTP API: presentation manifests for
records, plus info.json documents and image derivations for their
converted tile artifacts.

Requests for artifacts that are still converting are answered with
the upload-time thumbnail where one exists.
`

func main() {
	conf := flag.String("c", "", "path to config file")
	verbose := flag.Bool("v", false, "verbose")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	c, err := config.Load(*conf)
	if err != nil {
		log.Fatalln("Error loading config:", err)
	}

	var zlog *zap.Logger
	if *verbose {
		zlog, err = zap.NewDevelopment()
	} else {
		zlog, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalln("Error setting up logging:", err)
	}
	defer zlog.Sync()
	sugar := zlog.Sugar()

	conn, err := iiifpipeline.NewConn(c, zap.NewStdLog(zlog))
	if err != nil {
		log.Fatalln(err)
	}
	err = conn.MinimalInit()
	if err != nil {
		log.Fatalln("Error setting up cloud connection:", err)
	}

	st := iiifpipeline.NewStatusStore(c)
	s := &server.Server{
		Gateway: &iiifimage.Gateway{
			Status: st,
			Tiles:  iiifpipeline.NewTileStore(conn),
		},
		Manifests: manifest.Assembler{BaseURL: c.BaseURL},
		Status:    st,
		Log:       sugar,
	}

	sugar.Infow("serving", "listen", c.Listen, "baseurl", c.BaseURL)
	err = http.ListenAndServe(c.Listen, s.Handler())
	if err != nil {
		log.Fatalln("Server failed:", err)
	}
}
