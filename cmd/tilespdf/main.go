// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/scantile/iiifpipeline"
	"github.com/scantile/iiifpipeline/internal/config"
)

const usage = `Usage: tilespdf [-c config.yaml] recordid out.pdf

tilespdf exports every finished artifact of a record as a PDF, one
page per artifact in upload order, built from a mid resolution level
of each pyramid tile container.
`

func main() {
	conf := flag.String("c", "", "path to config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		return
	}

	c, err := config.Load(*conf)
	if err != nil {
		log.Fatalln("Error loading config:", err)
	}

	conn, err := iiifpipeline.NewConn(c, log.Default())
	if err != nil {
		log.Fatalln(err)
	}
	err = conn.MinimalInit()
	if err != nil {
		log.Fatalln("Error setting up cloud connection:", err)
	}

	st := iiifpipeline.NewStatusStore(c)
	err = iiifpipeline.ExportPDF(context.Background(), st, iiifpipeline.NewTileStore(conn), flag.Arg(0), flag.Arg(1))
	if err != nil {
		log.Fatalln("Error exporting PDF:", err)
	}
}
