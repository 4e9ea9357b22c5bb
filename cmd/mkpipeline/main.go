// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

// mkpipeline sets up the necessary buckets and queues for the tile
// conversion pipeline.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/scantile/iiifpipeline"
	"github.com/scantile/iiifpipeline/internal/config"
)

const usage = `Usage: mkpipeline [-c config.yaml]

Sets up the necessary buckets and queues for the tile conversion
pipeline, on whichever backend the configuration selects.
`

func main() {
	conf := flag.String("c", "", "path to config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 0 {
		flag.Usage()
		return
	}

	c, err := config.Load(*conf)
	if err != nil {
		log.Fatalln("Error loading config:", err)
	}

	conn, err := iiifpipeline.NewConn(c, log.New(os.Stdout, "", 0))
	if err != nil {
		log.Fatalln(err)
	}
	err = conn.MinimalInit()
	if err != nil {
		log.Fatalln("Failed to set up cloud connection:", err)
	}

	err = conn.MkPipeline()
	if err != nil {
		log.Fatalln("MkPipeline failed:", err)
	}
}
