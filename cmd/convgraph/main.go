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

	"github.com/scantile/iiifpipeline"
	"github.com/scantile/iiifpipeline/internal/config"
)

const usage = `Usage: convgraph [-c config.yaml] recordid graph.png

convgraph plots the conversion time of each of a record's artifacts,
read from the conversion registry, and saves the graph as a PNG.
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

	st := iiifpipeline.NewStatusStore(c)
	arts, err := st.ListRecord(context.Background(), flag.Arg(0))
	if err != nil {
		log.Fatalln("Error listing record artifacts:", err)
	}

	f, err := os.Create(flag.Arg(1))
	if err != nil {
		log.Fatalln("Error creating graph file:", err)
	}
	defer f.Close()

	err = iiifpipeline.Graph(arts, flag.Arg(0), f)
	if err != nil {
		log.Fatalln("Error generating graph:", err)
	}
}
