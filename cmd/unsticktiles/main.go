// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/scantile/iiifpipeline"
	"github.com/scantile/iiifpipeline/internal/config"
)

const usage = `Usage: unsticktiles [-c config.yaml] [-older duration]

unsticktiles resets conversions that have sat in the processing state
for longer than the cutoff back to init, so they can be dispatched
again. This recovers jobs whose worker died mid-conversion.

It also prints the convert queue depth, to help judge whether the
stuck entries were queue casualties or worker crashes.
`

func main() {
	conf := flag.String("c", "", "path to config file")
	older := flag.Duration("older", 30*time.Minute, "reset conversions processing for longer than this")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	c, err := config.Load(*conf)
	if err != nil {
		log.Fatalln("Error loading config:", err)
	}

	conn, err := iiifpipeline.NewConn(c, log.Default())
	if err != nil {
		log.Fatalln(err)
	}
	err = conn.Init()
	if err != nil {
		log.Fatalln("Error setting up cloud connection:", err)
	}

	avail, inprog, err := conn.GetQueueDetails(conn.ConvertQueueId())
	if err != nil {
		log.Fatalln("Error getting queue details:", err)
	}
	fmt.Printf("Convert queue: %s available, %s in progress\n", avail, inprog)

	st := iiifpipeline.NewStatusStore(c)
	n, err := st.ResetStuck(context.Background(), *older)
	if err != nil {
		log.Fatalln("Error resetting stuck conversions:", err)
	}
	fmt.Printf("Reset %d stuck conversion(s) older than %s\n", n, *older)
}
