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
	"time"

	"github.com/scantile/iiifpipeline"
	"github.com/scantile/iiifpipeline/internal/config"
)

const usage = `Usage: tileworker [-c config.yaml] [-v]

tileworker watches the convert queue for tile conversion jobs. When
one is found this general process is followed:

- The job is hidden from the queue, and a 'heartbeat' is started
  which keeps it hidden while it is worked on
- The source file is fetched from source storage
- The pyramid tile container is built and written to tile storage
- The conversion registry is updated
- The job is removed from the queue

A failed conversion is recorded against the artifact and its job is
removed; the worker then carries on with the next job.
`

const PauseBetweenChecks = 10 * time.Second
const HeartbeatTime = 60

// null writer to enable non-verbose logging to be discarded
type NullWriter bool

func (w NullWriter) Write(p []byte) (n int, err error) {
	return len(p), nil
}

// heartbeater is the part of a connection heartbeat needs, so it can
// be exercised without a real queue.
type heartbeater interface {
	QueueHeartbeat(msg iiifpipeline.Qmsg, qurl string, duration int64) (iiifpipeline.Qmsg, error)
	Log(v ...interface{})
}

func heartbeat(conn heartbeater, t *time.Ticker, msg iiifpipeline.Qmsg, queue string, msgc chan iiifpipeline.Qmsg, errc chan error) {
	currentmsg := msg
	for range t.C {
		m, err := conn.QueueHeartbeat(currentmsg, queue, HeartbeatTime*2)
		if err != nil {
			conn.Log("Error with heartbeat", err)
			errc <- err
			t.Stop()
			return
		}
		if m.Id != "" {
			conn.Log("Replaced message handle as visibilitytimeout limit was reached")
			currentmsg = m
			// throw away any undelivered older handle so the send of
			// the latest one never blocks (msgc is buffered)
			select {
			case <-msgc:
			default:
			}
			msgc <- m
		}
	}
}

// processJob runs one conversion job under a queue heartbeat, then
// deletes the message.
func processJob(ctx context.Context, msg iiifpipeline.Qmsg, conn iiifpipeline.Pipeliner, o interface {
	HandleMessage(ctx context.Context, body string) error
}) error {
	msgc := make(chan iiifpipeline.Qmsg, 1)
	errc := make(chan error)

	t := time.NewTicker(HeartbeatTime * time.Second)
	go heartbeat(conn, t, msg, conn.ConvertQueueId(), msgc, errc)

	done := make(chan error)
	go func() {
		done <- o.HandleMessage(ctx, msg.Body)
	}()

	var err error
	select {
	case err = <-errc:
		t.Stop()
		return fmt.Errorf("Heartbeat failed: %v", err)
	case err = <-done:
	}
	t.Stop()
	if err != nil {
		return err
	}

	// check whether we're using a newer msg handle
	select {
	case m, ok := <-msgc:
		if ok {
			msg = m
			conn.Log("Using new message handle to delete message from queue")
		}
	default:
	}

	err = conn.DelFromQueue(conn.ConvertQueueId(), msg.Handle)
	if err != nil {
		return fmt.Errorf("Error deleting message from queue: %v", err)
	}
	return nil
}

func main() {
	conf := flag.String("c", "", "path to config file")
	verbose := flag.Bool("v", false, "verbose")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	var verboselog *log.Logger
	if *verbose {
		verboselog = log.New(os.Stdout, "", 0)
	} else {
		var n NullWriter
		verboselog = log.New(n, "", 0)
	}

	c, err := config.Load(*conf)
	if err != nil {
		log.Fatalln("Error loading config:", err)
	}

	conn, err := iiifpipeline.NewConn(c, verboselog)
	if err != nil {
		log.Fatalln(err)
	}
	verboselog.Println("Setting up cloud connection")
	err = conn.Init()
	if err != nil {
		log.Fatalln("Error setting up cloud connection:", err)
	}

	o := iiifpipeline.NewOrchestrator(c, conn, iiifpipeline.NewStatusStore(c))
	ctx := context.Background()

	for {
		msg, err := conn.CheckQueue(conn.ConvertQueueId(), HeartbeatTime*2)
		if err != nil {
			log.Println("Error checking convert queue", err)
			time.Sleep(PauseBetweenChecks)
			continue
		}
		if msg.Handle == "" {
			verboselog.Println("No message received on convert queue, sleeping")
			time.Sleep(PauseBetweenChecks)
			continue
		}
		verboselog.Println("Message received on convert queue, processing", msg.Body)
		err = processJob(ctx, msg, conn, o)
		if err != nil {
			log.Println("Error during conversion", err)
		}
	}
}
