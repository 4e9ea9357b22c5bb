// Copyright 2025 the iiifpipeline authors.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/scantile/iiifpipeline"
)

// replacingConn hands out a fresh message handle on every heartbeat,
// as SQS does once the visibility timeout limit is reached.
type replacingConn struct {
	mu    sync.Mutex
	beats int
}

func (c *replacingConn) QueueHeartbeat(msg iiifpipeline.Qmsg, qurl string, duration int64) (iiifpipeline.Qmsg, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beats++
	return iiifpipeline.Qmsg{
		Id:     fmt.Sprintf("id%d", c.beats),
		Handle: fmt.Sprintf("handle%d", c.beats),
	}, nil
}

func (c *replacingConn) Log(v ...interface{}) {}

func (c *replacingConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.beats
}

func TestHeartbeatDeliversReplacementHandle(t *testing.T) {
	conn := &replacingConn{}
	msgc := make(chan iiifpipeline.Qmsg, 1)
	errc := make(chan error)

	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	go heartbeat(conn, tick, iiifpipeline.Qmsg{Id: "orig", Handle: "orig"}, "q", msgc, errc)

	// several replacements should go by without the heartbeat wedging
	// on an undelivered handle
	time.Sleep(50 * time.Millisecond)

	select {
	case m := <-msgc:
		if m.Handle == "" || m.Handle == "orig" {
			t.Fatalf("Expected a replacement handle, got %q", m.Handle)
		}
	case <-time.After(time.Second):
		t.Fatal("No replacement handle delivered")
	}

	if beats := conn.count(); beats < 2 {
		t.Fatalf("Heartbeat stalled after %d beat(s)", beats)
	}
}
