/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Command gwmp-mux is a thin demonstration multiplexer: it runs one
// pkg/client runtime against an upstream GWMP server and fans its
// events out to N downstream subscriber goroutines. A real deployment
// would expose those subscribers over some transport of its own; this
// binary keeps that part minimal and just logs per-subscriber, since
// multiplexing is out of scope for the core protocol this repository
// implements.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/simeonmiteff/gwmp/pkg/client"
)

func main() {
	macFlag := flag.String("mac", "AA:55:5A:01:02:03:04:05", "gateway EUI-64, colon-separated hex")
	serverAddr := flag.String("server", "127.0.0.1:1680", "upstream GWMP server address")
	subscribers := flag.Int("subscribers", 3, "number of downstream subscribers to fan events out to")
	flag.Parse()

	mac, err := parseMac(*macFlag)
	if err != nil {
		log.WithError(err).Fatal("gwmp-mux: invalid -mac")
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt, err := client.New(ctx, client.Config{Mac: mac, ServerAddr: *serverAddr})
	if err != nil {
		log.WithError(err).Fatal("gwmp-mux: startup")
	}

	fanout := newFanout(*subscribers)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fanout.run(rt.Events())
	}()

	for i := 0; i < *subscribers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for ev := range fanout.subscribe(id) {
				log.WithFields(log.Fields{"subscriber": id}).Infof("event: %T", ev)
			}
		}(i)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("gwmp-mux: shutting down")
	cancel()
	_ = rt.Close()
	fanout.close()
	wg.Wait()
}

// fanout republishes every event from a single upstream channel onto N
// independent per-subscriber channels, so a slow subscriber only ever
// backs up its own queue.
type fanout struct {
	outs []chan client.Event
}

func newFanout(n int) *fanout {
	f := &fanout{outs: make([]chan client.Event, n)}
	for i := range f.outs {
		f.outs[i] = make(chan client.Event, 100)
	}
	return f
}

func (f *fanout) subscribe(id int) <-chan client.Event { return f.outs[id] }

func (f *fanout) run(in <-chan client.Event) {
	for ev := range in {
		for _, out := range f.outs {
			select {
			case out <- ev:
			default:
				log.Warn("gwmp-mux: subscriber queue full, dropping event")
			}
		}
	}
	f.close()
}

func (f *fanout) close() {
	for _, out := range f.outs {
		closeOnce(out)
	}
}

// closeOnce tolerates being called after run() has already closed the
// same channel on upstream closure.
func closeOnce(ch chan client.Event) {
	defer func() { recover() }()
	close(ch)
}

func parseMac(s string) ([8]byte, error) {
	var out [8]byte
	hexDigits := strings.ReplaceAll(s, ":", "")
	b, err := hex.DecodeString(hexDigits)
	if err != nil || len(b) != 8 {
		return out, fmt.Errorf("gwmp-mux: invalid mac %q, want 8 colon-separated hex bytes", s)
	}
	copy(out[:], b)
	return out, nil
}
