/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/simeonmiteff/gwmp/pkg/client"
	"github.com/simeonmiteff/gwmp/pkg/gwmp"
)

func main() {
	macFlag := flag.String("mac", "AA:55:5A:01:02:03:04:05", "gateway EUI-64, colon-separated hex")
	serverAddr := flag.String("server", "127.0.0.1:1680", "GWMP server address")
	keepalive := flag.Duration("keepalive", client.DefaultKeepalivePeriod, "PULL_DATA keepalive cadence")
	beaconPeriod := flag.Duration("beacon", 30*time.Second, "synthetic rxpk beacon cadence (0 disables)")
	flag.Parse()

	mac, err := parseMac(*macFlag)
	if err != nil {
		log.WithError(err).Fatal("gwmp-client: invalid -mac")
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt, err := client.New(ctx, client.Config{
		Mac:             mac,
		ServerAddr:      *serverAddr,
		KeepalivePeriod: *keepalive,
	})
	if err != nil {
		log.WithError(err).Fatal("gwmp-client: startup")
	}

	go consumeEvents(rt)
	if *beaconPeriod > 0 {
		go sendBeacons(rt, *beaconPeriod)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("gwmp-client: shutting down")
	cancel()
	_ = rt.Close()
}

func parseMac(s string) ([8]byte, error) {
	var out [8]byte
	hexDigits := strings.ReplaceAll(s, ":", "")
	b, err := hex.DecodeString(hexDigits)
	if err != nil || len(b) != 8 {
		return out, fmt.Errorf("gwmp-client: invalid mac %q, want 8 colon-separated hex bytes", s)
	}
	copy(out[:], b)
	return out, nil
}

// consumeEvents logs every event and immediately acknowledges any
// downlink request, simulating a gateway that always manages to
// transmit.
func consumeEvents(rt *client.Runtime) {
	for ev := range rt.Events() {
		switch e := ev.(type) {
		case client.DownlinkRequestEvent:
			log.WithFields(log.Fields{
				"freq": e.Request.TxPk().Freq,
				"imme": e.Request.TxPk().IsImmediate(),
			}).Info("downlink requested")
			if err := e.Request.Ack(nil); err != nil {
				log.WithError(err).Warn("gwmp-client: ack downlink")
			}

		case client.LostConnectionEvent:
			log.WithError(e.Err).Warn("gwmp-client: lost connection")

		case client.ReconnectedEvent:
			log.Info("gwmp-client: reconnected")

		case client.UnableToParseUDPFrameEvent:
			log.WithFields(log.Fields{"bytes": len(e.Bytes)}).WithError(e.Err).Warn("gwmp-client: unparseable datagram from server")
		}
	}
}

// sendBeacons periodically uploads a synthetic rxpk (with no stat), so a
// freshly started gwmp-client produces visible uplink traffic without
// needing real radio hardware behind it.
func sendBeacons(rt *client.Runtime, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for range ticker.C {
		rxpk := gwmp.RxPk{V1: &gwmp.RxPkV1{
			Chan: 0,
			Data: gwmp.Base64Bytes{0xDE, 0xAD, 0xBE, 0xEF},
			Datr: gwmp.DataRate{SpreadingFactor: 7, Bandwidth: 125},
			Freq: 868.1,
			Lsnr: 9.5,
			Modu: gwmp.ModulationLoRa,
			Rssi: -42,
			Size: 4,
			Stat: gwmp.CRCOK,
		}}
		if err := rt.PushRxPk([]gwmp.RxPk{rxpk}, nil); err != nil {
			log.WithError(err).Warn("gwmp-client: send beacon")
		}
	}
}
