/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"

	"github.com/simeonmiteff/gwmp/pkg/gwmp"
	"github.com/simeonmiteff/gwmp/pkg/metrics"
	"github.com/simeonmiteff/gwmp/pkg/server"
)

func main() {
	bindAddr := flag.String("bind", ":1680", "UDP address to listen on for gateway traffic")
	metricsAddr := flag.String("metrics", ":9680", "HTTP address to serve /metrics on")
	disconnectThreshold := flag.Duration("disconnect-threshold", server.DefaultDisconnectThreshold, "time a gateway may go quiet before it is evicted")
	cacheSweepPeriod := flag.Duration("cache-sweep-period", server.DefaultCacheSweepPeriod, "connection-table sweep interval")
	demoDownlink := flag.Bool("demo-downlink", false, "send a trivial immediate downlink to every gateway as soon as it connects, for exercising the dispatch path")
	flag.Parse()

	hostname, err := os.Hostname()
	if err != nil {
		log.WithError(err).Fatal("gwmp-server: hostname")
	}

	collector := metrics.NewGatewayCollector("gwmp", "gwmp-server", hostname)
	prometheus.MustRegister(collector)

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := server.New(ctx, server.Config{
		BindAddr:            *bindAddr,
		DisconnectThreshold: *disconnectThreshold,
		CacheSweepPeriod:    *cacheSweepPeriod,
	})
	if err != nil {
		log.WithError(err).Fatal("gwmp-server: startup")
	}

	go consumeEvents(ctx, srv, collector, *demoDownlink)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	httpServer := &http.Server{Addr: *metricsAddr, Handler: mux}
	go func() {
		log.WithFields(log.Fields{"addr": *metricsAddr, "hostname": hostname}).Info("gwmp-server: serving metrics")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("gwmp-server: metrics http server")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("gwmp-server: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	cancel()
	_ = srv.Close()
}

// consumeEvents drains the server runtime's event channel for as long as
// the runtime runs, folding gateway activity into the Prometheus
// collector and emitting one structured log line per event kind.
func consumeEvents(ctx context.Context, srv *server.Server, collector *metrics.GatewayCollector, demoDownlink bool) {
	for ev := range srv.Events() {
		switch e := ev.(type) {
		case server.NewClientEvent:
			collector.MarkConnected(e.Mac)
			log.WithFields(log.Fields{"gateway_mac": e.Mac, "addr": e.Addr}).Info("gateway connected")
			if demoDownlink {
				go sendDownlink(ctx, srv, collector, e.Mac, gwmp.TxPk{Imme: true, Size: 0, Data: gwmp.Base64Bytes{}}, 5*time.Second)
			}

		case server.UpdateClientEvent:
			log.WithFields(log.Fields{"gateway_mac": e.Mac, "addr": e.Addr, "old_addr": e.OldAddr}).Info("gateway address updated")

		case server.ClientDisconnectedEvent:
			collector.MarkDisconnected(e.Mac)
			log.WithFields(log.Fields{"gateway_mac": e.Mac}).Info("gateway disconnected")

		case server.PacketReceivedEvent:
			collector.RxPkTotal.WithLabelValues(e.Mac.String()).Inc()
			log.WithFields(log.Fields{
				"gateway_mac": e.Mac,
				"freq":        e.RxPk.Frequency(),
				"snr":         e.RxPk.SNR(),
			}).Debug("rxpk received")

		case server.StatReceivedEvent:
			collector.StatTotal.WithLabelValues(e.Mac.String()).Inc()
			log.WithFields(log.Fields{"gateway_mac": e.Mac, "rxnb": e.Stat.Rxnb}).Debug("stat received")

		case server.UnableToParseUDPFrameEvent:
			collector.ParseErrorTotal.Inc()
			log.WithFields(log.Fields{"addr": e.Addr, "bytes": len(e.Bytes)}).WithError(e.Err).Warn("unparseable datagram")

		case server.NoClientWithMacEvent:
			log.WithFields(log.Fields{"gateway_mac": e.Mac}).Warn("downlink requested for unknown gateway")
		}
	}
}

// pendingDownlinks tracks in-flight dispatches across all callers of
// sendDownlink, purely for the gwmp_pending_downlinks gauge; the server
// runtime keeps its own authoritative correlation table internally.
var pendingDownlinks int64

// sendDownlink is a convenience entry point other tooling can call to
// push a downlink, tagging the attempt with a correlation id purely for
// log-line stitching (it is not part of the wire protocol).
func sendDownlink(ctx context.Context, srv *server.Server, collector *metrics.GatewayCollector, mac gwmp.MacAddress, txpk gwmp.TxPk, timeout time.Duration) (*uint32, error) {
	downlinkID := xid.New().String()
	log.WithFields(log.Fields{"gateway_mac": mac, "downlink_id": downlinkID}).Info("dispatching downlink")

	collector.SetPendingDownlinks(int(atomic.AddInt64(&pendingDownlinks, 1)))
	tmst, err := srv.SendDownlink(ctx, mac, txpk, timeout)
	collector.SetPendingDownlinks(int(atomic.AddInt64(&pendingDownlinks, -1)))

	collector.ObserveTxAckOutcome(mac, err)
	if err != nil {
		log.WithFields(log.Fields{"gateway_mac": mac, "downlink_id": downlinkID}).WithError(err).Warn("downlink outcome")
		return nil, err
	}
	log.WithFields(log.Fields{"gateway_mac": mac, "downlink_id": downlinkID, "tmst": tmst}).Info("downlink acknowledged")
	return tmst, nil
}
