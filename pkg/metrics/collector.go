/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package metrics exposes GWMP server/client runtime activity as
// Prometheus metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/simeonmiteff/gwmp/pkg/gwmp"
)

// GatewayCollector is a prometheus.Collector tracking live per-gateway
// connection state (as a mutex-guarded map, computed at Collect time)
// alongside ordinary event counters. Register it once per process with
// prometheus.MustRegister.
type GatewayCollector struct {
	mu           sync.Mutex
	connected    map[gwmp.MacAddress]struct{}
	pendingCount int

	connectedDesc *prometheus.Desc
	pendingDesc   *prometheus.Desc

	RxPkTotal       *prometheus.CounterVec
	StatTotal       *prometheus.CounterVec
	TxAckTotal      *prometheus.CounterVec
	ParseErrorTotal prometheus.Counter
}

// NewGatewayCollector constructs a GatewayCollector. namespace is the
// Prometheus metric namespace prefix (e.g. "gwmp"); app and hostname are
// attached to every metric as constant labels, the way the teacher's
// TCPInfoCollector tags its series with the process identity.
func NewGatewayCollector(namespace, app, hostname string) *GatewayCollector {
	constLabels := prometheus.Labels{"app": app, "hostname": hostname}

	return &GatewayCollector{
		connected: make(map[gwmp.MacAddress]struct{}),

		connectedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "connected_gateways"),
			"Number of gateways currently present in the server's connection table.",
			nil, constLabels,
		),
		pendingDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pending_downlinks"),
			"Number of downlinks dispatched and awaiting TX_ACK correlation.",
			nil, constLabels,
		),

		RxPkTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "rxpk_total",
			Help:        "Count of received RF packets (rxpk) by gateway mac.",
			ConstLabels: constLabels,
		}, []string{"gateway_mac"}),

		StatTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "stat_total",
			Help:        "Count of received gateway stat objects by gateway mac.",
			ConstLabels: constLabels,
		}, []string{"gateway_mac"}),

		TxAckTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "txack_total",
			Help:        "Count of TX_ACK outcomes by gateway mac and outcome.",
			ConstLabels: constLabels,
		}, []string{"gateway_mac", "outcome"}),

		ParseErrorTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "parse_errors_total",
			Help:        "Count of datagrams that failed to parse as a GWMP frame.",
			ConstLabels: constLabels,
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *GatewayCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.connectedDesc
	descs <- c.pendingDesc
	c.RxPkTotal.Describe(descs)
	c.StatTotal.Describe(descs)
	c.TxAckTotal.Describe(descs)
	c.ParseErrorTotal.Describe(descs)
}

// Collect implements prometheus.Collector.
func (c *GatewayCollector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	connected := len(c.connected)
	pending := c.pendingCount
	c.mu.Unlock()

	metrics <- prometheus.MustNewConstMetric(c.connectedDesc, prometheus.GaugeValue, float64(connected))
	metrics <- prometheus.MustNewConstMetric(c.pendingDesc, prometheus.GaugeValue, float64(pending))
	c.RxPkTotal.Collect(metrics)
	c.StatTotal.Collect(metrics)
	c.TxAckTotal.Collect(metrics)
	c.ParseErrorTotal.Collect(metrics)
}

// MarkConnected records mac as present in the connection table.
func (c *GatewayCollector) MarkConnected(mac gwmp.MacAddress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected[mac] = struct{}{}
}

// MarkDisconnected removes mac from the connection table.
func (c *GatewayCollector) MarkDisconnected(mac gwmp.MacAddress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.connected, mac)
}

// SetPendingDownlinks records the current count of in-flight downlinks
// awaiting TX_ACK correlation.
func (c *GatewayCollector) SetPendingDownlinks(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingCount = n
}

// ObserveTxAckOutcome maps err (nil for unconditional success, or one of
// the typed outcomes in package gwmp) to an outcome label and increments
// TxAckTotal.
func (c *GatewayCollector) ObserveTxAckOutcome(mac gwmp.MacAddress, err error) {
	c.TxAckTotal.WithLabelValues(mac.String(), txAckOutcomeLabel(err)).Inc()
}

func txAckOutcomeLabel(err error) string {
	switch err.(type) {
	case nil:
		return "ok"
	case gwmp.AdjustedTransmitPowerError:
		return "adjusted_power"
	case gwmp.TooLateError:
		return "too_late"
	case gwmp.TooEarlyError:
		return "too_early"
	case gwmp.CollisionPacketError:
		return "collision_packet"
	case gwmp.CollisionBeaconError:
		return "collision_beacon"
	case gwmp.InvalidTransmitFrequencyError:
		return "invalid_tx_freq"
	case gwmp.InvalidTransmitPowerError:
		return "invalid_tx_power"
	case gwmp.GpsUnlockedError:
		return "gps_unlocked"
	case gwmp.SendLBTError:
		return "send_lbt"
	case gwmp.SendFailError:
		return "send_fail"
	case gwmp.UnknownMacError:
		return "unknown_mac"
	case gwmp.SendTimeoutError:
		return "timeout"
	default:
		return "unknown"
	}
}
