// Package client implements the GWMP client runtime: the gateway side of
// the Semtech packet-forwarder protocol, sending PUSH_DATA/PULL_DATA
// upstream and surfacing PULL_RESP downlinks for the caller to accept or
// reject.
package client

import "time"

// DefaultKeepalivePeriod is the PULL_DATA cadence a connected gateway
// sends to keep its NAT binding alive and signal liveness to the server.
const DefaultKeepalivePeriod = 10 * time.Second

// DefaultReconnectBackoff is how long the writer/reader goroutines wait
// after a socket error before retrying.
const DefaultReconnectBackoff = 10 * time.Second

// Config configures a Runtime.
type Config struct {
	// Mac identifies this gateway; stamped into every uplink frame.
	Mac [8]byte

	// LocalAddr optionally pins the local UDP address/port. Empty lets
	// the kernel choose.
	LocalAddr string

	// ServerAddr is the upstream GWMP server's "host:port".
	ServerAddr string

	// KeepalivePeriod is the PULL_DATA send cadence. Zero means
	// DefaultKeepalivePeriod.
	KeepalivePeriod time.Duration

	// ReconnectBackoff is how long to wait after a socket error before
	// retrying. Zero means DefaultReconnectBackoff.
	ReconnectBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.KeepalivePeriod <= 0 {
		c.KeepalivePeriod = DefaultKeepalivePeriod
	}
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = DefaultReconnectBackoff
	}
	return c
}
