package server

import "time"

// Default tunables, matching the reference forwarder protocol's
// conventional cadences.
const (
	DefaultDisconnectThreshold = 60 * time.Second
	DefaultCacheSweepPeriod    = 60 * time.Second
	DefaultMaxMessageSize      = 65535
)

// Config configures a Server. It is a plain struct: the core consumes no
// environment variables or config files, per the wire-protocol spec this
// package implements — cmd/gwmp-server populates one from flags.
type Config struct {
	// BindAddr is the local UDP address to listen on, e.g. ":1680".
	BindAddr string

	// DisconnectThreshold is how long a gateway may go quiet before its
	// connection-table entry is evicted and ClientDisconnectedEvent fires.
	DisconnectThreshold time.Duration

	// CacheSweepPeriod is how often the connection table is swept for
	// stale entries.
	CacheSweepPeriod time.Duration

	// MaxMessageSize bounds the UDP receive buffer (max LoRaWAN/GWMP
	// datagram is far smaller, but UDP payloads can reach 65535 bytes).
	MaxMessageSize int

	// PendingDownlinkGrace bounds how long a dispatched-but-unacked
	// downlink's pending-table entry survives past the cache sweep tick
	// before being garbage-collected. Zero means DisconnectThreshold.
	PendingDownlinkGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.DisconnectThreshold <= 0 {
		c.DisconnectThreshold = DefaultDisconnectThreshold
	}
	if c.CacheSweepPeriod <= 0 {
		c.CacheSweepPeriod = DefaultCacheSweepPeriod
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.PendingDownlinkGrace <= 0 {
		c.PendingDownlinkGrace = c.DisconnectThreshold
	}
	return c
}
