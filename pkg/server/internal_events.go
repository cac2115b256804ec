package server

import (
	"net"

	"github.com/simeonmiteff/gwmp/pkg/gwmp"
)

// internalEvent is the private sum type carried on the runtime's own
// event loop queue, distinct from the Event values handed to callers.
// It folds together everything the udpRx reader, the cache sweeper and
// Downlink.Dispatch need to hand off to the single internal goroutine
// that owns the connection table and the pending-ack table.
type internalEvent interface {
	isInternalEvent()
}

// internalClientSeen carries an uplink sighting (PULL_DATA, PUSH_DATA or
// TX_ACK): insert-or-update of the mac→addr connection table.
type internalClientSeen struct {
	mac  gwmp.MacAddress
	addr *net.UDPAddr
}

func (internalClientSeen) isInternalEvent() {}

// internalPacketReceived forwards a parsed rxpk element for republishing
// on the public Events() channel.
type internalPacketReceived struct {
	mac  gwmp.MacAddress
	rxpk gwmp.RxPk
}

func (internalPacketReceived) isInternalEvent() {}

// internalStatReceived forwards a parsed stat object for republishing.
type internalStatReceived struct {
	mac  gwmp.MacAddress
	stat gwmp.Stat
}

func (internalStatReceived) isInternalEvent() {}

// internalParseFailure forwards a datagram that failed to parse, along
// with the raw bytes that failed.
type internalParseFailure struct {
	addr  net.Addr
	err   error
	bytes []byte
}

func (internalParseFailure) isInternalEvent() {}

// internalAckReceived carries a decoded TX_ACK outcome to be correlated
// against the pending-downlink table by random_token.
type internalAckReceived struct {
	mac   gwmp.MacAddress
	token uint16
	tmst  *uint32
	err   error
}

func (internalAckReceived) isInternalEvent() {}

// internalDispatchDownlink asks the internal loop to look mac up in the
// connection table and, if present, hand the frame to the writer and
// register resultCh under frame.RandomToken for correlation; if absent,
// resultCh immediately receives UnknownMacError and a NoClientWithMacEvent
// is published.
type internalDispatchDownlink struct {
	mac      gwmp.MacAddress
	frame    gwmp.Frame
	resultCh chan<- downlinkResult
}

func (internalDispatchDownlink) isInternalEvent() {}

// internalAbandonDownlink cancels a pending correlation entry, used when
// Dispatch's timeout elapses before a matching internalAckReceived
// arrives.
type internalAbandonDownlink struct {
	mac   gwmp.MacAddress
	token uint16
}

func (internalAbandonDownlink) isInternalEvent() {}

// internalCheckCache is emitted periodically by the sweeper goroutine.
type internalCheckCache struct{}

func (internalCheckCache) isInternalEvent() {}

// internalWriteFailed reports that the writer goroutine failed to
// serialize or transmit a dispatched downlink, identified by its
// pending-correlation key.
type internalWriteFailed struct {
	key pendingKey
	err error
}

func (internalWriteFailed) isInternalEvent() {}

// downlinkResult is delivered on a Downlink's private result channel:
// either a successful TxAckOutcome or a send-path error (UnknownMacError,
// SendTimeoutError, or a network error from the writer goroutine).
type downlinkResult struct {
	tmst *uint32
	err  error
}
