package server

import (
	"net"

	"github.com/simeonmiteff/gwmp/pkg/gwmp"
)

// Event is the sum type delivered on Server.Events(). Concrete types are
// PacketReceivedEvent, StatReceivedEvent, NewClientEvent, UpdateClientEvent,
// ClientDisconnectedEvent, UnableToParseUDPFrameEvent and
// NoClientWithMacEvent; callers type-switch on the concrete type.
type Event interface {
	isServerEvent()
}

// PacketReceivedEvent is emitted once per rxpk element found in a
// PUSH_DATA datagram, in wire order, before any StatReceivedEvent derived
// from the same datagram.
type PacketReceivedEvent struct {
	Mac  gwmp.MacAddress
	RxPk gwmp.RxPk
}

func (PacketReceivedEvent) isServerEvent() {}

// StatReceivedEvent is emitted when a PUSH_DATA datagram carries a stat
// object, after all of that datagram's PacketReceivedEvents.
type StatReceivedEvent struct {
	Mac  gwmp.MacAddress
	Stat gwmp.Stat
}

func (StatReceivedEvent) isServerEvent() {}

// NewClientEvent fires the first time a gateway mac is seen.
type NewClientEvent struct {
	Mac  gwmp.MacAddress
	Addr net.Addr
}

func (NewClientEvent) isServerEvent() {}

// UpdateClientEvent fires when an uplink from a gateway already in the
// connection table arrives from a different source address than the one
// recorded (e.g. NAT rebinding).
type UpdateClientEvent struct {
	Mac     gwmp.MacAddress
	OldAddr net.Addr
	Addr    net.Addr
}

func (UpdateClientEvent) isServerEvent() {}

// ClientDisconnectedEvent fires when the cache sweeper evicts a gateway
// that has sent no uplink (PULL_DATA, PUSH_DATA or TX_ACK) within the
// configured disconnect threshold.
type ClientDisconnectedEvent struct {
	Mac      gwmp.MacAddress
	LastAddr net.Addr
}

func (ClientDisconnectedEvent) isServerEvent() {}

// UnableToParseUDPFrameEvent fires when a datagram fails gwmp.ParseUplink;
// the runtime keeps listening, there is no partial application effect.
// Bytes holds the raw datagram that failed to parse.
type UnableToParseUDPFrameEvent struct {
	Addr  net.Addr
	Err   error
	Bytes []byte
}

func (UnableToParseUDPFrameEvent) isServerEvent() {}

// NoClientWithMacEvent fires when a dispatched downlink targets a mac
// absent from the connection table. PullResp is the packet that could
// not be delivered.
type NoClientWithMacEvent struct {
	Mac      gwmp.MacAddress
	PullResp *gwmp.PullRespBody
}

func (NoClientWithMacEvent) isServerEvent() {}
