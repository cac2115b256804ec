package client

// Event is the sum type delivered on Runtime.Events(). Concrete types
// are DownlinkRequestEvent, LostConnectionEvent, ReconnectedEvent and
// UnableToParseUDPFrameEvent; callers type-switch on the concrete type.
type Event interface {
	isClientEvent()
}

// DownlinkRequestEvent carries a PULL_RESP the server wants transmitted.
// The caller must call exactly one of Request.Ack/Request.Nack.
type DownlinkRequestEvent struct {
	Request *DownlinkRequest
}

func (DownlinkRequestEvent) isClientEvent() {}

// LostConnectionEvent fires when the reader or writer goroutine's socket
// errors out (e.g. ICMP port-unreachable, or a read timeout once one is
// configured by a caller-supplied deadline). The runtime keeps retrying;
// this is informational.
type LostConnectionEvent struct {
	Err error
}

func (LostConnectionEvent) isClientEvent() {}

// ReconnectedEvent fires the first time a send succeeds again after a
// prior read or write failure.
type ReconnectedEvent struct{}

func (ReconnectedEvent) isClientEvent() {}

// UnableToParseUDPFrameEvent fires when a datagram from the server fails
// gwmp.ParseDownlink. Bytes holds the raw datagram that failed to parse.
type UnableToParseUDPFrameEvent struct {
	Err   error
	Bytes []byte
}

func (UnableToParseUDPFrameEvent) isClientEvent() {}
