package server

import (
	"context"
	"time"

	"github.com/simeonmiteff/gwmp/pkg/gwmp"
)

// Downlink is a single-use handle for sending one PULL_RESP to a
// gateway and waiting for its TX_ACK. Obtain one from
// Server.PrepareDownlink, then call Dispatch exactly once.
type Downlink struct {
	mac    gwmp.MacAddress
	frame  gwmp.Frame
	server *Server
	used   bool
}

// Mac returns the gateway this downlink targets.
func (d *Downlink) Mac() gwmp.MacAddress { return d.mac }

// RandomToken returns the token stamped into the PULL_RESP frame, the
// value a correlated TX_ACK must echo.
func (d *Downlink) RandomToken() uint16 { return d.frame.RandomToken }

// UnknownMacError and SendTimeoutError are the gwmp dispatch outcomes
// under the names this package's callers see.
type (
	UnknownMacError  = gwmp.UnknownMacError
	SendTimeoutError = gwmp.SendTimeoutError
)

// Dispatch hands the downlink to the runtime's internal loop and
// blocks until a TX_ACK is correlated by random_token, ctx is cancelled,
// or timeout elapses. timeout is optional: a value <= 0 waits
// indefinitely, racing only against ctx and the server's own shutdown.
// On success, the returned uint32 is the gateway's reported tmst (nil
// if the gateway didn't report one); a non-nil error is a typed
// txack outcome (see gwmp.TooLateError and friends), UnknownMacError if
// the gateway is not in the connection table, SendTimeoutError if no
// TX_ACK arrived before timeout elapsed, the writer's error if the
// PULL_RESP could not be sent, or the context error if ctx or the
// server was shut down first.
//
// Dispatch is not safe to call twice on the same Downlink.
func (d *Downlink) Dispatch(ctx context.Context, timeout time.Duration) (*uint32, error) {
	if d.used {
		return nil, SendTimeoutError{}
	}
	d.used = true

	resultCh := make(chan downlinkResult, 1)
	evt := internalDispatchDownlink{mac: d.mac, frame: d.frame, resultCh: resultCh}

	select {
	case d.server.internal <- evt:
	case <-d.server.ctx.Done():
		return nil, d.server.ctx.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var timerC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case res := <-resultCh:
		return res.tmst, res.err
	case <-timerC:
		d.abandon()
		return nil, SendTimeoutError{}
	case <-ctx.Done():
		d.abandon()
		return nil, ctx.Err()
	case <-d.server.ctx.Done():
		return nil, d.server.ctx.Err()
	}
}

// abandon tells the internal loop to drop the pending-correlation entry
// for this downlink's token. Best-effort: if the internal loop has
// already shut down there is nothing left to clean up.
func (d *Downlink) abandon() {
	select {
	case d.server.internal <- internalAbandonDownlink{mac: d.mac, token: d.frame.RandomToken}:
	case <-d.server.ctx.Done():
	default:
	}
}
