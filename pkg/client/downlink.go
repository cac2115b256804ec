package client

import (
	"github.com/simeonmiteff/gwmp/pkg/gwmp"
)

// DownlinkRequest is a single-use handle for responding to a server's
// PULL_RESP. Exactly one of Ack/Nack must be called.
type DownlinkRequest struct {
	txpk      gwmp.TxPk
	token     uint16
	runtime   *Runtime
	responded bool
}

// TxPk returns the RF-transmission descriptor the server requested.
func (d *DownlinkRequest) TxPk() gwmp.TxPk { return d.txpk }

// Ack acknowledges that the gateway transmitted (or scheduled) the
// downlink successfully. tmst, if non-nil, reports the concentrator
// timestamp at which the radio actually fired.
func (d *DownlinkRequest) Ack(tmst *uint32) error {
	return d.respond(tmst, nil)
}

// Nack rejects the downlink, reporting reason to the server as a TX_ACK
// error. reason should be one of the typed outcomes in package gwmp
// (gwmp.TooLateError, gwmp.TooEarlyError, gwmp.CollisionPacketError,
// gwmp.CollisionBeaconError, gwmp.InvalidTransmitFrequencyError,
// gwmp.InvalidTransmitPowerError, gwmp.GpsUnlockedError,
// gwmp.SendLBTError, gwmp.SendFailError) or gwmp.AdjustedTransmitPowerError
// to report a qualified success; any other error is reported as
// gwmp.SendFailError.
func (d *DownlinkRequest) Nack(reason error) error {
	switch reason.(type) {
	case gwmp.TooLateError, gwmp.TooEarlyError, gwmp.CollisionPacketError, gwmp.CollisionBeaconError,
		gwmp.InvalidTransmitFrequencyError, gwmp.InvalidTransmitPowerError, gwmp.GpsUnlockedError,
		gwmp.SendLBTError, gwmp.SendFailError, gwmp.AdjustedTransmitPowerError:
	default:
		reason = gwmp.SendFailError{}
	}
	return d.respond(nil, reason)
}

func (d *DownlinkRequest) respond(tmst *uint32, outcomeErr error) error {
	if d.responded {
		return nil
	}
	d.responded = true
	frame := gwmp.Frame{
		Identifier:  gwmp.IdentifierTxAck,
		RandomToken: d.token,
		GatewayMac:  d.runtime.mac,
		TxAck:       &gwmp.TxAckOutcome{Tmst: tmst, Err: outcomeErr},
	}
	return d.runtime.send(frame)
}
