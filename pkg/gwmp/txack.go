package gwmp

import (
	"encoding/json"
	"fmt"
)

// txAckBody is the inner JSON shape of a TX_ACK frame body:
// {"txpk_ack": {"error": "...", "warn": "...", "value": N, "tmst": N}}.
// error and warn are mutually exclusive on the wire.
type txAckBody struct {
	Error string `json:"error,omitempty"`
	Warn  string `json:"warn,omitempty"`
	Value *int64 `json:"value,omitempty"`
	Tmst  *uint32 `json:"tmst,omitempty"`
}

type txAckWire struct {
	TxPkAck txAckBody `json:"txpk_ack"`
}

// Wire strings for the txpk_ack error/warn discriminators.
const (
	txAckErrNone            = "NONE"
	txAckErrTooLate         = "TOO_LATE"
	txAckErrTooEarly        = "TOO_EARLY"
	txAckErrCollisionPacket = "COLLISION_PACKET"
	txAckErrCollisionBeacon = "COLLISION_BEACON"
	txAckErrTxFreq          = "TX_FREQ"
	txAckErrTxPower         = "TX_POWER"
	txAckErrGpsUnlocked     = "GPS_UNLOCKED"
	txAckErrSendLBT         = "SEND_LBT"
	txAckErrSendFail        = "SEND_FAIL"
	txAckWarnTxPower        = "TX_POWER"
)

// TooLateError means the downlink was submitted too late for the gateway
// to schedule it.
type TooLateError struct{}

func (TooLateError) Error() string { return "gwmp: txack: too late to program downlink" }

// TooEarlyError means the requested timestamp is too far in the future.
type TooEarlyError struct{}

func (TooEarlyError) Error() string { return "gwmp: txack: requested timestamp too early" }

// CollisionPacketError means another downlink is already scheduled in
// the requested timeframe.
type CollisionPacketError struct{}

func (CollisionPacketError) Error() string {
	return "gwmp: txack: collision with a scheduled packet"
}

// CollisionBeaconError means a beacon is already scheduled in the
// requested timeframe.
type CollisionBeaconError struct{}

func (CollisionBeaconError) Error() string {
	return "gwmp: txack: collision with a scheduled beacon"
}

// InvalidTransmitFrequencyError means the requested frequency is outside
// what the gateway's TX chain supports.
type InvalidTransmitFrequencyError struct{}

func (InvalidTransmitFrequencyError) Error() string {
	return "gwmp: txack: invalid transmit frequency"
}

// InvalidTransmitPowerError means the requested power is unsupported by
// the gateway and the transmission was rejected outright (as opposed to
// AdjustedTransmitPowerError, which is a qualified success).
type InvalidTransmitPowerError struct {
	Value *int64
}

func (e InvalidTransmitPowerError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("gwmp: txack: invalid transmit power %d", *e.Value)
	}
	return "gwmp: txack: invalid transmit power"
}

// GpsUnlockedError means the gateway's GPS is unlocked so a GPS-relative
// timestamp could not be honoured.
type GpsUnlockedError struct{}

func (GpsUnlockedError) Error() string { return "gwmp: txack: gps unlocked" }

// SendLBTError means Listen-Before-Talk prevented the transmission.
type SendLBTError struct{}

func (SendLBTError) Error() string { return "gwmp: txack: listen-before-talk blocked send" }

// SendFailError is a generic gateway-side transmit failure.
type SendFailError struct{}

func (SendFailError) Error() string { return "gwmp: txack: send failed" }

// AdjustedTransmitPowerError is a qualified success: the gateway
// transmitted, but at an adjusted power level. It is returned as an
// error so callers can't mistake it for an unconditional success, but it
// carries the actual transmitted power and timestamp.
type AdjustedTransmitPowerError struct {
	Value *int64
	Tmst  *uint32
}

func (e AdjustedTransmitPowerError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("gwmp: txack: transmitted at adjusted power %d dBm", *e.Value)
	}
	return "gwmp: txack: transmitted at adjusted power"
}

// UnknownMacError is observed by a Downlink caller when the server has
// no connection-table entry for the requested gateway mac.
type UnknownMacError struct{}

func (UnknownMacError) Error() string { return "gwmp: no client with that mac" }

// SendTimeoutError is observed by a Downlink caller when dispatch's
// timeout elapses before a TxAck is correlated.
type SendTimeoutError struct{}

func (SendTimeoutError) Error() string { return "gwmp: downlink send timed out" }

// DecodeTxAckBody decodes a TX_ACK JSON body (already stripped of the
// trailing NUL byte, if any) into its tmst-on-success or typed-error
// outcome. An empty body is treated as unconditional success with no
// detail, per spec.
func DecodeTxAckBody(body []byte) (*uint32, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var wire txAckWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("gwmp: invalid txack body: %w", err)
	}
	ack := wire.TxPkAck

	if ack.Warn == txAckWarnTxPower {
		return nil, AdjustedTransmitPowerError{Value: ack.Value, Tmst: ack.Tmst}
	}

	switch ack.Error {
	case txAckErrNone, "":
		return ack.Tmst, nil
	case txAckErrTooLate:
		return nil, TooLateError{}
	case txAckErrTooEarly:
		return nil, TooEarlyError{}
	case txAckErrCollisionPacket:
		return nil, CollisionPacketError{}
	case txAckErrCollisionBeacon:
		return nil, CollisionBeaconError{}
	case txAckErrTxFreq:
		return nil, InvalidTransmitFrequencyError{}
	case txAckErrTxPower:
		return nil, InvalidTransmitPowerError{Value: ack.Value}
	case txAckErrGpsUnlocked:
		return nil, GpsUnlockedError{}
	case txAckErrSendLBT:
		return nil, SendLBTError{}
	case txAckErrSendFail:
		return nil, SendFailError{}
	default:
		return nil, fmt.Errorf("gwmp: unrecognized txack error %q", ack.Error)
	}
}

// isTxAckOutcomeError reports whether err is one of the typed downlink
// outcomes DecodeTxAckBody produces, as opposed to a body that failed to
// parse as JSON or carried an error/warn string this codec doesn't know.
// Parse uses this to tell a genuine ParseError apart from a perfectly
// well-formed rejection the application is meant to see.
func isTxAckOutcomeError(err error) bool {
	switch err.(type) {
	case TooLateError, TooEarlyError, CollisionPacketError, CollisionBeaconError,
		InvalidTransmitFrequencyError, InvalidTransmitPowerError, GpsUnlockedError,
		SendLBTError, SendFailError, AdjustedTransmitPowerError:
		return true
	default:
		return false
	}
}

// EncodeTxAckBody is the inverse of DecodeTxAckBody: it renders a
// dispatch outcome back into the JSON body a gateway would have sent. A
// nil err encodes success (optionally carrying tmst).
func EncodeTxAckBody(tmst *uint32, err error) ([]byte, error) {
	var ack txAckBody
	switch e := err.(type) {
	case nil:
		ack.Error = txAckErrNone
		ack.Tmst = tmst
	case AdjustedTransmitPowerError:
		ack.Warn = txAckWarnTxPower
		ack.Value = e.Value
		ack.Tmst = e.Tmst
	case TooLateError:
		ack.Error = txAckErrTooLate
	case TooEarlyError:
		ack.Error = txAckErrTooEarly
	case CollisionPacketError:
		ack.Error = txAckErrCollisionPacket
	case CollisionBeaconError:
		ack.Error = txAckErrCollisionBeacon
	case InvalidTransmitFrequencyError:
		ack.Error = txAckErrTxFreq
	case InvalidTransmitPowerError:
		ack.Error = txAckErrTxPower
		ack.Value = e.Value
	case GpsUnlockedError:
		ack.Error = txAckErrGpsUnlocked
	case SendLBTError:
		ack.Error = txAckErrSendLBT
	case SendFailError:
		ack.Error = txAckErrSendFail
	default:
		return nil, fmt.Errorf("gwmp: cannot encode txack outcome %v: %w", err, err)
	}
	return json.Marshal(txAckWire{TxPkAck: ack})
}
