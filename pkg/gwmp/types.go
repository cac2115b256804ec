package gwmp

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// Modulation identifies the radio modulation used for a frame.
type Modulation string

const (
	ModulationLoRa Modulation = "LORA"
	ModulationFSK  Modulation = "FSK"
)

// SpreadingFactor is the LoRa spreading factor component of a DataRate.
type SpreadingFactor uint8

// Bandwidth is the LoRa channel bandwidth, in kHz, component of a DataRate.
type Bandwidth uint16

var validSpreadingFactors = map[SpreadingFactor]bool{
	5: true, 6: true, 7: true, 8: true, 9: true, 10: true, 11: true, 12: true,
}

var validBandwidths = map[Bandwidth]bool{
	7: true, 10: true, 15: true, 20: true, 31: true, 41: true, 62: true,
	125: true, 250: true, 500: true,
}

// DataRate is the LoRa spreading-factor + bandwidth pair, rendered on the
// wire as "SF{n}BW{m}" (e.g. "SF10BW125").
type DataRate struct {
	SpreadingFactor SpreadingFactor
	Bandwidth       Bandwidth
}

func (d DataRate) String() string {
	return fmt.Sprintf("SF%dBW%d", d.SpreadingFactor, d.Bandwidth)
}

// ParseDataRate parses the "SF{n}BW{m}" wire representation, tolerating
// SF5-SF12 and the standard LoRaWAN bandwidths.
func ParseDataRate(s string) (DataRate, error) {
	var dr DataRate
	n, err := fmt.Sscanf(s, "SF%dBW%d", &dr.SpreadingFactor, &dr.Bandwidth)
	if err != nil || n != 2 {
		return dr, fmt.Errorf("gwmp: invalid data rate %q", s)
	}
	if !validSpreadingFactors[dr.SpreadingFactor] {
		return dr, fmt.Errorf("gwmp: invalid spreading factor in %q", s)
	}
	if !validBandwidths[dr.Bandwidth] {
		return dr, fmt.Errorf("gwmp: invalid bandwidth in %q", s)
	}
	return dr, nil
}

func (d DataRate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *DataRate) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDataRate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// CodingRate is the LoRa forward-error-correction coding rate. The zero
// value is not a valid coding rate; use CodingRateOff for "no coding rate".
type CodingRate string

const (
	CodingRate4_5 CodingRate = "4/5"
	CodingRate4_6 CodingRate = "4/6"
	CodingRate4_7 CodingRate = "4/7"
	CodingRate4_8 CodingRate = "4/8"
	CodingRateOff CodingRate = "OFF"
)

var validCodingRates = map[CodingRate]bool{
	CodingRate4_5: true, CodingRate4_6: true, CodingRate4_7: true,
	CodingRate4_8: true, CodingRateOff: true,
}

// ParseCodingRate validates s against the set of coding rates a forwarder
// may report.
func ParseCodingRate(s string) (CodingRate, error) {
	cr := CodingRate(s)
	if !validCodingRates[cr] {
		return "", fmt.Errorf("gwmp: invalid coding rate %q", s)
	}
	return cr, nil
}

func (c CodingRate) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(c))
}

func (c *CodingRate) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseCodingRate(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// CRC is the CRC check status of a received RF packet.
type CRC int8

const (
	CRCFail     CRC = -1
	CRCDisabled CRC = 0
	CRCOK       CRC = 1
)

func (c CRC) MarshalJSON() ([]byte, error) {
	return json.Marshal(int8(c))
}

func (c *CRC) UnmarshalJSON(b []byte) error {
	var n int8
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	switch CRC(n) {
	case CRCFail, CRCDisabled, CRCOK:
		*c = CRC(n)
		return nil
	default:
		return fmt.Errorf("gwmp: invalid crc status %d", n)
	}
}

// Base64Bytes is a byte slice that marshals to/from standard base64 with
// padding, matching the "data" field on rxpk/txpk descriptors.
type Base64Bytes []byte

func (b Base64Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(b))
}

func (b *Base64Bytes) UnmarshalJSON(raw []byte) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("gwmp: invalid base64 payload: %w", err)
	}
	*b = decoded
	return nil
}

// Tmst is the TxPk "time" sum type: either Immediate, or a 32-bit
// microsecond concentrator timestamp. It accepts the wire forms
// `"immediate"` and a nonnegative integer below 2^32; any other string is
// rejected.
type Tmst struct {
	Immediate bool
	Value     uint32
}

// ImmediateTmst is the Time value meaning "transmit immediately".
func ImmediateTmst() Tmst {
	return Tmst{Immediate: true}
}

// TmstAt constructs a concrete concentrator-timestamp Time value.
func TmstAt(v uint32) Tmst {
	return Tmst{Value: v}
}

func (t Tmst) MarshalJSON() ([]byte, error) {
	if t.Immediate {
		return json.Marshal("immediate")
	}
	return json.Marshal(t.Value)
}

func (t *Tmst) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		if s != "immediate" {
			return fmt.Errorf("gwmp: invalid tmst string %q", s)
		}
		*t = Tmst{Immediate: true}
		return nil
	}
	var n uint64
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("gwmp: invalid tmst value %q: %w", trimmed, err)
	}
	if n >= 1<<32 {
		return fmt.Errorf("gwmp: tmst value %d out of range", n)
	}
	*t = Tmst{Value: uint32(n)}
	return nil
}

// String renders the Tmst for logging.
func (t Tmst) String() string {
	if t.Immediate {
		return "immediate"
	}
	return strconv.FormatUint(uint64(t.Value), 10)
}
