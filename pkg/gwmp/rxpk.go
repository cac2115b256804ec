package gwmp

import (
	"encoding/json"
	"fmt"
)

// RSig is a per-antenna received-signal record, present only on the V2
// rxpk shape.
type RSig struct {
	Antenna  int      `json:"ant"`
	Channel  uint64   `json:"chan"`
	ChanRSSI int32    `json:"rssic"`
	SigRSSI  *int32   `json:"rssis,omitempty"`
	SNR      float32  `json:"lsnr"`
	ETime    *string  `json:"etime,omitempty"`
	FreqOff  *int64   `json:"foff,omitempty"`
	FTStat   *uint8   `json:"ftstat,omitempty"`
	FTVer    *int     `json:"ftver,omitempty"`
	FTDelta  *int64   `json:"ftdelta,omitempty"`
}

// RxPkV1 is the flat-RSSI/SNR rxpk shape used by first-generation packet
// forwarders.
type RxPkV1 struct {
	Chan  uint64      `json:"chan"`
	Codr  *CodingRate `json:"codr,omitempty"`
	Data  Base64Bytes `json:"data"`
	Datr  DataRate    `json:"datr"`
	Freq  float64     `json:"freq"`
	Lsnr  float32     `json:"lsnr"`
	Modu  Modulation  `json:"modu"`
	Rfch  uint64      `json:"rfch"`
	Rssi  int32       `json:"rssi"`
	Rssis *int32      `json:"rssis,omitempty"`
	Size  uint64      `json:"size"`
	Stat  CRC         `json:"stat"`
	Tmst  uint32      `json:"tmst"`
	Time  *string     `json:"time,omitempty"`
}

// RxPkV2 is the per-antenna "rsig" rxpk shape emitted by concentrators
// with multiple antennas (identified on the wire by the presence of
// "rsig" or "jver").
type RxPkV2 struct {
	Aesk    int         `json:"aesk"`
	Brd     int         `json:"brd"`
	Codr    *CodingRate `json:"codr,omitempty"`
	Data    Base64Bytes `json:"data"`
	Datr    DataRate    `json:"datr"`
	Freq    float64     `json:"freq"`
	Jver    int         `json:"jver"`
	Modu    Modulation  `json:"modu"`
	RSig    []RSig      `json:"rsig"`
	Size    uint64      `json:"size"`
	Stat    CRC         `json:"stat"`
	Tmst    uint32      `json:"tmst"`
	Delayed *bool       `json:"delayed,omitempty"`
	Tmms    *uint64     `json:"tmms,omitempty"`
	Time    *string     `json:"time,omitempty"`
}

// RxPk is the received-RF-packet descriptor. It is an untagged union of
// two wire shapes (V1: flat rssi/lsnr; V2: a per-antenna rsig array);
// exactly one of V1/V2 is non-nil after a successful unmarshal.
type RxPk struct {
	V1 *RxPkV1
	V2 *RxPkV2
}

// rxpkProbe is unmarshalled first to decide which variant the JSON is
// (presence of "rsig" or "jver" selects V2, matching the untagged-enum
// resolution a serde consumer performs by trying variants in order).
type rxpkProbe struct {
	RSig json.RawMessage `json:"rsig"`
	Jver json.RawMessage `json:"jver"`
}

func (r *RxPk) UnmarshalJSON(b []byte) error {
	var probe rxpkProbe
	if err := json.Unmarshal(b, &probe); err != nil {
		return fmt.Errorf("gwmp: invalid rxpk: %w", err)
	}
	if probe.RSig != nil || probe.Jver != nil {
		var v2 RxPkV2
		if err := json.Unmarshal(b, &v2); err != nil {
			return fmt.Errorf("gwmp: invalid rxpk (v2): %w", err)
		}
		*r = RxPk{V2: &v2}
		return nil
	}
	var v1 RxPkV1
	if err := json.Unmarshal(b, &v1); err != nil {
		return fmt.Errorf("gwmp: invalid rxpk (v1): %w", err)
	}
	*r = RxPk{V1: &v1}
	return nil
}

func (r RxPk) MarshalJSON() ([]byte, error) {
	switch {
	case r.V2 != nil:
		return json.Marshal(r.V2)
	case r.V1 != nil:
		return json.Marshal(r.V1)
	default:
		return nil, fmt.Errorf("gwmp: rxpk has neither v1 nor v2 payload set")
	}
}

// SNR returns the signal-to-noise ratio. For V2, it is the maximum lsnr
// across all reported antennas.
func (r RxPk) SNR() float32 {
	if r.V1 != nil {
		return r.V1.Lsnr
	}
	max := float32(-150.0)
	for _, sig := range r.V2.RSig {
		if sig.SNR > max {
			max = sig.SNR
		}
	}
	return max
}

// ChannelRSSI returns the channel RSSI, or the maximum across antennas
// for V2.
func (r RxPk) ChannelRSSI() int32 {
	if r.V1 != nil {
		return r.V1.Rssi
	}
	max := int32(-150)
	for _, sig := range r.V2.RSig {
		if sig.ChanRSSI > max {
			max = sig.ChanRSSI
		}
	}
	return max
}

// SignalRSSI returns the per-signal RSSI if present, or the maximum
// across antennas that reported one for V2.
func (r RxPk) SignalRSSI() *int32 {
	if r.V1 != nil {
		return r.V1.Rssis
	}
	var max *int32
	for _, sig := range r.V2.RSig {
		if sig.SigRSSI == nil {
			continue
		}
		if max == nil || *sig.SigRSSI > *max {
			v := *sig.SigRSSI
			max = &v
		}
	}
	return max
}

// Frequency returns the RX centre frequency in MHz.
func (r RxPk) Frequency() float64 {
	if r.V1 != nil {
		return r.V1.Freq
	}
	return r.V2.Freq
}

// Payload returns the decoded RF packet payload.
func (r RxPk) Payload() []byte {
	if r.V1 != nil {
		return r.V1.Data
	}
	return r.V2.Data
}

// Timestamp returns the internal 32-bit concentrator timestamp.
func (r RxPk) Timestamp() uint32 {
	if r.V1 != nil {
		return r.V1.Tmst
	}
	return r.V2.Tmst
}

// WallClockTime returns the optional ISO-8601 wall-clock time string.
func (r RxPk) WallClockTime() *string {
	if r.V1 != nil {
		return r.V1.Time
	}
	return r.V2.Time
}

// DataRate returns the spreading-factor/bandwidth pair.
func (r RxPk) DataRate() DataRate {
	if r.V1 != nil {
		return r.V1.Datr
	}
	return r.V2.Datr
}

// CRCStatus returns the CRC check status.
func (r RxPk) CRCStatus() CRC {
	if r.V1 != nil {
		return r.V1.Stat
	}
	return r.V2.Stat
}

// CodingRate returns the coding rate, if reported.
func (r RxPk) CodingRate() *CodingRate {
	if r.V1 != nil {
		return r.V1.Codr
	}
	return r.V2.Codr
}
