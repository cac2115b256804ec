package gwmp

// TxPk is the to-be-transmitted RF-packet descriptor carried in a
// PULL_RESP datagram. Field order matches the canonical Semtech wire
// order so a written TxPk stays byte-compatible with reference
// forwarders.
type TxPk struct {
	// Imme, when true, means "transmit immediately" and the gateway
	// ignores Tmst/Tmms/Time. Tmst itself is the Time sum type: it
	// additionally accepts the literal string "immediate".
	Imme bool       `json:"imme"`
	Tmst Tmst       `json:"tmst"`
	Tmms *uint64    `json:"tmms,omitempty"`
	Freq float64    `json:"freq"`
	Rfch uint64     `json:"rfch"`
	Powe uint64     `json:"powe"`
	Modu Modulation `json:"modu"`
	Datr DataRate   `json:"datr"`
	Codr CodingRate `json:"codr"`
	// Fdev is the FSK frequency deviation in Hz; unused for LoRa.
	Fdev *uint64     `json:"fdev,omitempty"`
	Ipol bool        `json:"ipol"`
	Prea *uint64     `json:"prea,omitempty"`
	Size uint64      `json:"size"`
	Data Base64Bytes `json:"data"`
	Ncrc *bool       `json:"ncrc,omitempty"`
}

// IsImmediate reports whether the gateway should transmit as soon as
// possible, ignoring any timestamp fields.
func (t TxPk) IsImmediate() bool {
	return t.Imme || t.Tmst.Immediate
}
