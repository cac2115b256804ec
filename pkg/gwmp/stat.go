package gwmp

// Stat is the gateway telemetry descriptor carried alongside rxpk in a
// PUSH_DATA datagram. Field order matches the canonical Semtech wire
// order so a written Stat stays byte-compatible with reference
// forwarders.
type Stat struct {
	Time string   `json:"time"`
	Lati *float64 `json:"lati,omitempty"`
	Long *float64 `json:"long,omitempty"`
	Alti *int64   `json:"alti,omitempty"`
	Rxnb uint64   `json:"rxnb"`
	Rxok uint64   `json:"rxok"`
	Rxfw uint64   `json:"rxfw"`
	// Ackr is nil when no upstream datagrams have been sent yet.
	Ackr *float64 `json:"ackr"`
	Dwnb uint64   `json:"dwnb"`
	Txnb uint64   `json:"txnb"`
	Temp *float64 `json:"temp"`
}
