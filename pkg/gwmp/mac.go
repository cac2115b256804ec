/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package gwmp implements the Semtech GWMP frame codec: the fixed-byte
// prefix plus JSON-body wire format used by LoRaWAN packet forwarders to
// exchange frames with a network server.
package gwmp

import (
	"encoding/hex"
	"fmt"
)

// MacAddressSize is the length in bytes of a GWMP gateway EUI-64.
const MacAddressSize = 8

// MacAddress is the 8-byte EUI-64 that identifies a gateway at the GWMP
// layer. It is comparable and usable as a map key.
type MacAddress [MacAddressSize]byte

// NewMacAddress copies b into a MacAddress. b must be exactly
// MacAddressSize bytes long.
func NewMacAddress(b []byte) (MacAddress, error) {
	var mac MacAddress
	if len(b) != MacAddressSize {
		return mac, fmt.Errorf("gwmp: mac address must be %d bytes, got %d", MacAddressSize, len(b))
	}
	copy(mac[:], b)
	return mac, nil
}

// Bytes returns the raw 8 bytes of the address.
func (m MacAddress) Bytes() []byte {
	return m[:]
}

// String renders the address as "XX:XX:XX:XX:XX:XX:XX:XX".
func (m MacAddress) String() string {
	buf := make([]byte, 0, MacAddressSize*3-1)
	for i, b := range m {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, hex.EncodeToString([]byte{b})...)
	}
	return string(bytesToUpper(buf))
}

func bytesToUpper(b []byte) []byte {
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - ('a' - 'A')
		}
	}
	return b
}

// MarshalText implements encoding.TextMarshaler so MacAddress can be used
// as a JSON map key or a structured-logging field value.
func (m MacAddress) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, parsing the
// "XX:XX:XX:XX:XX:XX:XX:XX" rendering back into a MacAddress.
func (m *MacAddress) UnmarshalText(text []byte) error {
	if len(text) != MacAddressSize*3-1 {
		return fmt.Errorf("gwmp: invalid mac address text %q", text)
	}
	var out MacAddress
	for i := 0; i < MacAddressSize; i++ {
		chunk := text[i*3 : i*3+2]
		if i < MacAddressSize-1 && text[i*3+2] != ':' {
			return fmt.Errorf("gwmp: invalid mac address text %q", text)
		}
		b, err := hex.DecodeString(string(chunk))
		if err != nil {
			return fmt.Errorf("gwmp: invalid mac address text %q: %w", text, err)
		}
		out[i] = b[0]
	}
	*m = out
	return nil
}
