/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package gwmp

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"gotest.tools/v3/assert"
)

func TestParse_PullData_RoundTrip(t *testing.T) {
	recv := []byte{0x02, 0x9F, 0x92, 0x02, 0xAA, 0x55, 0x5A, 0x01, 0x02, 0x03, 0x04, 0x05}

	f, err := Parse(recv)
	assert.NilError(t, err)
	assert.Equal(t, f.Identifier, IdentifierPullData)
	assert.Equal(t, f.RandomToken, uint16(0x9F92))
	assert.Equal(t, f.GatewayMac.String(), "AA:55:5A:01:02:03:04:05")

	buf := make([]byte, 512)
	n, err := Serialize(f, buf)
	assert.NilError(t, err)
	assert.Equal(t, n, len(recv))
	assert.DeepEqual(t, buf[:n], recv)
}

func TestParse_PushData_RxPk_RoundTrip(t *testing.T) {
	recv := []byte{
		0x2, 0x5E, 0x52, 0x0, 0xAA, 0x55, 0x5A, 0x0, 0x0, 0x0, 0x0, 0x0, 0x7B, 0x22, 0x72, 0x78,
		0x70, 0x6B, 0x22, 0x3A, 0x5B, 0x7B, 0x22, 0x74, 0x6D, 0x73, 0x74, 0x22, 0x3A, 0x31, 0x34,
		0x37, 0x32, 0x32, 0x34, 0x32, 0x32, 0x35, 0x32, 0x2C, 0x22, 0x63, 0x68, 0x61, 0x6E, 0x22,
		0x3A, 0x38, 0x2C, 0x22, 0x72, 0x66, 0x63, 0x68, 0x22, 0x3A, 0x30, 0x2C, 0x22, 0x66, 0x72,
		0x65, 0x71, 0x22, 0x3A, 0x39, 0x31, 0x32, 0x2E, 0x36, 0x30, 0x30, 0x30, 0x30, 0x30, 0x2C,
		0x22, 0x73, 0x74, 0x61, 0x74, 0x22, 0x3A, 0x31, 0x2C, 0x22, 0x6D, 0x6F, 0x64, 0x75, 0x22,
		0x3A, 0x22, 0x4C, 0x4F, 0x52, 0x41, 0x22, 0x2C, 0x22, 0x64, 0x61, 0x74, 0x72, 0x22, 0x3A,
		0x22, 0x53, 0x46, 0x38, 0x42, 0x57, 0x35, 0x30, 0x30, 0x22, 0x2C, 0x22, 0x63, 0x6F, 0x64,
		0x72, 0x22, 0x3A, 0x22, 0x34, 0x2F, 0x35, 0x22, 0x2C, 0x22, 0x6C, 0x73, 0x6E, 0x72, 0x22,
		0x3A, 0x31, 0x30, 0x2E, 0x38, 0x2C, 0x22, 0x72, 0x73, 0x73, 0x69, 0x22, 0x3A, 0x2D, 0x35,
		0x38, 0x2C, 0x22, 0x73, 0x69, 0x7A, 0x65, 0x22, 0x3A, 0x32, 0x33, 0x2C, 0x22, 0x64, 0x61,
		0x74, 0x61, 0x22, 0x3A, 0x22, 0x41, 0x4C, 0x51, 0x41, 0x41, 0x41, 0x41, 0x42, 0x41, 0x41,
		0x41, 0x41, 0x53, 0x47, 0x56, 0x73, 0x61, 0x58, 0x56, 0x74, 0x49, 0x43, 0x41, 0x30, 0x4C,
		0x44, 0x59, 0x43, 0x4E, 0x72, 0x41, 0x3D, 0x22, 0x7D, 0x5D, 0x7D,
	}

	f, err := Parse(recv)
	assert.NilError(t, err)
	assert.Equal(t, f.Identifier, IdentifierPushData)
	assert.Assert(t, f.PushData != nil)
	assert.Equal(t, len(f.PushData.RxPk), 1)
	assert.Equal(t, f.PushData.RxPk[0].V1 != nil, true)
	assert.Equal(t, f.PushData.RxPk[0].Frequency(), 912.6)
	assert.Equal(t, f.PushData.RxPk[0].SNR(), float32(10.8))

	buf := make([]byte, 512)
	n, err := Serialize(f, buf)
	assert.NilError(t, err)

	reparsed, err := Parse(buf[:n])
	assert.NilError(t, err)
	assert.DeepEqual(t, f.PushData, reparsed.PushData)
}

func TestParse_PushData_RxPk_V2_SNR(t *testing.T) {
	recv := []byte{
		2, 120, 20, 0, 114, 118, 255, 0, 68, 1, 0, 16, 123, 34, 114, 120, 112, 107, 34, 58, 91,
		123, 34, 97, 101, 115, 107, 34, 58, 48, 44, 34, 98, 114, 100, 34, 58, 48, 44, 34, 99, 111,
		100, 114, 34, 58, 34, 52, 47, 53, 34, 44, 34, 100, 97, 116, 97, 34, 58, 34, 81, 65, 65, 65,
		65, 69, 103, 65, 69, 116, 99, 68, 118, 75, 55, 110, 100, 109, 66, 70, 66, 103, 61, 61, 34,
		44, 34, 100, 97, 116, 114, 34, 58, 34, 83, 70, 49, 48, 66, 87, 49, 50, 53, 34, 44, 34, 102,
		114, 101, 113, 34, 58, 57, 48, 51, 46, 57, 44, 34, 106, 118, 101, 114, 34, 58, 50, 44, 34,
		109, 111, 100, 117, 34, 58, 34, 76, 79, 82, 65, 34, 44, 34, 114, 115, 105, 103, 34, 58, 91,
		123, 34, 97, 110, 116, 34, 58, 48, 44, 34, 99, 104, 97, 110, 34, 58, 48, 44, 34, 108, 115,
		110, 114, 34, 58, 49, 48, 46, 48, 44, 34, 114, 115, 115, 105, 99, 34, 58, 45, 52, 54, 125,
		93, 44, 34, 115, 105, 122, 101, 34, 58, 49, 54, 44, 34, 115, 116, 97, 116, 34, 58, 49, 44,
		34, 116, 105, 109, 101, 34, 58, 34, 50, 48, 50, 48, 45, 49, 48, 45, 50, 57, 84, 49, 53, 58,
		53, 55, 58, 52, 48, 46, 49, 55, 48, 51, 48, 49, 90, 34, 44, 34, 116, 109, 115, 116, 34, 58,
		51, 49, 51, 57, 57, 56, 56, 55, 54, 125, 93, 125,
	}

	f, err := Parse(recv)
	assert.NilError(t, err)
	assert.Equal(t, len(f.PushData.RxPk), 1)
	assert.Assert(t, f.PushData.RxPk[0].V2 != nil)
	assert.Equal(t, f.PushData.RxPk[0].SNR(), float32(10.0))
	assert.Equal(t, f.PushData.RxPk[0].ChannelRSSI(), int32(-46))
}

func TestParse_PushData_StatNullAckr(t *testing.T) {
	recv := []byte{
		2, 63, 101, 0, 112, 118, 255, 0, 101, 3, 0, 34, 123, 34, 115, 116, 97, 116, 34, 58, 123,
		34, 97, 99, 107, 114, 34, 58, 110, 117, 108, 108, 44, 34, 98, 111, 111, 116, 34, 58, 34,
		50, 48, 50, 49, 45, 48, 51, 45, 49, 55, 32, 49, 56, 58, 52, 54, 58, 51, 49, 32, 71, 77, 84,
		34, 44, 34, 100, 119, 110, 98, 34, 58, 48, 44, 34, 102, 112, 103, 97, 34, 58, 51, 49, 44,
		34, 104, 97, 108, 34, 58, 34, 53, 46, 48, 46, 49, 34, 44, 34, 112, 105, 110, 103, 34, 58,
		51, 48, 48, 48, 44, 34, 114, 120, 102, 119, 34, 58, 48, 44, 34, 114, 120, 110, 98, 34, 58,
		48, 44, 34, 114, 120, 111, 107, 34, 58, 48, 44, 34, 116, 105, 109, 101, 34, 58, 34, 50, 48,
		50, 49, 45, 48, 51, 45, 49, 55, 32, 49, 56, 58, 52, 55, 58, 48, 49, 32, 71, 77, 84, 34, 44,
		34, 116, 120, 110, 98, 34, 58, 48, 125, 125,
	}

	f, err := Parse(recv)
	assert.NilError(t, err)
	assert.Assert(t, f.PushData.Stat != nil)
	assert.Assert(t, f.PushData.Stat.Ackr == nil)
}

func TestParse_TxAck_NoBody_IsSuccess(t *testing.T) {
	recv := []byte{2, 139, 165, 5, 114, 118, 255, 0, 57, 3, 0, 174, 0}

	f, err := Parse(recv)
	assert.NilError(t, err)
	assert.Equal(t, f.Identifier, IdentifierTxAck)
	assert.Assert(t, f.TxAck != nil)
	assert.NilError(t, f.TxAck.Err)
}

func TestDecodeTxAckBody(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"none", `{"txpk_ack":{"error":"NONE"}}`, nil},
		{"too_late", `{"txpk_ack":{"error":"TOO_LATE"}}`, TooLateError{}},
		{"too_early", `{"txpk_ack":{"error":"TOO_EARLY"}}`, TooEarlyError{}},
		{"collision_packet", `{"txpk_ack":{"error":"COLLISION_PACKET"}}`, CollisionPacketError{}},
		{"collision_beacon", `{"txpk_ack":{"error":"COLLISION_BEACON"}}`, CollisionBeaconError{}},
		{"gps_unlocked", `{"txpk_ack":{"error":"GPS_UNLOCKED"}}`, GpsUnlockedError{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeTxAckBody([]byte(tc.body))
			if tc.wantErr == nil {
				assert.NilError(t, err)
				return
			}
			assert.Equal(t, reflect.TypeOf(err), reflect.TypeOf(tc.wantErr))
		})
	}
}

func TestDecodeTxAckBody_TxPowerWarn(t *testing.T) {
	_, err := DecodeTxAckBody([]byte(`{"txpk_ack":{"warn":"TX_POWER","value":27}}`))
	var adjusted AdjustedTransmitPowerError
	assert.Assert(t, errors.As(err, &adjusted))
	assert.Assert(t, adjusted.Value != nil)
	assert.Equal(t, *adjusted.Value, int64(27))
	assert.Assert(t, adjusted.Tmst == nil)
}

func TestEncodeTxAckBody_TxPowerWarn(t *testing.T) {
	v := int64(27)
	body, err := EncodeTxAckBody(nil, AdjustedTransmitPowerError{Value: &v})
	assert.NilError(t, err)
	assert.Equal(t, string(body), `{"txpk_ack":{"warn":"TX_POWER","value":27}}`)
}

func TestTxPk_Immediate(t *testing.T) {
	body := `{"codr":"4/5","data":"IHLF2EA+n8BFY1vrCU1k/Vg=","datr":"SF10BW125","freq":904.1,"imme":true,"ipol":false,"modu":"LORA","powe":27,"rfch":0,"size":87,"tmst":"immediate"}`

	var txpk TxPk
	assert.NilError(t, json.Unmarshal([]byte(body), &txpk))
	assert.Assert(t, txpk.IsImmediate())
	assert.Assert(t, txpk.Tmst.Immediate)
}

func TestParse_InvalidPacketLength(t *testing.T) {
	_, err := Parse([]byte{0x02, 0x00, 0x00})
	var want InvalidPacketLengthError
	assert.Assert(t, errors.As(err, &want))
}

func TestParse_InvalidProtocolVersion(t *testing.T) {
	_, err := Parse([]byte{0x01, 0x00, 0x00, 0x02, 1, 2, 3, 4, 5, 6, 7, 8})
	var want InvalidProtocolVersionError
	assert.Assert(t, errors.As(err, &want))
}

func TestParse_InvalidIdentifier(t *testing.T) {
	_, err := Parse([]byte{0x02, 0x00, 0x00, 0x09})
	var want InvalidIdentifierError
	assert.Assert(t, errors.As(err, &want))
}

func TestMacAddress_TextRoundTrip(t *testing.T) {
	mac, err := NewMacAddress([]byte{0xAA, 0x55, 0x5A, 0x01, 0x02, 0x03, 0x04, 0x05})
	assert.NilError(t, err)
	text, err := mac.MarshalText()
	assert.NilError(t, err)
	assert.Equal(t, string(text), "AA:55:5A:01:02:03:04:05")

	var roundtripped MacAddress
	assert.NilError(t, roundtripped.UnmarshalText(text))
	assert.Equal(t, roundtripped, mac)
}

func TestDataRate_ParseAndString(t *testing.T) {
	for _, s := range []string{"SF7BW125", "SF10BW125", "SF12BW500", "SF9BW250"} {
		dr, err := ParseDataRate(s)
		assert.NilError(t, err)
		assert.Equal(t, dr.String(), s)
	}

	_, err := ParseDataRate("SF13BW125")
	assert.ErrorContains(t, err, "invalid spreading factor")

	_, err = ParseDataRate("SF10BW999")
	assert.ErrorContains(t, err, "invalid bandwidth")
}
