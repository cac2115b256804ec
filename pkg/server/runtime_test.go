package server

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/simeonmiteff/gwmp/pkg/gwmp"
)

func startTestServer(t *testing.T) (*Server, *net.UDPConn) {
	t.Helper()
	srv, err := New(context.Background(), Config{
		BindAddr:             "127.0.0.1:0",
		DisconnectThreshold:  200 * time.Millisecond,
		CacheSweepPeriod:     20 * time.Millisecond,
		PendingDownlinkGrace: 300 * time.Millisecond,
	})
	assert.NilError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	gw, err := net.DialUDP("udp", nil, srv.LocalAddr().(*net.UDPAddr))
	assert.NilError(t, err)
	t.Cleanup(func() { _ = gw.Close() })

	return srv, gw
}

func testMac() gwmp.MacAddress {
	mac, _ := gwmp.NewMacAddress([]byte{0xAA, 0x55, 0x5A, 0x01, 0x02, 0x03, 0x04, 0x05})
	return mac
}

func sendFrame(t *testing.T, conn *net.UDPConn, f gwmp.Frame) {
	t.Helper()
	buf := make([]byte, 2048)
	n, err := gwmp.Serialize(f, buf)
	assert.NilError(t, err)
	_, err = conn.Write(buf[:n])
	assert.NilError(t, err)
}

func recvWithin(t *testing.T, conn *net.UDPConn, d time.Duration) []byte {
	t.Helper()
	buf := make([]byte, 2048)
	assert.NilError(t, conn.SetReadDeadline(time.Now().Add(d)))
	n, err := conn.Read(buf)
	assert.NilError(t, err)
	return buf[:n]
}

func TestServer_PullData_NewClientAndAck(t *testing.T) {
	srv, gw := startTestServer(t)
	mac := testMac()

	sendFrame(t, gw, gwmp.Frame{Identifier: gwmp.IdentifierPullData, RandomToken: 0x1234, GatewayMac: mac})

	select {
	case ev := <-srv.Events():
		nc, ok := ev.(NewClientEvent)
		assert.Assert(t, ok, "expected NewClientEvent, got %T", ev)
		assert.Equal(t, nc.Mac, mac)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for NewClientEvent")
	}

	resp := recvWithin(t, gw, time.Second)
	assert.Assert(t, len(resp) >= 4)
	assert.Equal(t, resp[3], byte(gwmp.IdentifierPullAck))
	assert.Equal(t, binary.BigEndian.Uint16(resp[1:3]), uint16(0x1234))
}

func TestServer_PushData_PacketAndStatEvents(t *testing.T) {
	srv, gw := startTestServer(t)
	mac := testMac()

	rxpkJSON := []byte(`{"chan":0,"codr":"4/5","data":"+DS4CGaDCdG+","datr":"SF7BW125","freq":866.349812,"lsnr":5.1,"modu":"LORA","rfch":0,"rssi":-35,"size":32,"stat":1,"time":"2013-03-31T16:21:17.528002Z","tmst":3512348611}`)
	body := []byte(`{"rxpk":[` + string(rxpkJSON) + `],"stat":{"time":"2014-01-12 08:59:28 GMT","rxnb":2,"rxok":2,"rxfw":2,"ackr":100.0,"dwnb":0,"txnb":0}}`)

	buf := make([]byte, 4+gwmp.MacAddressSize+len(body))
	buf[0] = gwmp.ProtocolVersion
	binary.BigEndian.PutUint16(buf[1:3], 0x5678)
	buf[3] = byte(gwmp.IdentifierPushData)
	copy(buf[4:4+gwmp.MacAddressSize], mac.Bytes())
	copy(buf[4+gwmp.MacAddressSize:], body)

	_, err := gw.Write(buf)
	assert.NilError(t, err)

	var sawPacket, sawStat bool
	deadline := time.After(2 * time.Second)
	for !sawPacket || !sawStat {
		select {
		case ev := <-srv.Events():
			switch e := ev.(type) {
			case PacketReceivedEvent:
				assert.Equal(t, e.Mac, mac)
				sawPacket = true
			case StatReceivedEvent:
				assert.Equal(t, e.Mac, mac)
				assert.Equal(t, e.Stat.Rxnb, uint64(2))
				sawStat = true
			}
		case <-deadline:
			t.Fatalf("timed out: sawPacket=%v sawStat=%v", sawPacket, sawStat)
		}
	}

	resp := recvWithin(t, gw, time.Second)
	assert.Equal(t, resp[3], byte(gwmp.IdentifierPushAck))
}

func registerClient(t *testing.T, gw *net.UDPConn, mac gwmp.MacAddress) {
	t.Helper()
	sendFrame(t, gw, gwmp.Frame{Identifier: gwmp.IdentifierPullData, RandomToken: 0x0001, GatewayMac: mac})
	_ = recvWithin(t, gw, time.Second) // drain PULL_ACK
}

func TestServer_SendDownlink_Success(t *testing.T) {
	srv, gw := startTestServer(t)
	mac := testMac()
	registerClient(t, gw, mac)

	txpk := gwmp.TxPk{
		Imme: true,
		Freq: 869.525,
		Rfch: 0,
		Powe: 14,
		Modu: gwmp.ModulationLoRa,
		Datr: gwmp.DataRate{SpreadingFactor: 7, Bandwidth: 125},
		Codr: gwmp.CodingRate4_5,
		Size: 4,
		Data: gwmp.Base64Bytes{1, 2, 3, 4},
	}

	type outcome struct {
		tmst *uint32
		err  error
	}
	resultCh := make(chan outcome, 1)
	dl := srv.PrepareDownlink(mac, txpk)
	go func() {
		tmst, err := dl.Dispatch(context.Background(), time.Second)
		resultCh <- outcome{tmst, err}
	}()

	pullResp := recvWithin(t, gw, time.Second)
	assert.Equal(t, pullResp[3], byte(gwmp.IdentifierPullResp))
	token := binary.BigEndian.Uint16(pullResp[1:3])
	assert.Equal(t, token, dl.RandomToken())

	ackBuf := make([]byte, 4+gwmp.MacAddressSize)
	ackBuf[0] = gwmp.ProtocolVersion
	binary.BigEndian.PutUint16(ackBuf[1:3], token)
	ackBuf[3] = byte(gwmp.IdentifierTxAck)
	copy(ackBuf[4:], mac.Bytes())
	_, err := gw.Write(ackBuf)
	assert.NilError(t, err)

	select {
	case res := <-resultCh:
		assert.NilError(t, res.err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Dispatch result")
	}
}

func TestServer_SendDownlink_UnknownMac(t *testing.T) {
	srv, _ := startTestServer(t)
	mac := testMac()

	txpk := gwmp.TxPk{Imme: true, Freq: 868.1}
	_, err := srv.SendDownlink(context.Background(), mac, txpk, 200*time.Millisecond)
	assert.ErrorType(t, err, UnknownMacError{})

	select {
	case ev := <-srv.Events():
		noClient, ok := ev.(NoClientWithMacEvent)
		assert.Assert(t, ok, "expected NoClientWithMacEvent, got %T", ev)
		assert.Equal(t, noClient.Mac, mac)
		assert.Assert(t, noClient.PullResp != nil)
		assert.Equal(t, noClient.PullResp.TxPk.Freq, txpk.Freq)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for NoClientWithMacEvent")
	}
}

func TestServer_SendDownlink_Timeout(t *testing.T) {
	srv, gw := startTestServer(t)
	mac := testMac()
	registerClient(t, gw, mac)

	_, err := srv.SendDownlink(context.Background(), mac, gwmp.TxPk{Imme: true}, 100*time.Millisecond)
	assert.ErrorType(t, err, SendTimeoutError{})
}

// TestServer_SendDownlink_NoTimeout confirms a zero timeout means "wait
// indefinitely" rather than "fire immediately": with no ack ever coming,
// Dispatch must still be blocked when the caller's own context deadline
// elapses, not report a premature SendTimeoutError on its own.
func TestServer_SendDownlink_NoTimeout(t *testing.T) {
	srv, gw := startTestServer(t)
	mac := testMac()
	registerClient(t, gw, mac)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := srv.SendDownlink(ctx, mac, gwmp.TxPk{Imme: true}, 0)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Assert(t, elapsed >= 150*time.Millisecond, "Dispatch returned after %s, want >= 150ms", elapsed)
}

func TestServer_CacheSweep_DisconnectsStaleClient(t *testing.T) {
	srv, gw := startTestServer(t)
	mac := testMac()
	registerClient(t, gw, mac)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-srv.Events():
			if d, ok := ev.(ClientDisconnectedEvent); ok {
				assert.Equal(t, d.Mac, mac)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for ClientDisconnectedEvent")
		}
	}
}
