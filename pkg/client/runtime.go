package client

import (
	"context"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/simeonmiteff/gwmp/pkg/gwmp"
)

// eventQueueDepth and sendQueueDepth size the runtime's internal
// channels, matching the capacity used by the server runtime.
const (
	eventQueueDepth = 100
	sendQueueDepth  = 100
)

// Runtime is a running GWMP client (gateway-side) connection to a single
// server. Construct with New, consume Events() until Close.
type Runtime struct {
	cfg  Config
	mac  gwmp.MacAddress
	conn *net.UDPConn

	events chan Event
	sendCh chan gwmp.Frame

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	tokenMu  sync.Mutex
	tokenRnd *rand.Rand

	connMu    sync.Mutex
	connected bool
}

// New dials cfg.ServerAddr over UDP and starts the reader, writer and
// keepalive goroutines. The returned Runtime must be closed with Close.
func New(ctx context.Context, cfg Config) (*Runtime, error) {
	cfg = cfg.withDefaults()

	var laddr *net.UDPAddr
	if cfg.LocalAddr != "" {
		var err error
		laddr, err = net.ResolveUDPAddr("udp", cfg.LocalAddr)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve local address %q", cfg.LocalAddr)
		}
	}
	raddr, err := net.ResolveUDPAddr("udp", cfg.ServerAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve server address %q", cfg.ServerAddr)
	}
	conn, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial udp %q", cfg.ServerAddr)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &Runtime{
		cfg:       cfg,
		mac:       gwmp.MacAddress(cfg.Mac),
		conn:      conn,
		events:    make(chan Event, eventQueueDepth),
		sendCh:    make(chan gwmp.Frame, sendQueueDepth),
		ctx:       runCtx,
		cancel:    cancel,
		tokenRnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
		connected: true,
	}

	r.wg.Add(3)
	go r.runReader()
	go r.runWriter()
	go r.runKeepalive()

	log.WithFields(log.Fields{"mac": r.mac, "server": cfg.ServerAddr}).Info("gwmp client connected")
	return r, nil
}

// Events returns the channel of Event values this runtime publishes.
func (r *Runtime) Events() <-chan Event { return r.events }

// Mac returns this gateway's identifier.
func (r *Runtime) Mac() gwmp.MacAddress { return r.mac }

// Close stops all runtime goroutines and closes the UDP socket.
func (r *Runtime) Close() error {
	r.cancel()
	err := r.conn.Close()
	r.wg.Wait()
	close(r.events)
	return err
}

func (r *Runtime) publish(e Event) {
	select {
	case r.events <- e:
	case <-r.ctx.Done():
	}
}

func (r *Runtime) nextToken() uint16 {
	r.tokenMu.Lock()
	defer r.tokenMu.Unlock()
	return uint16(r.tokenRnd.Uint32())
}

// send queues frame for the writer goroutine. It blocks only if the send
// queue is full, which only happens under sustained overload.
func (r *Runtime) send(frame gwmp.Frame) error {
	select {
	case r.sendCh <- frame:
		return nil
	case <-r.ctx.Done():
		return r.ctx.Err()
	}
}

// PushRxPk sends a PUSH_DATA frame carrying one or more received
// packets and an optional stat object.
func (r *Runtime) PushRxPk(rxpk []gwmp.RxPk, stat *gwmp.Stat) error {
	return r.send(gwmp.Frame{
		Identifier:  gwmp.IdentifierPushData,
		RandomToken: r.nextToken(),
		GatewayMac:  r.mac,
		PushData:    &gwmp.PushDataBody{RxPk: rxpk, Stat: stat},
	})
}

func (r *Runtime) setConnected(v bool) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.connected == v {
		return
	}
	r.connected = v
	if v {
		r.publish(ReconnectedEvent{})
	}
}

// runKeepalive periodically sends PULL_DATA to keep the NAT binding
// alive and tell the server this gateway is listening for downlinks.
func (r *Runtime) runKeepalive() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.KeepalivePeriod)
	defer ticker.Stop()

	pullData := func() {
		_ = r.send(gwmp.Frame{
			Identifier:  gwmp.IdentifierPullData,
			RandomToken: r.nextToken(),
			GatewayMac:  r.mac,
		})
	}
	pullData()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			pullData()
		}
	}
}

// runWriter serializes and transmits queued frames, stamping a fresh
// random_token is the caller's responsibility (send callers already do
// so); on socket error it logs, backs off, and retries the same send
// loop rather than dropping the connection entirely.
func (r *Runtime) runWriter() {
	defer r.wg.Done()
	buf := make([]byte, 65535)
	for {
		select {
		case <-r.ctx.Done():
			return
		case frame := <-r.sendCh:
			n, err := gwmp.Serialize(frame, buf)
			if err != nil {
				log.WithError(err).Error("gwmp client: serialize outbound frame")
				continue
			}
			if _, err := r.conn.Write(buf[:n]); err != nil {
				log.WithError(err).Warn("gwmp client: write error")
				r.setConnected(false)
				r.publish(LostConnectionEvent{Err: err})
				select {
				case <-time.After(r.cfg.ReconnectBackoff):
				case <-r.ctx.Done():
					return
				}
				continue
			}
			r.setConnected(true)
		}
	}
}

// runReader reads downlinks from the server: PULL_RESP becomes a
// DownlinkRequestEvent, PUSH_ACK/PULL_ACK are keepalive/uplink
// confirmations with no further action, and parse failures are
// surfaced without dropping the connection.
func (r *Runtime) runReader() {
	defer r.wg.Done()
	buf := make([]byte, 65535)
	for {
		n, err := r.conn.Read(buf)
		if err != nil {
			select {
			case <-r.ctx.Done():
				return
			default:
			}
			log.WithError(err).Warn("gwmp client: read error")
			r.setConnected(false)
			r.publish(LostConnectionEvent{Err: err})
			select {
			case <-time.After(r.cfg.ReconnectBackoff):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		raw := make([]byte, n)
		copy(raw, buf[:n])

		frame, err := gwmp.ParseDownlink(raw)
		if err != nil {
			log.WithError(err).Debug("gwmp client: unparseable datagram")
			r.publish(UnableToParseUDPFrameEvent{Err: err, Bytes: raw})
			continue
		}

		switch frame.Identifier {
		case gwmp.IdentifierPullResp:
			if frame.PullResp == nil {
				continue
			}
			r.publish(DownlinkRequestEvent{Request: &DownlinkRequest{
				txpk:    frame.PullResp.TxPk,
				token:   frame.RandomToken,
				runtime: r,
			}})
		case gwmp.IdentifierPushAck, gwmp.IdentifierPullAck:
			// uplink confirmations carry no further action.
		}
	}
}
