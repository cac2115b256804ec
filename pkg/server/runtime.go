// Package server implements the GWMP server runtime: a UDP listener that
// speaks the gateway-to-server half of the Semtech packet-forwarder
// protocol, republishing uplinks as Events and accepting downlinks for
// dispatch to connected gateways.
package server

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

// eventQueueDepth and writeQueueDepth size the internal channels. 100 is
// a conservative default for a single gateway fleet's worth of chatter;
// callers with larger fleets should drain Events() promptly rather than
// rely on a bigger buffer.
const (
	eventQueueDepth    = 100
	internalQueueDepth = 100
	writeQueueDepth    = 100
)

type clientEntry struct {
	addr     *net.UDPAddr
	lastSeen time.Time
}

type pendingKey struct {
	mac   gwmp.MacAddress
	token uint16
}

type pendingEntry struct {
	resultCh  chan<- downlinkResult
	insertedAt time.Time
}

type writeRequest struct {
	addr        *net.UDPAddr
	frame       gwmp.Frame
	downlinkKey *pendingKey
}

// Server is a running GWMP server runtime. Construct with New, consume
// Events() until Close, and send downlinks via PrepareDownlink/Dispatch
// or the SendDownlink convenience wrapper.
type Server struct {
	cfg  Config
	conn *net.UDPConn

	events   chan Event
	internal chan internalEvent
	writeCh  chan writeRequest

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	tokenMu sync.Mutex
	tokenRnd *rand.Rand
}

// New binds cfg.BindAddr and starts the reader, writer, correlation and
// cache-sweep goroutines. The returned Server must be closed with Close.
func New(ctx context.Context, cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()

	addr, err := net.ResolveUDPAddr("udp", cfg.BindAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve bind address %q", cfg.BindAddr)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen udp %q", cfg.BindAddr)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &Server{
		cfg:      cfg,
		conn:     conn,
		events:   make(chan Event, eventQueueDepth),
		internal: make(chan internalEvent, internalQueueDepth),
		writeCh:  make(chan writeRequest, writeQueueDepth),
		ctx:      runCtx,
		cancel:   cancel,
		tokenRnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	s.wg.Add(4)
	go s.runReader()
	go s.runWriter()
	go s.runInternal()
	go s.runSweeper()

	log.WithFields(log.Fields{"addr": conn.LocalAddr()}).Info("gwmp server listening")
	return s, nil
}

// LocalAddr returns the runtime's bound UDP address.
func (s *Server) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Events returns the channel of Event values this runtime publishes.
// Callers must keep draining it; a full event queue stalls the internal
// loop.
func (s *Server) Events() <-chan Event { return s.events }

// Close stops all runtime goroutines and closes the UDP socket.
func (s *Server) Close() error {
	s.cancel()
	err := s.conn.Close()
	s.wg.Wait()
	close(s.events)
	return err
}

func (s *Server) publish(e Event) {
	select {
	case s.events <- e:
	case <-s.ctx.Done():
	}
}

// nextToken returns a fresh random_token for a server-initiated downlink.
func (s *Server) nextToken() uint16 {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	return uint16(s.tokenRnd.Uint32())
}

// PrepareDownlink builds (but does not send) a PULL_RESP targeting mac.
// Call Dispatch on the result to actually transmit it and await the
// TX_ACK.
func (s *Server) PrepareDownlink(mac gwmp.MacAddress, txpk gwmp.TxPk) *Downlink {
	frame := gwmp.Frame{
		Identifier:  gwmp.IdentifierPullResp,
		RandomToken: s.nextToken(),
		PullResp:    &gwmp.PullRespBody{TxPk: txpk},
	}
	return &Downlink{mac: mac, frame: frame, server: s}
}

// SendDownlink is a convenience wrapper around PrepareDownlink().Dispatch().
func (s *Server) SendDownlink(ctx context.Context, mac gwmp.MacAddress, txpk gwmp.TxPk, timeout time.Duration) (*uint32, error) {
	return s.PrepareDownlink(mac, txpk).Dispatch(ctx, timeout)
}

// runReader is the single goroutine that calls ReadFromUDP. It parses
// each datagram as an uplink frame and forwards the result to the
// internal loop for connection-table bookkeeping and event publishing,
// then (for PUSH_DATA/PULL_DATA) queues the matching ack.
func (s *Server) runReader() {
	defer s.wg.Done()
	buf := make([]byte, s.cfg.MaxMessageSize)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			log.WithError(err).Warn("gwmp server: read error")
			continue
		}
		raw := make([]byte, n)
		copy(raw, buf[:n])

		frame, err := gwmp.ParseUplink(raw)
		if err != nil {
			s.sendInternal(internalParseFailure{addr: addr, err: err, bytes: raw})
			continue
		}

		switch frame.Identifier {
		case gwmp.IdentifierPullData:
			s.sendInternal(internalClientSeen{mac: frame.GatewayMac, addr: addr})
			s.queueAck(addr, gwmp.Frame{Identifier: gwmp.IdentifierPullAck, RandomToken: frame.RandomToken})

		case gwmp.IdentifierPushData:
			s.sendInternal(internalClientSeen{mac: frame.GatewayMac, addr: addr})
			if frame.PushData != nil {
				for _, rxpk := range frame.PushData.RxPk {
					s.sendInternal(internalPacketReceived{mac: frame.GatewayMac, rxpk: rxpk})
				}
				if frame.PushData.Stat != nil {
					s.sendInternal(internalStatReceived{mac: frame.GatewayMac, stat: *frame.PushData.Stat})
				}
			}
			s.queueAck(addr, gwmp.Frame{Identifier: gwmp.IdentifierPushAck, RandomToken: frame.RandomToken})

		case gwmp.IdentifierTxAck:
			var tmst *uint32
			var outcomeErr error
			if frame.TxAck != nil {
				tmst, outcomeErr = frame.TxAck.Tmst, frame.TxAck.Err
			}
			s.sendInternal(internalClientSeen{mac: frame.GatewayMac, addr: addr})
			s.sendInternal(internalAckReceived{
				mac:   frame.GatewayMac,
				token: frame.RandomToken,
				tmst:  tmst,
				err:   outcomeErr,
			})
		}
	}
}

func (s *Server) queueAck(addr *net.UDPAddr, frame gwmp.Frame) {
	select {
	case s.writeCh <- writeRequest{addr: addr, frame: frame}:
	case <-s.ctx.Done():
	}
}

func (s *Server) sendInternal(e internalEvent) {
	select {
	case s.internal <- e:
	case <-s.ctx.Done():
	}
}

// runWriter is the single goroutine that calls WriteToUDP. Serializing
// all outbound traffic through one goroutine avoids needing a mutex
// around the socket.
func (s *Server) runWriter() {
	defer s.wg.Done()
	buf := make([]byte, s.cfg.MaxMessageSize)
	for {
		select {
		case <-s.ctx.Done():
			return
		case req := <-s.writeCh:
			n, err := gwmp.Serialize(req.frame, buf)
			if err != nil {
				log.WithError(err).Error("gwmp server: serialize outbound frame")
				if req.downlinkKey != nil {
					s.sendInternal(internalWriteFailed{key: *req.downlinkKey, err: err})
				}
				continue
			}
			if _, err := s.conn.WriteToUDP(buf[:n], req.addr); err != nil {
				log.WithFields(log.Fields{"addr": req.addr}).WithError(err).Warn("gwmp server: write error")
				if req.downlinkKey != nil {
					s.sendInternal(internalWriteFailed{key: *req.downlinkKey, err: errors.Wrap(err, "udp write")})
				}
			}
		}
	}
}

// runInternal is the single goroutine that owns the connection table and
// the pending-downlink correlation table. Every other goroutine talks to
// it only via s.internal, so these maps need no locking.
func (s *Server) runInternal() {
	defer s.wg.Done()
	clients := make(map[gwmp.MacAddress]*clientEntry)
	pending := make(map[pendingKey]pendingEntry)

	for {
		select {
		case <-s.ctx.Done():
			return

		case ev := <-s.internal:
			switch e := ev.(type) {

			case internalClientSeen:
				now := time.Now()
				if existing, ok := clients[e.mac]; ok {
					old := existing.addr
					existing.addr = e.addr
					existing.lastSeen = now
					if old.String() != e.addr.String() {
						s.publish(UpdateClientEvent{Mac: e.mac, OldAddr: old, Addr: e.addr})
					}
				} else {
					clients[e.mac] = &clientEntry{addr: e.addr, lastSeen: now}
					s.publish(NewClientEvent{Mac: e.mac, Addr: e.addr})
					log.WithFields(log.Fields{"mac": e.mac}).Info("gwmp server: gateway connected")
				}

			case internalPacketReceived:
				s.publish(PacketReceivedEvent{Mac: e.mac, RxPk: e.rxpk})

			case internalStatReceived:
				s.publish(StatReceivedEvent{Mac: e.mac, Stat: e.stat})

			case internalParseFailure:
				log.WithFields(log.Fields{"addr": e.addr}).WithError(e.err).Debug("gwmp server: unparseable datagram")
				s.publish(UnableToParseUDPFrameEvent{Addr: e.addr, Err: e.err, Bytes: e.bytes})

			case internalAckReceived:
				key := pendingKey{mac: e.mac, token: e.token}
				if entry, ok := pending[key]; ok {
					delete(pending, key)
					entry.resultCh <- downlinkResult{tmst: e.tmst, err: e.err}
				}

			case internalWriteFailed:
				if entry, ok := pending[e.key]; ok {
					delete(pending, e.key)
					entry.resultCh <- downlinkResult{err: e.err}
				}

			case internalDispatchDownlink:
				entry, ok := clients[e.mac]
				if !ok {
					s.publish(NoClientWithMacEvent{Mac: e.mac, PullResp: e.frame.PullResp})
					e.resultCh <- downlinkResult{err: UnknownMacError{}}
					continue
				}
				key := pendingKey{mac: e.mac, token: e.frame.RandomToken}
				pending[key] = pendingEntry{resultCh: e.resultCh, insertedAt: time.Now()}
				select {
				case s.writeCh <- writeRequest{addr: entry.addr, frame: e.frame, downlinkKey: &key}:
				case <-s.ctx.Done():
				}

			case internalAbandonDownlink:
				delete(pending, pendingKey{mac: e.mac, token: e.token})

			case internalCheckCache:
				now := time.Now()
				for mac, entry := range clients {
					if now.Sub(entry.lastSeen) > s.cfg.DisconnectThreshold {
						delete(clients, mac)
						s.publish(ClientDisconnectedEvent{Mac: mac, LastAddr: entry.addr})
						log.WithFields(log.Fields{"mac": mac}).Info("gwmp server: gateway disconnected")
					}
				}
				for key, entry := range pending {
					if now.Sub(entry.insertedAt) > s.cfg.PendingDownlinkGrace {
						delete(pending, key)
						entry.resultCh <- downlinkResult{err: SendTimeoutError{}}
					}
				}
			}
		}
	}
}

// runSweeper periodically asks the internal loop to evict stale
// connection-table and pending-downlink entries.
func (s *Server) runSweeper() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.CacheSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sendInternal(internalCheckCache{})
		}
	}
}
