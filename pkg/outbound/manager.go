package outbound

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/dbehnke/hblink4/pkg/events"
	"github.com/dbehnke/hblink4/pkg/logger"
	"github.com/dbehnke/hblink4/pkg/protocol"
)

// Manager owns the shared UDP socket used by every outbound link and the
// (remote_host, remote_port) -> link_name reverse index of SPEC_FULL.md
// §4.6, so a single receive loop can attribute inbound datagrams in O(1).
type Manager struct {
	conn      *net.UDPConn
	links     map[string]*Link
	addrIndex map[string]string

	log     *logger.Logger
	out     chan<- Frame
	emitter *events.Emitter
}

// NewManager opens the shared outbound socket and builds a Link for every
// enabled Config. out receives one Frame per inbound DMRD datagram so the
// engine loop can dispatch it like any other repeater frame; MSTPONG and the
// handshake replies are handled inside the manager. emitter
// receives outbound_connected/outbound_disconnected/outbound_error events
// per spec.md §4.7's fixed event-kind list; it may be nil in tests that
// don't exercise the handshake/keepalive loops.
func NewManager(configs []Config, log *logger.Logger, out chan<- Frame, emitter *events.Emitter) (*Manager, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("open outbound socket: %w", err)
	}

	m := &Manager{
		conn:      conn,
		links:     make(map[string]*Link),
		addrIndex: make(map[string]string),
		log:       log.WithComponent("outbound.manager"),
		out:       out,
		emitter:   emitter,
	}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		link, err := NewLink(cfg, log)
		if err != nil {
			m.log.Error("failed to resolve outbound link", logger.String("name", cfg.Name), logger.Error(err))
			continue
		}
		m.links[cfg.Name] = link
		m.addrIndex[link.Addr.String()] = cfg.Name
	}

	return m, nil
}

// Links returns every configured Link, for routing target enumeration.
func (m *Manager) Links() []*Link {
	out := make([]*Link, 0, len(m.links))
	for _, l := range m.links {
		out = append(out, l)
	}
	return out
}

// Get returns the named link, or nil.
func (m *Manager) Get(name string) *Link {
	return m.links[name]
}

// Send writes data to the named link's remote over the shared socket. Used
// by the engine to forward DMRD traffic to an outbound link the same way it
// forwards to a connected repeater.
func (m *Manager) Send(name string, data []byte) error {
	link, ok := m.links[name]
	if !ok {
		return fmt.Errorf("unknown outbound link %q", name)
	}
	if !link.Connected() {
		return fmt.Errorf("outbound link %q not connected", name)
	}
	_, err := m.conn.WriteToUDP(data, link.Addr)
	return err
}

// Run drives every link's handshake and keepalive loop concurrently and
// services the shared receive loop until ctx is cancelled. Each link
// reconnects indefinitely on its own schedule per §4.6; Run itself returns
// only when ctx is done.
func (m *Manager) Run(ctx context.Context) {
	defer m.conn.Close()

	for _, link := range m.links {
		go m.runLink(ctx, link)
	}

	go m.receiveLoop(ctx)

	<-ctx.Done()
	m.closeAll()
}

func (m *Manager) closeAll() {
	for _, link := range m.links {
		if !link.Connected() {
			continue
		}
		data, err := link.BuildClose()
		if err != nil {
			continue
		}
		_, _ = m.conn.WriteToUDP(data, link.Addr)
	}
}

// runLink drives one link's connect -> handshake -> keepalive -> reconnect
// cycle forever, per §4.6's "retry indefinitely" requirement.
func (m *Manager) runLink(ctx context.Context, link *Link) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.handshake(link); err != nil {
			link.log.Error("handshake failed, will retry", logger.Error(err))
			m.emitOutboundError(link, err)
			link.Disconnect()
			if !sleepCtx(ctx, pingInterval(link)) {
				return
			}
			continue
		}

		if !m.keepaliveLoop(ctx, link) {
			return
		}
		link.Disconnect()
		m.emitOutboundDisconnected(link)
	}
}

// emitOutboundConnected reports a completed handshake, per spec.md §4.7.
func (m *Manager) emitOutboundConnected(link *Link) {
	if m.emitter == nil {
		return
	}
	m.emitter.Emit(events.KindOutboundConnected, time.Now(), events.OutboundLinkData{
		LinkName: link.Config.Name, Address: link.Addr.String(),
	})
}

// emitOutboundDisconnected reports a link dropping out of StateConnected,
// per spec.md §4.7.
func (m *Manager) emitOutboundDisconnected(link *Link) {
	if m.emitter == nil {
		return
	}
	m.emitter.Emit(events.KindOutboundDisconnected, time.Now(), events.OutboundLinkData{
		LinkName: link.Config.Name, Address: link.Addr.String(),
	})
}

// emitOutboundError reports a handshake or keepalive failure, per spec.md
// §4.7.
func (m *Manager) emitOutboundError(link *Link, err error) {
	if m.emitter == nil {
		return
	}
	m.emitter.Emit(events.KindOutboundError, time.Now(), events.OutboundErrorData{
		LinkName: link.Config.Name, Error: err.Error(),
	})
}

func pingInterval(link *Link) time.Duration {
	return time.Duration(link.Config.PingTime * float64(time.Second))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// keepaliveLoop sends RPTPING every ping_time while connected, returning
// false only if ctx was cancelled; a keepalive failure returns true so the
// caller reconnects.
func (m *Manager) keepaliveLoop(ctx context.Context, link *Link) bool {
	ticker := time.NewTicker(pingInterval(link))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			ping, err := link.BuildPing()
			if err != nil {
				continue
			}
			if _, err := m.conn.WriteToUDP(ping, link.Addr); err != nil {
				link.log.Error("failed to send keepalive", logger.Error(err))
				m.emitOutboundError(link, err)
				return true
			}
			if link.CheckKeepalive(time.Now()) {
				link.log.Error("max_missed keepalives exceeded, reconnecting")
				m.emitOutboundError(link, fmt.Errorf("max_missed keepalives exceeded"))
				return true
			}
		}
	}
}

// receiveLoop reads from the shared socket and attributes each datagram to
// its link via the reverse address index, feeding decoded frames to the
// engine channel (for DMRD) or handling handshake/keepalive replies inline.
func (m *Manager) receiveLoop(ctx context.Context) {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, addr, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			m.log.Error("outbound socket read error", logger.Error(err))
			continue
		}

		name, ok := m.addrIndex[addr.String()]
		if !ok {
			continue
		}
		link := m.links[name]
		data := append([]byte(nil), buf[:n]...)

		switch protocol.ClassifyPrefix(data) {
		case protocol.PacketTypeDMRD:
			select {
			case m.out <- Frame{LinkName: name, Data: data}:
			default:
			}
		case protocol.PacketTypeMSTPONG:
			link.HandlePong(time.Now())
		default:
			// RPTACK, MSTCL, MSTNAK: handshake-relevant, routed to the
			// link's inbox for the goroutine blocked in handshake().
			select {
			case link.inbox <- data:
			default:
			}
		}
	}
}

const handshakeReplyTimeout = 5 * time.Second

// handshake drives the RPTL -> MSTCL -> RPTK -> RPTACK -> RPTC -> RPTACK
// (-> RPTO -> RPTACK) sequence synchronously, reading replies off the
// link's inbox as Manager's single receive loop routes them there.
func (m *Manager) handshake(link *Link) error {
	rptl, err := link.BeginLogin()
	if err != nil {
		return fmt.Errorf("RPTL encode: %w", err)
	}
	if _, err := m.conn.WriteToUDP(rptl, link.Addr); err != nil {
		return fmt.Errorf("RPTL send: %w", err)
	}

	mstcl, err := m.awaitMSTCL(link)
	if err != nil {
		return fmt.Errorf("awaiting MSTCL: %w", err)
	}
	rptk, err := link.HandleMSTCL(mstcl)
	if err != nil {
		return fmt.Errorf("RPTK encode: %w", err)
	}
	if err := m.sendAndAwaitACK(link, rptk); err != nil {
		return fmt.Errorf("RPTK: %w", err)
	}

	rptc, err := link.BuildRPTC()
	if err != nil {
		return fmt.Errorf("RPTC encode: %w", err)
	}
	if err := m.sendAndAwaitACK(link, rptc); err != nil {
		return fmt.Errorf("RPTC: %w", err)
	}

	if rpto := link.BuildRPTO(); rpto != nil {
		if err := m.sendAndAwaitACK(link, rpto); err != nil {
			return fmt.Errorf("RPTO: %w", err)
		}
	}

	link.HandleFinalACK(time.Now())
	m.emitOutboundConnected(link)
	return nil
}

// awaitMSTCL waits for the server's login challenge after RPTL.
func (m *Manager) awaitMSTCL(link *Link) (*protocol.MSTCLPacket, error) {
	data, err := link.awaitFrame(handshakeReplyTimeout)
	if err != nil {
		return nil, err
	}
	if protocol.ClassifyPrefix(data) == protocol.PacketTypeMSTNAK {
		return nil, fmt.Errorf("master rejected login (MSTNAK)")
	}
	return protocol.ParseMSTCL(data)
}

// sendAndAwaitACK sends data to the link's remote and waits for an
// RPTACK reply, surfacing MSTNAK as an explicit rejection.
func (m *Manager) sendAndAwaitACK(link *Link, data []byte) error {
	if _, err := m.conn.WriteToUDP(data, link.Addr); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	reply, err := link.awaitFrame(handshakeReplyTimeout)
	if err != nil {
		return err
	}
	switch protocol.ClassifyPrefix(reply) {
	case protocol.PacketTypeRPTACK:
		return nil
	case protocol.PacketTypeMSTNAK:
		return fmt.Errorf("master sent MSTNAK")
	default:
		return fmt.Errorf("unexpected reply %q", protocol.ClassifyPrefix(reply))
	}
}
