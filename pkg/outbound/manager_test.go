package outbound

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dbehnke/hblink4/pkg/events"
	"github.com/dbehnke/hblink4/pkg/logger"
	"github.com/dbehnke/hblink4/pkg/protocol"
)

func TestNewManager_BuildsReverseIndex(t *testing.T) {
	out := make(chan Frame, 4)
	cfg := testConfig()
	m, err := NewManager([]Config{cfg}, logger.Default(), out, testEmitter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.conn.Close()

	if len(m.Links()) != 1 {
		t.Fatalf("expected 1 link, got %d", len(m.Links()))
	}
	link := m.Get("test-link")
	if link == nil {
		t.Fatal("expected to find link by name")
	}
	if m.addrIndex[link.Addr.String()] != "test-link" {
		t.Error("expected reverse index to map the resolved address to the link name")
	}
}

func TestNewManager_SkipsDisabledLinks(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	m, err := NewManager([]Config{cfg}, logger.Default(), make(chan Frame, 1), testEmitter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.conn.Close()

	if len(m.Links()) != 0 {
		t.Errorf("expected disabled link to be skipped, got %d links", len(m.Links()))
	}
}

// TestHandshake_EndToEndOverLoopback drives a real handshake against a
// fake master listening on loopback, exercising Manager's shared-socket
// send/receive plumbing end to end.
func TestHandshake_EndToEndOverLoopback(t *testing.T) {
	master, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("failed to open fake master socket: %v", err)
	}
	defer master.Close()

	masterAddr := master.LocalAddr().(*net.UDPAddr)
	cfg := testConfig()
	cfg.Address = "127.0.0.1"
	cfg.Port = masterAddr.Port
	cfg.PingTime = 60

	out := make(chan Frame, 4)
	m, err := NewManager([]Config{cfg}, logger.Default(), out, testEmitter())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.receiveLoop(ctx)

	done := make(chan error, 1)
	go func() {
		done <- m.handshake(m.Get("test-link"))
	}()

	buf := make([]byte, 4096)
	master.SetReadDeadline(time.Now().Add(2 * time.Second))

	// RPTL -> MSTCL(salt)
	n, clientAddr, err := master.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("master failed to receive RPTL: %v", err)
	}
	if protocol.ClassifyPrefix(buf[:n]) != protocol.PacketTypeRPTL {
		t.Fatalf("expected RPTL, got %q", string(buf[:n]))
	}
	mstcl := &protocol.MSTCLPacket{RepeaterID: cfg.OurID, Salt: []byte{1, 2, 3, 4}}
	data, _ := mstcl.Encode()
	master.WriteToUDP(data, clientAddr)

	// RPTK -> RPTACK
	n, _, err = master.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("master failed to receive RPTK: %v", err)
	}
	if protocol.ClassifyPrefix(buf[:n]) != protocol.PacketTypeRPTK {
		t.Fatalf("expected RPTK, got %q", string(buf[:n]))
	}
	ack := &protocol.RPTACKPacket{RepeaterID: cfg.OurID}
	ackData, _ := ack.Encode()
	master.WriteToUDP(ackData, clientAddr)

	// RPTC -> RPTACK
	n, _, err = master.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("master failed to receive RPTC: %v", err)
	}
	if protocol.ClassifyPrefix(buf[:n]) != protocol.PacketTypeRPTC {
		t.Fatalf("expected RPTC, got %q", string(buf[:n]))
	}
	master.WriteToUDP(ackData, clientAddr)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("handshake returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handshake did not complete in time")
	}

	if !m.Get("test-link").Connected() {
		t.Error("expected link to be connected after handshake")
	}
}

func testEmitter() *events.Emitter {
	return events.New(events.Config{}, logger.Default())
}
