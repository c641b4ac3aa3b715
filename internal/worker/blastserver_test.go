package worker

import (
	"net"
	"testing"
	"time"

	"github.com/nmeasure/blastmesh/internal/protocol"
)

func TestBlastServer_RespondsToSendDirection(t *testing.T) {
	srv := NewBlastServer("127.0.0.1", 4096)
	if err := srv.Start(0); err != nil {
		t.Fatalf("failed to start blast server: %v", err)
	}
	defer srv.Stop()

	conn, err := net.Dial("tcp", srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("failed to dial blast server: %v", err)
	}
	defer conn.Close()

	// Initiator is assigned "r" (receive); the responder's role is its
	// complement, "s" (send), per spec.md §4.5's direction mapping.
	prefix, err := protocol.EncodeBlastPrefix(protocol.DirectionSend, 1)
	if err != nil {
		t.Fatalf("failed to encode prefix: %v", err)
	}
	if _, err := conn.Write(prefix); err != nil {
		t.Fatalf("failed to write prefix: %v", err)
	}

	result, err := RunPumps(conn, protocol.DirectionReceive, time.Second, 4096, true)
	if err != nil {
		t.Fatalf("RunPumps failed: %v", err)
	}
	if result.BytesReceived == 0 {
		t.Error("expected to receive data from the blast server")
	}
}

func TestBlastServer_Port(t *testing.T) {
	srv := NewBlastServer("127.0.0.1", 4096)
	if err := srv.Start(0); err != nil {
		t.Fatalf("failed to start blast server: %v", err)
	}
	defer srv.Stop()

	if srv.Port() == 0 {
		t.Error("expected a nonzero auto-assigned port")
	}
}
