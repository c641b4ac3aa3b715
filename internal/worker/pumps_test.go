package worker

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nmeasure/blastmesh/internal/protocol"
)

// tcpPipe returns a connected pair of real TCP loopback connections, so
// CloseWrite/CloseRead half-close semantics are exercised the way they
// would be over the network (net.Pipe does not support them).
func tcpPipe(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()

	var serverConn net.Conn
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		serverConn, _ = ln.Accept()
	}()

	clientConn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	wg.Wait()

	return clientConn, serverConn
}

func TestRunPumps_SendOnly(t *testing.T) {
	client, server := tcpPipe(t)
	defer client.Close()
	defer server.Close()

	var serverResult PumpResult
	done := make(chan struct{})
	go func() {
		serverResult, _ = receivePumpUnbounded(t, server)
		close(done)
	}()

	result, err := RunPumps(client, protocol.DirectionSend, 100*time.Millisecond, 4096, false)
	if err != nil {
		t.Fatalf("RunPumps failed: %v", err)
	}
	if result.BytesSent == 0 {
		t.Error("expected some bytes to be sent")
	}

	<-done
	if serverResult.BytesReceived != result.BytesSent {
		t.Errorf("expected receiver to see all sent bytes: sent=%d received=%d", result.BytesSent, serverResult.BytesReceived)
	}
}

func receivePumpUnbounded(t *testing.T, conn net.Conn) (PumpResult, error) {
	t.Helper()
	n, err := receivePump(conn, 0, 4096)
	return PumpResult{BytesReceived: n}, err
}

func TestRunPumps_Bidirectional(t *testing.T) {
	client, server := tcpPipe(t)
	defer client.Close()
	defer server.Close()

	var serverResult PumpResult
	var serverErr error
	done := make(chan struct{})
	go func() {
		serverResult, serverErr = RunPumps(server, protocol.DirectionBoth, 100*time.Millisecond, 4096, false)
		close(done)
	}()

	clientResult, err := RunPumps(client, protocol.DirectionBoth, 100*time.Millisecond, 4096, true)
	if err != nil {
		t.Fatalf("client RunPumps failed: %v", err)
	}
	<-done
	if serverErr != nil {
		t.Fatalf("server RunPumps failed: %v", serverErr)
	}

	if clientResult.BytesSent == 0 || serverResult.BytesSent == 0 {
		t.Error("expected both sides to send data")
	}
}

func TestFillPattern_Deterministic(t *testing.T) {
	buf := make([]byte, 300)
	protocol.FillPattern(buf, 0)
	if !protocol.VerifyPattern(buf, len(buf), 0) {
		t.Error("expected FillPattern's output to verify against the same offset")
	}
}
