// Package worker implements the two execution contexts a blastmesh worker
// process runs (spec.md §4.4-4.6): the blast-server context (responder) and
// the control/blast-client context (initiator), plus the send/receive pumps
// shared by both. The accept-loop shape is adapted from the teacher's
// internal/server/tcp_server.go acceptConnections/handleConnection split.
package worker

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/nmeasure/blastmesh/internal/protocol"
)

// PumpResult carries the byte counts a pairing produced (spec.md §4.6).
type PumpResult struct {
	BytesSent     int64
	BytesReceived int64
}

type halfCloseWriter interface {
	CloseWrite() error
}

type halfCloseReader interface {
	CloseRead() error
}

// RunPumps drives this side's role in an already-prefixed blast connection.
// role is this side's own role (not the peer's): "s" sends, "r" receives,
// "b" does both concurrently. boundReceive controls whether the receive
// pump also honors duration, or runs unbounded until the peer half-closes
// — the initiator always bounds its receive pump (it holds the
// authoritative clock, spec.md §4.5); a responder receiving alone does not
// (spec.md §4.4).
func RunPumps(conn net.Conn, role string, duration time.Duration, bufSize int, boundReceive bool) (PumpResult, error) {
	var result PumpResult
	var wg sync.WaitGroup
	var sendErr, recvErr error

	runSend := role == protocol.DirectionSend || role == protocol.DirectionBoth
	runRecv := role == protocol.DirectionReceive || role == protocol.DirectionBoth

	if runSend {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result.BytesSent, sendErr = sendPump(conn, duration, bufSize)
		}()
	}
	if runRecv {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recvDuration := time.Duration(0)
			if boundReceive {
				recvDuration = duration
			}
			result.BytesReceived, recvErr = receivePump(conn, recvDuration, bufSize)
		}()
	}

	wg.Wait()

	if sendErr != nil {
		return result, sendErr
	}
	return result, recvErr
}

// sendPump fills a deterministic pattern into a fixed buffer and writes it
// repeatedly until duration elapses, then half-closes the write side
// (spec.md §4.6).
func sendPump(conn net.Conn, duration time.Duration, bufSize int) (int64, error) {
	buf := make([]byte, bufSize)
	protocol.FillPattern(buf, 0)

	var sent int64
	deadline := time.Now().Add(duration)

	for time.Now().Before(deadline) {
		n, err := conn.Write(buf)
		sent += int64(n)
		if err != nil {
			return sent, err
		}
	}

	if hc, ok := conn.(halfCloseWriter); ok {
		hc.CloseWrite()
	}
	return sent, nil
}

// receivePump reads into a fixed buffer until either duration elapses (if
// bounded, duration > 0) or the peer half-closes the write side (io.EOF),
// then half-closes the read side (spec.md §4.6).
func receivePump(conn net.Conn, duration time.Duration, bufSize int) (int64, error) {
	buf := make([]byte, bufSize)
	var received int64

	var deadline time.Time
	bounded := duration > 0
	if bounded {
		deadline = time.Now().Add(duration)
	}

	for {
		if bounded {
			if !time.Now().Before(deadline) {
				break
			}
			conn.SetReadDeadline(deadline)
		}

		n, err := conn.Read(buf)
		received += int64(n)
		if err != nil {
			if err == io.EOF {
				break
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() && bounded {
				break
			}
			return received, err
		}
	}

	conn.SetReadDeadline(time.Time{})
	if hc, ok := conn.(halfCloseReader); ok {
		hc.CloseRead()
	}
	return received, nil
}
