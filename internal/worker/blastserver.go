package worker

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nmeasure/blastmesh/internal/protocol"
)

// BlastServer is the worker's responder context (spec.md §4.4): it accepts
// inbound blast connections and speaks the responder side of the wire
// protocol. It runs isolated from the control context so a slow transfer
// never blocks get_work polling.
type BlastServer struct {
	host    string
	bufSize int
	debug   bool

	listener net.Listener
	wg       sync.WaitGroup
	stopCh   chan struct{}
}

// NewBlastServer creates a blast-server context for host. The port is given
// to Start; a port of 0 lets the OS choose, and Port() after Start reports
// the bound port.
func NewBlastServer(host string, bufSize int) *BlastServer {
	return &BlastServer{
		host:    host,
		bufSize: bufSize,
		stopCh:  make(chan struct{}),
	}
}

// Start binds the listener and begins accepting in the background.
func (b *BlastServer) Start(port int) error {
	addr := fmt.Sprintf("%s:%d", b.host, port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start blast server: %w", err)
	}
	b.listener = listener
	fmt.Printf("blast server listening on %s\n", listener.Addr())

	b.wg.Add(1)
	go b.acceptLoop()
	return nil
}

// SetDebug turns on per-connection verbose logging (--debug, spec.md §6.5).
func (b *BlastServer) SetDebug(debug bool) {
	b.debug = debug
}

// Port returns the TCP port the blast server bound to.
func (b *BlastServer) Port() int {
	if b.listener == nil {
		return 0
	}
	return b.listener.Addr().(*net.TCPAddr).Port
}

// Stop closes the listener and waits for in-flight pumps to finish
// (spec.md §4.5 step 3: the control context signals and joins this context
// before exiting).
func (b *BlastServer) Stop() {
	close(b.stopCh)
	if b.listener != nil {
		b.listener.Close()
	}
	b.wg.Wait()
	fmt.Println("blast server stopped")
}

func (b *BlastServer) acceptLoop() {
	defer b.wg.Done()

	for {
		if tcpLn, ok := b.listener.(*net.TCPListener); ok {
			tcpLn.SetDeadline(time.Now().Add(5 * time.Second))
		}

		conn, err := b.listener.Accept()
		if err != nil {
			select {
			case <-b.stopCh:
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			fmt.Printf("blast server accept error: %v\n", err)
			continue
		}

		b.wg.Add(1)
		go b.serve(conn)
	}
}

func (b *BlastServer) serve(conn net.Conn) {
	defer b.wg.Done()
	defer conn.Close()

	peer := conn.RemoteAddr().String()

	direction, durationSeconds, err := protocol.ReadBlastPrefix(conn)
	if err != nil {
		fmt.Printf("blast server: failed to read prefix from %s: %v\n", peer, err)
		return
	}
	if b.debug {
		fmt.Printf("blast server: accepted %s (direction=%s, duration=%ds)\n", peer, direction, durationSeconds)
	}

	started := time.Now()
	result, err := RunPumps(conn, direction, time.Duration(durationSeconds)*time.Second, b.bufSize, false)
	elapsed := time.Since(started)
	if err != nil {
		fmt.Printf("blast server: pump error with %s after %.2fs: %v\n", peer, elapsed.Seconds(), err)
		return
	}

	fmt.Printf("blast server: %s done (direction=%s, sent=%d, received=%d, elapsed=%.2fs)\n",
		peer, direction, result.BytesSent, result.BytesReceived, elapsed.Seconds())
}
