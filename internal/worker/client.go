package worker

import (
	"fmt"
	"net"
	"time"

	"github.com/nmeasure/blastmesh/internal/protocol"
)

// Client is the worker's control context (spec.md §4.5): it registers with
// the manager, polls get_work, and when assigned dials a peer to run the
// initiator side of the blast protocol.
type Client struct {
	managerAddr string
	bufSize     int
	lifetime    time.Duration // 0 = run until signalled
	debug       bool

	blastServer *BlastServer
	workerID    string
}

// NewClient creates a control context bound to managerAddr, supervising
// blastServer's lifecycle alongside its own (spec.md §4.5 step 3).
func NewClient(managerAddr string, bufSize int, lifetime time.Duration, blastServer *BlastServer) *Client {
	return &Client{
		managerAddr: managerAddr,
		bufSize:     bufSize,
		lifetime:    lifetime,
		blastServer: blastServer,
	}
}

// SetDebug turns on per-round-trip verbose logging (--debug, spec.md §6.5).
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

// Run executes the steady-state control loop until the worker's optional
// lifetime expires, get_work signals a terminal failure, or stopCh closes.
// On return it stops the blast-server context and joins it, per spec.md
// §4.5 step 3.
func (c *Client) Run(workerHost string, workerPort int, stopCh <-chan struct{}) error {
	started := time.Now()

	resp, err := sendControlRequest(c.managerAddr, protocol.RegisterRequest{
		Q:         protocol.QRegisterWorker,
		BlastPort: workerPort,
	})
	if err != nil {
		return fmt.Errorf("failed to register with manager: %w", err)
	}
	if resp.Success == nil || !*resp.Success {
		return fmt.Errorf("manager rejected registration: %s", resp.ErrorMsg)
	}
	c.workerID = resp.WorkerID
	fmt.Printf("registered with manager as %s\n", c.workerID)

loop:
	for {
		if c.lifetime > 0 && time.Since(started) >= c.lifetime {
			break
		}
		select {
		case <-stopCh:
			break loop
		default:
		}

		getWorkResp, err := sendControlRequest(c.managerAddr, protocol.GetWorkRequest{
			Q:        protocol.QGetWork,
			WorkerID: c.workerID,
		})
		if err != nil {
			fmt.Printf("get_work transport failure: %v\n", err)
			time.Sleep(time.Second)
			continue
		}

		if getWorkResp.Reregister {
			fmt.Println("manager asked us to re-register")
			if err := c.reregister(workerPort); err != nil {
				fmt.Printf("re-registration failed: %v\n", err)
				time.Sleep(time.Second)
			}
			continue
		}

		if getWorkResp.Success == nil || !*getWorkResp.Success {
			if getWorkResp.RetryAfter == nil {
				fmt.Printf("get_work terminal failure: %s\n", getWorkResp.ErrorMsg)
				break loop
			}
			sleepFor := time.Duration(*getWorkResp.RetryAfter * float64(time.Second))
			if c.debug {
				fmt.Printf("get_work: no assignment (%s), retrying in %s\n", getWorkResp.ErrorMsg, sleepFor)
			}
			time.Sleep(sleepFor)
			continue
		}

		if c.debug {
			fmt.Printf("get_work: assigned %s:%d (direction=%s, duration=%ds)\n",
				getWorkResp.BlastIP, getWorkResp.BlastPort, getWorkResp.Direction, getWorkResp.Duration)
		}
		c.runAssignment(getWorkResp)
	}

	c.blastServer.Stop()
	fmt.Printf("control loop exiting after %.2fs\n", time.Since(started).Seconds())
	return nil
}

func (c *Client) reregister(workerPort int) error {
	resp, err := sendControlRequest(c.managerAddr, protocol.RegisterRequest{
		Q:         protocol.QRegisterWorker,
		BlastPort: workerPort,
	})
	if err != nil {
		return err
	}
	if resp.Success == nil || !*resp.Success {
		return fmt.Errorf("manager rejected re-registration: %s", resp.ErrorMsg)
	}
	c.workerID = resp.WorkerID
	return nil
}

// runAssignment dials the assigned peer and drives the initiator side of
// the blast protocol, then reports the flow (spec.md §4.5 steps 2-3).
func (c *Client) runAssignment(assignment *protocol.Response) {
	duration := time.Duration(assignment.Duration) * time.Second
	addr := fmt.Sprintf("%s:%d", assignment.BlastIP, assignment.BlastPort)

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		fmt.Printf("failed to connect to assigned peer %s: %v\n", addr, err)
		c.reportConnectFailed(assignment, err)
		return
	}
	defer conn.Close()

	peerDirection, err := protocol.ComplementDirection(assignment.Direction)
	if err != nil {
		fmt.Printf("invalid assigned direction %q: %v\n", assignment.Direction, err)
		return
	}

	prefix, err := protocol.EncodeBlastPrefix(peerDirection, int(duration.Seconds()))
	if err != nil {
		fmt.Printf("failed to encode blast prefix: %v\n", err)
		return
	}
	if _, err := conn.Write(prefix); err != nil {
		fmt.Printf("failed to write blast prefix to %s: %v\n", addr, err)
		return
	}

	start := time.Now()
	result, err := RunPumps(conn, assignment.Direction, duration, c.bufSize, true)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Printf("blast client: pump error with %s after %.2fs: %v\n", addr, elapsed.Seconds(), err)
	}

	c.reportFlow(assignment, start, elapsed, result)
}

func (c *Client) reportConnectFailed(assignment *protocol.Response, dialErr error) {
	_, err := sendControlRequest(c.managerAddr, protocol.ConnectFailedRequest{
		Q:         protocol.QConnectFailed,
		WorkerID:  c.workerID,
		BlastIP:   assignment.BlastIP,
		BlastPort: assignment.BlastPort,
		BlastID:   assignment.BlastID,
		Error:     dialErr.Error(),
	})
	if err != nil {
		fmt.Printf("failed to report connect_failed: %v\n", err)
	}
}

func (c *Client) reportFlow(assignment *protocol.Response, start time.Time, elapsed time.Duration, result PumpResult) {
	_, err := sendControlRequest(c.managerAddr, protocol.ReportFlowRequest{
		Q:             protocol.QReportFlow,
		WorkerID:      c.workerID,
		BlastIP:       assignment.BlastIP,
		BlastPort:     assignment.BlastPort,
		Start:         start.Unix(),
		Duration:      roundTo2(elapsed.Seconds()),
		BytesSent:     result.BytesSent,
		BytesReceived: result.BytesReceived,
		Direction:     assignment.Direction,
	})
	if err != nil {
		fmt.Printf("failed to report_flow: %v\n", err)
	}
}

func roundTo2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
