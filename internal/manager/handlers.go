package manager

import (
	"fmt"
	"time"

	"github.com/nmeasure/blastmesh/internal/protocol"
	"github.com/nmeasure/blastmesh/internal/registry"
)

// Handler dispatches parsed control requests to the registry and emits the
// side effects spec.md §4.1 describes for each command.
type Handler struct {
	registry            *registry.Registry
	direction           string
	keepaliveTimeout    time.Duration
	retryInterval       time.Duration
	blastClientDuration time.Duration
	supervisor          *Supervisor
	flowLog             *FlowLog
	notifier            *DisablementNotifier
	debug               bool
}

// NewHandler wires the registry and optional sinks into a request handler.
// supervisor may be nil at construction time and set later via
// SetSupervisor, to break the construction cycle between the control
// server (which needs a handler) and the supervisor (whose onExpire
// typically stops that same server).
func NewHandler(reg *registry.Registry, direction string, keepaliveTimeout, retryInterval, blastClientDuration time.Duration, supervisor *Supervisor, flowLog *FlowLog, notifier *DisablementNotifier) *Handler {
	return &Handler{
		registry:            reg,
		direction:           direction,
		keepaliveTimeout:    keepaliveTimeout,
		retryInterval:       retryInterval,
		blastClientDuration: blastClientDuration,
		supervisor:          supervisor,
		flowLog:             flowLog,
		notifier:            notifier,
	}
}

// SetSupervisor attaches the test-duration supervisor once it's been
// created.
func (h *Handler) SetSupervisor(supervisor *Supervisor) {
	h.supervisor = supervisor
}

// SetDebug turns on per-request verbose logging (--debug, spec.md §6.5).
func (h *Handler) SetDebug(debug bool) {
	h.debug = debug
}

// Handle parses data as a control request and returns the response to
// encode, per spec.md §6.1's framing.
func (h *Handler) Handle(data []byte, peerIP string) *protocol.Response {
	req, err := protocol.ParseRequest(data)
	if err != nil {
		if q, ok := protocol.IsUnknownCommand(err); ok {
			return protocol.Unknown(q)
		}
		return protocol.Failure(fmt.Sprintf("malformed request: %v", err), nil, false)
	}

	switch r := req.(type) {
	case *protocol.RegisterRequest:
		return h.handleRegister(r, peerIP)
	case *protocol.KeepAliveRequest:
		return h.handleKeepAlive(r)
	case *protocol.GetWorkRequest:
		return h.handleGetWork(r)
	case *protocol.ReportFlowRequest:
		return h.handleReportFlow(r)
	case *protocol.ConnectFailedRequest:
		return h.handleConnectFailed(r)
	default:
		// Unreachable: ParseRequest's own default case intercepts any "q"
		// that doesn't map to one of the five request types above.
		return protocol.Failure(fmt.Sprintf("malformed request: unexpected request type %T", r), nil, false)
	}
}

func (h *Handler) handleRegister(req *protocol.RegisterRequest, peerIP string) *protocol.Response {
	ip := peerIP
	if req.IP != "" {
		ip = req.IP
	}
	rec := h.registry.Register(ip, req.BlastPort, time.Now())
	fmt.Printf("registered worker %s (ip=%s, blast_port=%d)\n", rec.WorkerID, rec.IP, rec.BlastPort)
	return protocol.RegisterSuccess(rec.WorkerID)
}

func (h *Handler) handleKeepAlive(req *protocol.KeepAliveRequest) *protocol.Response {
	if err := h.registry.KeepAlive(req.WorkerID, time.Now()); err != nil {
		return unknownWorkerResponse(err)
	}
	if h.debug {
		fmt.Printf("keep_alive from %s\n", req.WorkerID)
	}
	return protocol.Empty()
}

func (h *Handler) handleGetWork(req *protocol.GetWorkRequest) *protocol.Response {
	now := time.Now()
	outcome, err := h.registry.Assign(req.WorkerID, now)
	if err != nil {
		return unknownWorkerResponse(err)
	}
	if h.debug {
		fmt.Printf("get_work from %s: sender=%v receiver=%v\n", req.WorkerID, outcome.RequesterIsSender, outcome.Receiver != nil)
	}

	if !outcome.RequesterIsSender {
		retryAfter := minDuration(h.supervisor.Elapsed(), h.keepaliveTimeout/2)
		return protocol.Failure("worker is not a member of the senders network set", floatSeconds(retryAfter), false)
	}

	if outcome.Receiver == nil {
		if h.supervisor.Over() {
			return protocol.Failure("Test ended.", nil, false)
		}
		retryAfter := minDuration(h.retryInterval, h.supervisor.Remaining())
		return protocol.Failure("no eligible receiver available", floatSeconds(retryAfter), false)
	}

	duration := minDuration(h.blastClientDuration, h.supervisor.Remaining())
	if duration < time.Second {
		return protocol.Failure("Test ended.", nil, false)
	}

	return protocol.GetWorkSuccess(
		outcome.Receiver.IP,
		outcome.Receiver.BlastPort,
		outcome.Receiver.WorkerID,
		h.direction,
		int(duration.Round(time.Second).Seconds()),
	)
}

func (h *Handler) handleReportFlow(req *protocol.ReportFlowRequest) *protocol.Response {
	rec, ok := h.registry.Get(req.WorkerID)
	if !ok {
		return unknownWorkerResponse(registry.ErrUnknownWorker)
	}
	h.registry.Touch(req.WorkerID, time.Now())
	selfIP := rec.IP

	start := req.Start
	elapsed := round2(req.Duration)

	if req.BytesLegacy != nil && req.BytesSent == 0 && req.BytesReceived == 0 {
		h.flowLog.Emit(flowRecord{
			SrcIP: selfIP, DstIP: req.BlastIP, DstPort: req.BlastPort,
			Start: start, Elapsed: elapsed, Bytes: *req.BytesLegacy,
		})
		return protocol.Empty()
	}

	if req.BytesSent > 0 {
		h.flowLog.Emit(flowRecord{
			SrcIP: selfIP, DstIP: req.BlastIP, DstPort: req.BlastPort,
			Start: start, Elapsed: elapsed, Bytes: req.BytesSent,
		})
	}
	if req.BytesReceived > 0 {
		h.flowLog.Emit(flowRecord{
			SrcIP: req.BlastIP, DstIP: selfIP, DstPort: req.BlastPort,
			Start: start, Elapsed: elapsed, Bytes: req.BytesReceived,
		})
	}

	return protocol.Empty()
}

func (h *Handler) handleConnectFailed(req *protocol.ConnectFailedRequest) *protocol.Response {
	errs, justDisabled, err := h.registry.RecordConnectFailure(req.BlastID)
	if err != nil {
		return unknownWorkerResponse(err)
	}
	fmt.Printf("connect_failed reported against %s (errors=%d): %s\n", req.BlastID, errs, req.Error)

	if justDisabled && h.notifier != nil {
		if rec, ok := h.registry.Get(req.BlastID); ok {
			h.notifier.notify(rec, req.Error)
		}
	}
	return protocol.Empty()
}

func unknownWorkerResponse(err error) *protocol.Response {
	retry := 1.0
	return protocol.Failure(err.Error(), &retry, true)
}

func floatSeconds(d time.Duration) *float64 {
	v := d.Seconds()
	if v < 0 {
		v = 0
	}
	return &v
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
