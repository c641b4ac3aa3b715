package manager

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nmeasure/blastmesh/internal/protocol"
	"github.com/nmeasure/blastmesh/internal/registry"
	"github.com/nmeasure/blastmesh/internal/timer"
)

func newTestHandler(t *testing.T, testDuration time.Duration) (*Handler, *registry.Registry) {
	t.Helper()
	reg := registry.New(nil, nil, 3, time.Minute)
	timers := timer.NewManager()
	sup := NewSupervisor(timers, testDuration, func() {})
	flowLog := NewFlowLog(nil, nil)
	h := NewHandler(reg, protocol.DirectionSend, time.Minute, 10*time.Second, 60*time.Second, sup, flowLog, nil)
	return h, reg
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	return data
}

func TestHandle_RegisterWorker(t *testing.T) {
	h, _ := newTestHandler(t, time.Minute)

	req := mustJSON(t, protocol.RegisterRequest{Q: protocol.QRegisterWorker, BlastPort: 9000})
	resp := h.Handle(req, "10.0.0.1")

	if resp.Success == nil || !*resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.WorkerID == "" {
		t.Fatal("expected a worker_id to be allocated")
	}
}

func TestHandle_KeepAliveUnknownWorker(t *testing.T) {
	h, _ := newTestHandler(t, time.Minute)

	req := mustJSON(t, protocol.KeepAliveRequest{Q: protocol.QKeepAlive, WorkerID: "nope"})
	resp := h.Handle(req, "10.0.0.1")

	if resp.Success == nil || *resp.Success {
		t.Fatal("expected failure for unknown worker_id")
	}
	if !resp.Reregister {
		t.Error("expected reregister=true for unknown worker_id")
	}
}

func TestHandle_GetWorkAssignsReceiver(t *testing.T) {
	h, reg := newTestHandler(t, time.Minute)
	now := time.Now()

	sender := reg.Register("10.0.0.1", 0, now)
	receiver := reg.Register("10.0.0.2", 9000, now)

	req := mustJSON(t, protocol.GetWorkRequest{Q: protocol.QGetWork, WorkerID: sender.WorkerID})
	resp := h.Handle(req, "10.0.0.1")

	if resp.Success == nil || !*resp.Success {
		t.Fatalf("expected a successful assignment, got %+v", resp)
	}
	if resp.BlastID != receiver.WorkerID {
		t.Errorf("expected receiver %s, got %s", receiver.WorkerID, resp.BlastID)
	}
	if resp.Direction != protocol.DirectionSend {
		t.Errorf("expected direction %s, got %s", protocol.DirectionSend, resp.Direction)
	}
}

func TestHandle_GetWorkNoEligibleReceiver(t *testing.T) {
	h, reg := newTestHandler(t, time.Minute)
	now := time.Now()

	sender := reg.Register("10.0.0.1", 0, now)

	req := mustJSON(t, protocol.GetWorkRequest{Q: protocol.QGetWork, WorkerID: sender.WorkerID})
	resp := h.Handle(req, "10.0.0.1")

	if resp.Success == nil || *resp.Success {
		t.Fatal("expected failure when no receiver is eligible")
	}
	if resp.RetryAfter == nil {
		t.Error("expected retry_after to be set")
	}
}

func TestHandle_ReportFlowEmitsBothDirections(t *testing.T) {
	h, reg := newTestHandler(t, time.Minute)
	var buf bytes.Buffer
	h.flowLog.SetWriter(&buf)
	now := time.Now()

	worker := reg.Register("10.0.0.1", 9000, now)

	req := mustJSON(t, protocol.ReportFlowRequest{
		Q: protocol.QReportFlow, WorkerID: worker.WorkerID,
		BlastIP: "10.0.0.2", BlastPort: 9000,
		Start: now.Unix(), Duration: 10.0,
		BytesSent: 1000, BytesReceived: 2000,
	})
	resp := h.Handle(req, "10.0.0.1")

	if resp.Success != nil {
		t.Errorf("expected an empty success object, got %+v", resp)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 FLOW: lines, got %d: %q", len(lines), lines)
	}

	wantSend := formatFlowLine(flowRecord{
		SrcIP: "10.0.0.1", DstIP: "10.0.0.2", DstPort: 9000,
		Start: now.Unix(), Elapsed: 10.0, Bytes: 1000,
	})
	wantRecv := formatFlowLine(flowRecord{
		SrcIP: "10.0.0.2", DstIP: "10.0.0.1", DstPort: 9000,
		Start: now.Unix(), Elapsed: 10.0, Bytes: 2000,
	})

	if lines[0] != wantSend {
		t.Errorf("send-direction line = %q, want %q", lines[0], wantSend)
	}
	if lines[1] != wantRecv {
		t.Errorf("receive-direction line = %q, want %q", lines[1], wantRecv)
	}
}

func TestHandle_ConnectFailedDisablesAfterThreshold(t *testing.T) {
	h, reg := newTestHandler(t, time.Minute)
	now := time.Now()

	receiver := reg.Register("10.0.0.2", 9000, now)

	req := mustJSON(t, protocol.ConnectFailedRequest{
		Q: protocol.QConnectFailed, BlastID: receiver.WorkerID, Error: "dial timeout",
	})
	for i := 0; i < 4; i++ {
		h.Handle(req, "10.0.0.1")
	}

	rec, ok := reg.Get(receiver.WorkerID)
	if !ok {
		t.Fatal("expected receiver to still exist")
	}
	if rec.ConnectErrors != 4 {
		t.Errorf("expected 4 connect errors, got %d", rec.ConnectErrors)
	}
}

func TestHandle_MalformedJSON(t *testing.T) {
	h, _ := newTestHandler(t, time.Minute)

	resp := h.Handle([]byte("not json"), "10.0.0.1")
	if resp.Success == nil || *resp.Success {
		t.Fatal("expected failure for malformed JSON")
	}
}

func TestHandle_UnknownCommand(t *testing.T) {
	h, _ := newTestHandler(t, time.Minute)

	req := mustJSON(t, struct {
		Q string `json:"q"`
	}{Q: "disco"})
	resp := h.Handle(req, "10.0.0.1")

	if resp.Success == nil || *resp.Success {
		t.Fatalf("expected failure for unknown command, got %+v", resp)
	}
	if resp.Message != "Unknown command 'disco'" {
		t.Errorf("expected message %q, got %q", "Unknown command 'disco'", resp.Message)
	}
	if resp.ErrorMsg != "" {
		t.Errorf("expected error_msg to stay empty for unknown command, got %q", resp.ErrorMsg)
	}
}
