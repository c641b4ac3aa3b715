package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nmeasure/blastmesh/internal/feed"
	"github.com/nmeasure/blastmesh/internal/queue"
)

// flowRecord is one FLOW: line's fields (spec.md §3, §6.3).
type flowRecord struct {
	SrcIP   string
	DstIP   string
	DstPort int
	Start   int64
	Elapsed float64
	Bytes   int64
}

// FlowLog prints FLOW: lines to stdout and fans them out to any configured
// optional sinks. A sink failure is logged and never fails the request;
// sink publishes run in the handler's goroutine under a shared 2-second
// timeout. Sinks are advisory, per spec.md's Non-goals around persistent
// manager state.
type FlowLog struct {
	kafka *queue.Producer
	feed  *feed.Publisher
	w     io.Writer
}

// NewFlowLog creates a flow logger. kafka and feedPub may be nil when their
// respective sinks are not configured. FLOW: lines go to stdout; tests can
// redirect that with SetWriter to observe what was emitted.
func NewFlowLog(kafka *queue.Producer, feedPub *feed.Publisher) *FlowLog {
	return &FlowLog{kafka: kafka, feed: feedPub, w: os.Stdout}
}

// SetWriter redirects the FLOW: line output, e.g. to a bytes.Buffer in tests.
func (l *FlowLog) SetWriter(w io.Writer) {
	l.w = w
}

// Emit writes one FLOW: line and publishes it to any configured sinks.
func (l *FlowLog) Emit(r flowRecord) {
	line := formatFlowLine(r)
	fmt.Fprintln(l.w, line)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if l.kafka != nil {
		payload, err := json.Marshal(r)
		if err == nil {
			if err := l.kafka.Publish(ctx, r.SrcIP, payload); err != nil {
				fmt.Printf("kafka flow fan-out failed: %v\n", err)
			}
		}
	}
	if l.feed != nil {
		if err := l.feed.Publish(ctx, line); err != nil {
			fmt.Printf("redis flow feed publish failed: %v\n", err)
		}
	}
}

func formatFlowLine(r flowRecord) string {
	return fmt.Sprintf("FLOW: %s %s %d %d %.2f %d", r.SrcIP, r.DstIP, r.DstPort, r.Start, r.Elapsed, r.Bytes)
}
