// Package protocol implements the two wire formats blastmesh speaks:
// the worker<->manager control protocol (one JSON request per TCP
// connection, spec.md §6.1) and the worker<->worker blast protocol
// (binary direction/duration prefix, spec.md §6.2). The control side
// follows the teacher's internal/protocol/messages.go: a base envelope is
// unmarshalled first to read a discriminator field, then the full message
// is unmarshalled into its concrete type.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Command names for the "q" field (spec.md §4.1).
const (
	QRegisterWorker = "register_worker"
	QKeepAlive      = "keep_alive"
	QGetWork        = "get_work"
	QReportFlow     = "report_flow"
	QConnectFailed  = "connect_failed"
)

// Direction values (spec.md Glossary).
const (
	DirectionSend    = "s"
	DirectionReceive = "r"
	DirectionBoth    = "b"
)

type baseRequest struct {
	Q string `json:"q"`
}

// RegisterRequest is the register_worker request body.
type RegisterRequest struct {
	Q         string `json:"q"`
	BlastPort int    `json:"blast_port,omitempty"`
	IP        string `json:"ip,omitempty"`
}

// KeepAliveRequest is the keep_alive request body.
type KeepAliveRequest struct {
	Q        string `json:"q"`
	WorkerID string `json:"worker_id"`
	IP       string `json:"ip,omitempty"`
}

// GetWorkRequest is the get_work request body.
type GetWorkRequest struct {
	Q        string `json:"q"`
	WorkerID string `json:"worker_id"`
	IP       string `json:"ip,omitempty"`
}

// ReportFlowRequest is the report_flow request body. BytesLegacy carries the
// pre-bidirectional "bytes" field; when set (and BytesSent/BytesReceived are
// both absent) it is treated as a single send-direction flow.
type ReportFlowRequest struct {
	Q             string  `json:"q"`
	WorkerID      string  `json:"worker_id"`
	BlastIP       string  `json:"blast_ip"`
	BlastPort     int     `json:"blast_port"`
	Start         int64   `json:"start"`
	Duration      float64 `json:"duration"`
	BytesSent     int64   `json:"bytes_sent"`
	BytesReceived int64   `json:"bytes_received"`
	BytesLegacy   *int64  `json:"bytes,omitempty"`
	Direction     string  `json:"direction,omitempty"`
}

// ConnectFailedRequest is the connect_failed request body.
type ConnectFailedRequest struct {
	Q         string `json:"q"`
	WorkerID  string `json:"worker_id"`
	BlastIP   string `json:"blast_ip"`
	BlastPort int    `json:"blast_port"`
	BlastID   string `json:"blast_id"`
	Error     string `json:"error"`
}

// UnknownCommandError is returned by ParseRequest when "q" parses fine as
// JSON but names no known command, so callers can distinguish it from a
// JSON-decode failure and respond per spec.md §7.5 instead of a generic
// malformed-request failure.
type UnknownCommandError struct {
	Q string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", e.Q)
}

// ParseRequest parses a JSON control request and dispatches on its "q"
// field, the same way protocol.ParseMessage dispatches on "type".
func ParseRequest(data []byte) (interface{}, error) {
	var base baseRequest
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	switch base.Q {
	case QRegisterWorker:
		var req RegisterRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("invalid register_worker request: %w", err)
		}
		return &req, nil

	case QKeepAlive:
		var req KeepAliveRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("invalid keep_alive request: %w", err)
		}
		return &req, nil

	case QGetWork:
		var req GetWorkRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("invalid get_work request: %w", err)
		}
		return &req, nil

	case QReportFlow:
		var req ReportFlowRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("invalid report_flow request: %w", err)
		}
		return &req, nil

	case QConnectFailed:
		var req ConnectFailedRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("invalid connect_failed request: %w", err)
		}
		return &req, nil

	default:
		return nil, &UnknownCommandError{Q: base.Q}
	}
}

// IsUnknownCommand reports whether err was produced by ParseRequest
// encountering an unrecognized "q", and returns the offending value.
func IsUnknownCommand(err error) (string, bool) {
	var uce *UnknownCommandError
	if errors.As(err, &uce) {
		return uce.Q, true
	}
	return "", false
}

// Response is the single response shape for every control command. Only the
// fields relevant to a given command are populated; the rest are omitted
// from the encoded JSON.
type Response struct {
	Success    *bool    `json:"success,omitempty"`
	WorkerID   string   `json:"worker_id,omitempty"`
	BlastIP    string   `json:"blast_ip,omitempty"`
	BlastPort  int      `json:"blast_port,omitempty"`
	BlastID    string   `json:"blast_id,omitempty"`
	Direction  string   `json:"direction,omitempty"`
	Duration   int      `json:"duration,omitempty"`
	ErrorMsg   string   `json:"error_msg,omitempty"`
	Message    string   `json:"message,omitempty"`
	RetryAfter *float64 `json:"retry_after,omitempty"`
	Reregister bool     `json:"reregister,omitempty"`
}

// Empty is the "(empty)" success response shared by keep_alive, report_flow,
// and connect_failed.
func Empty() *Response { return &Response{} }

// RegisterSuccess builds the register_worker success response.
func RegisterSuccess(workerID string) *Response {
	return &Response{Success: boolPtr(true), WorkerID: workerID}
}

// GetWorkSuccess builds the get_work success response.
func GetWorkSuccess(blastIP string, blastPort int, blastID, direction string, duration int) *Response {
	return &Response{
		Success:   boolPtr(true),
		BlastIP:   blastIP,
		BlastPort: blastPort,
		BlastID:   blastID,
		Direction: direction,
		Duration:  duration,
	}
}

// Failure builds a {success:false, error_msg} response, optionally with
// retry_after and reregister set.
func Failure(errMsg string, retryAfter *float64, reregister bool) *Response {
	return &Response{
		Success:    boolPtr(false),
		ErrorMsg:   errMsg,
		RetryAfter: retryAfter,
		Reregister: reregister,
	}
}

// Unknown builds the unknown-command response (spec.md §7.5). Unlike every
// other failure, this one carries its text in "message", not "error_msg"
// (confirmed against the original netblast-manager.py, which uses a
// distinct key for this one case).
func Unknown(q string) *Response {
	return &Response{
		Success: boolPtr(false),
		Message: fmt.Sprintf("Unknown command '%s'", q),
	}
}

// Encode marshals a response to JSON.
func Encode(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

func boolPtr(b bool) *bool { return &b }
