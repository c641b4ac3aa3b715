package worker

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/nmeasure/blastmesh/internal/protocol"
)

// sendControlRequest implements the worker side of spec.md §6.1's framing:
// dial, write the JSON request, half-close the write side, read the
// response to EOF, close.
func sendControlRequest(managerAddr string, req interface{}) (*protocol.Response, error) {
	conn, err := net.DialTimeout("tcp", managerAddr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to dial manager: %w", err)
	}
	defer conn.Close()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}
	if hc, ok := conn.(halfCloseWriter); ok {
		hc.CloseWrite()
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp protocol.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}
