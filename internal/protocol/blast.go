package protocol

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// durationFieldWidth is the fixed width of the ASCII duration field in the
// blast wire protocol's control prefix (spec.md §6.2).
const durationFieldWidth = 20

// EncodeBlastPrefix builds the initiator->responder control prefix: one
// direction byte followed by a 20-byte right-justified, space-padded
// decimal duration in seconds.
func EncodeBlastPrefix(direction string, durationSeconds int) ([]byte, error) {
	if direction != DirectionSend && direction != DirectionReceive && direction != DirectionBoth {
		return nil, fmt.Errorf("invalid blast direction %q", direction)
	}

	durStr := strconv.Itoa(durationSeconds)
	if len(durStr) > durationFieldWidth {
		return nil, fmt.Errorf("duration %d does not fit in %d-byte field", durationSeconds, durationFieldWidth)
	}

	buf := make([]byte, 0, 1+durationFieldWidth)
	buf = append(buf, direction[0])
	buf = append(buf, []byte(fmt.Sprintf("%*s", durationFieldWidth, durStr))...)
	return buf, nil
}

// ReadBlastPrefix reads and parses the control prefix from the responder
// side of a freshly accepted connection.
func ReadBlastPrefix(r io.Reader) (direction string, durationSeconds int, err error) {
	header := make([]byte, 1+durationFieldWidth)
	if _, err := io.ReadFull(r, header); err != nil {
		return "", 0, fmt.Errorf("failed to read blast prefix: %w", err)
	}

	direction = string(header[0:1])
	if direction != DirectionSend && direction != DirectionReceive && direction != DirectionBoth {
		return "", 0, fmt.Errorf("invalid blast direction byte %q", direction)
	}

	durStr := strings.TrimSpace(string(header[1:]))
	duration, err := strconv.Atoi(durStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid blast duration field %q: %w", durStr, err)
	}

	return direction, duration, nil
}

// ComplementDirection returns the responder-facing direction for an
// initiator that was assigned dir: s<->r, b stays b (spec.md §4.5).
func ComplementDirection(dir string) (string, error) {
	switch dir {
	case DirectionSend:
		return DirectionReceive, nil
	case DirectionReceive:
		return DirectionSend, nil
	case DirectionBoth:
		return DirectionBoth, nil
	default:
		return "", fmt.Errorf("invalid blast direction %q", dir)
	}
}

// FillPattern fills buf with the deterministic send-pump pattern i mod 256
// (spec.md §4.6), starting the pattern at offset so consecutive buffer
// refills continue the same byte sequence.
func FillPattern(buf []byte, offset int) {
	for i := range buf {
		buf[i] = byte((offset + i) % 256)
	}
}

// VerifyPattern is a test helper: it reports whether buf[:n] matches the
// deterministic send pattern starting at offset.
func VerifyPattern(buf []byte, n, offset int) bool {
	want := make([]byte, n)
	FillPattern(want, offset)
	return bytes.Equal(buf[:n], want)
}
