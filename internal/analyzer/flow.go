// Package analyzer implements the offline batch bucketing tool (spec.md
// §4.7), adapted from the teacher's internal/aggregation/hourly.go and
// daily.go (both fold raw samples into fixed-width time buckets; here the
// bucket boundaries are TEST_DURATION-independent wall-clock windows of
// width dt rather than calendar hours/days).
package analyzer

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Flow is one parsed "FLOW: " log line (spec.md §6.3).
type Flow struct {
	SrcIP   string
	DstIP   string
	DstPort int
	Start   int64
	Elapsed float64
	Bytes   int64
}

const flowPrefix = "FLOW: "

// ParseFlowLine parses a single flow log line. Lines not beginning with
// "FLOW: " are not flows; callers should skip them rather than treat this
// as an error.
func ParseFlowLine(line string) (Flow, bool, error) {
	if !strings.HasPrefix(line, flowPrefix) {
		return Flow{}, false, nil
	}
	fields := strings.Fields(strings.TrimPrefix(line, flowPrefix))
	if len(fields) != 6 {
		return Flow{}, false, fmt.Errorf("malformed flow line: expected 6 fields, got %d", len(fields))
	}

	dstPort, err := strconv.Atoi(fields[2])
	if err != nil {
		return Flow{}, false, fmt.Errorf("invalid dst_port: %w", err)
	}
	start, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Flow{}, false, fmt.Errorf("invalid start_epoch: %w", err)
	}
	elapsed, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return Flow{}, false, fmt.Errorf("invalid elapsed: %w", err)
	}
	bytesTotal, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return Flow{}, false, fmt.Errorf("invalid bytes: %w", err)
	}

	return Flow{
		SrcIP:   fields[0],
		DstIP:   fields[1],
		DstPort: dstPort,
		Start:   start,
		Elapsed: elapsed,
		Bytes:   bytesTotal,
	}, true, nil
}

// ReadFlows scans r line by line, parsing every FLOW: line and skipping
// everything else. It returns the flows that pass the src/dest filters.
func ReadFlows(r io.Reader, srcSpecs, destSpecs []string) ([]Flow, error) {
	var flows []Flow
	scanner := bufio.NewScanner(r)
	// Log lines can be long if another process interleaves output; grow the
	// buffer rather than truncate silently.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		flow, ok, err := ParseFlowLine(scanner.Text())
		if err != nil {
			fmt.Printf("skipping malformed flow line %d: %v\n", lineNo, err)
			continue
		}
		if !ok {
			continue
		}
		if !flowMatches(flow, srcSpecs, destSpecs) {
			continue
		}
		flows = append(flows, flow)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read flow log: %w", err)
	}
	return flows, nil
}

// flowMatches applies spec.md §4.7's src/dest filter formula to a flow's
// endpoints.
func flowMatches(f Flow, srcSpecs, destSpecs []string) bool {
	return matchFilter(f.SrcIP, srcSpecs, destSpecs) && matchFilter(f.DstIP, destSpecs, srcSpecs)
}

// matchFilter implements match(ip, own, opposite) from spec.md §4.7:
//
//	(own non-empty AND ip in own)
//	OR (own empty AND opposite empty)
//	OR (own empty AND ip NOT in opposite)
func matchFilter(ip string, own, opposite []string) bool {
	if len(own) > 0 {
		return ipInSpecs(ip, own)
	}
	if len(opposite) == 0 {
		return true
	}
	return !ipInSpecs(ip, opposite)
}
