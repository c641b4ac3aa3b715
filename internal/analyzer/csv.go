package analyzer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteCSV emits the header and one row per bucket (spec.md §6.4).
func WriteCSV(w io.Writer, buckets []Bucket) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"t", "duration", "bps", "bytes", "tx_IPs", "txrx_IPs"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, b := range buckets {
		row := []string{
			strconv.FormatInt(b.T, 10),
			strconv.FormatFloat(b.Duration, 'f', -1, 64),
			strconv.FormatInt(b.Bps, 10),
			strconv.FormatInt(b.Bytes, 10),
			strconv.FormatInt(b.TxIPs, 10),
			strconv.FormatInt(b.TxRxIPs, 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}
