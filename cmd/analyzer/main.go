package main

import (
	"fmt"
	"log"
	"os"

	"github.com/nmeasure/blastmesh/internal/analyzer"
	"github.com/nmeasure/blastmesh/internal/store"
	"github.com/nmeasure/blastmesh/pkg/config"
)

func main() {
	cfg, err := config.LoadAnalyzerConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if cfg.LogFile == "" || cfg.OutputCSV == "" {
		log.Fatal("usage: analyzer [flags] <logfile> <outputcsv>")
	}

	in, err := os.Open(cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer in.Close()

	flows, err := analyzer.ReadFlows(in, cfg.Src, cfg.Dest)
	if err != nil {
		log.Fatalf("failed to read flow log: %v", err)
	}
	fmt.Printf("parsed %d flow records\n", len(flows))
	if cfg.Debug {
		for _, f := range flows {
			fmt.Printf("flow: %s -> %s:%d start=%d elapsed=%.2fs bytes=%d\n",
				f.SrcIP, f.DstIP, f.DstPort, f.Start, f.Elapsed, f.Bytes)
		}
	}

	buckets := analyzer.Aggregate(flows, cfg.Dt.Seconds())
	fmt.Printf("aggregated into %d buckets of width %s\n", len(buckets), cfg.Dt)
	if cfg.Debug {
		for _, b := range buckets {
			fmt.Printf("bucket t=%d bps=%d tx_IPs=%d txrx_IPs=%d\n", b.T, b.Bps, b.TxIPs, b.TxRxIPs)
		}
	}

	out, err := os.Create(cfg.OutputCSV)
	if err != nil {
		log.Fatalf("failed to create output CSV: %v", err)
	}
	defer out.Close()

	if err := analyzer.WriteCSV(out, buckets); err != nil {
		log.Fatalf("failed to write CSV: %v", err)
	}

	if cfg.Database.Enabled() {
		archiveBuckets(cfg, buckets)
	}

	fmt.Printf("wrote %s\n", cfg.OutputCSV)
}

func archiveBuckets(cfg *config.AnalyzerConfig, buckets []analyzer.Bucket) {
	db, err := store.Connect(cfg.Database.DSN)
	if err != nil {
		fmt.Printf("bucket archive disabled: %v\n", err)
		return
	}
	defer db.Close()

	if err := db.EnsureSchema(); err != nil {
		fmt.Printf("bucket archive disabled: %v\n", err)
		return
	}

	runID := cfg.LogFile
	for _, b := range buckets {
		if err := db.UpsertBucket(runID, b.T, b.Duration, b.Bps, b.Bytes, b.TxIPs, b.TxRxIPs); err != nil {
			fmt.Printf("failed to archive bucket t=%d: %v\n", b.T, err)
		}
	}
	fmt.Printf("archived %d buckets to Postgres (run_id=%s)\n", len(buckets), runID)
}
