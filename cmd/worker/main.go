package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nmeasure/blastmesh/internal/worker"
	"github.com/nmeasure/blastmesh/pkg/config"
)

func main() {
	cfg, err := config.LoadWorkerConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if cfg.ManagerAddr == "" {
		log.Fatal("--manager is required")
	}

	fmt.Println("Starting blastmesh worker...")
	if cfg.Daemonize {
		fmt.Println("note: --daemonize is accepted but daemonization is left to the process supervisor")
	}

	blastServer := worker.NewBlastServer(cfg.WorkerHost, cfg.BlastBufSize)
	blastServer.SetDebug(cfg.Debug)
	if err := blastServer.Start(cfg.WorkerPort); err != nil {
		log.Fatalf("failed to start blast server: %v", err)
	}

	client := worker.NewClient(cfg.ManagerAddr, cfg.BlastBufSize, cfg.Duration, blastServer)
	client.SetDebug(cfg.Debug)

	stopCh := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("signal received, stopping control loop...")
		close(stopCh)
	}()

	if err := client.Run(cfg.WorkerHost, blastServer.Port(), stopCh); err != nil {
		log.Fatalf("control loop exited with error: %v", err)
	}

	fmt.Println("worker exited cleanly")
}
