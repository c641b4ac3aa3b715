package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nmeasure/blastmesh/internal/feed"
	"github.com/nmeasure/blastmesh/internal/manager"
	"github.com/nmeasure/blastmesh/internal/notification"
	"github.com/nmeasure/blastmesh/internal/queue"
	"github.com/nmeasure/blastmesh/internal/registry"
	"github.com/nmeasure/blastmesh/internal/timer"
	"github.com/nmeasure/blastmesh/pkg/config"
)

func main() {
	cfg, err := config.LoadManagerConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	fmt.Println("Starting blastmesh manager...")

	reg := registry.New(cfg.Src, cfg.Dest, cfg.MaxConnectErrors, cfg.KeepaliveTimeout)

	var kafkaProducer *queue.Producer
	if cfg.Kafka.Enabled() {
		if err := queue.CreateTopic(cfg.Kafka.Brokers, cfg.Kafka.Topic, 3, 1); err != nil {
			fmt.Printf("note: Kafka topic creation failed (may already exist): %v\n", err)
		}
		kafkaProducer = queue.NewProducer(queue.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			Compression:  cfg.Kafka.Compression,
			Async:        cfg.Kafka.Async,
			MaxAttempts:  cfg.Kafka.MaxAttempts,
			RequiredAcks: cfg.Kafka.RequiredAcks,
		})
		defer kafkaProducer.Close()
		fmt.Printf("Kafka flow fan-out enabled (topic=%s)\n", cfg.Kafka.Topic)
	}

	var feedPublisher *feed.Publisher
	if cfg.Redis.Enabled() {
		feedPublisher = feed.NewPublisher(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel)
		defer feedPublisher.Close()
		fmt.Printf("Redis live flow feed enabled (channel=%s)\n", cfg.Redis.Channel)
	}

	flowLog := manager.NewFlowLog(kafkaProducer, feedPublisher)

	var notifier *notification.Notifier
	if cfg.SMTP.Enabled() {
		notifier = notification.NewNotifier(notification.Config{
			Host: cfg.SMTP.Host, Port: cfg.SMTP.Port,
			Username: cfg.SMTP.Username, Password: cfg.SMTP.Password,
			From: cfg.SMTP.From, To: cfg.SMTP.To,
		})
		fmt.Println("SMTP disablement notices enabled")
	}

	timers := timer.NewManager()
	timers.Start()
	defer timers.Stop()

	disablementNotifier := manager.NewDisablementNotifier(notifier)
	handler := manager.NewHandler(
		reg, cfg.Direction, cfg.KeepaliveTimeout, cfg.RetryInterval, cfg.BlastClientDuration,
		nil, flowLog, disablementNotifier,
	)
	handler.SetDebug(cfg.Debug)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := manager.NewServer(addr, handler)

	supervisor := manager.NewSupervisor(timers, cfg.Duration, srv.Stop)
	handler.SetSupervisor(supervisor)

	if err := srv.Start(); err != nil {
		log.Fatalf("failed to start control listener: %v", err)
	}
	supervisor.Start()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			stats := reg.Stats(time.Now())
			fmt.Printf("registry: %d registered, %d eligible receivers, %d scheduled timers\n",
				stats.RegisteredWorkers, stats.EligibleReceivers, timers.Stats().ScheduledTasks)
		}
	}()

	fmt.Printf("manager listening on %s (direction=%s)\n", addr, cfg.Direction)
	if cfg.Duration > 0 {
		fmt.Printf("test duration: %s\n", cfg.Duration)
	} else {
		fmt.Println("test duration: unbounded (run until signalled)")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("shutting down manager...")
	srv.Stop()
}
