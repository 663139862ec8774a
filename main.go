package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"example.com/livefeed/cmd/server"
	"example.com/livefeed/cmd/worker"
	appkafka "example.com/livefeed/internal/broker"
	config "example.com/livefeed/internal/init"
	"example.com/livefeed/internal/notify"
	"example.com/livefeed/internal/store"
)

func main() {
	// Initialize application configuration
	cfg := config.Init()
	mode := cfg.Mode

	if mode == "server" && cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in server mode")
	}

	// Setup OS signal handling for graceful shutdown (SIGINT, SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize the configured store
	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Store connection failed: %v", err)
	}
	defer st.Close()

	// Configure Kafka client parameters
	kafkaCfg := appkafka.KafkaConfig{
		Brokers:      []string{cfg.KafkaBroker},
		Topic:        cfg.KafkaTopic,
		Partition:    cfg.KafkaPartition,
		GroupID:      cfg.KafkaGroupID,
		WriteTimeout: cfg.KafkaWriteTO,
		ReadTimeout:  cfg.KafkaReadTO,
	}

	// Run application depending on selected mode
	switch mode {
	case "server":
		// Kafka relay is optional; without it events only reach live sockets
		var relay notify.Relay
		if cfg.KafkaEnabled {
			kafkaWriter, err := appkafka.NewKafkaWriter(kafkaCfg)
			if err != nil {
				log.Fatalf("Kafka writer init failed: %v", err)
			}
			defer kafkaWriter.Close()
			relay = appkafka.NewEventRelay(kafkaWriter)
		}

		notifier := notify.New(relay)
		if err := server.Run(ctx, cfg, st, notifier); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case "worker":
		// Start the reconciler that reads post events from Kafka
		kafkaReader := appkafka.NewKafkaReader(kafkaCfg)
		w := worker.New(st, kafkaReader, cfg.WorkerCount, cfg.WorkerQueueSize)
		w.Run(ctx)
		if err := kafkaReader.Close(); err != nil {
			log.Printf("Kafka reader close failed: %v", err)
		}
	default:
		log.Fatalf("unknown mode: %s", mode)
	}

	log.Println("Shutdown completed")
}
