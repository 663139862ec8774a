package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"example.com/livefeed/internal/models"
	"github.com/gocql/gocql"
	"github.com/segmentio/kafka-go"
)

// Floods the relay topic with synthetic post events to measure reconciler
// throughput. Post ids do not exist in the store, so every event resolves
// to an owner-list removal.
func main() {
	var (
		total       int
		batchSize   int
		numWorkers  int
		kafkaBroker string
		topic       string
	)
	flag.IntVar(&total, "n", 100000, "total number of events to send")
	flag.IntVar(&batchSize, "batch", 100, "batch size for sending messages")
	flag.IntVar(&numWorkers, "workers", 4, "number of parallel goroutines")
	flag.StringVar(&kafkaBroker, "broker", "localhost:29092", "Kafka broker address")
	flag.StringVar(&topic, "topic", "post-events", "relay topic")
	flag.Parse()

	// Kafka writer with asynchronous sending enabled
	w := &kafka.Writer{
		Addr:     kafka.TCP(kafkaBroker),
		Topic:    topic,
		Balancer: &kafka.Hash{},
		Async:    true,
	}
	defer w.Close()

	creatorID := gocql.TimeUUID().String()
	actions := []string{models.ActionCreate, models.ActionUpdate, models.ActionDelete}
	start := time.Now()

	var successCount, failCount uint64
	jobs := make(chan int, numWorkers*batchSize)
	var wg sync.WaitGroup

	// --- Start worker goroutines ---
	for wID := 0; wID < numWorkers; wID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch := make([]kafka.Message, 0, batchSize)

			flush := func() {
				if len(batch) == 0 {
					return
				}
				if err := w.WriteMessages(context.Background(), batch...); err != nil {
					atomic.AddUint64(&failCount, uint64(len(batch)))
					fmt.Printf("write error: %v\n", err)
				} else {
					atomic.AddUint64(&successCount, uint64(len(batch)))
				}
				batch = batch[:0]
			}

			for i := range jobs {
				rec := models.EventRecord{
					Action:     actions[i%len(actions)],
					PostID:     gocql.TimeUUID().String(),
					CreatorID:  creatorID,
					OccurredAt: time.Now().UTC(),
				}
				v, err := json.Marshal(rec)
				if err != nil {
					atomic.AddUint64(&failCount, 1)
					continue
				}
				batch = append(batch, kafka.Message{Key: []byte(rec.Action), Value: v, Time: rec.OccurredAt})
				if len(batch) >= batchSize {
					flush()
				}
			}
			flush()
		}()
	}

	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	// --- Benchmark results ---
	elapsed := time.Since(start)
	fmt.Printf("Total events: %d\n", total)
	fmt.Printf("Successful: %d, Failed: %d\n", successCount, failCount)
	fmt.Printf("Elapsed time: %s\n", elapsed)
	fmt.Printf("Throughput: %.2f msg/s\n", float64(successCount)/elapsed.Seconds())
}
